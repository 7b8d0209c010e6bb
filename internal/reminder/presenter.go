package reminder

import (
	"fmt"

	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/monitoring"
	"github.com/bashmentarium/prescriptions/pkg/types"
)

// Presenter turns a claimed reminder into a user-visible notification. A
// disabled notifier degrades to a log line so a claim is never lost to a
// crash.
type Presenter struct {
	logger   *logger.Logger
	metrics  *monitoring.MetricsCollector
	notifier interfaces.Notifier
	deepLink string
}

var _ interfaces.NotificationDismisser = (*Presenter)(nil)

// NewPresenter creates a new notification presenter
func NewPresenter(notifier interfaces.Notifier, deepLink string, log *logger.Logger, metrics *monitoring.MetricsCollector) *Presenter {
	return &Presenter{
		logger:   log,
		metrics:  metrics,
		notifier: notifier,
		deepLink: deepLink,
	}
}

// Present posts the reminder notification for an event. Errors are logged
// and swallowed: the claim already happened and delivery is best effort.
func (p *Presenter) Present(ev *types.MedicationEvent, mechanism string) {
	if p.notifier == nil || !p.notifier.Enabled() {
		p.logger.WithEvent(ev.ID).Warn("Notifications disabled, reminder logged only")
		p.recordPost("disabled")
		return
	}

	body := fmt.Sprintf("Time to take: %s", ev.Title)
	link := fmt.Sprintf("%s?event_id=%s", p.deepLink, ev.ID)

	if err := p.notifier.Post(ev.ID, ev.Title, body, link); err != nil {
		p.logger.ReminderDelivery(ev.ID, mechanism, false, map[string]interface{}{"error": err.Error()})
		p.recordPost("error")
		return
	}

	p.logger.ReminderDelivery(ev.ID, mechanism, true, nil)
	p.recordPost("success")
}

// Dismiss removes a posted notification, for example after the intake was
// confirmed. Unknown ids are ignored.
func (p *Presenter) Dismiss(eventID string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Dismiss(eventID); err != nil {
		p.logger.WithEvent(eventID).WithError(err).Debug("Failed to dismiss notification")
	}
}

func (p *Presenter) recordPost(status string) {
	if p.metrics != nil {
		p.metrics.RecordNotificationPosted(status)
	}
}
