package reminder

import (
	"sync"
	"time"

	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/monitoring"
)

// AlarmRegistry is the exact-time delivery mechanism. Every registered event
// carries one timer keyed by event id, so re-registering an event replaces
// its pending alarm instead of stacking a second one.
type AlarmRegistry struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	fire    func(eventID string)
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewAlarmRegistry creates a new alarm registry. The fire callback runs on
// the timer goroutine when an alarm goes off.
func NewAlarmRegistry(fire func(eventID string), log *logger.Logger, metrics *monitoring.MetricsCollector) *AlarmRegistry {
	return &AlarmRegistry{
		timers:  make(map[string]*time.Timer),
		fire:    fire,
		logger:  log,
		metrics: metrics,
	}
}

var _ interfaces.ReminderDispatcher = (*AlarmRegistry)(nil)

// ScheduleAt registers an alarm for an event. An existing alarm for the same
// event is replaced. Times already in the past fire immediately.
func (a *AlarmRegistry) ScheduleAt(eventID string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.timers[eventID]; ok {
		existing.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	a.timers[eventID] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		delete(a.timers, eventID)
		a.mu.Unlock()
		a.fire(eventID)
	})

	if a.metrics != nil {
		a.metrics.RecordAlarmRegistered()
	}
	a.logger.WithEvent(eventID).WithField("at", at).Debug("Alarm registered")
}

// Cancel stops a pending alarm. Cancelling an unknown event id is a no-op.
func (a *AlarmRegistry) Cancel(eventID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if timer, ok := a.timers[eventID]; ok {
		timer.Stop()
		delete(a.timers, eventID)
		a.logger.WithEvent(eventID).Debug("Alarm cancelled")
	}
}

// Stop cancels every pending alarm.
func (a *AlarmRegistry) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
}

// Pending returns the number of registered alarms.
func (a *AlarmRegistry) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}
