package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bashmentarium/prescriptions/pkg/config"
	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/monitoring"
	"github.com/bashmentarium/prescriptions/pkg/types"
)

// Delivery mechanism labels used in logs and metrics.
const (
	mechanismRescan  = "rescan"
	mechanismAlarm   = "alarm"
	mechanismMonitor = "monitor"
)

// Orchestrator runs the redundant reminder delivery mechanisms: a periodic
// rescan loop that registers exact alarms, the alarm registry itself, and a
// cron monitor that backstops both. All three funnel through ClaimReminder,
// which is what keeps the user from seeing the same reminder twice.
type Orchestrator struct {
	logger    *logger.Logger
	metrics   *monitoring.MetricsCollector
	cfg       config.SchedulerConfig
	events    interfaces.EventRepository
	alarms    *AlarmRegistry
	presenter *Presenter
	cron      *cron.Cron
	now       func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewOrchestrator creates a new reminder orchestrator
func NewOrchestrator(
	cfg config.SchedulerConfig,
	events interfaces.EventRepository,
	presenter *Presenter,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) *Orchestrator {
	o := &Orchestrator{
		logger:    log,
		metrics:   metrics,
		cfg:       cfg,
		events:    events,
		presenter: presenter,
		now:       time.Now,
	}
	o.alarms = NewAlarmRegistry(o.onAlarm, log, metrics)
	return o
}

// Dispatcher exposes the alarm registry so the prescription service can
// register and cancel alarms as events come and go.
func (o *Orchestrator) Dispatcher() interfaces.ReminderDispatcher {
	return o.alarms
}

// Start recovers alarms from persisted state and launches the rescan loop
// and the cron monitor.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.running = true

	// Recover from whatever state was persisted before the last shutdown.
	// Timers do not survive a restart, the event rows do.
	if err := o.recoverAlarms(ctx); err != nil {
		o.logger.WithError(err).Warn("Alarm recovery failed, rescan loop will catch up")
	}

	go o.rescanLoop(ctx)

	if o.cfg.MonitorEnabled {
		o.cron = cron.New()
		if _, err := o.cron.AddFunc("@every "+o.cfg.MonitorInterval.String(), func() {
			o.scan(ctx, mechanismMonitor)
		}); err != nil {
			o.running = false
			cancel()
			return err
		}
		o.cron.Start()
	}

	o.logger.WithFields(map[string]interface{}{
		"rescan_interval":  o.cfg.RescanInterval.String(),
		"monitor_interval": o.cfg.MonitorInterval.String(),
		"lookahead":        o.cfg.Lookahead.String(),
		"monitor_enabled":  o.cfg.MonitorEnabled,
	}).Info("Reminder orchestrator started")
	return nil
}

// Stop halts all mechanisms and drops pending alarms.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}

	o.cancel()
	if o.cron != nil {
		o.cron.Stop()
	}
	o.alarms.Stop()
	o.running = false

	o.logger.Info("Reminder orchestrator stopped")
}

// rescanLoop re-registers upcoming alarms on a fixed cadence. A failed scan
// shortens the next interval so transient database errors recover quickly.
func (o *Orchestrator) rescanLoop(ctx context.Context) {
	for {
		interval := o.cfg.RescanInterval
		if err := o.scan(ctx, mechanismRescan); err != nil {
			interval = o.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// scan finds incomplete, unreminded events inside the lookahead window.
// Events already due are delivered immediately; the rest get exact alarms.
func (o *Orchestrator) scan(ctx context.Context, mechanism string) error {
	now := o.now()
	upcoming, err := o.pendingEvents(ctx, now.Add(o.cfg.Lookahead))
	if err != nil {
		o.metricScan(mechanism, "error")
		o.logger.ScanCycle(mechanism, 0, 0, err)
		return err
	}

	claimed := 0
	for _, ev := range upcoming {
		if ev.StartTime.After(now) {
			o.alarms.ScheduleAt(ev.ID, ev.StartTime)
			continue
		}
		if o.deliver(ctx, ev, mechanism) {
			claimed++
		}
	}

	o.metricScan(mechanism, "success")
	o.logger.ScanCycle(mechanism, len(upcoming), claimed, nil)
	return nil
}

// recoverAlarms re-registers an alarm for every future pending event,
// regardless of lookahead. This is the boot recovery path.
func (o *Orchestrator) recoverAlarms(ctx context.Context) error {
	pending, err := o.pendingEvents(ctx, time.Time{})
	if err != nil {
		return err
	}

	now := o.now()
	recovered := 0
	for _, ev := range pending {
		if ev.StartTime.After(now) {
			o.alarms.ScheduleAt(ev.ID, ev.StartTime)
			recovered++
		}
	}

	o.logger.WithField("recovered", recovered).Info("Recovered pending alarms from storage")
	return nil
}

// onAlarm is the alarm registry fire callback.
func (o *Orchestrator) onAlarm(eventID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ev, err := o.events.GetEventByID(ctx, eventID)
	if err != nil {
		// The event may have been deleted between registration and firing.
		if !types.IsNotFound(err) {
			o.logger.WithEvent(eventID).WithError(err).Warn("Alarm fired for unloadable event")
		}
		return
	}

	o.deliver(ctx, ev, mechanismAlarm)
}

// deliver claims the reminder and, on winning the claim, presents it. Losing
// the claim means another mechanism got there first.
func (o *Orchestrator) deliver(ctx context.Context, ev *types.MedicationEvent, mechanism string) bool {
	won, err := o.events.ClaimReminder(ctx, ev.ID)
	if err != nil {
		o.logger.WithEvent(ev.ID).WithError(err).Warn("Reminder claim failed")
		return false
	}

	if o.metrics != nil {
		o.metrics.RecordReminderClaim(mechanism, won)
	}
	if !won {
		return false
	}

	o.presenter.Present(ev, mechanism)
	return true
}

// pendingEvents returns incomplete, unreminded events of active prescriptions
// up to a deadline. A zero deadline means no upper bound. Archived
// prescriptions are excluded so a rescan never resurrects alarms the archive
// just cancelled.
func (o *Orchestrator) pendingEvents(ctx context.Context, until time.Time) ([]*types.MedicationEvent, error) {
	notCompleted := false
	notReminded := false
	return o.events.GetEvents(ctx, &types.EventFilters{
		To:           until,
		Completed:    &notCompleted,
		ReminderSent: &notReminded,
		ActiveOnly:   true,
	})
}

func (o *Orchestrator) metricScan(mechanism, status string) {
	if o.metrics != nil {
		o.metrics.RecordScanCycle(mechanism, status)
	}
}
