package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bashmentarium/prescriptions/internal/schedule"
	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/monitoring"
	"github.com/bashmentarium/prescriptions/pkg/types"
)

// Service owns the prescription lifecycle: approving parser output into a
// persisted prescription, materializing its events, recalculating on edit,
// and archiving or purging.
type Service struct {
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
	repository interfaces.PrescriptionRepository
	events     interfaces.EventRepository
	settings   interfaces.SettingsStore
	parser     interfaces.PrescriptionParser
	dispatcher interfaces.ReminderDispatcher
	dismisser  interfaces.NotificationDismisser
	calendar   interfaces.CalendarMirror
	now        func() time.Time
}

// NewService creates a new prescription service
func NewService(
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
	repository interfaces.PrescriptionRepository,
	events interfaces.EventRepository,
	settings interfaces.SettingsStore,
	parser interfaces.PrescriptionParser,
	dispatcher interfaces.ReminderDispatcher,
	dismisser interfaces.NotificationDismisser,
	calendar interfaces.CalendarMirror,
) *Service {
	return &Service{
		logger:     log,
		metrics:    metrics,
		repository: repository,
		events:     events,
		settings:   settings,
		parser:     parser,
		dispatcher: dispatcher,
		dismisser:  dismisser,
		calendar:   calendar,
		now:        time.Now,
	}
}

// ParseText forwards free text to the prescription parser
func (s *Service) ParseText(ctx context.Context, text string) (*types.RawPrescription, error) {
	if text == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "prescription text is required", nil)
	}
	return s.parser.ParseText(ctx, text)
}

// ParseImage forwards a prescription photo to the parser
func (s *Service) ParseImage(ctx context.Context, image []byte, mimeType string) (*types.RawPrescription, error) {
	if len(image) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "prescription image is required", nil)
	}
	return s.parser.ParseImage(ctx, image, mimeType)
}

// CreateFromRaw approves a parser result: it resolves the schedule, persists
// the prescription, materializes its events, and arranges reminders. When the
// parser supplied no schedule block the schedule is aggregated from the
// medication free text.
func (s *Service) CreateFromRaw(ctx context.Context, raw *types.RawPrescription, title string, startDate time.Time) (*types.Prescription, error) {
	if raw == nil || len(raw.Medications) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "at least one medication is required", nil)
	}

	medications := make([]types.Medication, len(raw.Medications))
	for i, rm := range raw.Medications {
		medications[i] = types.Medication{
			ID:           uuid.New().String(),
			Name:         rm.Name,
			Dosage:       rm.Dosage,
			Frequency:    rm.Frequency,
			Duration:     rm.Duration,
			Instructions: rm.Instructions,
		}
	}

	var sched types.Schedule
	if raw.Schedule != nil {
		sched = raw.Schedule.ToSchedule()
	} else {
		sched = schedule.Aggregate(medications)
	}

	if startDate.IsZero() {
		startDate = s.now()
	}
	startDate = time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, startDate.Location())

	if title == "" {
		title = schedule.EventTitle(medications)
	}

	p := &types.Prescription{
		ID:          uuid.New().String(),
		Title:       title,
		Medications: medications,
		StartDate:   startDate,
		Active:      true,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	p.ApplySchedule(sched)
	for i := range p.Medications {
		p.Medications[i].PrescriptionID = p.ID
	}

	if err := s.repository.CreatePrescription(ctx, p); err != nil {
		return nil, err
	}

	if err := s.materializeAndSchedule(ctx, p); err != nil {
		return nil, err
	}

	s.logger.WithPrescription(p.ID).WithFields(map[string]interface{}{
		"medications":   len(p.Medications),
		"times_per_day": p.TimesPerDay,
		"duration_days": p.DurationDays,
	}).Info("Prescription approved")
	return p, nil
}

// GetPrescription retrieves a prescription by ID
func (s *Service) GetPrescription(ctx context.Context, id string) (*types.Prescription, error) {
	return s.repository.GetPrescriptionByID(ctx, id)
}

// GetPrescriptions lists prescriptions, optionally only active ones
func (s *Service) GetPrescriptions(ctx context.Context, activeOnly bool) ([]*types.Prescription, error) {
	return s.repository.GetPrescriptions(ctx, activeOnly)
}

// UpdateAndRecalculate applies edited fields to a prescription and replaces
// its future events with a fresh materialization. With preservePastEvents set
// the events that already started keep their rows, completions included, and
// only future events are cancelled, deleted and rebuilt.
func (s *Service) UpdateAndRecalculate(ctx context.Context, p *types.Prescription, preservePastEvents bool) error {
	existing, err := s.repository.GetPrescriptionByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()

	if err := s.repository.UpdatePrescription(ctx, p); err != nil {
		return err
	}

	now := s.now()
	current, err := s.events.GetEvents(ctx, &types.EventFilters{PrescriptionID: p.ID})
	if err != nil {
		return err
	}

	for _, ev := range current {
		if preservePastEvents && ev.StartTime.Before(now) {
			continue
		}
		s.dispatcher.Cancel(ev.ID)
		s.removeCalendarEntry(ctx, ev)
		if err := s.events.DeleteEvent(ctx, ev.ID); err != nil {
			return err
		}
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}

	fresh := schedule.Materialize(p, settings)
	if preservePastEvents {
		// Rematerialization from the original start date regenerates past
		// doses too. Those rows already exist and must not be duplicated.
		kept := fresh[:0]
		for _, ev := range fresh {
			if !ev.StartTime.Before(now) {
				kept = append(kept, ev)
			}
		}
		fresh = kept
	}

	if err := s.persistAndSchedule(ctx, fresh); err != nil {
		return err
	}

	s.logger.WithPrescription(p.ID).WithFields(map[string]interface{}{
		"preserve_past": preservePastEvents,
		"new_events":    len(fresh),
	}).Info("Prescription recalculated")
	return nil
}

// Archive deactivates a prescription. Its events stay in place so history
// and stats survive, but reminders stop.
func (s *Service) Archive(ctx context.Context, id string) error {
	if err := s.repository.ArchivePrescription(ctx, id); err != nil {
		return err
	}

	events, err := s.events.GetEvents(ctx, &types.EventFilters{PrescriptionID: id, From: s.now()})
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.dispatcher.Cancel(ev.ID)
	}

	s.logger.WithPrescription(id).Info("Prescription archived")
	return nil
}

// Purge permanently deletes a prescription, its events, its pending alarms
// and its calendar entries.
func (s *Service) Purge(ctx context.Context, id string) error {
	events, err := s.events.GetEvents(ctx, &types.EventFilters{PrescriptionID: id})
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.dispatcher.Cancel(ev.ID)
		s.removeCalendarEntry(ctx, ev)
	}

	if err := s.events.DeleteEventsByPrescriptionID(ctx, id); err != nil {
		return err
	}
	if err := s.repository.PurgePrescription(ctx, id); err != nil {
		return err
	}

	s.logger.WithPrescription(id).Info("Prescription purged")
	return nil
}

// GetEvents queries medication events
func (s *Service) GetEvents(ctx context.Context, filters *types.EventFilters) ([]*types.MedicationEvent, error) {
	return s.events.GetEvents(ctx, filters)
}

// GetEvent retrieves a single event
func (s *Service) GetEvent(ctx context.Context, id string) (*types.MedicationEvent, error) {
	return s.events.GetEventByID(ctx, id)
}

// ConfirmIntake marks an event completed, cancels its pending alarm, and
// retracts the notification if one is on screen
func (s *Service) ConfirmIntake(ctx context.Context, eventID string) error {
	if err := s.events.MarkCompleted(ctx, eventID, s.now()); err != nil {
		return err
	}
	s.dispatcher.Cancel(eventID)
	if s.dismisser != nil {
		s.dismisser.Dismiss(eventID)
	}

	s.logger.WithEvent(eventID).Info("Intake confirmed")
	return nil
}

// MarkIncomplete reverts an intake confirmation
func (s *Service) MarkIncomplete(ctx context.Context, eventID string) error {
	return s.events.MarkIncomplete(ctx, eventID)
}

// UpdateEventNotes replaces the free-text notes on an event
func (s *Service) UpdateEventNotes(ctx context.Context, eventID, notes string) error {
	return s.events.UpdateNotes(ctx, eventID, notes)
}

// GetStats returns intake adherence counts for a prescription
func (s *Service) GetStats(ctx context.Context, prescriptionID string) (*types.PrescriptionStats, error) {
	total, completed, err := s.events.EventCounts(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}

	stats := &types.PrescriptionStats{
		TotalEvents:     total,
		CompletedEvents: completed,
	}
	if total > 0 {
		stats.CompletionRate = completed * 100 / total
	}
	return stats, nil
}

// GetSettings returns the user's scheduling preferences
func (s *Service) GetSettings(ctx context.Context) (types.UserSettings, error) {
	return s.settings.Get(ctx)
}

// SaveSettings validates and stores the user's scheduling preferences
func (s *Service) SaveSettings(ctx context.Context, settings types.UserSettings) error {
	if settings.EarliestTimeMinutes < 0 || settings.LatestTimeMinutes > 1440 ||
		settings.EarliestTimeMinutes >= settings.LatestTimeMinutes {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invalid dosing window", map[string]interface{}{
			"earliest_time_minutes": settings.EarliestTimeMinutes,
			"latest_time_minutes":   settings.LatestTimeMinutes,
		})
	}
	if settings.EventDurationMinutes <= 0 {
		settings.EventDurationMinutes = types.DefaultUserSettings().EventDurationMinutes
	}
	return s.settings.Save(ctx, settings)
}

func (s *Service) materializeAndSchedule(ctx context.Context, p *types.Prescription) error {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	return s.persistAndSchedule(ctx, schedule.Materialize(p, settings))
}

func (s *Service) persistAndSchedule(ctx context.Context, events []*types.MedicationEvent) error {
	if err := s.events.InsertEvents(ctx, events); err != nil {
		return err
	}

	now := s.now()
	for _, ev := range events {
		if ev.StartTime.After(now) {
			s.dispatcher.ScheduleAt(ev.ID, ev.StartTime)
		}
		s.mirrorCalendarEntry(ctx, ev)
	}
	return nil
}

// mirrorCalendarEntry copies an event to the external calendar. Mirroring is
// best effort: failures are logged and never fail the prescription flow.
func (s *Service) mirrorCalendarEntry(ctx context.Context, ev *types.MedicationEvent) {
	if s.calendar == nil {
		return
	}

	ref, err := s.calendar.InsertEvent(ctx, ev.Title, ev.Description, ev.StartTime, ev.EndTime)
	if err != nil {
		s.metrics.RecordCalendarSync("insert", "error")
		s.logger.WithEvent(ev.ID).WithError(err).Warn("Calendar mirror insert failed")
		return
	}
	s.metrics.RecordCalendarSync("insert", "success")

	if err := s.events.SetCalendarRef(ctx, ev.ID, ref); err != nil {
		s.logger.WithEvent(ev.ID).WithError(err).Warn("Failed to record calendar ref")
	}
}

func (s *Service) removeCalendarEntry(ctx context.Context, ev *types.MedicationEvent) {
	if s.calendar == nil || ev.CalendarRef == nil {
		return
	}
	if err := s.calendar.DeleteEvent(ctx, *ev.CalendarRef); err != nil {
		s.metrics.RecordCalendarSync("delete", "error")
		s.logger.WithEvent(ev.ID).WithError(err).Warn("Calendar mirror delete failed")
		return
	}
	s.metrics.RecordCalendarSync("delete", "success")
}
