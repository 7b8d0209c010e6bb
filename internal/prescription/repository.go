package prescription

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bashmentarium/prescriptions/pkg/database"
	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/types"
)

// Repository implements the PrescriptionRepository interface
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a new prescription repository
func NewRepository(db *database.DB, log *logger.Logger) interfaces.PrescriptionRepository {
	return &Repository{
		db:     db,
		logger: log,
	}
}

// CreatePrescription persists a prescription together with its medication rows
func (r *Repository) CreatePrescription(ctx context.Context, p *types.Prescription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO prescriptions (
			id, title, times_per_day, preferred_times, food_timing, duration_days,
			start_time_minutes, end_time_minutes, interval_days, window_specified,
			start_date, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = tx.ExecContext(ctx, query,
		p.ID,
		p.Title,
		p.TimesPerDay,
		joinPreferredTimes(p.PreferredTimes),
		string(p.FoodTiming),
		p.DurationDays,
		p.StartTimeMinutes,
		p.EndTimeMinutes,
		p.IntervalDays,
		p.WindowSpecified,
		p.StartDate,
		p.Active,
	)
	if err != nil {
		r.logger.WithError(err).Error("Failed to create prescription")
		return fmt.Errorf("failed to create prescription: %w", err)
	}

	for _, med := range p.Medications {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO medications (id, prescription_id, name, dosage, frequency, duration, instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			med.ID, p.ID, med.Name, med.Dosage, med.Frequency, med.Duration, med.Instructions,
		)
		if err != nil {
			r.logger.WithError(err).Error("Failed to create medication")
			return fmt.Errorf("failed to create medication: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prescription: %w", err)
	}

	r.logger.WithPrescription(p.ID).Info("Created prescription")
	return nil
}

// GetPrescriptionByID retrieves a prescription and its medications by ID
func (r *Repository) GetPrescriptionByID(ctx context.Context, id string) (*types.Prescription, error) {
	query := `
		SELECT id, title, times_per_day, preferred_times, food_timing, duration_days,
			   start_time_minutes, end_time_minutes, interval_days, window_specified,
			   start_date, active, created_at, updated_at
		FROM prescriptions
		WHERE id = $1`

	p, err := r.scanPrescription(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, "prescription not found: "+id)
		}
		r.logger.WithPrescription(id).WithError(err).Error("Failed to get prescription")
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}

	if err := r.loadMedications(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPrescriptions retrieves prescriptions, newest first
func (r *Repository) GetPrescriptions(ctx context.Context, activeOnly bool) ([]*types.Prescription, error) {
	query := `
		SELECT id, title, times_per_day, preferred_times, food_timing, duration_days,
			   start_time_minutes, end_time_minutes, interval_days, window_specified,
			   start_date, active, created_at, updated_at
		FROM prescriptions`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.WithError(err).Error("Failed to query prescriptions")
		return nil, fmt.Errorf("failed to query prescriptions: %w", err)
	}
	defer rows.Close()

	prescriptions := []*types.Prescription{}
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prescription: %w", err)
		}
		prescriptions = append(prescriptions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prescriptions: %w", err)
	}

	for _, p := range prescriptions {
		if err := r.loadMedications(ctx, p); err != nil {
			return nil, err
		}
	}
	return prescriptions, nil
}

// UpdatePrescription rewrites a prescription row and replaces its medications
func (r *Repository) UpdatePrescription(ctx context.Context, p *types.Prescription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE prescriptions
		SET title = $2, times_per_day = $3, preferred_times = $4, food_timing = $5,
			duration_days = $6, start_time_minutes = $7, end_time_minutes = $8,
			interval_days = $9, window_specified = $10, start_date = $11,
			active = $12, updated_at = NOW()
		WHERE id = $1`

	result, err := tx.ExecContext(ctx, query,
		p.ID,
		p.Title,
		p.TimesPerDay,
		joinPreferredTimes(p.PreferredTimes),
		string(p.FoodTiming),
		p.DurationDays,
		p.StartTimeMinutes,
		p.EndTimeMinutes,
		p.IntervalDays,
		p.WindowSpecified,
		p.StartDate,
		p.Active,
	)
	if err != nil {
		r.logger.WithPrescription(p.ID).WithError(err).Error("Failed to update prescription")
		return fmt.Errorf("failed to update prescription: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "prescription not found: "+p.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM medications WHERE prescription_id = $1`, p.ID); err != nil {
		return fmt.Errorf("failed to replace medications: %w", err)
	}
	for _, med := range p.Medications {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO medications (id, prescription_id, name, dosage, frequency, duration, instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			med.ID, p.ID, med.Name, med.Dosage, med.Frequency, med.Duration, med.Instructions,
		)
		if err != nil {
			return fmt.Errorf("failed to replace medications: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prescription update: %w", err)
	}

	r.logger.WithPrescription(p.ID).Info("Updated prescription")
	return nil
}

// ArchivePrescription clears the active flag. Rows and events are retained.
func (r *Repository) ArchivePrescription(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE prescriptions SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		r.logger.WithPrescription(id).WithError(err).Error("Failed to archive prescription")
		return fmt.Errorf("failed to archive prescription: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "prescription not found: "+id)
	}

	r.logger.WithPrescription(id).Info("Archived prescription")
	return nil
}

// PurgePrescription deletes the row. Medications and events cascade.
func (r *Repository) PurgePrescription(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		r.logger.WithPrescription(id).WithError(err).Error("Failed to purge prescription")
		return fmt.Errorf("failed to purge prescription: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "prescription not found: "+id)
	}

	r.logger.WithPrescription(id).Info("Purged prescription")
	return nil
}

func (r *Repository) loadMedications(ctx context.Context, p *types.Prescription) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, prescription_id, name, dosage, frequency, duration, instructions
		FROM medications
		WHERE prescription_id = $1
		ORDER BY id`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query medications: %w", err)
	}
	defer rows.Close()

	p.Medications = []types.Medication{}
	for rows.Next() {
		var med types.Medication
		if err := rows.Scan(&med.ID, &med.PrescriptionID, &med.Name, &med.Dosage,
			&med.Frequency, &med.Duration, &med.Instructions); err != nil {
			return fmt.Errorf("failed to scan medication: %w", err)
		}
		p.Medications = append(p.Medications, med)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanPrescription(row rowScanner) (*types.Prescription, error) {
	p := &types.Prescription{}
	var preferred, foodTiming string
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.TimesPerDay,
		&preferred,
		&foodTiming,
		&p.DurationDays,
		&p.StartTimeMinutes,
		&p.EndTimeMinutes,
		&p.IntervalDays,
		&p.WindowSpecified,
		&p.StartDate,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PreferredTimes = splitPreferredTimes(preferred)
	p.FoodTiming = types.FoodTiming(foodTiming)
	return p, nil
}

func joinPreferredTimes(labels []string) string {
	return strings.Join(labels, ",")
}

func splitPreferredTimes(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

// EventStore implements the EventRepository interface
type EventStore struct {
	db     *database.DB
	logger *logger.Logger
}

// NewEventStore creates a new medication event store
func NewEventStore(db *database.DB, log *logger.Logger) interfaces.EventRepository {
	return &EventStore{
		db:     db,
		logger: log,
	}
}

// InsertEvents persists a batch of materialized events in one transaction
func (s *EventStore) InsertEvents(ctx context.Context, events []*types.MedicationEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO medication_events (
			id, prescription_id, title, description, start_time, end_time,
			completed, completed_at, reminder_sent, calendar_ref, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	for _, ev := range events {
		_, err = tx.ExecContext(ctx, query,
			ev.ID,
			ev.PrescriptionID,
			ev.Title,
			ev.Description,
			ev.StartTime,
			ev.EndTime,
			ev.Completed,
			ev.CompletedAt,
			ev.ReminderSent,
			ev.CalendarRef,
			ev.Notes,
		)
		if err != nil {
			s.logger.WithEvent(ev.ID).WithError(err).Error("Failed to insert event")
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}

	s.logger.WithField("count", len(events)).Info("Inserted medication events")
	return nil
}

// GetEventByID retrieves a single event by ID
func (s *EventStore) GetEventByID(ctx context.Context, id string) (*types.MedicationEvent, error) {
	query := eventSelectColumns + ` WHERE id = $1`

	ev := &types.MedicationEvent{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ev.ID,
		&ev.PrescriptionID,
		&ev.Title,
		&ev.Description,
		&ev.StartTime,
		&ev.EndTime,
		&ev.Completed,
		&ev.CompletedAt,
		&ev.ReminderSent,
		&ev.CalendarRef,
		&ev.Notes,
		&ev.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, "event not found: "+id)
		}
		s.logger.WithEvent(id).WithError(err).Error("Failed to get event")
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

const eventSelectColumns = `
	SELECT id, prescription_id, title, description, start_time, end_time,
		   completed, completed_at, reminder_sent, calendar_ref, notes, created_at
	FROM medication_events`

// GetEvents retrieves events matching the filters, ordered by start time
func (s *EventStore) GetEvents(ctx context.Context, filters *types.EventFilters) ([]*types.MedicationEvent, error) {
	query := eventSelectColumns
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filters != nil {
		if filters.PrescriptionID != "" {
			conditions = append(conditions, fmt.Sprintf("prescription_id = $%d", argIndex))
			args = append(args, filters.PrescriptionID)
			argIndex++
		}
		if !filters.From.IsZero() {
			conditions = append(conditions, fmt.Sprintf("start_time >= $%d", argIndex))
			args = append(args, filters.From)
			argIndex++
		}
		if !filters.To.IsZero() {
			conditions = append(conditions, fmt.Sprintf("start_time <= $%d", argIndex))
			args = append(args, filters.To)
			argIndex++
		}
		if filters.Completed != nil {
			conditions = append(conditions, fmt.Sprintf("completed = $%d", argIndex))
			args = append(args, *filters.Completed)
			argIndex++
		}
		if filters.ReminderSent != nil {
			conditions = append(conditions, fmt.Sprintf("reminder_sent = $%d", argIndex))
			args = append(args, *filters.ReminderSent)
			argIndex++
		}
		if filters.ActiveOnly {
			conditions = append(conditions, "prescription_id IN (SELECT id FROM prescriptions WHERE active = TRUE)")
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_time ASC"

	if filters != nil && filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
		argIndex++
	}
	if filters != nil && filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filters.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.WithError(err).Error("Failed to query events")
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []*types.MedicationEvent{}
	for rows.Next() {
		ev := &types.MedicationEvent{}
		err := rows.Scan(
			&ev.ID,
			&ev.PrescriptionID,
			&ev.Title,
			&ev.Description,
			&ev.StartTime,
			&ev.EndTime,
			&ev.Completed,
			&ev.CompletedAt,
			&ev.ReminderSent,
			&ev.CalendarRef,
			&ev.Notes,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteEvent deletes a single event
func (s *EventStore) DeleteEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM medication_events WHERE id = $1`, id)
	if err != nil {
		s.logger.WithEvent(id).WithError(err).Error("Failed to delete event")
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// DeleteEventsByPrescriptionID deletes every event belonging to a prescription
func (s *EventStore) DeleteEventsByPrescriptionID(ctx context.Context, prescriptionID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM medication_events WHERE prescription_id = $1`, prescriptionID)
	if err != nil {
		s.logger.WithPrescription(prescriptionID).WithError(err).Error("Failed to delete events")
		return fmt.Errorf("failed to delete events: %w", err)
	}

	affected, _ := result.RowsAffected()
	s.logger.WithPrescription(prescriptionID).WithField("count", affected).Info("Deleted medication events")
	return nil
}

// MarkCompleted records the intake confirmation for an event
func (s *EventStore) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE medication_events
		SET completed = TRUE, completed_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		s.logger.WithEvent(id).WithError(err).Error("Failed to mark event completed")
		return fmt.Errorf("failed to mark event completed: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "event not found: "+id)
	}
	return nil
}

// MarkIncomplete reverts an intake confirmation
func (s *EventStore) MarkIncomplete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE medication_events
		SET completed = FALSE, completed_at = NULL
		WHERE id = $1`, id)
	if err != nil {
		s.logger.WithEvent(id).WithError(err).Error("Failed to mark event incomplete")
		return fmt.Errorf("failed to mark event incomplete: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "event not found: "+id)
	}
	return nil
}

// UpdateNotes replaces the free-text notes on an event
func (s *EventStore) UpdateNotes(ctx context.Context, id string, notes string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE medication_events SET notes = $2 WHERE id = $1`, id, notes)
	if err != nil {
		s.logger.WithEvent(id).WithError(err).Error("Failed to update event notes")
		return fmt.Errorf("failed to update event notes: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "event not found: "+id)
	}
	return nil
}

// SetCalendarRef records the external calendar identifier for an event
func (s *EventStore) SetCalendarRef(ctx context.Context, id string, ref string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE medication_events SET calendar_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		s.logger.WithEvent(id).WithError(err).Error("Failed to set calendar ref")
		return fmt.Errorf("failed to set calendar ref: %w", err)
	}
	return nil
}

// ClaimReminder flips reminder_sent with a compare-and-set. The guard in the
// WHERE clause makes the flip atomic across concurrent delivery mechanisms:
// exactly one caller observes RowsAffected == 1 for a given event.
func (s *EventStore) ClaimReminder(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE medication_events
		SET reminder_sent = TRUE
		WHERE id = $1 AND NOT reminder_sent AND NOT completed`, id)
	if err != nil {
		s.logger.WithEvent(id).WithError(err).Error("Failed to claim reminder")
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}

// EventCounts returns total and completed event counts for a prescription
func (s *EventStore) EventCounts(ctx context.Context, prescriptionID string) (int, int, error) {
	var total, completed int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE completed)
		FROM medication_events
		WHERE prescription_id = $1`, prescriptionID).Scan(&total, &completed)
	if err != nil {
		s.logger.WithPrescription(prescriptionID).WithError(err).Error("Failed to count events")
		return 0, 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, completed, nil
}
