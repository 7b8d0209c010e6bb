package interfaces

import (
	"context"
	"time"

	"github.com/bashmentarium/prescriptions/pkg/types"
)

// PrescriptionRepository defines the interface for prescription persistence
type PrescriptionRepository interface {
	CreatePrescription(ctx context.Context, p *types.Prescription) error
	GetPrescriptionByID(ctx context.Context, id string) (*types.Prescription, error)
	GetPrescriptions(ctx context.Context, activeOnly bool) ([]*types.Prescription, error)
	UpdatePrescription(ctx context.Context, p *types.Prescription) error
	ArchivePrescription(ctx context.Context, id string) error
	PurgePrescription(ctx context.Context, id string) error
}

// EventRepository defines the interface for medication event persistence.
// Mutations are narrow single-field updates so that the orchestrator's
// mechanisms never overwrite each other's state.
type EventRepository interface {
	InsertEvents(ctx context.Context, events []*types.MedicationEvent) error
	GetEventByID(ctx context.Context, id string) (*types.MedicationEvent, error)
	GetEvents(ctx context.Context, filters *types.EventFilters) ([]*types.MedicationEvent, error)
	DeleteEvent(ctx context.Context, id string) error
	DeleteEventsByPrescriptionID(ctx context.Context, prescriptionID string) error

	MarkCompleted(ctx context.Context, id string, at time.Time) error
	MarkIncomplete(ctx context.Context, id string) error
	UpdateNotes(ctx context.Context, id string, notes string) error
	SetCalendarRef(ctx context.Context, id string, ref string) error

	// ClaimReminder performs the compare-and-set on the reminder-sent flag.
	// It returns true exactly once per event: the caller that wins the claim
	// is the only one allowed to register a delivery.
	ClaimReminder(ctx context.Context, id string) (bool, error)

	EventCounts(ctx context.Context, prescriptionID string) (total int, completed int, err error)
}

// SettingsStore defines the interface for the single UserSettings record
type SettingsStore interface {
	Get(ctx context.Context) (types.UserSettings, error)
	Save(ctx context.Context, settings types.UserSettings) error
}

// PrescriptionParser is the LLM collaborator that turns free text or an
// image into structured medication data.
type PrescriptionParser interface {
	ParseText(ctx context.Context, text string) (*types.RawPrescription, error)
	ParseImage(ctx context.Context, image []byte, mimeType string) (*types.RawPrescription, error)
}

// ReminderDispatcher arranges for a notification to fire at an event's start
// time. All delivery mechanisms schedule and cancel through this interface.
type ReminderDispatcher interface {
	ScheduleAt(eventID string, at time.Time)
	// Cancel is idempotent: cancelling an unknown event id is a no-op.
	Cancel(eventID string)
}

// Notifier posts user-visible alerts. Enabled is consulted before every post
// so a revoked permission degrades to logging instead of crashing.
type Notifier interface {
	Enabled() bool
	Post(eventID, title, body, deepLink string) error
	Dismiss(eventID string) error
}

// NotificationDismisser retracts a posted reminder once the intake it
// announced has been confirmed. Unknown event ids are a no-op.
type NotificationDismisser interface {
	Dismiss(eventID string)
}

// CalendarMirror is a best-effort sink mirroring events to an external
// calendar. Failures are advisory and never block prescription persistence.
type CalendarMirror interface {
	InsertEvent(ctx context.Context, title, description string, start, end time.Time) (string, error)
	DeleteEvent(ctx context.Context, externalID string) error
}
