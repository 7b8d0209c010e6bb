package types

import "time"

// FoodTiming is the qualitative relation of a dose to meals.
type FoodTiming string

const (
	FoodBeforeMeal FoodTiming = "before_meal"
	FoodDuringMeal FoodTiming = "during_meal"
	FoodAfterMeal  FoodTiming = "after_meal"
	FoodNeutral    FoodTiming = "neutral"
)

// DisplayText returns the parenthesized suffix used in event descriptions.
func (f FoodTiming) DisplayText() string {
	switch f {
	case FoodBeforeMeal:
		return " (before meal)"
	case FoodDuringMeal:
		return " (during meal)"
	case FoodAfterMeal:
		return " (after meal)"
	default:
		return ""
	}
}

// Preferred-time labels recognized by the slot allocator.
const (
	TimeMorning   = "morning"
	TimeAfternoon = "afternoon"
	TimeEvening   = "evening"
	TimeNight     = "night"
)

// Default dosing window, minutes since midnight (8:00 and 20:00).
const (
	DefaultWindowStart = 480
	DefaultWindowEnd   = 1200
)

// Medication is a single drug line on a prescription. Immutable once parsed.
type Medication struct {
	ID             string `json:"id" db:"id"`
	PrescriptionID string `json:"prescription_id" db:"prescription_id"`
	Name           string `json:"name" db:"name"`
	Dosage         string `json:"dosage" db:"dosage"`
	Frequency      string `json:"frequency" db:"frequency"`
	Duration       string `json:"duration" db:"duration"`
	Instructions   string `json:"instructions" db:"instructions"`
}

// Schedule is the canonical dosing schedule, either taken from the parser
// response or synthesized from medication free text.
type Schedule struct {
	TimesPerDay      int        `json:"times_per_day"`
	PreferredTimes   []string   `json:"preferred_times"`
	FoodTiming       FoodTiming `json:"food_timing"`
	DurationDays     int        `json:"duration_days"`
	StartTimeMinutes int        `json:"start_time_minutes"`
	EndTimeMinutes   int        `json:"end_time_minutes"`
	IntervalDays     int        `json:"interval_days"`

	// WindowSpecified records whether the start/end window was author-supplied
	// rather than defaulted. A parser output of exactly 8:00-20:00 is thereby
	// distinguishable from "no opinion".
	WindowSpecified bool `json:"window_specified"`
}

// Prescription is an approved, persisted prescription with its resolved
// schedule fields flattened onto the row.
type Prescription struct {
	ID               string       `json:"id" db:"id"`
	Title            string       `json:"title" db:"title"`
	Medications      []Medication `json:"medications"`
	TimesPerDay      int          `json:"times_per_day" db:"times_per_day"`
	PreferredTimes   []string     `json:"preferred_times" db:"preferred_times"`
	FoodTiming       FoodTiming   `json:"food_timing" db:"food_timing"`
	DurationDays     int          `json:"duration_days" db:"duration_days"`
	StartTimeMinutes int          `json:"start_time_minutes" db:"start_time_minutes"`
	EndTimeMinutes   int          `json:"end_time_minutes" db:"end_time_minutes"`
	IntervalDays     int          `json:"interval_days" db:"interval_days"`
	WindowSpecified  bool         `json:"window_specified" db:"window_specified"`
	StartDate        time.Time    `json:"start_date" db:"start_date"`
	Active           bool         `json:"active" db:"active"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// Schedule returns the prescription's flattened schedule fields as a Schedule.
func (p *Prescription) Schedule() Schedule {
	return Schedule{
		TimesPerDay:      p.TimesPerDay,
		PreferredTimes:   p.PreferredTimes,
		FoodTiming:       p.FoodTiming,
		DurationDays:     p.DurationDays,
		StartTimeMinutes: p.StartTimeMinutes,
		EndTimeMinutes:   p.EndTimeMinutes,
		IntervalDays:     p.IntervalDays,
		WindowSpecified:  p.WindowSpecified,
	}
}

// ApplySchedule copies schedule fields onto the prescription row.
func (p *Prescription) ApplySchedule(s Schedule) {
	p.TimesPerDay = s.TimesPerDay
	p.PreferredTimes = s.PreferredTimes
	p.FoodTiming = s.FoodTiming
	p.DurationDays = s.DurationDays
	p.StartTimeMinutes = s.StartTimeMinutes
	p.EndTimeMinutes = s.EndTimeMinutes
	p.IntervalDays = s.IntervalDays
	p.WindowSpecified = s.WindowSpecified
}

// MedicationEvent is one concrete dose: a dated, timed intake occurrence
// materialized from a prescription.
type MedicationEvent struct {
	ID             string     `json:"id" db:"id"`
	PrescriptionID string     `json:"prescription_id" db:"prescription_id"`
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	StartTime      time.Time  `json:"start_time" db:"start_time"`
	EndTime        time.Time  `json:"end_time" db:"end_time"`
	Completed      bool       `json:"completed" db:"completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ReminderSent   bool       `json:"reminder_sent" db:"reminder_sent"`
	CalendarRef    *string    `json:"calendar_ref,omitempty" db:"calendar_ref"`
	Notes          *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// EventFilters narrows event queries.
type EventFilters struct {
	PrescriptionID string     `json:"prescription_id,omitempty"`
	From           time.Time  `json:"from,omitempty"`
	To             time.Time  `json:"to,omitempty"`
	Completed      *bool      `json:"completed,omitempty"`
	ReminderSent   *bool      `json:"reminder_sent,omitempty"`
	ActiveOnly     bool       `json:"active_only,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}

// UserSettings is the single per-installation preferences record.
type UserSettings struct {
	EarliestTimeMinutes  int        `json:"earliest_time_minutes"`
	LatestTimeMinutes    int        `json:"latest_time_minutes"`
	EventDurationMinutes int        `json:"event_duration_minutes"`
	ReminderMinutes      int        `json:"reminder_minutes"`
	FoodTimingDefault    FoodTiming `json:"food_timing_default"`
	PreferredTimes       []string   `json:"preferred_times"`
}

// DefaultUserSettings returns the settings used before the user has saved any.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		EarliestTimeMinutes:  DefaultWindowStart,
		LatestTimeMinutes:    DefaultWindowEnd,
		EventDurationMinutes: 30,
		ReminderMinutes:      15,
		FoodTimingDefault:    FoodNeutral,
	}
}

// PrescriptionStats summarizes intake adherence for one prescription.
type PrescriptionStats struct {
	TotalEvents     int `json:"total_events"`
	CompletedEvents int `json:"completed_events"`
	CompletionRate  int `json:"completion_rate"`
}
