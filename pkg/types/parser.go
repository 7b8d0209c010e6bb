package types

import "strings"

// RawMedication is one medication line as returned by the prescription
// parser. Field names are part of the parser wire contract.
type RawMedication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

// RawSchedule is the optional schedule block of a parser response. Start and
// end minutes are pointers so that an author-specified window is
// distinguishable from an absent one.
type RawSchedule struct {
	TimesPerDay      int      `json:"times_per_day"`
	PreferredTimes   []string `json:"preferred_times"`
	FoodTiming       string   `json:"food_timing,omitempty"`
	WithFood         *bool    `json:"with_food,omitempty"`
	DurationDays     int      `json:"duration_days"`
	StartTimeMinutes *int     `json:"start_time_minutes,omitempty"`
	EndTimeMinutes   *int     `json:"end_time_minutes,omitempty"`
	IntervalDays     *int     `json:"interval_days,omitempty"`
}

// RawPrescription is the structured parser output a user approves. Absence of
// the schedule block means the schedule must be aggregated from the
// medication free text.
type RawPrescription struct {
	Medications []RawMedication `json:"medications"`
	Schedule    *RawSchedule    `json:"schedule,omitempty"`
}

// ToSchedule normalizes a raw schedule block into a canonical Schedule,
// defaulting every missing numeric field.
func (r *RawSchedule) ToSchedule() Schedule {
	s := Schedule{
		TimesPerDay:      r.TimesPerDay,
		PreferredTimes:   r.PreferredTimes,
		FoodTiming:       parseFoodTiming(r),
		DurationDays:     r.DurationDays,
		StartTimeMinutes: DefaultWindowStart,
		EndTimeMinutes:   DefaultWindowEnd,
		IntervalDays:     1,
	}
	if s.TimesPerDay < 1 {
		s.TimesPerDay = 1
	}
	if s.DurationDays < 1 {
		s.DurationDays = 7
	}
	if r.IntervalDays != nil && *r.IntervalDays >= 1 {
		s.IntervalDays = *r.IntervalDays
	}
	if r.StartTimeMinutes != nil || r.EndTimeMinutes != nil {
		if r.StartTimeMinutes != nil {
			s.StartTimeMinutes = *r.StartTimeMinutes
		}
		if r.EndTimeMinutes != nil {
			s.EndTimeMinutes = *r.EndTimeMinutes
		}
		s.WindowSpecified = true
	}
	return s
}

// parseFoodTiming accepts either the food_timing enum or the legacy with_food
// boolean some parser revisions emit.
func parseFoodTiming(r *RawSchedule) FoodTiming {
	switch strings.ToLower(r.FoodTiming) {
	case "before_meal", "before meal":
		return FoodBeforeMeal
	case "during_meal", "during meal", "with_food", "with food":
		return FoodDuringMeal
	case "after_meal", "after meal":
		return FoodAfterMeal
	case "neutral":
		return FoodNeutral
	}
	if r.WithFood != nil && *r.WithFood {
		return FoodDuringMeal
	}
	return FoodNeutral
}
