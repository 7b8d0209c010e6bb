package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bashmentarium/prescriptions/pkg/types"
)

// Materialize expands a prescription into its concrete intake events, one
// per dose per dosing day, in chronological order. The expansion is
// deterministic given identical inputs: identical titles, descriptions and
// timestamps, with only the generated ids differing between runs.
func Materialize(p *types.Prescription, settings types.UserSettings) []*types.MedicationEvent {
	sched := p.Schedule()
	if sched.TimesPerDay < 1 {
		sched.TimesPerDay = 1
	}
	if sched.DurationDays < 1 {
		sched.DurationDays = 1
	}
	if sched.IntervalDays < 1 {
		sched.IntervalDays = 1
	}

	// Dosing days are every interval_days days starting at day 0.
	totalDoseDays := (sched.DurationDays + sched.IntervalDays - 1) / sched.IntervalDays

	windowStart, windowEnd := ResolveWindow(sched, settings)
	slots := AllocateSlots(sched.TimesPerDay, windowStart, windowEnd, sched.PreferredTimes)

	title := EventTitle(p.Medications)
	description := EventDescription(p, settings)
	eventDuration := time.Duration(settings.EventDurationMinutes) * time.Minute

	events := make([]*types.MedicationEvent, 0, totalDoseDays*len(slots))
	for doseIndex := 0; doseIndex < totalDoseDays; doseIndex++ {
		day := p.StartDate.AddDate(0, 0, doseIndex*sched.IntervalDays)
		for _, slot := range slots {
			start := time.Date(day.Year(), day.Month(), day.Day(), slot/60, slot%60, 0, 0, day.Location())
			events = append(events, &types.MedicationEvent{
				ID:             uuid.New().String(),
				PrescriptionID: p.ID,
				Title:          title,
				Description:    description,
				StartTime:      start,
				EndTime:        start.Add(eventDuration),
			})
		}
	}

	return events
}

// EventTitle joins the medication names for display.
func EventTitle(medications []types.Medication) string {
	if len(medications) == 0 {
		return "Medication"
	}
	names := make([]string, len(medications))
	for i, med := range medications {
		names[i] = med.Name
	}
	return strings.Join(names, ", ")
}

// EventDescription renders the medication lines followed by a schedule
// summary. A neutral prescription food timing falls back to the user's
// default in the summary text.
func EventDescription(p *types.Prescription, settings types.UserSettings) string {
	lines := make([]string, len(p.Medications))
	for i, med := range p.Medications {
		lines[i] = fmt.Sprintf("• %s: %s - %s", med.Name, med.Dosage, med.Frequency)
	}

	var summary strings.Builder
	summary.WriteString(fmt.Sprintf("Schedule: %d times per day", p.TimesPerDay))
	summary.WriteString(ResolveFoodTiming(p.Schedule(), settings).DisplayText())

	if len(p.PreferredTimes) > 0 {
		summary.WriteString("\nPreferred times: " + strings.Join(p.PreferredTimes, ", "))
	}

	if settings.ReminderMinutes > 0 {
		summary.WriteString(fmt.Sprintf("\nReminder: %d minutes before", settings.ReminderMinutes))
	}

	return strings.Join(lines, "\n") + "\n\n" + summary.String()
}
