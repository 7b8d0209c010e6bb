package schedule

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bashmentarium/prescriptions/pkg/types"
)

var firstIntPattern = regexp.MustCompile(`\d+`)

// Word-boundary matches for the ac/pc pharmacy abbreviations, which are too
// short for a plain substring check.
var (
	acPattern = regexp.MustCompile(`\bac\b`)
	pcPattern = regexp.MustCompile(`\bpc\b`)
)

// frequencyKeywords are checked in order; the first match wins, so "twice
// daily" resolves to 2 rather than 1.
var frequencyKeywords = []struct {
	keyword string
	times   int
}{
	{"once", 1},
	{"1x", 1},
	{"twice", 2},
	{"two", 2},
	{"2x", 2},
	{"three", 3},
	{"thrice", 3},
	{"3x", 3},
	{"four", 4},
	{"4x", 4},
	{"daily", 1},
	{"bid", 2},
	{"tid", 3},
	{"qid", 4},
}

// Aggregate synthesizes a canonical Schedule from medication free text. It is
// used when the parser returned medications without an explicit schedule
// block. An empty medication list yields the fixed default schedule.
func Aggregate(medications []types.Medication) types.Schedule {
	s := types.Schedule{
		TimesPerDay:      1,
		PreferredTimes:   []string{types.TimeMorning},
		FoodTiming:       types.FoodNeutral,
		DurationDays:     7,
		StartTimeMinutes: types.DefaultWindowStart,
		EndTimeMinutes:   types.DefaultWindowEnd,
		IntervalDays:     1,
	}
	if len(medications) == 0 {
		return s
	}

	timesPerDay := 0
	durationDays := 0
	for _, med := range medications {
		if n, ok := parseTimesPerDay(med.Frequency); ok && n > timesPerDay {
			timesPerDay = n
		}
		if d, ok := parseDurationDays(med.Duration); ok && d > durationDays {
			durationDays = d
		}
	}
	if timesPerDay > 0 {
		s.TimesPerDay = timesPerDay
	}
	if durationDays > 0 {
		s.DurationDays = durationDays
	}

	s.PreferredTimes = preferredTimesFor(s.TimesPerDay)
	s.FoodTiming = detectFoodTiming(medications)

	return s
}

// parseTimesPerDay extracts a dose count from a free-text frequency.
func parseTimesPerDay(frequency string) (int, bool) {
	lower := strings.ToLower(frequency)
	if lower == "" {
		return 0, false
	}

	for _, fk := range frequencyKeywords {
		if strings.Contains(lower, fk.keyword) {
			return fk.times, true
		}
	}

	if n, ok := firstInt(lower); ok {
		return n, true
	}
	return 0, false
}

// parseDurationDays extracts a day count from a free-text duration.
func parseDurationDays(duration string) (int, bool) {
	lower := strings.ToLower(duration)
	if lower == "" {
		return 0, false
	}

	n, hasNumber := firstInt(lower)
	switch {
	case hasNumber && strings.Contains(lower, "day"):
		return n, true
	case hasNumber && strings.Contains(lower, "week"):
		return n * 7, true
	case hasNumber && strings.Contains(lower, "month"):
		return n * 30, true
	case strings.Contains(lower, "until finished"), strings.Contains(lower, "as needed"):
		return 30, true
	case hasNumber:
		return n, true
	}
	return 0, false
}

// preferredTimesFor returns the conventional labels for a dose count.
func preferredTimesFor(timesPerDay int) []string {
	switch {
	case timesPerDay <= 1:
		return []string{types.TimeMorning}
	case timesPerDay == 2:
		return []string{types.TimeMorning, types.TimeEvening}
	default:
		return []string{types.TimeMorning, types.TimeAfternoon, types.TimeEvening}
	}
}

// detectFoodTiming scans the combined instructions and dosage text for meal
// cues. Families are checked in priority order: before, during, after.
func detectFoodTiming(medications []types.Medication) types.FoodTiming {
	var sb strings.Builder
	for _, med := range medications {
		sb.WriteString(strings.ToLower(med.Instructions))
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(med.Dosage))
		sb.WriteString(" ")
	}
	text := sb.String()

	switch {
	case strings.Contains(text, "before meal"),
		strings.Contains(text, "before food"),
		strings.Contains(text, "on empty stomach"),
		acPattern.MatchString(text):
		return types.FoodBeforeMeal
	case strings.Contains(text, "with meal"),
		strings.Contains(text, "with food"),
		strings.Contains(text, "during meal"),
		pcPattern.MatchString(text):
		return types.FoodDuringMeal
	case strings.Contains(text, "after meal"),
		strings.Contains(text, "after food"):
		return types.FoodAfterMeal
	default:
		return types.FoodNeutral
	}
}

// firstInt returns the first integer appearing in s.
func firstInt(s string) (int, bool) {
	match := firstIntPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}
