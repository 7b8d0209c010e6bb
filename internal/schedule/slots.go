package schedule

import (
	"sort"
	"strings"

	"github.com/bashmentarium/prescriptions/pkg/types"
)

// Minute-of-day values for the recognized preferred-time labels.
const (
	minutesMorning   = 8 * 60
	minutesAfternoon = 14 * 60
	minutesEvening   = 20 * 60
	minutesNight     = 22 * 60
)

// labelMinutes maps a preferred-time label to its minute of day. An
// unrecognized label maps to the window start.
func labelMinutes(label string, windowStart int) int {
	switch strings.ToLower(label) {
	case types.TimeMorning:
		return minutesMorning
	case types.TimeAfternoon:
		return minutesAfternoon
	case types.TimeEvening:
		return minutesEvening
	case types.TimeNight:
		return minutesNight
	default:
		return windowStart
	}
}

// AllocateSlots produces the minute-of-day slots for one dosing day. Exactly
// timesPerDay slots are returned, sorted ascending.
//
// Preferred labels take precedence: labels whose mapped minute falls inside
// the window fill slots first, and any shortfall is synthesized by evenly
// subdividing the window. Without usable labels, two and three doses get the
// clinically conventional slots and higher counts distribute evenly across
// the window. Integer division truncates, matching the persisted-event
// calculation exactly.
func AllocateSlots(timesPerDay, windowStart, windowEnd int, preferred []string) []int {
	if timesPerDay <= 1 {
		return []int{windowStart}
	}

	if len(preferred) > 0 {
		slots := make([]int, 0, len(preferred))
		for _, label := range preferred {
			m := labelMinutes(label, windowStart)
			if m >= windowStart && m <= windowEnd {
				slots = append(slots, m)
			}
		}

		if len(slots) >= timesPerDay {
			slots = slots[:timesPerDay]
			sort.Ints(slots)
			return slots
		}

		if len(slots) > 0 {
			remaining := timesPerDay - len(slots)
			interval := (windowEnd - windowStart) / (remaining + 1)
			for i := 1; i <= remaining; i++ {
				slots = append(slots, windowStart+interval*i)
			}
			sort.Ints(slots)
			return slots
		}
	}

	return conventionalSlots(timesPerDay, windowStart, windowEnd)
}

// conventionalSlots covers dosing days without usable preferred labels. Two
// and three doses keep the conventional morning/evening placements, clamped
// into the window on both sides; when the window sits outside the anchors
// the clamped slots collapse onto each other, and the day falls back to an
// even distribution. Higher counts always distribute evenly.
func conventionalSlots(timesPerDay, windowStart, windowEnd int) []int {
	var anchors []int
	switch timesPerDay {
	case 2:
		anchors = []int{7*60 + 30, 22 * 60}
	case 3:
		anchors = []int{8 * 60, (windowStart + windowEnd) / 2, 20 * 60}
	}

	if anchors != nil {
		slots := make([]int, len(anchors))
		for i, m := range anchors {
			slots[i] = min(max(m, windowStart), windowEnd)
		}
		sort.Ints(slots)
		if strictlyAscending(slots) {
			return slots
		}
	}

	interval := (windowEnd - windowStart) / (timesPerDay - 1)
	slots := make([]int, timesPerDay)
	for i := range slots {
		slots[i] = windowStart + interval*i
	}
	return slots
}

func strictlyAscending(slots []int) bool {
	for i := 1; i < len(slots); i++ {
		if slots[i] <= slots[i-1] {
			return false
		}
	}
	return true
}
