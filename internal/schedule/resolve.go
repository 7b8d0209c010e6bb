package schedule

import "github.com/bashmentarium/prescriptions/pkg/types"

// ResolveWindow merges the prescription's dosing window with the user's
// outer bounds. An author-specified window is honored but clamped so it
// never exceeds the user's bounds; a defaulted window yields the user's
// bounds directly.
func ResolveWindow(s types.Schedule, settings types.UserSettings) (windowStart, windowEnd int) {
	if s.WindowSpecified {
		return max(s.StartTimeMinutes, settings.EarliestTimeMinutes),
			min(s.EndTimeMinutes, settings.LatestTimeMinutes)
	}
	return settings.EarliestTimeMinutes, settings.LatestTimeMinutes
}

// InferWindowSpecified reproduces the legacy inference for rows persisted
// before the explicit flag existed: any deviation from the 8:00-20:00
// defaults counts as author-specified.
func InferWindowSpecified(startMinutes, endMinutes int) bool {
	return startMinutes != types.DefaultWindowStart || endMinutes != types.DefaultWindowEnd
}

// ResolveFoodTiming falls back to the user's default when the prescription
// is neutral. The result affects descriptive text only, never timestamps.
func ResolveFoodTiming(s types.Schedule, settings types.UserSettings) types.FoodTiming {
	if s.FoodTiming == types.FoodNeutral {
		return settings.FoodTimingDefault
	}
	return s.FoodTiming
}
