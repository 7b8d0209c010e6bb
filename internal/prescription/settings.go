package prescription

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bashmentarium/prescriptions/pkg/database"
	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/types"
)

// SettingsRepository implements the SettingsStore interface backed by the
// singleton user_settings row.
type SettingsRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *database.DB, log *logger.Logger) interfaces.SettingsStore {
	return &SettingsRepository{
		db:     db,
		logger: log,
	}
}

// Get returns the stored settings, or the defaults when none were saved yet
func (r *SettingsRepository) Get(ctx context.Context) (types.UserSettings, error) {
	query := `
		SELECT earliest_time_minutes, latest_time_minutes, event_duration_minutes,
			   reminder_minutes, food_timing_default, preferred_times
		FROM user_settings
		WHERE id = 1`

	var settings types.UserSettings
	var foodTiming, preferred string
	err := r.db.QueryRowContext(ctx, query).Scan(
		&settings.EarliestTimeMinutes,
		&settings.LatestTimeMinutes,
		&settings.EventDurationMinutes,
		&settings.ReminderMinutes,
		&foodTiming,
		&preferred,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.DefaultUserSettings(), nil
		}
		r.logger.WithError(err).Error("Failed to get user settings")
		return types.DefaultUserSettings(), fmt.Errorf("failed to get user settings: %w", err)
	}

	settings.FoodTimingDefault = types.FoodTiming(foodTiming)
	settings.PreferredTimes = splitPreferredTimes(preferred)
	return settings, nil
}

// Save upserts the singleton settings row
func (r *SettingsRepository) Save(ctx context.Context, settings types.UserSettings) error {
	query := `
		INSERT INTO user_settings (
			id, earliest_time_minutes, latest_time_minutes, event_duration_minutes,
			reminder_minutes, food_timing_default, preferred_times, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			earliest_time_minutes = EXCLUDED.earliest_time_minutes,
			latest_time_minutes = EXCLUDED.latest_time_minutes,
			event_duration_minutes = EXCLUDED.event_duration_minutes,
			reminder_minutes = EXCLUDED.reminder_minutes,
			food_timing_default = EXCLUDED.food_timing_default,
			preferred_times = EXCLUDED.preferred_times,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		settings.EarliestTimeMinutes,
		settings.LatestTimeMinutes,
		settings.EventDurationMinutes,
		settings.ReminderMinutes,
		string(settings.FoodTimingDefault),
		joinPreferredTimes(settings.PreferredTimes),
	)
	if err != nil {
		r.logger.WithError(err).Error("Failed to save user settings")
		return fmt.Errorf("failed to save user settings: %w", err)
	}

	r.logger.Info("Saved user settings")
	return nil
}
