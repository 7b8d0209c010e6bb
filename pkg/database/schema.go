package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema for prescription and event storage
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	// Create tables
	tables := []string{
		createPrescriptionsTable,
		createMedicationsTable,
		createMedicationEventsTable,
		createUserSettingsTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// Create indexes
	indexes := []string{
		createMedicationsIndexes,
		createMedicationEventsIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

const createPrescriptionsTable = `
CREATE TABLE IF NOT EXISTS prescriptions (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	times_per_day INTEGER NOT NULL DEFAULT 1,
	preferred_times TEXT NOT NULL DEFAULT '',
	food_timing TEXT NOT NULL DEFAULT 'neutral',
	duration_days INTEGER NOT NULL DEFAULT 7,
	start_time_minutes INTEGER NOT NULL DEFAULT 480,
	end_time_minutes INTEGER NOT NULL DEFAULT 1200,
	interval_days INTEGER NOT NULL DEFAULT 1,
	window_specified BOOLEAN NOT NULL DEFAULT FALSE,
	start_date TIMESTAMPTZ NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createMedicationsTable = `
CREATE TABLE IF NOT EXISTS medications (
	id UUID PRIMARY KEY,
	prescription_id UUID NOT NULL REFERENCES prescriptions(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	dosage TEXT NOT NULL DEFAULT '',
	frequency TEXT NOT NULL DEFAULT '',
	duration TEXT NOT NULL DEFAULT '',
	instructions TEXT NOT NULL DEFAULT ''
);`

const createMedicationEventsTable = `
CREATE TABLE IF NOT EXISTS medication_events (
	id UUID PRIMARY KEY,
	prescription_id UUID NOT NULL REFERENCES prescriptions(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at TIMESTAMPTZ,
	reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
	calendar_ref TEXT,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createUserSettingsTable = `
CREATE TABLE IF NOT EXISTS user_settings (
	id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	earliest_time_minutes INTEGER NOT NULL DEFAULT 480,
	latest_time_minutes INTEGER NOT NULL DEFAULT 1200,
	event_duration_minutes INTEGER NOT NULL DEFAULT 30,
	reminder_minutes INTEGER NOT NULL DEFAULT 15,
	food_timing_default TEXT NOT NULL DEFAULT 'neutral',
	preferred_times TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createMedicationsIndexes = `
CREATE INDEX IF NOT EXISTS idx_medications_prescription_id ON medications(prescription_id);`

const createMedicationEventsIndexes = `
CREATE INDEX IF NOT EXISTS idx_events_prescription_id ON medication_events(prescription_id);
CREATE INDEX IF NOT EXISTS idx_events_start_time ON medication_events(start_time);
CREATE INDEX IF NOT EXISTS idx_events_pending_reminders ON medication_events(start_time) WHERE NOT completed AND NOT reminder_sent;`
