package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance
func New(level string) *Logger {
	log := logrus.New()

	// Set log level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	// Set output format
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	// Set output destination
	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// WithFields creates a new logger entry with the specified fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithField creates a new logger entry with a single field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithError creates a new logger entry with an error field
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithComponent creates a new logger entry with component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithPrescription creates a new logger entry with prescription ID field
func (l *Logger) WithPrescription(prescriptionID string) *logrus.Entry {
	return l.Logger.WithField("prescription_id", prescriptionID)
}

// WithEvent creates a new logger entry with event ID field
func (l *Logger) WithEvent(eventID string) *logrus.Entry {
	return l.Logger.WithField("event_id", eventID)
}

// ScanCycle logs one pass of a reminder scan mechanism with structured format
func (l *Logger) ScanCycle(mechanism string, upcoming, claimed int, err error) {
	entry := l.Logger.WithFields(logrus.Fields{
		"scan":      true,
		"mechanism": mechanism,
		"upcoming":  upcoming,
		"claimed":   claimed,
	})

	if err != nil {
		entry.WithError(err).Warn("Reminder scan cycle failed")
	} else {
		entry.Debug("Reminder scan cycle completed")
	}
}

// ReminderDelivery logs the outcome of a notification delivery attempt
func (l *Logger) ReminderDelivery(eventID, mechanism string, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"reminder":  true,
		"event_id":  eventID,
		"mechanism": mechanism,
		"success":   success,
		"details":   details,
	})

	if success {
		entry.Info("Reminder delivered")
	} else {
		entry.Warn("Reminder delivery failed")
	}
}
