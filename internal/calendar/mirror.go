package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/bashmentarium/prescriptions/pkg/config"
	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
)

// Mirror copies medication events to a CalDAV calendar so they show up next
// to the user's other appointments. The calendar is a mirror, never the
// source of truth: medication_events rows stay authoritative.
type Mirror struct {
	logger *logger.Logger
	cfg    config.CalendarConfig
	client *caldav.Client
}

// NewMirror creates a new CalDAV calendar mirror. It returns nil when the
// mirror is disabled, which callers treat as "no calendar configured".
func NewMirror(cfg config.CalendarConfig, log *logger.Logger) (interfaces.CalendarMirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{username: cfg.Username, password: cfg.Password},
		Timeout:   30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CalDAV server: %w", err)
	}

	return &Mirror{
		logger: log,
		cfg:    cfg,
		client: client,
	}, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// InsertEvent writes one VEVENT to the configured calendar and returns its
// object path, which is the reference stored on the event row.
func (m *Mirror) InsertEvent(ctx context.Context, title, description string, start, end time.Time) (string, error) {
	uid := uuid.New().String()

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Dosewise//Medication Events//EN")

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetText(ical.PropSummary, title)
	if description != "" {
		vevent.Props.SetText(ical.PropDescription, description)
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	cal.Children = append(cal.Children, vevent.Component)

	eventPath := m.eventPath(uid)
	if _, err := m.client.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return "", fmt.Errorf("failed to create calendar event: %w", err)
	}

	m.logger.WithField("path", eventPath).Debug("Calendar event mirrored")
	return eventPath, nil
}

// DeleteEvent removes a mirrored event by its stored reference
func (m *Mirror) DeleteEvent(ctx context.Context, externalID string) error {
	if err := m.client.RemoveAll(ctx, externalID); err != nil {
		return fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return nil
}

func (m *Mirror) eventPath(uid string) string {
	path := m.cfg.CalendarPath
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path + uid + ".ics"
}
