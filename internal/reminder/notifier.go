package reminder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bashmentarium/prescriptions/pkg/config"
	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
)

// WebhookNotifier implements the Notifier interface by posting reminder
// payloads to a configured webhook. Without a webhook URL it degrades to
// log-only delivery.
type WebhookNotifier struct {
	logger *logger.Logger
	cfg    config.NotificationConfig
	client *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg config.NotificationConfig, log *logger.Logger) interfaces.Notifier {
	return &WebhookNotifier{
		logger: log,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether notification delivery is switched on
func (n *WebhookNotifier) Enabled() bool {
	return n.cfg.Enabled
}

// Post delivers a reminder notification
func (n *WebhookNotifier) Post(eventID, title, body, deepLink string) error {
	if n.cfg.WebhookURL == "" {
		n.logger.WithEvent(eventID).WithField("title", title).Info("Reminder notification (log only)")
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"event_id":  eventID,
		"title":     title,
		"body":      body,
		"deep_link": deepLink,
		"action":    "post",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	resp, err := n.client.Post(n.cfg.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}

	n.logger.WithEvent(eventID).Info("Reminder notification posted")
	return nil
}

// Dismiss retracts a previously posted notification
func (n *WebhookNotifier) Dismiss(eventID string) error {
	if n.cfg.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"event_id": eventID,
		"action":   "dismiss",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dismiss payload: %w", err)
	}

	resp, err := n.client.Post(n.cfg.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to dismiss notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}
