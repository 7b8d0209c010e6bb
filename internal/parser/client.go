package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bashmentarium/prescriptions/pkg/config"
	"github.com/bashmentarium/prescriptions/pkg/interfaces"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/types"
)

const systemPrompt = `You are a prescription transcription assistant. Extract every medication ` +
	`from the input and respond with JSON only, no prose. Format: {"medications": [{"name", ` +
	`"dosage", "frequency", "duration", "instructions"}], "schedule": {"times_per_day", ` +
	`"preferred_times", "food_timing", "duration_days", "start_time_minutes", ` +
	`"end_time_minutes", "interval_days"}}. Omit the schedule block when the prescription ` +
	`does not state explicit timing.`

// Client implements the PrescriptionParser interface against a
// chat-completions style LLM endpoint.
type Client struct {
	logger *logger.Logger
	cfg    config.ParserConfig
	client *http.Client
}

// NewClient creates a new prescription parser client
func NewClient(cfg config.ParserConfig, log *logger.Logger) interfaces.PrescriptionParser {
	return &Client{
		logger: log,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ParseText extracts structured medication data from free text
func (c *Client) ParseText(ctx context.Context, text string) (*types.RawPrescription, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: text},
	}
	return c.complete(ctx, messages)
}

// ParseImage extracts structured medication data from a prescription photo
func (c *Client) ParseImage(ctx context.Context, image []byte, mimeType string) (*types.RawPrescription, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: []map[string]interface{}{
			{"type": "text", "text": "Transcribe this prescription."},
			{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
		}},
	}
	return c.complete(ctx, messages)
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (*types.RawPrescription, error) {
	body, err := json.Marshal(chatRequest{Model: c.cfg.Model, Messages: messages})
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to build parser request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.cfg.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to build parser request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewParseError("prescription parser is unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewParseError("failed to read parser response", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WithField("status", resp.StatusCode).Warn("Parser request rejected")
		return nil, types.NewParseError(fmt.Sprintf("parser returned status %d", resp.StatusCode), nil)
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return nil, types.NewParseError("parser returned malformed JSON", err)
	}
	if chat.Error != nil {
		return nil, types.NewParseError(chat.Error.Message, nil)
	}
	if len(chat.Choices) == 0 {
		return nil, types.NewParseError("parser returned no content", nil)
	}

	raw, err := decodeRawPrescription(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	c.logger.WithField("medications", len(raw.Medications)).Info("Prescription parsed")
	return raw, nil
}

// decodeRawPrescription tolerates the model wrapping its JSON in a markdown
// code fence.
func decodeRawPrescription(content string) (*types.RawPrescription, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var raw types.RawPrescription
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, types.NewParseError("could not extract medications from the response", err)
	}
	if len(raw.Medications) == 0 {
		return nil, types.NewParseError("no medications found in the prescription", nil)
	}
	return &raw, nil
}
