package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Messenger delivers plain text to a conversation
type Messenger interface {
	Send(ctx context.Context, conversationID, text string) error
}

// LogMessenger writes outgoing messages to the log; useful when no
// delivery endpoint is configured
type LogMessenger struct{}

// Send logs the message
func (LogMessenger) Send(ctx context.Context, conversationID, text string) error {
	slog.Info("Outgoing message", "conversation_id", conversationID, "text", text)
	return nil
}

// WebhookMessenger POSTs messages as JSON to an HTTP endpoint
type WebhookMessenger struct {
	url    string
	client *http.Client
}

// NewWebhookMessenger creates a WebhookMessenger for url
func NewWebhookMessenger(url string) (*WebhookMessenger, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	return &WebhookMessenger{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type webhookPayload struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// Send posts the message; any non-2xx response is an error
func (w *WebhookMessenger) Send(ctx context.Context, conversationID, text string) error {
	body, err := json.Marshal(webhookPayload{ConversationID: conversationID, Text: text})
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, string(msg))
	}
	return nil
}
