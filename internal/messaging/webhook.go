package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookTransport delivers outbound messages by POSTing them to an external
// messaging endpoint that responds with the delivered message id.
type WebhookTransport struct {
	url    string
	client *http.Client
}

func NewWebhookTransport(url string) *WebhookTransport {
	return &WebhookTransport{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookRequest struct {
	Recipient   string `json:"recipient"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

type webhookResponse struct {
	MessageID string `json:"messageId"`
}

func (t *WebhookTransport) Send(ctx context.Context, recipient, content, contentType string) (string, error) {
	body, err := json.Marshal(webhookRequest{
		Recipient:   recipient,
		Content:     content,
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("marshal webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deliver message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transport returned status %d", resp.StatusCode)
	}

	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode webhook response: %w", err)
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("transport returned empty message id")
	}
	return out.MessageID, nil
}
