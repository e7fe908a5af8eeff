// Package notify posts saved daily snapshots to an external webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/shift-roster/internal/application"
)

// DefaultTimeout bounds one webhook delivery.
const DefaultTimeout = 5 * time.Second

// SnapshotPayload is the JSON body sent for a saved snapshot.
type SnapshotPayload struct {
	Event      string    `json:"event"`
	Day        string    `json:"day"`
	Count      int       `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WebhookSender implements application.SnapshotNotifier over HTTP.
type WebhookSender struct {
	webhookURL string
	client     *http.Client
}

// NewWebhookSender returns a sender for webhookURL. An empty URL disables delivery.
func NewWebhookSender(webhookURL string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// NotifySnapshot posts result when it was saved. The payload carries the
// instant stamped on the history rows, not the delivery time.
func (s *WebhookSender) NotifySnapshot(ctx context.Context, result application.SnapshotResult) error {
	if s == nil || s.webhookURL == "" || !result.Saved {
		return nil
	}

	b, err := json.Marshal(SnapshotPayload{
		Event:      "snapshot.saved",
		Day:        result.Day,
		Count:      result.Count,
		RecordedAt: result.RecordedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
