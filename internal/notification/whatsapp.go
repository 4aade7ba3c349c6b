package notification

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// WhatsApp posts alerts to a WhatsApp gateway webhook as JSON.
type WhatsApp struct {
	url    string
	client *http.Client
}

func NewWhatsApp(url string) *WhatsApp {
	return &WhatsApp{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(map[string]interface{}{
		"operation": a.Operation,
		"channel":   string(a.Channel),
		"text":      a.Text(),
		"ts":        a.At.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[whatsapp] sent %s alert to %s", a.Channel, w.url)
	return nil
}
