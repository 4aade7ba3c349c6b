package notification

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	telegramAPI = "https://api.telegram.org"

	// maxRetryAfter bounds how long a rate-limited alert waits for its single retry.
	maxRetryAfter = 30 * time.Second
)

// Telegram posts alerts to one chat through the Bot API.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	wait    func(ctx context.Context, d time.Duration) error
}

// NewTelegram creates a Telegram broadcaster. An empty baseURL targets the
// public Bot API.
func NewTelegram(token, chatID, baseURL string) *Telegram {
	if baseURL == "" {
		baseURL = telegramAPI
	}
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		wait:    sleepCtx,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// telegramReply is the Bot API response envelope.
type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send posts the alert. A 429 is retried once after the advertised delay.
func (t *Telegram) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":                  t.chatID,
		"text":                     t.format(a),
		"parse_mode":               "MarkdownV2",
		"disable_notification":     a.Channel == ChannelDebug,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	status, reply, err := t.post(ctx, body)
	if err == nil && status == http.StatusTooManyRequests {
		d := time.Duration(reply.Parameters.RetryAfter) * time.Second
		if d > maxRetryAfter {
			return fmt.Errorf("telegram: rate limited for %s", d)
		}
		log.Printf("[telegram] rate limited, retrying %s alert in %s", a.Channel, d)
		if err := t.wait(ctx, d); err != nil {
			return err
		}
		status, reply, err = t.post(ctx, body)
	}
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		if reply.Description != "" {
			return fmt.Errorf("telegram: status %d: %s", status, reply.Description)
		}
		return fmt.Errorf("telegram: unexpected status %d", status)
	}
	return nil
}

func (t *Telegram) post(ctx context.Context, body []byte) (int, telegramReply, error) {
	var reply telegramReply
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, reply, fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, reply, fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()
	// Error bodies are optional; an undecodable one still reports the status.
	json.NewDecoder(resp.Body).Decode(&reply)
	return resp.StatusCode, reply, nil
}

// format renders the alert as MarkdownV2. Trade details go in a code block
// so prices and quantities line up.
func (t *Telegram) format(a Alert) string {
	emoji := "ℹ️"
	switch a.Channel {
	case ChannelError:
		emoji = "🚨"
	case ChannelTrade:
		emoji = "💰"
	}
	head := fmt.Sprintf("%s *%s*", emoji, escapeMarkdown(a.Channel.Header()+" "+a.Operation))
	if a.Channel == ChannelTrade {
		return head + "\n```\n" + escapeCode(a.Message) + "\n```"
	}
	return head + "\n\n" + escapeMarkdown(a.Message)
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`, "~", `\~`, "`", "\\`",
	">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`,
	".", `\.`, "!", `\!`, `\`, `\\`,
)

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

// escapeCode escapes the characters reserved inside a pre block.
func escapeCode(s string) string {
	return strings.NewReplacer("`", "\\`", `\`, `\\`).Replace(s)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
