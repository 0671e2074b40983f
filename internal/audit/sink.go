package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type webhookPayload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds"`
}

type embed struct {
	Color       int     `json:"color"`
	Description string  `json:"description"`
	Footer      *footer `json:"footer,omitempty"`
}

type footer struct {
	Text string `json:"text"`
}

// Payload renders m as a webhook execution body.
func Payload(m Message) ([]byte, error) {
	p := webhookPayload{
		Username:  m.Username,
		AvatarURL: m.AvatarURL,
		Embeds:    []embed{{Color: m.Color, Description: m.Text}},
	}
	if m.Footer != "" {
		p.Embeds[0].Footer = &footer{Text: m.Footer}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WebhookSink executes a webhook URL, at most perMinute times a minute.
type WebhookSink struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookSink returns a sink posting to url.
func NewWebhookSink(url string, perMinute float64, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if perMinute <= 0 {
		perMinute = 30
	}
	return &WebhookSink{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), 5),
	}
}

// Post implements Sink.
func (s *WebhookSink) Post(ctx context.Context, m Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit: %w", err)
	}
	body, err := Payload(m)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("execute webhook: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// LogSink writes audit messages to the log. Used when no webhook is set.
type LogSink struct{}

// Post implements Sink.
func (LogSink) Post(_ context.Context, m Message) error {
	slog.Info("audit", "username", m.Username, "text", m.Text, "footer", m.Footer)
	return nil
}

// Recorder keeps posted messages in memory.
type Recorder struct {
	// Fail makes every Post return an error.
	Fail bool

	mu       sync.Mutex
	messages []Message
}

// Post implements Sink.
func (r *Recorder) Post(_ context.Context, m Message) error {
	if r.Fail {
		return fmt.Errorf("audit recorder: injected failure")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return nil
}

// Messages returns a copy of the posted messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
