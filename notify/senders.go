package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// LogSender writes notifications to the structured log. It is the
// always-available sender so a deployment with no webhook configured
// still records what would have gone out.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		"subject", msg.Subject,
		"subscriber", msg.To.ID,
		"email", msg.To.Email)
	return nil
}

// WebhookSender POSTs notifications as JSON to a fixed URL, signing the
// body with HMAC-SHA256 in the X-Signature-256 header (GitHub-style
// "sha256=" hex prefix) when a secret is configured.
type WebhookSender struct {
	URL    string
	Secret string
	Client *http.Client
}

func (s *WebhookSender) Name() string { return "webhook" }

type webhookPayload struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Subscriber string `json:"subscriber_id"`
	Email      string `json:"email"`
	SentAt     int64  `json:"sent_at"`
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Subject:    msg.Subject,
		Body:       msg.Body,
		Subscriber: msg.To.ID,
		Email:      msg.To.Email,
		SentAt:     time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+sign(s.Secret, body))
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
