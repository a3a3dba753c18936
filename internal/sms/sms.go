// Package sms defines the SMS transport contract and a black-box HTTP
// provider client. Retries are the outbox worker's responsibility, never the
// transport's.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Sender delivers one message to one phone number. Implementations must not
// retry internally.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// Config holds provider connection settings.
type Config struct {
	URL        string
	APIKey     string
	SenderName string
	Timeout    time.Duration
}

// HTTPSender posts messages to a JSON-over-HTTP SMS provider.
type HTTPSender struct {
	cfg    Config
	client *http.Client
}

// NewHTTPSender creates an HTTPSender for the given provider config.
func NewHTTPSender(cfg Config) *HTTPSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Sender  string `json:"sender,omitempty"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Send posts the message and interprets the provider's success flag. Any
// transport or provider failure is returned as an error for the caller's
// retry policy.
func (s *HTTPSender) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(sendRequest{
		Phone:   phone,
		Message: message,
		Sender:  s.cfg.SenderName,
	})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send sms")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("sms provider returned status %d", resp.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if !out.Success {
		return errors.Errorf("sms provider rejected message: %s", out.Message)
	}
	return nil
}

// NopSender logs messages instead of delivering them. Used in development and
// as a safe default when no provider is configured.
type NopSender struct {
	lg *zap.Logger
}

// NewNopSender creates a NopSender logging through lg.
func NewNopSender(lg *zap.Logger) *NopSender {
	return &NopSender{lg: lg}
}

// Send logs the message and reports success.
func (s *NopSender) Send(_ context.Context, phone, message string) error {
	s.lg.Info("sms (nop transport)",
		zap.String("phone", phone),
		zap.String("message", message),
	)
	return nil
}
