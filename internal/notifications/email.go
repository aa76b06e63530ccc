package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/satoshishop/backend/pkg/config"
)

// EmailSender delivers a single email through the configured provider.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type emailClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	from       string
}

// NewEmailSender builds the provider-backed sender. A missing endpoint yields
// a nil sender so the dispatcher can treat email as unconfigured.
func NewEmailSender(cfg config.NotifyConfig) EmailSender {
	endpoint := strings.TrimSpace(cfg.EmailEndpoint)
	if endpoint == "" {
		return nil
	}
	return &emailClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.EmailAPIKey),
		from:       strings.TrimSpace(cfg.EmailFrom),
	}
}

type emailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *emailClient) SendEmail(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("email recipient required")
	}

	encoded, err := json.Marshal(emailPayload{
		From:    c.from,
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("encoding email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling email provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
