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

// SMSSender delivers a single text message through the configured provider.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type smsClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewSMSSender builds the provider-backed sender, or nil when unconfigured.
func NewSMSSender(cfg config.NotifyConfig) SMSSender {
	endpoint := strings.TrimSpace(cfg.SMSEndpoint)
	if endpoint == "" {
		return nil
	}
	return &smsClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.SMSAPIKey),
	}
}

type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (c *smsClient) SendSMS(ctx context.Context, to, message string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("sms recipient required")
	}

	encoded, err := json.Marshal(smsPayload{To: to, Message: message})
	if err != nil {
		return fmt.Errorf("encoding sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling sms provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
