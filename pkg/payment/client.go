package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
)

var (
	errBaseURLRequired       = errors.New("payment base url is required")
	errAPITokenRequired      = errors.New("payment api token is required")
	errWebhookSecretRequired = errors.New("payment webhook secret is required")
	errLoggerRequired        = errors.New("payment logger is required")
)

// Client talks to the crypto payment processor with centralized auth,
// logging, idempotency, and error mapping.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiToken      string
	webhookSecret string
	logger        *logger.Logger
}

// NewClient initializes the processor wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PaymentConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiToken := strings.TrimSpace(cfg.APIToken)
	if apiToken == "" {
		return nil, errAPITokenRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		apiToken:      apiToken,
		webhookSecret: webhookSecret,
		logger:        logg,
	}

	logg.Info(ctx, "payment client initialized")
	return c, nil
}

// SigningSecret returns the webhook secret shared with the processor.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// NewIdempotencyKey returns a unique key for processor operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "ss"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// ChargeCreateParams describes a new payment request for an order.
type ChargeCreateParams struct {
	Reference      string
	FiatAmount     int64
	FiatCurrency   string
	CryptoCurrency enums.CryptoCurrency
	IdempotencyKey string
}

// Charge is the processor's view of a payment request.
type Charge struct {
	ID           string               `json:"id"`
	Address      string               `json:"address"`
	Currency     enums.CryptoCurrency `json:"currency"`
	Amount       decimal.Decimal      `json:"amount"`
	Status       string               `json:"status"`
	AmountPaid   decimal.Decimal      `json:"amount_paid"`
	ExpiresAt    time.Time            `json:"expires_at"`
	CreatedAt    time.Time            `json:"created_at"`
	ExchangeRate decimal.Decimal      `json:"exchange_rate"`
}

type chargeCreateRequest struct {
	Reference    string `json:"reference"`
	FiatAmount   int64  `json:"fiat_amount"`
	FiatCurrency string `json:"fiat_currency"`
	Currency     string `json:"currency"`
}

// CreateCharge asks the processor to quote the crypto amount and issue a
// fresh deposit address for the order.
func (c *Client) CreateCharge(ctx context.Context, params ChargeCreateParams) (*Charge, error) {
	if strings.TrimSpace(params.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge reference is required")
	}
	if params.FiatAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	if !params.CryptoCurrency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", params.CryptoCurrency))
	}

	c.log(ctx, "request", "create_charge", map[string]any{
		"reference":   params.Reference,
		"fiat_amount": params.FiatAmount,
		"currency":    params.CryptoCurrency,
	})

	body := chargeCreateRequest{
		Reference:    params.Reference,
		FiatAmount:   params.FiatAmount,
		FiatCurrency: params.FiatCurrency,
		Currency:     params.CryptoCurrency.String(),
	}

	charge := &Charge{}
	idemKey := c.ensureIdempotencyKey("charge.create", params.IdempotencyKey)
	if err := c.do(ctx, http.MethodPost, "/v1/charges", idemKey, body, charge); err != nil {
		c.log(ctx, "error", "create_charge", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_charge", map[string]any{
		"charge_id": charge.ID,
		"status":    charge.Status,
	})
	return charge, nil
}

// GetCharge fetches the current processor state for a charge.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	if strings.TrimSpace(chargeID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}

	c.log(ctx, "request", "get_charge", map[string]any{"charge_id": chargeID})

	charge := &Charge{}
	if err := c.do(ctx, http.MethodGet, "/v1/charges/"+chargeID, "", nil, charge); err != nil {
		c.log(ctx, "error", "get_charge", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "get_charge", map[string]any{
		"charge_id": charge.ID,
		"status":    charge.Status,
	})
	return charge, nil
}

// VerifySignature checks the processor's HMAC-SHA256 hex signature over the
// raw webhook body using a constant time comparison.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c == nil || c.webhookSecret == "" {
		return false
	}
	sig := strings.TrimSpace(signature)
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding processor request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building processor request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling payment processor")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapProcessorError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding processor response")
	}
	return nil
}

type processorErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) mapProcessorError(resp *http.Response) error {
	payload := processorErrorPayload{}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &payload)

	message := strings.TrimSpace(payload.Message)
	if message == "" {
		message = fmt.Sprintf("payment processor returned status %d", resp.StatusCode)
	}
	return pkgerrors.New(domainCodeForStatus(resp.StatusCode), message)
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("payment %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("payment %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "address", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
