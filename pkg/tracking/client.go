package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("tracking base url is required")
	errLoggerRequired  = errors.New("tracking logger is required")
)

// Client queries the carrier aggregator for shipment progress.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	logger     *logger.Logger
}

// NewClient validates the aggregator credentials and builds the wrapper.
func NewClient(ctx context.Context, cfg config.TrackingConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiToken:   strings.TrimSpace(cfg.APIToken),
		logger:     logg,
	}

	logg.Info(ctx, "tracking client initialized")
	return c, nil
}

// Event is a single scan reported by the carrier.
type Event struct {
	Status     enums.TrackingStatus `json:"status"`
	Message    string               `json:"message"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// Shipment is the aggregator's view of a tracked parcel.
type Shipment struct {
	Carrier        string               `json:"carrier"`
	TrackingNumber string               `json:"tracking_number"`
	Status         enums.TrackingStatus `json:"status"`
	Events         []Event              `json:"events"`
}

// Register asks the aggregator to start watching a tracking number so later
// lookups return event history.
func (c *Client) Register(ctx context.Context, carrier, trackingNumber string) error {
	carrier = strings.TrimSpace(carrier)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if carrier == "" || trackingNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "carrier and tracking number are required")
	}

	payload := strings.NewReader(fmt.Sprintf(`{"carrier":%q,"tracking_number":%q}`, carrier, trackingNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/shipments", payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building tracking request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling tracking provider")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("tracking provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	c.logger.Info(c.logger.WithField(ctx, "carrier", carrier), "tracking registered")
	return nil
}

// Lookup fetches the latest state for a carrier tracking number.
func (c *Client) Lookup(ctx context.Context, carrier, trackingNumber string) (*Shipment, error) {
	carrier = strings.TrimSpace(carrier)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if carrier == "" || trackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier and tracking number are required")
	}

	path := fmt.Sprintf("/v1/shipments/%s/%s", url.PathEscape(carrier), url.PathEscape(trackingNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building tracking request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling tracking provider")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("tracking provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	shipment := &Shipment{}
	if err := json.NewDecoder(resp.Body).Decode(shipment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding tracking response")
	}
	if !shipment.Status.IsValid() {
		shipment.Status = enums.TrackingStatusUnknown
	}

	ctx = c.logger.WithFields(ctx, map[string]any{
		"carrier": carrier,
		"status":  shipment.Status,
	})
	c.logger.Info(ctx, "tracking lookup complete")
	return shipment, nil
}
