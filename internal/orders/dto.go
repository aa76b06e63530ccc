package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/satoshishop/backend/pkg/enums"
)

// Filters describe the inputs supported by the admin order list.
type Filters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Query    string
}

// OrderSummary exposes the aggregated fields returned in the admin list.
type OrderSummary struct {
	ID             uuid.UUID            `json:"id"`
	Reference      uuid.UUID            `json:"reference"`
	OrderNumber    string               `json:"order_number"`
	Status         enums.OrderStatus    `json:"status"`
	FiatAmount     int                  `json:"fiat_amount"`
	FiatCurrency   string               `json:"fiat_currency"`
	CryptoCurrency enums.CryptoCurrency `json:"crypto_currency"`
	Email          string               `json:"email"`
	TotalItems     int                  `json:"total_items"`
	CreatedAt      time.Time            `json:"created_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
