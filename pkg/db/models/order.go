package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/satoshishop/backend/pkg/enums"
)

// Address is the structured shipping destination stored on each order.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// TrackingEvent is one carrier-reported checkpoint kept on the order.
type TrackingEvent struct {
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Order is the financial and fulfillment aggregate. Rows are never deleted;
// terminal orders only accept note appends and tracking refreshes.
type Order struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Reference      uuid.UUID            `gorm:"column:reference;type:uuid;not null;uniqueIndex"`
	OrderNumber    string               `gorm:"column:order_number;not null;uniqueIndex"`
	Status         enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	FiatAmount     int                  `gorm:"column:fiat_amount;not null"`
	FiatCurrency   string               `gorm:"column:fiat_currency;not null;default:'USD'"`
	CryptoCurrency enums.CryptoCurrency `gorm:"column:crypto_currency;type:text;not null"`
	CryptoAmount   decimal.Decimal      `gorm:"column:crypto_amount;type:numeric(30,12);not null"`
	SettledAmount  *decimal.Decimal     `gorm:"column:settled_amount;type:numeric(30,12)"`
	PaymentAddress string               `gorm:"column:payment_address;not null"`
	ChargeID       string               `gorm:"column:charge_id;not null;index"`
	Email          string               `gorm:"column:email;not null"`
	ShippingAddr   Address              `gorm:"column:shipping_addr;type:jsonb;serializer:json"`
	Carrier        *string              `gorm:"column:carrier"`
	TrackingNumber *string              `gorm:"column:tracking_number"`
	ShippingCost   *int                 `gorm:"column:shipping_cost"`
	TrackingStatus enums.TrackingStatus `gorm:"column:tracking_status;type:text;not null;default:'unknown'"`
	TrackingEvents []TrackingEvent      `gorm:"column:tracking_events;type:jsonb;serializer:json"`
	RefundedAmount *int                 `gorm:"column:refunded_amount"`
	PlacedByStaff  *uuid.UUID           `gorm:"column:placed_by_staff;type:uuid"`
	PaidAt         *time.Time           `gorm:"column:paid_at"`
	ShippedAt      *time.Time           `gorm:"column:shipped_at"`
	DeliveredAt    *time.Time           `gorm:"column:delivered_at"`
	CancelledAt    *time.Time           `gorm:"column:cancelled_at"`
	ExpiredAt      *time.Time           `gorm:"column:expired_at"`
	RefundedAt     *time.Time           `gorm:"column:refunded_at"`
	Items          []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Notes          []OrderNote          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// TotalQuantity sums the quantities across all line items.
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Qty
	}
	return total
}
