package notifications

import (
	"context"
	"fmt"

	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/logger"
)

// Dispatcher fans out order and stock events to email/SMS. Every send is
// best-effort: failures are logged and swallowed so a slow provider can never
// block or revert the state transition that triggered the message.
type Dispatcher struct {
	email      EmailSender
	sms        SMSSender
	logger     *logger.Logger
	adminEmail string
	adminPhone string
}

// NewDispatcher wires the configured senders. Nil senders are tolerated and
// simply skipped.
func NewDispatcher(cfg config.NotifyConfig, email EmailSender, sms SMSSender, logg *logger.Logger) (*Dispatcher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{
		email:      email,
		sms:        sms,
		logger:     logg,
		adminEmail: cfg.AdminEmail,
		adminPhone: cfg.AdminPhone,
	}, nil
}

// OrderPaid notifies staff of the settlement and confirms to the customer.
func (d *Dispatcher) OrderPaid(ctx context.Context, order *models.Order) {
	ctx = d.logger.WithOrderRef(ctx, order.Reference.String())
	d.sendAdminEmail(ctx, "order paid",
		fmt.Sprintf("Order %s settled: %d %s for %d item(s).",
			order.OrderNumber, order.FiatAmount, order.FiatCurrency, order.TotalQuantity()))
	d.sendAdminSMS(ctx, fmt.Sprintf("Paid: order %s (%d items)", order.OrderNumber, order.TotalQuantity()))
	d.sendCustomerEmail(ctx, order.Email, "payment received",
		fmt.Sprintf("We received your payment for order %s. We will let you know when it ships.", order.OrderNumber))
}

// OrderShipped confirms the shipment to the customer.
func (d *Dispatcher) OrderShipped(ctx context.Context, order *models.Order) {
	ctx = d.logger.WithOrderRef(ctx, order.Reference.String())
	carrier := ""
	tracking := ""
	if order.Carrier != nil {
		carrier = *order.Carrier
	}
	if order.TrackingNumber != nil {
		tracking = *order.TrackingNumber
	}
	d.sendCustomerEmail(ctx, order.Email, "your order shipped",
		fmt.Sprintf("Order %s is on its way via %s, tracking %s.", order.OrderNumber, carrier, tracking))
}

// OrderRefunded confirms a full or partial refund to the customer.
func (d *Dispatcher) OrderRefunded(ctx context.Context, order *models.Order, amount int) {
	ctx = d.logger.WithOrderRef(ctx, order.Reference.String())
	d.sendCustomerEmail(ctx, order.Email, "refund processed",
		fmt.Sprintf("A refund of %d %s for order %s has been processed.", amount, order.FiatCurrency, order.OrderNumber))
}

// OrderCancelled informs the customer that their order will not ship.
func (d *Dispatcher) OrderCancelled(ctx context.Context, order *models.Order) {
	ctx = d.logger.WithOrderRef(ctx, order.Reference.String())
	d.sendCustomerEmail(ctx, order.Email, "order cancelled",
		fmt.Sprintf("Order %s has been cancelled.", order.OrderNumber))
}

// ManualOrderPlaced pings the warehouse about a staff-placed order.
func (d *Dispatcher) ManualOrderPlaced(ctx context.Context, order *models.Order) {
	ctx = d.logger.WithOrderRef(ctx, order.Reference.String())
	d.sendAdminEmail(ctx, "manual order placed",
		fmt.Sprintf("Order %s was placed by staff for %d item(s), ready to pack.", order.OrderNumber, order.TotalQuantity()))
	d.sendAdminSMS(ctx, fmt.Sprintf("Manual order %s: %d item(s)", order.OrderNumber, order.TotalQuantity()))
}

// LowStock alerts staff that the SKU fell below the configured threshold.
// Satisfies the inventory service's notifier contract.
func (d *Dispatcher) LowStock(ctx context.Context, sku string, quantity int) {
	ctx = d.logger.WithSKU(ctx, sku)
	d.sendAdminEmail(ctx, "low stock",
		fmt.Sprintf("SKU %s is down to %d unit(s).", sku, quantity))
	d.sendAdminSMS(ctx, fmt.Sprintf("Low stock: %s at %d", sku, quantity))
}

func (d *Dispatcher) sendAdminEmail(ctx context.Context, subject, body string) {
	if d.email == nil || d.adminEmail == "" {
		return
	}
	if err := d.email.SendEmail(ctx, d.adminEmail, subject, body); err != nil {
		d.logger.Error(ctx, "admin email failed", err)
	}
}

func (d *Dispatcher) sendAdminSMS(ctx context.Context, message string) {
	if d.sms == nil || d.adminPhone == "" {
		return
	}
	if err := d.sms.SendSMS(ctx, d.adminPhone, message); err != nil {
		d.logger.Error(ctx, "admin sms failed", err)
	}
}

func (d *Dispatcher) sendCustomerEmail(ctx context.Context, to, subject, body string) {
	if d.email == nil {
		return
	}
	if err := d.email.SendEmail(ctx, to, subject, body); err != nil {
		d.logger.Error(ctx, "customer email failed", err)
	}
}
