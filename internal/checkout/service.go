package checkout

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/satoshishop/backend/internal/customers"
	"github.com/satoshishop/backend/internal/inventory"
	"github.com/satoshishop/backend/internal/orders"
	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/metrics"
	"github.com/satoshishop/backend/pkg/payment"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// chargeCreator is the slice of the payment client checkout needs.
type chargeCreator interface {
	CreateCharge(ctx context.Context, params payment.ChargeCreateParams) (*payment.Charge, error)
	NewIdempotencyKey(prefix string) string
}

// rateLimiter counts checkout attempts per source within a rolling window.
type rateLimiter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Input is a storefront purchase request.
type Input struct {
	Email          string
	Name           string
	Phone          *string
	Address        models.Address
	Qty            int
	CryptoCurrency string
	SourceIP       string
}

// Result is what the storefront needs to show the payment screen.
type Result struct {
	Reference      uuid.UUID
	OrderNumber    string
	PaymentAddress string
	CryptoCurrency enums.CryptoCurrency
	CryptoAmount   decimal.Decimal
	FiatAmount     int
	FiatCurrency   string
	ExpiresAt      time.Time
}

// Service turns purchase requests into pending orders with a live payment
// address. Stock is checked but not reserved; the decrement happens when the
// payment settles.
type Service interface {
	Create(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	repo      orders.Repository
	customers customers.Repository
	tx        txRunner
	inventory inventory.Service
	charger   chargeCreator
	limiter   rateLimiter
	pricer    *Pricer
	product   config.ProductConfig
	rateLimit config.RateLimitConfig
	payment   config.PaymentConfig
	metrics   *metrics.OrderMetrics
	logger    *logger.Logger
}

// NewService builds the checkout intake. The limiter and metrics may be nil,
// in which case rate limiting and counters are skipped.
func NewService(
	repo orders.Repository,
	custRepo customers.Repository,
	tx txRunner,
	inv inventory.Service,
	charger chargeCreator,
	limiter rateLimiter,
	pricer *Pricer,
	product config.ProductConfig,
	rateLimit config.RateLimitConfig,
	paymentCfg config.PaymentConfig,
	orderMetrics *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if custRepo == nil {
		return nil, fmt.Errorf("customers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if charger == nil {
		return nil, fmt.Errorf("payment client required")
	}
	if pricer == nil {
		return nil, fmt.Errorf("pricer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if product.SKU == "" {
		return nil, fmt.Errorf("product sku required")
	}
	return &service{
		repo:      repo,
		customers: custRepo,
		tx:        tx,
		inventory: inv,
		charger:   charger,
		limiter:   limiter,
		pricer:    pricer,
		product:   product,
		rateLimit: rateLimit,
		payment:   paymentCfg,
		metrics:   orderMetrics,
		logger:    logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input Input) (*Result, error) {
	currency, err := s.validateInput(input)
	if err != nil {
		return nil, err
	}

	if err := s.enforceRateLimit(ctx, input.SourceIP); err != nil {
		return nil, err
	}

	// advisory only: stock is not held until the payment settles, so two
	// simultaneous checkouts can both pass this check
	available, err := s.inventory.Quantity(ctx, s.product.SKU)
	if err != nil {
		return nil, err
	}
	if available < input.Qty {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("only %d units in stock", available))
	}

	unitPrice, total, err := s.pricer.Quote(input.Qty)
	if err != nil {
		return nil, err
	}

	reference := uuid.New()
	charge, err := s.charger.CreateCharge(ctx, payment.ChargeCreateParams{
		Reference:      reference.String(),
		FiatAmount:     int64(total),
		FiatCurrency:   s.pricer.Currency(),
		CryptoCurrency: currency,
		IdempotencyKey: s.charger.NewIdempotencyKey("checkout"),
	})
	if err != nil {
		return nil, err
	}

	minAmount, err := s.payment.MinAmount()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse minimum crypto amount")
	}
	if charge.Amount.LessThan(minAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("order total of %s %s is below the processor minimum of %s",
				charge.Amount, currency, minAmount))
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		orderNumber, err := orders.GenerateOrderNumber(ctx, repo)
		if err != nil {
			return err
		}

		order := &models.Order{
			Reference:      reference,
			OrderNumber:    orderNumber,
			Status:         enums.OrderStatusPending,
			FiatAmount:     total,
			FiatCurrency:   s.pricer.Currency(),
			CryptoCurrency: currency,
			CryptoAmount:   charge.Amount,
			PaymentAddress: charge.Address,
			ChargeID:       charge.ID,
			Email:          customers.NormalizeEmail(input.Email),
			ShippingAddr:   input.Address,
			Items: []models.OrderItem{{
				SKU:       s.product.SKU,
				Qty:       input.Qty,
				UnitPrice: unitPrice,
				Total:     total,
			}},
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		custRepo := s.customers.WithTx(tx)
		if _, err := custRepo.Upsert(ctx, &models.Customer{
			Email: input.Email,
			Name:  input.Name,
			Phone: input.Phone,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert customer")
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCreated()
	logCtx := s.logger.WithOrderRef(ctx, created.Reference.String())
	s.logger.Info(logCtx, "checkout created pending order")

	return &Result{
		Reference:      created.Reference,
		OrderNumber:    created.OrderNumber,
		PaymentAddress: created.PaymentAddress,
		CryptoCurrency: created.CryptoCurrency,
		CryptoAmount:   created.CryptoAmount,
		FiatAmount:     created.FiatAmount,
		FiatCurrency:   created.FiatCurrency,
		ExpiresAt:      charge.ExpiresAt,
	}, nil
}

func (s *service) validateInput(input Input) (enums.CryptoCurrency, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email is not valid")
	}

	maxQty := s.product.MaxQtyPerOrder
	if maxQty <= 0 {
		maxQty = 100
	}
	if input.Qty < 1 || input.Qty > maxQty {
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity must be between 1 and %d", maxQty))
	}

	if strings.TrimSpace(input.Address.Name) == "" ||
		strings.TrimSpace(input.Address.Line1) == "" ||
		strings.TrimSpace(input.Address.City) == "" ||
		strings.TrimSpace(input.Address.PostalCode) == "" ||
		strings.TrimSpace(input.Address.Country) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete")
	}

	currency, err := enums.ParseCryptoCurrency(input.CryptoCurrency)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return currency, nil
}

// enforceRateLimit counts attempts per source IP in Redis so the window
// holds across process instances. A broken limiter fails open with a warning
// rather than blocking checkouts.
func (s *service) enforceRateLimit(ctx context.Context, sourceIP string) error {
	if s.limiter == nil || s.rateLimit.CheckoutIPLimit <= 0 {
		return nil
	}
	sourceIP = strings.TrimSpace(sourceIP)
	if sourceIP == "" {
		return nil
	}

	key := s.limiter.RateLimitKey("checkout:" + sourceIP)
	count, err := s.limiter.IncrWithTTL(ctx, key, s.rateLimit.CheckoutWindow)
	if err != nil {
		logCtx := s.logger.WithField(ctx, "error", err.Error())
		s.logger.Warn(logCtx, "checkout rate limiter unavailable")
		return nil
	}
	if count > int64(s.rateLimit.CheckoutIPLimit) {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many checkout attempts, try again shortly")
	}
	return nil
}
