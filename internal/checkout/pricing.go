package checkout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/satoshishop/backend/pkg/config"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
)

// discountTier grants Percent off the unit price once the ordered quantity
// reaches Threshold.
type discountTier struct {
	Threshold int
	Percent   int
}

// Pricer applies the configured volume-discount schedule. Tiers are kept
// sorted by descending threshold so the first match is the best discount
// the quantity qualifies for.
type Pricer struct {
	basePrice int
	currency  string
	tiers     []discountTier
}

// NewPricer parses the tier schedule out of product config. The schedule is
// a comma-separated list of threshold:percent pairs, e.g. "5:15,10:25".
func NewPricer(cfg config.ProductConfig) (*Pricer, error) {
	if cfg.UnitPrice <= 0 {
		return nil, fmt.Errorf("product unit price must be positive, got %d", cfg.UnitPrice)
	}
	tiers, err := parseDiscountTiers(cfg.DiscountTiers)
	if err != nil {
		return nil, err
	}
	return &Pricer{
		basePrice: cfg.UnitPrice,
		currency:  cfg.FiatCurrency,
		tiers:     tiers,
	}, nil
}

// Quote returns the discounted unit price and the fiat total for a quantity.
// The unit price is rounded to the nearest whole currency unit before the
// total is computed, so a quoted total is always unit * qty.
func (p *Pricer) Quote(qty int) (int, int, error) {
	if qty <= 0 {
		return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	unit := p.basePrice
	for _, tier := range p.tiers {
		if qty >= tier.Threshold {
			unit = (p.basePrice*(100-tier.Percent) + 50) / 100
			break
		}
	}
	return unit, unit * qty, nil
}

// Currency reports the fiat currency quotes are denominated in.
func (p *Pricer) Currency() string {
	return p.currency
}

func parseDiscountTiers(raw string) ([]discountTier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	tiers := make([]discountTier, 0, len(parts))
	seen := map[int]bool{}
	for _, part := range parts {
		pair := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(pair) != 2 {
			return nil, fmt.Errorf("invalid discount tier %q, want threshold:percent", part)
		}
		threshold, err := strconv.Atoi(strings.TrimSpace(pair[0]))
		if err != nil || threshold <= 0 {
			return nil, fmt.Errorf("invalid discount threshold in %q", part)
		}
		percent, err := strconv.Atoi(strings.TrimSpace(pair[1]))
		if err != nil || percent <= 0 || percent >= 100 {
			return nil, fmt.Errorf("invalid discount percent in %q, want 1-99", part)
		}
		if seen[threshold] {
			return nil, fmt.Errorf("duplicate discount threshold %d", threshold)
		}
		seen[threshold] = true
		tiers = append(tiers, discountTier{Threshold: threshold, Percent: percent})
	}

	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Threshold > tiers[j].Threshold
	})
	return tiers, nil
}
