// Package pricing computes shelf-life tier prices and applies the
// registry-wide discount overlay.
package pricing

import (
	"fmt"
	"sort"
	"time"

	"freshledger/pkg/domain"
)

// Tier assigns Price to products with at least MinDays whole days remaining.
type Tier struct {
	MinDays int64 `json:"min_days" mapstructure:"min_days"`
	Price   int64 `json:"price" mapstructure:"price"`
}

// DefaultTiers returns the stock tier table: more than 30 days pays 1000,
// 8 to 30 days pays 800, 7 days or fewer pays 500.
func DefaultTiers() []Tier {
	return []Tier{
		{MinDays: 31, Price: 1000},
		{MinDays: 8, Price: 800},
		{MinDays: 0, Price: 500},
	}
}

// Engine prices products from remaining shelf time.
type Engine struct {
	tiers []Tier
}

// NewEngine builds an engine from tiers. Tiers are ordered by descending
// MinDays; the table must contain a tier with MinDays 0 so every future
// expiry is priceable, and every price must be positive.
func NewEngine(tiers []Tier) (*Engine, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: at least one price tier required", domain.ErrInvalidArgument)
	}
	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinDays > sorted[j].MinDays })
	seen := make(map[int64]struct{}, len(sorted))
	for _, t := range sorted {
		if t.Price <= 0 {
			return nil, fmt.Errorf("%w: tier %dd has non-positive price %d", domain.ErrInvalidArgument, t.MinDays, t.Price)
		}
		if t.MinDays < 0 {
			return nil, fmt.Errorf("%w: tier min_days %d is negative", domain.ErrInvalidArgument, t.MinDays)
		}
		if _, dup := seen[t.MinDays]; dup {
			return nil, fmt.Errorf("%w: duplicate tier for %d days", domain.ErrInvalidArgument, t.MinDays)
		}
		seen[t.MinDays] = struct{}{}
	}
	if sorted[len(sorted)-1].MinDays != 0 {
		return nil, fmt.Errorf("%w: tier table needs a 0-day floor", domain.ErrInvalidArgument)
	}
	return &Engine{tiers: sorted}, nil
}

// NewDefaultEngine returns an engine over DefaultTiers.
func NewDefaultEngine() *Engine {
	return &Engine{tiers: DefaultTiers()}
}

// Tiers returns a copy of the tier table in evaluation order.
func (e *Engine) Tiers() []Tier {
	return append([]Tier(nil), e.tiers...)
}

// TierPrice selects the price bucket for expiry as seen at now. It fails
// with ErrExpiredOrInvalid when expiry is not strictly in the future.
func (e *Engine) TierPrice(expiry, now time.Time) (int64, error) {
	if !expiry.After(now) {
		return 0, fmt.Errorf("%w: expiry %s is not after %s", domain.ErrExpiredOrInvalid,
			expiry.UTC().Format(time.RFC3339Nano), now.UTC().Format(time.RFC3339Nano))
	}
	days := domain.DaysBetween(now, expiry)
	for _, t := range e.tiers {
		if days >= t.MinDays {
			return t.Price, nil
		}
	}
	return e.tiers[len(e.tiers)-1].Price, nil
}

// Quote returns the tier price with the discount overlay applied.
func (e *Engine) Quote(expiry, now time.Time, discount domain.DiscountState) (int64, error) {
	price, err := e.TierPrice(expiry, now)
	if err != nil {
		return 0, err
	}
	return ApplyDiscount(price, discount), nil
}

// ApplyDiscount returns floor(price*(100-percentage)/100) when the discount
// is active, and price unchanged otherwise. The result never goes below 0.
func ApplyDiscount(price int64, discount domain.DiscountState) int64 {
	if !discount.Active {
		return price
	}
	pct := discount.Percentage
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if price <= 0 {
		return 0
	}
	// price = 100q + r keeps the floor exact without forming price*(100-pct).
	q, r := price/100, price%100
	return q*(100-pct) + r*(100-pct)/100
}

// ValidDiscountPercentage reports whether p lies in the open interval (0,100).
func ValidDiscountPercentage(p int64) bool {
	return p > 0 && p < 100
}
