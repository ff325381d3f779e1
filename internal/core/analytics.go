package core

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"freshledger/pkg/domain"
)

// AnalyticsEngine computes read-only aggregates over one store snapshot per
// call. All arithmetic is integer; means are floored. Sums are accumulated
// exactly and results beyond int64 saturate at math.MaxInt64.
type AnalyticsEngine struct {
	store domain.PersistentStore
}

// NewAnalyticsEngine constructs an engine over store.
func NewAnalyticsEngine(store domain.PersistentStore) *AnalyticsEngine {
	return &AnalyticsEngine{store: store}
}

func (a *AnalyticsEngine) products(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := a.store.View(ctx, func(v domain.TransactionView) error {
		out = v.ListProducts()
		return nil
	})
	return out, err
}

// AveragePrice is the mean price of non-expired products.
func (a *AnalyticsEngine) AveragePrice(ctx context.Context, now time.Time) (int64, error) {
	products, err := a.products(ctx)
	if err != nil {
		return 0, err
	}
	if len(products) == 0 {
		return 0, domain.ErrNoProducts
	}
	sum := new(big.Int)
	var n int64
	for _, p := range products {
		if p.IsExpired(now) {
			continue
		}
		sum.Add(sum, big.NewInt(p.Price))
		n++
	}
	if n == 0 {
		return 0, domain.ErrNoValidProducts
	}
	return saturate(floorDiv(sum, big.NewInt(n))), nil
}

// TotalInventoryValue sums price*quantity over non-expired products.
func (a *AnalyticsEngine) TotalInventoryValue(ctx context.Context, now time.Time) (int64, error) {
	products, err := a.products(ctx)
	if err != nil {
		return 0, err
	}
	return inventoryValue(products, now), nil
}

func inventoryValue(products []domain.Product, now time.Time) int64 {
	total, term := new(big.Int), new(big.Int)
	for _, p := range products {
		if p.IsExpired(now) {
			continue
		}
		total.Add(total, term.Mul(big.NewInt(p.Price), big.NewInt(p.Quantity)))
	}
	return saturate(total)
}

// AverageShelfLifeDays is the mean whole-day span between manufacture and
// expiry over every product, expired or not.
func (a *AnalyticsEngine) AverageShelfLifeDays(ctx context.Context) (int64, error) {
	products, err := a.products(ctx)
	if err != nil {
		return 0, err
	}
	if len(products) == 0 {
		return 0, domain.ErrNoProducts
	}
	sum := new(big.Int)
	for _, p := range products {
		sum.Add(sum, big.NewInt(p.ShelfLifeDays()))
	}
	return saturate(floorDiv(sum, big.NewInt(int64(len(products))))), nil
}

// InventoryTurnover returns 100*sum(max(0,initial-final))/sum(price*initial)
// with the arrays aligned to products in creation order. A zero denominator
// yields 0. now is accepted for call-site symmetry with the other aggregates.
func (a *AnalyticsEngine) InventoryTurnover(ctx context.Context, initial, final []int64, _ time.Time) (int64, error) {
	products, err := a.products(ctx)
	if err != nil {
		return 0, err
	}
	if len(initial) != len(products) || len(final) != len(products) {
		return 0, fmt.Errorf("%w: %d products, %d initial, %d final quantities",
			domain.ErrLengthMismatch, len(products), len(initial), len(final))
	}
	sold, valued, term := new(big.Int), new(big.Int), new(big.Int)
	for i, p := range products {
		if initial[i] < 0 || final[i] < 0 {
			return 0, fmt.Errorf("%w: negative quantity at index %d", domain.ErrInvalidArgument, i)
		}
		if d := initial[i] - final[i]; d > 0 {
			sold.Add(sold, big.NewInt(d))
		}
		valued.Add(valued, term.Mul(big.NewInt(p.Price), big.NewInt(initial[i])))
	}
	if valued.Sign() == 0 {
		return 0, nil
	}
	return saturate(floorDiv(sold.Mul(sold, big.NewInt(100)), valued)), nil
}

// floorDiv returns floor(x/y) for y > 0.
func floorDiv(x, y *big.Int) *big.Int {
	q, m := new(big.Int), new(big.Int)
	q.DivMod(x, y, m)
	return q
}

func saturate(v *big.Int) int64 {
	switch {
	case v.IsInt64():
		return v.Int64()
	case v.Sign() > 0:
		return math.MaxInt64
	default:
		return math.MinInt64
	}
}
