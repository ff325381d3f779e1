package core

import (
	"context"
	"testing"
	"time"

	"freshledger/pkg/domain"
)

var fixedNow = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

const (
	owner domain.Principal = "owner"
	maker domain.Principal = "maker"
	dist  domain.Principal = "dist"
	shop  domain.Principal = "shop"
)

func fixedClock() Clock { return ClockFunc(func() time.Time { return fixedNow }) }

// newTestRegistry returns an initialized registry where maker, dist and shop
// each hold exactly their own operational role.
func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	ctx := context.Background()
	reg := NewInMemoryRegistry(append([]Option{WithClock(fixedClock())}, opts...)...)
	if err := reg.Initialize(ctx, owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := reg.AddManufacturer(ctx, owner, maker); err != nil {
		t.Fatalf("add manufacturer: %v", err)
	}
	if err := reg.AddDistributor(ctx, owner, dist); err != nil {
		t.Fatalf("add distributor: %v", err)
	}
	if err := reg.AddRetailer(ctx, owner, shop); err != nil {
		t.Fatalf("add retailer: %v", err)
	}
	return reg
}

func validInput(id string) ProductInput {
	return ProductInput{
		ID:              id,
		Name:            "Milk",
		Manufacturer:    "Dairy Co",
		ManufactureDate: fixedNow.Add(-24 * time.Hour),
		ExpiryDate:      fixedNow.Add(10 * 24 * time.Hour),
		Category:        domain.CategoryBeverage,
		Quantity:        12,
		Price:           900,
	}
}

func mustCreate(t *testing.T, reg *Registry, in ProductInput) domain.Product {
	t.Helper()
	p, err := reg.CreateProduct(context.Background(), maker, in)
	if err != nil {
		t.Fatalf("create %s: %v", in.ID, err)
	}
	return p
}
