package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"freshledger/pkg/domain"
)

func TestCreateProductStartsAtManufacturer(t *testing.T) {
	reg := newTestRegistry(t)
	p := mustCreate(t, reg, validInput("p-1"))
	if p.Location != domain.LocationManufacturer {
		t.Fatalf("expected manufacturer location, got %s", p.Location)
	}
	if !p.CreatedAt.Equal(fixedNow) || !p.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("expected clock stamps, got %v / %v", p.CreatedAt, p.UpdatedAt)
	}
	got, err := reg.GetProduct("p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Milk" || got.Quantity != 12 || got.Price != 900 {
		t.Fatalf("unexpected stored product %+v", got)
	}
}

func TestCreateProductRequiresManufacturerRole(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	if reg.IsManufacturer(ctx, dist) {
		t.Fatalf("distributor must not pass the manufacturer check")
	}
	_, err := reg.CreateProduct(ctx, dist, validInput("p-1"))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(reg.ListProducts()) != 0 {
		t.Fatalf("rejected creation must not store anything")
	}
	if _, err := reg.CreateProduct(ctx, owner, validInput("p-2")); err != nil {
		t.Fatalf("owner is implicitly admin and may create: %v", err)
	}
}

func TestCreateProductValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProductInput)
		field  string
	}{
		{"empty name", func(in *ProductInput) { in.Name = "" }, "name"},
		{"blank manufacturer", func(in *ProductInput) { in.Manufacturer = "  " }, "manufacturer"},
		{"expiry equals manufacture", func(in *ProductInput) { in.ExpiryDate = in.ManufactureDate }, "manufacture_date"},
		{"expiry before manufacture", func(in *ProductInput) { in.ExpiryDate = in.ManufactureDate.Add(-time.Hour) }, "manufacture_date"},
		{"zero price", func(in *ProductInput) { in.Price = 0 }, "price"},
		{"zero quantity", func(in *ProductInput) { in.Quantity = 0 }, "quantity"},
		{"unknown category", func(in *ProductInput) { in.Category = domain.Category(42) }, "category"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := newTestRegistry(t)
			in := validInput("p-1")
			tc.mutate(&in)
			_, err := reg.CreateProduct(context.Background(), maker, in)
			if !errors.Is(err, domain.ErrInvalidProduct) {
				t.Fatalf("expected invalid product, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Fatalf("expected %q in error, got %v", tc.field, err)
			}
			if _, err := reg.GetProduct("p-1"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected no stored product, got %v", err)
			}
		})
	}
}

func TestCreateProductRejectsDuplicateID(t *testing.T) {
	reg := newTestRegistry(t)
	mustCreate(t, reg, validInput("p-1"))
	_, err := reg.CreateProduct(context.Background(), maker, validInput("p-1"))
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected duplicate id, got %v", err)
	}
}

type sequenceLedger struct {
	next  int
	calls []string
}

func (l *sequenceLedger) Issue(_ context.Context, manufacturer string) (string, error) {
	l.next++
	l.calls = append(l.calls, manufacturer)
	return fmt.Sprintf("tok-%d", l.next), nil
}

type failingLedger struct{}

func (failingLedger) Issue(context.Context, string) (string, error) {
	return "", errors.New("ledger offline")
}

func TestCreateProductIssuesIDFromLedger(t *testing.T) {
	ledger := &sequenceLedger{}
	reg := newTestRegistry(t, WithTokenLedger(ledger))
	p := mustCreate(t, reg, validInput(""))
	if p.ID != "tok-1" {
		t.Fatalf("expected ledger id, got %q", p.ID)
	}
	if len(ledger.calls) != 1 || ledger.calls[0] != "Dairy Co" {
		t.Fatalf("expected ledger called with manufacturer, got %v", ledger.calls)
	}
	supplied := mustCreate(t, reg, validInput("given"))
	if supplied.ID != "given" || len(ledger.calls) != 1 {
		t.Fatalf("supplied ids must bypass the ledger")
	}
}

func TestCreateProductDefaultLedgerIssuesUUID(t *testing.T) {
	reg := newTestRegistry(t)
	p := mustCreate(t, reg, validInput(""))
	if len(p.ID) != 36 {
		t.Fatalf("expected uuid id, got %q", p.ID)
	}
}

func TestCreateProductLedgerFailure(t *testing.T) {
	reg := newTestRegistry(t, WithTokenLedger(failingLedger{}))
	_, err := reg.CreateProduct(context.Background(), maker, validInput(""))
	if err == nil || !strings.Contains(err.Error(), "ledger offline") {
		t.Fatalf("expected ledger error, got %v", err)
	}
}

func TestCreateProductsBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	bad := validInput("p-3")
	bad.Quantity = 0
	_, err := reg.CreateProductsBatch(ctx, maker, []ProductInput{validInput("p-1"), validInput("p-2"), bad})
	if !errors.Is(err, domain.ErrInvalidProduct) {
		t.Fatalf("expected invalid product, got %v", err)
	}
	if n := len(reg.ListProducts()); n != 0 {
		t.Fatalf("expected no partial commit, found %d products", n)
	}

	_, err = reg.CreateProductsBatch(ctx, maker, []ProductInput{validInput("p-1"), validInput("p-1")})
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected duplicate id within batch, got %v", err)
	}

	created, err := reg.CreateProductsBatch(ctx, maker, []ProductInput{validInput("p-1"), validInput("p-2")})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(created) != 2 || created[0].ID != "p-1" || created[1].ID != "p-2" {
		t.Fatalf("unexpected batch result %+v", created)
	}

	if _, err := reg.CreateProductsBatch(ctx, shop, []ProductInput{validInput("p-9")}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized batch, got %v", err)
	}
}

func TestUpdateLocationIsForwardOnly(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	mustCreate(t, reg, validInput("p-1"))

	if _, err := reg.UpdateLocation(ctx, dist, "p-1", domain.LocationDistributor); err != nil {
		t.Fatalf("to distributor: %v", err)
	}
	if _, err := reg.UpdateLocation(ctx, shop, "p-1", domain.LocationRetailer); err != nil {
		t.Fatalf("to retailer: %v", err)
	}
	if _, err := reg.UpdateLocation(ctx, shop, "p-1", domain.LocationRetailer); err != nil {
		t.Fatalf("staying in place must be allowed: %v", err)
	}
	_, err := reg.UpdateLocation(ctx, owner, "p-1", domain.LocationDistributor)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	p, _ := reg.GetProduct("p-1")
	if p.Location != domain.LocationRetailer {
		t.Fatalf("rejected move must leave location, got %s", p.Location)
	}

	if _, err := reg.UpdateLocation(ctx, shop, "p-1", domain.LocationCustomer); err != nil {
		t.Fatalf("to customer: %v", err)
	}
	for _, back := range []domain.Location{domain.LocationManufacturer, domain.LocationDistributor, domain.LocationRetailer} {
		if _, err := reg.UpdateLocation(ctx, owner, "p-1", back); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("customer is terminal, move to %s gave %v", back, err)
		}
	}
}

func TestUpdateLocationRoleGating(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	mustCreate(t, reg, validInput("p-1"))

	cases := []struct {
		caller domain.Principal
		target domain.Location
	}{
		{maker, domain.LocationDistributor},
		{dist, domain.LocationRetailer},
		{shop, domain.LocationDistributor},
		{dist, domain.LocationManufacturer},
		{"stranger", domain.LocationCustomer},
		{"", domain.LocationCustomer},
	}
	for _, tc := range cases {
		if _, err := reg.UpdateLocation(ctx, tc.caller, "p-1", tc.target); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%q to %s: expected unauthorized, got %v", tc.caller, tc.target, err)
		}
	}
	if _, err := reg.UpdateLocation(ctx, maker, "p-1", domain.LocationManufacturer); err != nil {
		t.Fatalf("manufacturer may keep product at manufacturer: %v", err)
	}
	if _, err := reg.UpdateLocation(ctx, maker, "p-1", domain.LocationCustomer); err != nil {
		t.Fatalf("any role holder may sell to customer: %v", err)
	}
}

func TestUpdateLocationErrors(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	if _, err := reg.UpdateLocation(ctx, owner, "missing", domain.LocationDistributor); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := reg.UpdateLocation(ctx, owner, "missing", domain.Location(9)); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	mustCreate(t, reg, validInput("p-1"))

	if _, err := reg.UpdateQuantity(ctx, maker, "p-1", 3); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	p, err := reg.UpdateQuantity(ctx, owner, "p-1", 0)
	if err != nil {
		t.Fatalf("zero quantity is valid after creation: %v", err)
	}
	if p.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", p.Quantity)
	}
	if _, err := reg.UpdateQuantity(ctx, owner, "p-1", -1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := reg.UpdateQuantity(ctx, owner, "missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdatePriceUsesTierAndDiscount(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	mustCreate(t, reg, validInput("p-1"))

	p, err := reg.UpdatePrice(ctx, shop, "p-1")
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if p.Price != 800 {
		t.Fatalf("expected 10-day tier price 800, got %d", p.Price)
	}

	if _, err := reg.SetDiscount(ctx, owner, 20); err != nil {
		t.Fatalf("set discount: %v", err)
	}
	p, err = reg.UpdatePrice(ctx, shop, "p-1")
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if p.Price != 640 {
		t.Fatalf("expected discounted price 640, got %d", p.Price)
	}

	if _, err := reg.UpdatePrice(ctx, "stranger", "p-1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := reg.UpdatePrice(ctx, shop, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdatePriceRejectsExpiredProduct(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	in := validInput("old")
	in.ManufactureDate = fixedNow.Add(-30 * 24 * time.Hour)
	in.ExpiryDate = fixedNow
	mustCreate(t, reg, in)

	_, err := reg.UpdatePrice(ctx, owner, "old")
	if !errors.Is(err, domain.ErrExpiredOrInvalid) {
		t.Fatalf("expected expired or invalid, got %v", err)
	}
	p, _ := reg.GetProduct("old")
	if p.Price != 900 {
		t.Fatalf("price must be left unchanged, got %d", p.Price)
	}
}

func TestUpdatePriceAgreesWithIsExpiredBelowOneSecond(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	in := validInput("last-call")
	in.ExpiryDate = fixedNow.Add(500 * time.Millisecond)
	mustCreate(t, reg, in)

	expired, err := reg.IsExpired("last-call", fixedNow)
	if err != nil || expired {
		t.Fatalf("expected not expired, got %v, %v", expired, err)
	}
	p, err := reg.UpdatePrice(ctx, shop, "last-call")
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if p.Price != 500 {
		t.Fatalf("expected last-tier price 500, got %d", p.Price)
	}
	if days, _ := reg.RemainingDays("last-call", fixedNow); days != 0 {
		t.Fatalf("expected 0 remaining days, got %d", days)
	}
}

func TestUpdatePricesBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	mustCreate(t, reg, validInput("p-1"))
	far := validInput("p-2")
	far.ExpiryDate = fixedNow.Add(60 * 24 * time.Hour)
	mustCreate(t, reg, far)

	if _, err := reg.UpdatePricesBatch(ctx, owner, []string{"p-1", "missing"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if p, _ := reg.GetProduct("p-1"); p.Price != 900 {
		t.Fatalf("failed batch must not write prices, got %d", p.Price)
	}

	updated, err := reg.UpdatePricesBatch(ctx, owner, []string{"p-1", "p-2"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if updated[0].Price != 800 || updated[1].Price != 1000 {
		t.Fatalf("unexpected batch prices %d, %d", updated[0].Price, updated[1].Price)
	}
}

func TestDiscountLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	if d := reg.Discount(ctx); d.Active || d.Percentage != 0 {
		t.Fatalf("expected inactive zero discount initially, got %+v", d)
	}
	for _, pct := range []int64{0, 100, -5, 150} {
		if _, err := reg.SetDiscount(ctx, owner, pct); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("percentage %d: expected invalid argument, got %v", pct, err)
		}
	}
	if _, err := reg.SetDiscount(ctx, shop, 10); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	d, err := reg.SetDiscount(ctx, owner, 15)
	if err != nil || !d.Active || d.Percentage != 15 {
		t.Fatalf("set discount: %+v, %v", d, err)
	}
	if err := reg.CancelDiscount(ctx, shop); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized cancel, got %v", err)
	}
	if err := reg.CancelDiscount(ctx, owner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if d := reg.Discount(ctx); d.Active || d.Percentage != 0 {
		t.Fatalf("expected cancelled discount, got %+v", d)
	}
}

func TestInitializeRunsOnce(t *testing.T) {
	ctx := context.Background()
	reg := NewInMemoryRegistry()
	if err := reg.Initialize(ctx, ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty owner, got %v", err)
	}
	if err := reg.Initialize(ctx, owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := reg.Initialize(ctx, "usurper"); !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	if !reg.IsAdmin(ctx, owner) || reg.IsAdmin(ctx, "usurper") {
		t.Fatalf("owner must be the only admin")
	}
}

func TestRoleManagement(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	if err := reg.AddAdmin(ctx, owner, ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for null principal, got %v", err)
	}
	if err := reg.AddRetailer(ctx, maker, "x"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin must not grant roles, got %v", err)
	}
	if err := reg.AddAdmin(ctx, owner, "deputy"); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if !reg.IsRetailer(ctx, "deputy") || !reg.IsDistributor(ctx, "deputy") || !reg.IsManufacturer(ctx, "deputy") {
		t.Fatalf("admin must pass every capability check")
	}
	if err := reg.AddManufacturer(ctx, "deputy", "maker2"); err != nil {
		t.Fatalf("explicit admin may grant roles: %v", err)
	}

	if err := reg.RemoveRole(ctx, owner, maker, domain.RoleKind(7)); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for bad role kind, got %v", err)
	}
	if err := reg.RemoveRole(ctx, owner, "", domain.RoleRetailer); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for null principal, got %v", err)
	}
	if err := reg.RemoveRole(ctx, owner, maker, domain.RoleManufacturer); err != nil {
		t.Fatalf("remove role: %v", err)
	}
	if reg.IsManufacturer(ctx, maker) {
		t.Fatalf("expected manufacturer role revoked")
	}
	if err := reg.RemoveRole(ctx, owner, owner, domain.RoleAdmin); err != nil {
		t.Fatalf("remove owner admin: %v", err)
	}
	if !reg.IsAdmin(ctx, owner) {
		t.Fatalf("owner keeps implicit admin status")
	}
}

func TestIsExpiredAndRemainingDays(t *testing.T) {
	reg := newTestRegistry(t)
	p := mustCreate(t, reg, validInput("p-1"))

	expired, err := reg.IsExpired("p-1", fixedNow)
	if err != nil || expired {
		t.Fatalf("expected not expired, got %v, %v", expired, err)
	}
	expired, err = reg.IsExpired("p-1", p.ExpiryDate)
	if err != nil || !expired {
		t.Fatalf("expiry instant itself counts as expired, got %v, %v", expired, err)
	}
	if _, err := reg.IsExpired("missing", fixedNow); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	days, err := reg.RemainingDays("p-1", fixedNow)
	if err != nil || days != 10 {
		t.Fatalf("expected 10 remaining days, got %d, %v", days, err)
	}
	days, _ = reg.RemainingDays("p-1", p.ExpiryDate.Add(36*time.Hour))
	if days != -2 {
		t.Fatalf("expected -2 days past expiry, got %d", days)
	}
}

func TestRolesReturnsCopy(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	roles := reg.Roles(ctx)
	roles.Grant("intruder", domain.RoleAdmin)
	if reg.IsAdmin(ctx, "intruder") {
		t.Fatalf("mutating the returned table must not affect the registry")
	}
}
