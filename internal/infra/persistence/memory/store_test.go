package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"freshledger/pkg/domain"
)

var fixedNow = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newTestStore(engine *domain.RulesEngine) *Store {
	store := NewStore(engine)
	store.SetNowFunc(func() time.Time { return fixedNow })
	return store
}

func sampleProduct(id string) domain.Product {
	return domain.Product{
		Base:            domain.Base{ID: id},
		Name:            "Milk",
		Manufacturer:    "Dairy Co",
		ManufactureDate: fixedNow.Add(-24 * time.Hour),
		ExpiryDate:      fixedNow.Add(10 * 24 * time.Hour),
		Category:        domain.CategoryBeverage,
		Quantity:        12,
		Price:           800,
	}
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := newTestStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindProduct("missing"); ok {
			t.Fatalf("expected missing product lookup")
		}
		created, err := tx.CreateProduct(sampleProduct("p1"))
		if err != nil {
			return err
		}
		if !created.CreatedAt.Equal(fixedNow) || !created.UpdatedAt.Equal(fixedNow) {
			t.Fatalf("expected store clock stamps, got %v", created.CreatedAt)
		}
		if _, err := tx.CreateProduct(sampleProduct("p2")); err != nil {
			return err
		}
		view := tx.Snapshot()
		if len(view.ListProducts()) != 2 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	products := store.ListProducts()
	if len(products) != 2 || products[0].ID != "p1" || products[1].ID != "p2" {
		t.Fatalf("expected creation order, got %+v", products)
	}
	if store.Revision() != 1 {
		t.Fatalf("expected revision 1, got %d", store.Revision())
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListProducts()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListProducts()) != 2 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc()() != fixedNow {
		t.Fatalf("expected injected now func")
	}
}

func TestStoreRollsBackOnError(t *testing.T) {
	store := newTestStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProduct(sampleProduct("p1")); err != nil {
			return err
		}
		_, err := tx.CreateProduct(sampleProduct("p1"))
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected duplicate id, got %v", err)
	}
	if len(store.ListProducts()) != 0 || store.Revision() != 0 {
		t.Fatalf("failed transaction must leave no trace")
	}
}

func TestStoreRuleViolation(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := newTestStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateProduct(sampleProduct("p1"))
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidProduct) {
		t.Fatalf("expected violation to carry its error kind")
	}
	if _, ok := store.GetProduct("p1"); ok {
		t.Fatalf("blocked product must not be committed")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock, Err: domain.ErrInvalidProduct}}}, nil
}

func TestUpdateProduct(t *testing.T) {
	store := newTestStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProduct(sampleProduct("p1"))
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	later := fixedNow.Add(time.Hour)
	store.SetNowFunc(func() time.Time { return later })
	var changes int
	engine := store.RulesEngine()
	engine.Register(countingRule{count: &changes})
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateProduct("missing", func(*domain.Product) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		updated, err := tx.UpdateProduct("p1", func(p *domain.Product) error {
			p.ID = "hijack"
			p.Quantity = 3
			return nil
		})
		if err != nil {
			return err
		}
		if updated.ID != "p1" || !updated.UpdatedAt.Equal(later) || !updated.CreatedAt.Equal(fixedNow) {
			t.Fatalf("unexpected stamps %+v", updated.Base)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.GetProduct("p1")
	if got.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", got.Quantity)
	}
	if changes != 1 {
		t.Fatalf("expected a single recorded change, got %d", changes)
	}
}

type countingRule struct{ count *int }

func (countingRule) Name() string { return "count" }

func (r countingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	*r.count += len(changes)
	return domain.Result{}, nil
}

func TestMutatorErrorAborts(t *testing.T) {
	store := newTestStore(nil)
	ctx := context.Background()
	_, _ = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProduct(sampleProduct("p1"))
		return err
	})
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateProduct("p1", func(p *domain.Product) error {
			p.Quantity = 0
			return boom
		})
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	if got, _ := store.GetProduct("p1"); got.Quantity != 12 {
		t.Fatalf("aborted mutation leaked: %d", got.Quantity)
	}
}

func TestDiscountAndRoles(t *testing.T) {
	store := newTestStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.SetDiscount(domain.DiscountState{Active: true, Percentage: 15}); err != nil {
			return err
		}
		_, err := tx.UpdateRoles(func(table *domain.RoleTable) error {
			table.Owner = "owner"
			table.Grant("m1", domain.RoleManufacturer)
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if d := v.Discount(); !d.Active || d.Percentage != 15 {
			t.Fatalf("unexpected discount %+v", d)
		}
		roles := v.Roles()
		if roles.Owner != "owner" || !roles.Holds("m1", domain.RoleManufacturer) {
			t.Fatalf("unexpected roles %+v", roles)
		}
		roles.Grant("intruder", domain.RoleAdmin)
		return nil
	})
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if v.Roles().Holds("intruder", domain.RoleAdmin) {
			t.Fatalf("view role tables must be copies")
		}
		return nil
	})
	boom := errors.New("boom")
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateRoles(func(*domain.RoleTable) error { return boom })
		return err
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
}

func TestViewIsIsolatedFromLaterCommits(t *testing.T) {
	store := newTestStore(nil)
	ctx := context.Background()
	_, _ = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProduct(sampleProduct("p1"))
		return err
	})
	_ = store.View(ctx, func(v domain.TransactionView) error {
		_, _ = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateProduct(sampleProduct("p2"))
			return err
		})
		if len(v.ListProducts()) != 1 || v.Revision() != 1 {
			t.Fatalf("view observed a later commit")
		}
		return nil
	})
	if len(store.ListProducts()) != 2 {
		t.Fatalf("expected second commit to land")
	}
}

func TestEmptyTransactionKeepsRevision(t *testing.T) {
	store := newTestStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil }); err != nil {
		t.Fatalf("noop transaction: %v", err)
	}
	if store.Revision() != 0 {
		t.Fatalf("expected revision to stay 0")
	}
}

func TestCreateProductRequiresID(t *testing.T) {
	store := newTestStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProduct(sampleProduct(""))
		return err
	})
	if !errors.Is(err, domain.ErrInvalidProduct) {
		t.Fatalf("expected invalid product, got %v", err)
	}
}

func TestCommitHookFailureKeepsPreviousState(t *testing.T) {
	store := newTestStore(nil)
	ctx := context.Background()
	var seen []Snapshot
	store.SetCommitHook(func(_ context.Context, s Snapshot) error {
		seen = append(seen, s)
		if len(seen) > 1 {
			return errors.New("disk full")
		}
		return nil
	})

	create := func(id string) func(domain.Transaction) error {
		return func(tx domain.Transaction) error {
			_, err := tx.CreateProduct(sampleProduct(id))
			return err
		}
	}
	if _, err := store.RunInTransaction(ctx, create("p1")); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if len(seen) != 1 || seen[0].Revision != 1 || len(seen[0].Products) != 1 {
		t.Fatalf("expected hook to see revision 1 with one product, got %+v", seen)
	}
	if _, err := store.RunInTransaction(ctx, create("p2")); err == nil || err.Error() != "disk full" {
		t.Fatalf("expected hook error, got %v", err)
	}
	if _, ok := store.GetProduct("p2"); ok {
		t.Fatalf("rejected commit must not be visible")
	}
	if store.Revision() != 1 {
		t.Fatalf("expected revision 1, got %d", store.Revision())
	}
	if _, err := store.RunInTransaction(ctx, func(domain.Transaction) error { return nil }); err != nil {
		t.Fatalf("read-only tx: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("read-only tx must not invoke the hook, calls=%d", len(seen))
	}
}
