// Package core orchestrates the perishable-goods registry: role-gated
// mutations over a transactional store, the commit-time rule set, derived
// index views, analytics, storage selection and operation observability.
package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"freshledger/internal/access"
	"freshledger/internal/infra/persistence/memory"
	"freshledger/internal/pricing"
	"freshledger/pkg/domain"
)

// Operation names reported to loggers, metrics and tracers.
const (
	OpInitialize          = "initialize"
	OpAddRole             = "add_role"
	OpRemoveRole          = "remove_role"
	OpCreateProduct       = "create_product"
	OpCreateProductsBatch = "create_products_batch"
	OpUpdateLocation      = "update_location"
	OpUpdateQuantity      = "update_quantity"
	OpUpdatePrice         = "update_price"
	OpUpdatePricesBatch   = "update_prices_batch"
	OpSetDiscount         = "set_discount"
	OpCancelDiscount      = "cancel_discount"
)

// ProductInput carries the caller-supplied fields of a new product. An empty
// ID is filled in by the registry's TokenLedger.
type ProductInput struct {
	ID               string
	Name             string
	Manufacturer     string
	ManufactureDate  time.Time
	ExpiryDate       time.Time
	Category         domain.Category
	Quantity         int64
	IsQualityProduct bool
	Price            int64
}

func (in ProductInput) product(id string) domain.Product {
	return domain.Product{
		Base:             domain.Base{ID: id},
		Name:             in.Name,
		Manufacturer:     in.Manufacturer,
		ManufactureDate:  in.ManufactureDate,
		ExpiryDate:       in.ExpiryDate,
		Category:         in.Category,
		Location:         domain.LocationManufacturer,
		Quantity:         in.Quantity,
		IsQualityProduct: in.IsQualityProduct,
		Price:            in.Price,
	}
}

// Registry owns the product collection, the discount and the role table
// through its store. All mutations run inside a single store transaction so
// the store's writer lock serializes them.
type Registry struct {
	store     domain.PersistentStore
	prices    *pricing.Engine
	ledger    TokenLedger
	clock     Clock
	logger    *zap.Logger
	metrics   MetricsRecorder
	tracer    Tracer
	cacheTTL  time.Duration
	index     *IndexService
	analytics *AnalyticsEngine
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for pricing and record stamps.
func WithClock(c Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the operation metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(t Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithPriceEngine replaces the default tier table.
func WithPriceEngine(e *pricing.Engine) Option {
	return func(r *Registry) {
		if e != nil {
			r.prices = e
		}
	}
}

// WithTokenLedger sets the identifier issuer for products created without an id.
func WithTokenLedger(l TokenLedger) Option {
	return func(r *Registry) {
		if l != nil {
			r.ledger = l
		}
	}
}

// WithIndexCache enables revision-keyed caching of category and manufacturer
// lookups for ttl. Zero disables the cache.
func WithIndexCache(ttl time.Duration) Option {
	return func(r *Registry) { r.cacheTTL = ttl }
}

// NewRegistry constructs a registry over store. A nil store gets an in-memory
// store with the default rule set. The store's engine must carry the default
// rules for the registry invariants to hold.
func NewRegistry(store domain.PersistentStore, opts ...Option) *Registry {
	if store == nil {
		store = memory.NewStore(NewDefaultRulesEngine())
	}
	r := &Registry{
		store:   store,
		prices:  pricing.NewDefaultEngine(),
		ledger:  UUIDLedger{},
		clock:   systemClock{},
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if setter, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		setter.SetNowFunc(r.clock.Now)
	}
	r.index = NewIndexService(store, WithCacheTTL(r.cacheTTL), WithIndexLogger(r.logger))
	r.analytics = NewAnalyticsEngine(store)
	return r
}

// NewInMemoryRegistry creates a registry over a fresh in-memory store.
func NewInMemoryRegistry(opts ...Option) *Registry {
	return NewRegistry(nil, opts...)
}

// Store returns the underlying store.
func (r *Registry) Store() domain.PersistentStore { return r.store }

// Index returns the registry's index service.
func (r *Registry) Index() *IndexService { return r.index }

// Analytics returns the registry's analytics engine.
func (r *Registry) Analytics() *AnalyticsEngine { return r.analytics }

// Prices returns the tier engine.
func (r *Registry) Prices() *pricing.Engine { return r.prices }

// Clock returns the registry time source.
func (r *Registry) Clock() Clock { return r.clock }

func (r *Registry) run(ctx context.Context, op string, caller domain.Principal, productID string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	r.metrics.Observe(ctx, op, err == nil, time.Since(start))

	fields := []zap.Field{zap.String("operation", op), zap.String("caller", string(caller))}
	if productID != "" {
		fields = append(fields, zap.String("product_id", productID))
	}
	if err != nil {
		r.logger.Info("registry operation rejected", append(fields, zap.Error(err))...)
		return err
	}
	r.logger.Debug("registry operation applied", fields...)
	return nil
}

func (r *Registry) transact(ctx context.Context, fn func(domain.Transaction) error) error {
	_, err := r.store.RunInTransaction(ctx, fn)
	return err
}

// Initialize sets the registry owner. It succeeds once per registry lifetime.
func (r *Registry) Initialize(ctx context.Context, owner domain.Principal) error {
	return r.run(ctx, OpInitialize, owner, "", func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			_, err := tx.UpdateRoles(func(t *domain.RoleTable) error {
				return access.Initialize(t, owner)
			})
			return err
		})
	})
}

// AddRole grants kind to principal. The caller must be an admin.
func (r *Registry) AddRole(ctx context.Context, caller, principal domain.Principal, kind domain.RoleKind) error {
	return r.run(ctx, OpAddRole, caller, "", func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpManageRoles); err != nil {
				return err
			}
			_, err := tx.UpdateRoles(func(t *domain.RoleTable) error {
				_, err := access.Grant(t, principal, kind)
				return err
			})
			return err
		})
	})
}

// AddAdmin grants the admin role.
func (r *Registry) AddAdmin(ctx context.Context, caller, principal domain.Principal) error {
	return r.AddRole(ctx, caller, principal, domain.RoleAdmin)
}

// AddManufacturer grants the manufacturer role.
func (r *Registry) AddManufacturer(ctx context.Context, caller, principal domain.Principal) error {
	return r.AddRole(ctx, caller, principal, domain.RoleManufacturer)
}

// AddDistributor grants the distributor role.
func (r *Registry) AddDistributor(ctx context.Context, caller, principal domain.Principal) error {
	return r.AddRole(ctx, caller, principal, domain.RoleDistributor)
}

// AddRetailer grants the retailer role.
func (r *Registry) AddRetailer(ctx context.Context, caller, principal domain.Principal) error {
	return r.AddRole(ctx, caller, principal, domain.RoleRetailer)
}

// RemoveRole revokes kind from principal. The owner's implicit admin status
// cannot be removed.
func (r *Registry) RemoveRole(ctx context.Context, caller, principal domain.Principal, kind domain.RoleKind) error {
	return r.run(ctx, OpRemoveRole, caller, "", func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpManageRoles); err != nil {
				return err
			}
			_, err := tx.UpdateRoles(func(t *domain.RoleTable) error {
				_, err := access.Revoke(t, principal, kind)
				return err
			})
			return err
		})
	})
}

func (r *Registry) create(ctx context.Context, tx domain.Transaction, in ProductInput) (domain.Product, error) {
	id := in.ID
	if id == "" {
		issued, err := r.ledger.Issue(ctx, in.Manufacturer)
		if err != nil {
			return domain.Product{}, fmt.Errorf("issue product id: %w", err)
		}
		id = issued
	}
	return tx.CreateProduct(in.product(id))
}

// CreateProduct registers a new product at the Manufacturer location. The
// caller needs the manufacturer capability.
func (r *Registry) CreateProduct(ctx context.Context, caller domain.Principal, in ProductInput) (domain.Product, error) {
	var created domain.Product
	err := r.run(ctx, OpCreateProduct, caller, in.ID, func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpCreateProduct); err != nil {
				return err
			}
			var err error
			created, err = r.create(ctx, tx, in)
			return err
		})
	})
	return created, err
}

// CreateProductsBatch registers every input in order, or none of them.
func (r *Registry) CreateProductsBatch(ctx context.Context, caller domain.Principal, inputs []ProductInput) ([]domain.Product, error) {
	var created []domain.Product
	err := r.run(ctx, OpCreateProductsBatch, caller, "", func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpCreateProduct); err != nil {
				return err
			}
			out := make([]domain.Product, 0, len(inputs))
			for i, in := range inputs {
				p, err := r.create(ctx, tx, in)
				if err != nil {
					return fmt.Errorf("batch item %d: %w", i, err)
				}
				out = append(out, p)
			}
			created = out
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateLocation moves a product forward along the supply chain. Each target
// location is gated by its own role; Customer needs any capability.
func (r *Registry) UpdateLocation(ctx context.Context, caller domain.Principal, id string, target domain.Location) (domain.Product, error) {
	var updated domain.Product
	err := r.run(ctx, OpUpdateLocation, caller, id, func(ctx context.Context) error {
		if !target.Valid() {
			return fmt.Errorf("%w: unknown %s", domain.ErrInvalidArgument, target)
		}
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.MoveOperation(target)); err != nil {
				return err
			}
			var err error
			updated, err = tx.UpdateProduct(id, func(p *domain.Product) error {
				p.Location = target
				return nil
			})
			return err
		})
	})
	return updated, err
}

// UpdateQuantity overwrites a product's quantity. The caller must be an admin.
func (r *Registry) UpdateQuantity(ctx context.Context, caller domain.Principal, id string, quantity int64) (domain.Product, error) {
	var updated domain.Product
	err := r.run(ctx, OpUpdateQuantity, caller, id, func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpUpdateQuantity); err != nil {
				return err
			}
			if quantity < 0 {
				return fmt.Errorf("%w: quantity %d is negative", domain.ErrInvalidArgument, quantity)
			}
			var err error
			updated, err = tx.UpdateProduct(id, func(p *domain.Product) error {
				p.Quantity = quantity
				return nil
			})
			return err
		})
	})
	return updated, err
}

func (r *Registry) reprice(tx domain.Transaction, id string, now time.Time) (domain.Product, error) {
	discount := tx.Discount()
	return tx.UpdateProduct(id, func(p *domain.Product) error {
		price, err := r.prices.Quote(p.ExpiryDate, now, discount)
		if err != nil {
			return fmt.Errorf("product %s: %w", id, err)
		}
		p.Price = price
		return nil
	})
}

// UpdatePrice recomputes a product's price from its remaining shelf life and
// the active discount.
func (r *Registry) UpdatePrice(ctx context.Context, caller domain.Principal, id string) (domain.Product, error) {
	var updated domain.Product
	err := r.run(ctx, OpUpdatePrice, caller, id, func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpUpdatePrice); err != nil {
				return err
			}
			var err error
			updated, err = r.reprice(tx, id, r.clock.Now())
			return err
		})
	})
	return updated, err
}

// UpdatePricesBatch reprices every id against one clock reading. The first
// failing id aborts the call and no price is written.
func (r *Registry) UpdatePricesBatch(ctx context.Context, caller domain.Principal, ids []string) ([]domain.Product, error) {
	var updated []domain.Product
	err := r.run(ctx, OpUpdatePricesBatch, caller, "", func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpUpdatePrice); err != nil {
				return err
			}
			now := r.clock.Now()
			out := make([]domain.Product, 0, len(ids))
			for _, id := range ids {
				p, err := r.reprice(tx, id, now)
				if err != nil {
					return err
				}
				out = append(out, p)
			}
			updated = out
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetDiscount activates the registry-wide discount at percentage, which must
// lie in (0,100).
func (r *Registry) SetDiscount(ctx context.Context, caller domain.Principal, percentage int64) (domain.DiscountState, error) {
	var state domain.DiscountState
	err := r.run(ctx, OpSetDiscount, caller, "", func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpSetDiscount); err != nil {
				return err
			}
			if !pricing.ValidDiscountPercentage(percentage) {
				return fmt.Errorf("%w: discount percentage %d outside (0,100)", domain.ErrInvalidArgument, percentage)
			}
			var err error
			state, err = tx.SetDiscount(domain.DiscountState{Active: true, Percentage: percentage})
			return err
		})
	})
	return state, err
}

// CancelDiscount deactivates the registry-wide discount.
func (r *Registry) CancelDiscount(ctx context.Context, caller domain.Principal) error {
	return r.run(ctx, OpCancelDiscount, caller, "", func(ctx context.Context) error {
		return r.transact(ctx, func(tx domain.Transaction) error {
			if err := access.Authorize(tx.Roles(), caller, access.OpCancelDiscount); err != nil {
				return err
			}
			_, err := tx.SetDiscount(domain.DiscountState{})
			return err
		})
	})
}

// GetProduct returns the committed product with id.
func (r *Registry) GetProduct(id string) (domain.Product, error) {
	p, ok := r.store.GetProduct(id)
	if !ok {
		return domain.Product{}, domain.NotFoundError{Entity: domain.EntityProduct, ID: id}
	}
	return p, nil
}

// ListProducts returns all products in creation order.
func (r *Registry) ListProducts() []domain.Product {
	return r.store.ListProducts()
}

// IsExpired reports whether now is at or past the product's expiry.
func (r *Registry) IsExpired(id string, now time.Time) (bool, error) {
	p, err := r.GetProduct(id)
	if err != nil {
		return false, err
	}
	return p.IsExpired(now), nil
}

// RemainingDays returns floor((expiry-now)/1d) for the product; negative
// once expired.
func (r *Registry) RemainingDays(id string, now time.Time) (int64, error) {
	p, err := r.GetProduct(id)
	if err != nil {
		return 0, err
	}
	return domain.DaysBetween(now, p.ExpiryDate), nil
}

// Discount returns the registry-wide discount state.
func (r *Registry) Discount(ctx context.Context) domain.DiscountState {
	var d domain.DiscountState
	_ = r.store.View(ctx, func(v domain.TransactionView) error {
		d = v.Discount()
		return nil
	})
	return d
}

// Roles returns a copy of the role table.
func (r *Registry) Roles(ctx context.Context) domain.RoleTable {
	var t domain.RoleTable
	_ = r.store.View(ctx, func(v domain.TransactionView) error {
		t = v.Roles()
		return nil
	})
	return t
}

// IsAdmin reports whether p is the owner or an explicit admin.
func (r *Registry) IsAdmin(ctx context.Context, p domain.Principal) bool {
	return access.IsAdmin(r.Roles(ctx), p)
}

// IsManufacturer reports whether p holds the manufacturer capability.
func (r *Registry) IsManufacturer(ctx context.Context, p domain.Principal) bool {
	return access.IsManufacturer(r.Roles(ctx), p)
}

// IsDistributor reports whether p holds the distributor capability.
func (r *Registry) IsDistributor(ctx context.Context, p domain.Principal) bool {
	return access.IsDistributor(r.Roles(ctx), p)
}

// IsRetailer reports whether p holds the retailer capability.
func (r *Registry) IsRetailer(ctx context.Context, p domain.Principal) bool {
	return access.IsRetailer(r.Roles(ctx), p)
}
