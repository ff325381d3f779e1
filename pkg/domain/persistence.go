package domain

import (
	"context"
	"time"
)

// Transaction exposes the registry operations that a persistence
// implementation must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	FindProduct(id string) (Product, bool)
	Discount() DiscountState
	SetDiscount(DiscountState) (DiscountState, error)
	Roles() RoleTable
	UpdateRoles(mutator func(*RoleTable) error) (RoleTable, error)
}

// TransactionView provides read-only access to a consistent state snapshot.
type TransactionView interface {
	Revision() uint64
	ListProducts() []Product
	FindProduct(id string) (Product, bool)
	Discount() DiscountState
	Roles() RoleTable
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProduct(id string) (Product, bool)
	ListProducts() []Product
}
