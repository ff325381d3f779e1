// Package access answers capability questions over the registry role table
// and maps each mutating operation to the capability it requires.
package access

import (
	"fmt"

	"freshledger/pkg/domain"
)

// Operation identifies a role-gated registry mutation.
type Operation int

// Gated operations.
const (
	OpCreateProduct Operation = iota
	OpMoveToManufacturer
	OpMoveToDistributor
	OpMoveToRetailer
	OpMoveToCustomer
	OpUpdateQuantity
	OpUpdatePrice
	OpSetDiscount
	OpCancelDiscount
	OpManageRoles
)

var operationNames = map[Operation]string{
	OpCreateProduct:      "create product",
	OpMoveToManufacturer: "move product to manufacturer",
	OpMoveToDistributor:  "move product to distributor",
	OpMoveToRetailer:     "move product to retailer",
	OpMoveToCustomer:     "move product to customer",
	OpUpdateQuantity:     "update quantity",
	OpUpdatePrice:        "update price",
	OpSetDiscount:        "set discount",
	OpCancelDiscount:     "cancel discount",
	OpManageRoles:        "manage roles",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// MoveOperation returns the operation gating a transition into target.
func MoveOperation(target domain.Location) Operation {
	switch target {
	case domain.LocationManufacturer:
		return OpMoveToManufacturer
	case domain.LocationDistributor:
		return OpMoveToDistributor
	case domain.LocationRetailer:
		return OpMoveToRetailer
	default:
		return OpMoveToCustomer
	}
}

// IsAdmin reports whether p is the owner or an explicit admin.
func IsAdmin(t domain.RoleTable, p domain.Principal) bool {
	if p.IsZero() {
		return false
	}
	return p == t.Owner || t.Holds(p, domain.RoleAdmin)
}

// Has reports whether p passes the capability check for role k. Admins pass
// every check.
func Has(t domain.RoleTable, p domain.Principal, k domain.RoleKind) bool {
	if IsAdmin(t, p) {
		return true
	}
	if p.IsZero() {
		return false
	}
	return t.Holds(p, k)
}

// IsManufacturer reports whether p may act as a manufacturer.
func IsManufacturer(t domain.RoleTable, p domain.Principal) bool {
	return Has(t, p, domain.RoleManufacturer)
}

// IsDistributor reports whether p may act as a distributor.
func IsDistributor(t domain.RoleTable, p domain.Principal) bool {
	return Has(t, p, domain.RoleDistributor)
}

// IsRetailer reports whether p may act as a retailer.
func IsRetailer(t domain.RoleTable, p domain.Principal) bool {
	return Has(t, p, domain.RoleRetailer)
}

// IsOperator reports whether p holds any capability at all.
func IsOperator(t domain.RoleTable, p domain.Principal) bool {
	return IsManufacturer(t, p) || IsDistributor(t, p) || IsRetailer(t, p)
}

// Allowed reports whether p may perform op.
func Allowed(t domain.RoleTable, p domain.Principal, op Operation) bool {
	switch op {
	case OpCreateProduct, OpMoveToManufacturer:
		return IsManufacturer(t, p)
	case OpMoveToDistributor:
		return IsDistributor(t, p)
	case OpMoveToRetailer:
		return IsRetailer(t, p)
	case OpMoveToCustomer, OpUpdatePrice:
		return IsOperator(t, p)
	case OpUpdateQuantity, OpSetDiscount, OpCancelDiscount, OpManageRoles:
		return IsAdmin(t, p)
	default:
		return false
	}
}

// Authorize returns an UnauthorizedError when p may not perform op.
func Authorize(t domain.RoleTable, p domain.Principal, op Operation) error {
	if Allowed(t, p, op) {
		return nil
	}
	return domain.UnauthorizedError{Principal: p, Operation: op.String()}
}

// Initialize sets the owner once. It fails with ErrAlreadyInitialized when an
// owner is already present.
func Initialize(t *domain.RoleTable, owner domain.Principal) error {
	if owner.IsZero() {
		return fmt.Errorf("%w: owner must not be empty", domain.ErrInvalidArgument)
	}
	if t.Initialized() {
		return domain.ErrAlreadyInitialized
	}
	t.Owner = owner
	return nil
}

type mutation func(t *domain.RoleTable, p domain.Principal) bool

func grant(k domain.RoleKind) mutation {
	return func(t *domain.RoleTable, p domain.Principal) bool { return t.Grant(p, k) }
}

func revoke(k domain.RoleKind) mutation {
	return func(t *domain.RoleTable, p domain.Principal) bool { return t.Revoke(p, k) }
}

var grants = map[domain.RoleKind]mutation{
	domain.RoleAdmin:        grant(domain.RoleAdmin),
	domain.RoleManufacturer: grant(domain.RoleManufacturer),
	domain.RoleDistributor:  grant(domain.RoleDistributor),
	domain.RoleRetailer:     grant(domain.RoleRetailer),
}

var revokes = map[domain.RoleKind]mutation{
	domain.RoleAdmin:        revoke(domain.RoleAdmin),
	domain.RoleManufacturer: revoke(domain.RoleManufacturer),
	domain.RoleDistributor:  revoke(domain.RoleDistributor),
	domain.RoleRetailer:     revoke(domain.RoleRetailer),
}

// Grant adds p to role k. The owner keeps implicit admin status regardless.
func Grant(t *domain.RoleTable, p domain.Principal, k domain.RoleKind) (bool, error) {
	return apply(grants, t, p, k)
}

// Revoke removes p from role k. Revoking admin from the owner only drops the
// explicit membership; IsAdmin stays true for the owner.
func Revoke(t *domain.RoleTable, p domain.Principal, k domain.RoleKind) (bool, error) {
	return apply(revokes, t, p, k)
}

func apply(table map[domain.RoleKind]mutation, t *domain.RoleTable, p domain.Principal, k domain.RoleKind) (bool, error) {
	if p.IsZero() {
		return false, fmt.Errorf("%w: principal must not be empty", domain.ErrInvalidArgument)
	}
	fn, ok := table[k]
	if !ok {
		return false, fmt.Errorf("%w: unknown role kind %d", domain.ErrInvalidArgument, int(k))
	}
	return fn(t, p), nil
}
