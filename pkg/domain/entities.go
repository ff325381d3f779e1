// Package domain defines the core persistent records, value types, and
// rule evaluation primitives used by freshledger.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the registry.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProduct identifies a perishable product record.
	EntityProduct EntityType = "product"
	// EntityDiscount identifies the registry-wide discount state.
	EntityDiscount EntityType = "discount"
	// EntityRoles identifies the registry role table.
	EntityRoles EntityType = "roles"
)

// Category classifies a product. Categories are fixed at creation.
type Category int

// Product categories.
const (
	CategoryFood Category = iota
	CategoryBeverage
	CategoryPharmaceutical
	CategoryCosmetic
	CategoryOther
)

var categoryNames = [...]string{"food", "beverage", "pharmaceutical", "cosmetic", "other"}

// Categories lists every valid category in ordinal order.
func Categories() []Category {
	return []Category{CategoryFood, CategoryBeverage, CategoryPharmaceutical, CategoryCosmetic, CategoryOther}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return c >= CategoryFood && c <= CategoryOther }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory resolves a category from its lower-case name.
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, name)
}

// Location is a supply-chain position. The ordinal order is the only legal
// direction of travel: Manufacturer < Distributor < Retailer < Customer.
type Location int

// Supply-chain locations.
const (
	LocationManufacturer Location = iota
	LocationDistributor
	LocationRetailer
	LocationCustomer
)

var locationNames = [...]string{"manufacturer", "distributor", "retailer", "customer"}

// Locations lists every location in ordinal order.
func Locations() []Location {
	return []Location{LocationManufacturer, LocationDistributor, LocationRetailer, LocationCustomer}
}

// Valid reports whether l is a known location.
func (l Location) Valid() bool { return l >= LocationManufacturer && l <= LocationCustomer }

// Terminal reports whether no transition can leave l.
func (l Location) Terminal() bool { return l == LocationCustomer }

func (l Location) String() string {
	if !l.Valid() {
		return fmt.Sprintf("location(%d)", int(l))
	}
	return locationNames[l]
}

// ParseLocation resolves a location from its lower-case name.
func ParseLocation(name string) (Location, error) {
	for i, n := range locationNames {
		if n == name {
			return Location(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown location %q", ErrInvalidArgument, name)
}

// SecondsPerDay is the day length used by every shelf-life computation.
const SecondsPerDay = 86400

// DaysBetween returns floor((to-from)/24h) at nanosecond precision. It works
// on whole seconds plus the nanosecond remainder, so spans beyond the range of
// time.Duration do not saturate.
func DaysBetween(from, to time.Time) int64 {
	secs := to.Unix() - from.Unix()
	if to.Nanosecond() < from.Nanosecond() {
		secs--
	}
	days := secs / SecondsPerDay
	if secs%SecondsPerDay != 0 && secs < 0 {
		days--
	}
	return days
}

// Base contains bookkeeping fields stamped by the store.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a perishable inventory record tracked from manufacture to sale.
// Name, Manufacturer, dates, Category and IsQualityProduct never change after
// creation.
type Product struct {
	Base
	Name             string    `json:"name"`
	Manufacturer     string    `json:"manufacturer"`
	ManufactureDate  time.Time `json:"manufacture_date"`
	ExpiryDate       time.Time `json:"expiry_date"`
	Category         Category  `json:"category"`
	Location         Location  `json:"location"`
	Quantity         int64     `json:"quantity"`
	IsQualityProduct bool      `json:"is_quality_product"`
	Price            int64     `json:"price"`
}

// IsExpired reports whether now is at or past the expiry date.
func (p Product) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiryDate)
}

// ShelfLifeDays returns the whole days between manufacture and expiry.
func (p Product) ShelfLifeDays() int64 {
	return DaysBetween(p.ManufactureDate, p.ExpiryDate)
}

// DiscountState is the single registry-wide discount overlay.
type DiscountState struct {
	Active     bool  `json:"active"`
	Percentage int64 `json:"percentage"`
}

// Action identifies the mutation type recorded for an entity.
type Action string

// Change actions enumerate supported mutations captured in the transaction log.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Change describes a mutation applied to an entity during a transaction.
// Before and After hold the concrete record value (Product, DiscountState or
// RoleTable).
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but allows commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
	// Err is the error kind sentinel the violation maps to.
	Err error
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
