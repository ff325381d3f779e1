// Package memory provides an in-memory implementation of the registry
// persistence store used for tests, ephemeral environments, and as the
// transactional core of the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"freshledger/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Product aliases domain.Product for in-memory persistence operations.
	Product = domain.Product
	// DiscountState aliases domain.DiscountState.
	DiscountState = domain.DiscountState
	// RoleTable aliases domain.RoleTable.
	RoleTable = domain.RoleTable
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	products map[string]Product
	order    []string
	discount DiscountState
	roles    RoleTable
	revision uint64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Products map[string]Product `json:"products"`
	Order    []string           `json:"order"`
	Discount DiscountState      `json:"discount"`
	Roles    RoleTable          `json:"roles"`
	Revision uint64             `json:"revision"`
}

func newMemoryState() memoryState {
	return memoryState{products: make(map[string]Product)}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		products: make(map[string]Product, len(s.products)),
		order:    append([]string(nil), s.order...),
		discount: s.discount,
		roles:    s.roles.Clone(),
		revision: s.revision,
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Products: c.products,
		Order:    c.order,
		Discount: c.discount,
		Roles:    c.roles,
		Revision: c.revision,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		products: make(map[string]Product, len(s.Products)),
		order:    append([]string(nil), s.Order...),
		discount: s.Discount,
		roles:    s.Roles.Clone(),
		revision: s.Revision,
	}
	for k, v := range s.Products {
		state.products[k] = v
	}
	return state
}

// migrateSnapshot normalizes snapshots written by older builds or edited by
// hand: nil maps are initialized, product ids are reconciled with their map
// keys, order entries for missing or repeated products are dropped, and
// unlisted products are appended by creation time.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Products == nil {
		snapshot.Products = map[string]Product{}
	}
	for id, p := range snapshot.Products {
		if p.ID != id {
			p.ID = id
			snapshot.Products[id] = p
		}
	}
	seen := make(map[string]struct{}, len(snapshot.Order))
	order := make([]string, 0, len(snapshot.Products))
	for _, id := range snapshot.Order {
		if _, ok := snapshot.Products[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	var missing []Product
	for id, p := range snapshot.Products {
		if _, ok := seen[id]; !ok {
			missing = append(missing, p)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if !missing[i].CreatedAt.Equal(missing[j].CreatedAt) {
			return missing[i].CreatedAt.Before(missing[j].CreatedAt)
		}
		return missing[i].ID < missing[j].ID
	})
	for _, p := range missing {
		order = append(order, p.ID)
	}
	snapshot.Order = order
	if !snapshot.Discount.Active {
		snapshot.Discount.Percentage = 0
	}
	return snapshot
}

// CommitHook receives the state a transaction is about to publish. A non-nil
// error aborts the commit and the previous state stays in place.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Store provides an in-memory transactional store for the registry.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	engine   *RulesEngine
	nowFn    func() time.Time
	onCommit CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used to stamp records.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// SetCommitHook installs fn to run under the write lock before a changed
// state is published. Read-only transactions do not invoke it.
func (s *Store) SetCommitHook(fn CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = fn
}

// Revision returns the number of committed transactions applied to the store.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.revision
}

// transaction represents a mutation set applied to a private clone of the store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) Revision() uint64 { return v.state.revision }

// ListProducts returns products in creation order.
func (v transactionView) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.order))
	for _, id := range v.state.order {
		out = append(out, v.state.products[id])
	}
	return out
}

func (v transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	return p, ok
}

func (v transactionView) Discount() DiscountState { return v.state.discount }

func (v transactionView) Roles() RoleTable { return v.state.roles.Clone() }

// RunInTransaction executes fn against a private clone of the state. The
// clone replaces the committed state only when fn succeeds, no rule reports a
// blocking violation and the commit hook accepts it; otherwise nothing fn did
// is observable.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) > 0 {
		tx.state.revision++
		if s.onCommit != nil {
			if err := s.onCommit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
				return result, err
			}
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the transaction clock reading taken at begin.
func (tx *transaction) Now() time.Time { return tx.now }

// FindProduct exposes product lookup within the transaction scope.
func (tx *transaction) FindProduct(id string) (Product, bool) {
	p, ok := tx.state.products[id]
	return p, ok
}

// CreateProduct stores a new product and appends it to the creation order.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		return Product{}, fmt.Errorf("%w: product id required", domain.ErrInvalidProduct)
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, domain.DuplicateIDError{Entity: domain.EntityProduct, ID: p.ID}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = p
	tx.state.order = append(tx.state.order, p.ID)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateProduct mutates a product using the provided mutator function.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, domain.NotFoundError{Entity: domain.EntityProduct, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.products[id] = current
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// Discount returns the discount state within the transaction scope.
func (tx *transaction) Discount() DiscountState { return tx.state.discount }

// SetDiscount replaces the registry-wide discount.
func (tx *transaction) SetDiscount(d DiscountState) (DiscountState, error) {
	before := tx.state.discount
	tx.state.discount = d
	tx.recordChange(Change{Entity: domain.EntityDiscount, Action: domain.ActionUpdate, Before: before, After: d})
	return d, nil
}

// Roles returns a copy of the role table within the transaction scope.
func (tx *transaction) Roles() RoleTable { return tx.state.roles.Clone() }

// UpdateRoles mutates the role table using the provided mutator function.
func (tx *transaction) UpdateRoles(mutator func(*RoleTable) error) (RoleTable, error) {
	before := tx.state.roles.Clone()
	current := tx.state.roles.Clone()
	if err := mutator(&current); err != nil {
		return RoleTable{}, err
	}
	tx.state.roles = current
	tx.recordChange(Change{Entity: domain.EntityRoles, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// GetProduct retrieves a product by ID from committed state.
func (s *Store) GetProduct(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	return p, ok
}

// ListProducts returns all committed products in creation order.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.state.order))
	for _, id := range s.state.order {
		out = append(out, s.state.products[id])
	}
	return out
}
