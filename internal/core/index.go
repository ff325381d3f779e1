package core

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"freshledger/pkg/domain"
)

// IndexService answers derived lookups over the registry. Every result is a
// filter over one consistent store snapshot; cached results are keyed by the
// snapshot revision so a commit makes them unreachable.
type IndexService struct {
	store  domain.PersistentStore
	cache  *gocache.Cache
	logger *zap.Logger
	ttl    time.Duration
}

// IndexOption customizes an IndexService.
type IndexOption func(*IndexService)

// WithCacheTTL caches category and manufacturer lookups for ttl. Zero
// disables caching.
func WithCacheTTL(ttl time.Duration) IndexOption {
	return func(s *IndexService) { s.ttl = ttl }
}

// WithIndexLogger sets the logger used for cache diagnostics.
func WithIndexLogger(l *zap.Logger) IndexOption {
	return func(s *IndexService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewIndexService constructs an index over store.
func NewIndexService(store domain.PersistentStore, opts ...IndexOption) *IndexService {
	s := &IndexService{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl > 0 {
		s.cache = gocache.New(s.ttl, 2*s.ttl)
	}
	return s
}

// ByCategory returns ids of products in category c, in creation order.
func (s *IndexService) ByCategory(ctx context.Context, c domain.Category) ([]string, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown %s", domain.ErrInvalidArgument, c)
	}
	return s.cached(ctx, fmt.Sprintf("category:%d", int(c)), func(p domain.Product) bool {
		return p.Category == c
	})
}

// ByManufacturer returns ids of products whose manufacturer equals name
// exactly, in creation order.
func (s *IndexService) ByManufacturer(ctx context.Context, name string) ([]string, error) {
	return s.cached(ctx, "manufacturer:"+name, func(p domain.Product) bool {
		return p.Manufacturer == name
	})
}

// ExpiringWithin returns ids of non-expired products with at most days whole
// days left at now. days must be positive.
func (s *IndexService) ExpiringWithin(ctx context.Context, days int64, now time.Time) ([]string, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive, got %d", domain.ErrInvalidArgument, days)
	}
	var ids []string
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		ids = filterIDs(v.ListProducts(), func(p domain.Product) bool {
			return !p.IsExpired(now) && domain.DaysBetween(now, p.ExpiryDate) <= days
		})
		return nil
	})
	return ids, err
}

func (s *IndexService) cached(ctx context.Context, key string, match func(domain.Product) bool) ([]string, error) {
	var ids []string
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		revKey := fmt.Sprintf("%s@%d", key, v.Revision())
		if s.cache != nil {
			if hit, ok := s.cache.Get(revKey); ok {
				if cachedIDs, ok := hit.([]string); ok {
					s.logger.Debug("index cache hit", zap.String("key", revKey))
					ids = append([]string(nil), cachedIDs...)
					return nil
				}
			}
		}
		ids = filterIDs(v.ListProducts(), match)
		if s.cache != nil {
			s.cache.SetDefault(revKey, append([]string(nil), ids...))
		}
		return nil
	})
	return ids, err
}

func filterIDs(products []domain.Product, match func(domain.Product) bool) []string {
	ids := make([]string, 0)
	for _, p := range products {
		if match(p) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
