// Package report assembles inventory reports from a registry and publishes
// them as JSON objects to a blob store.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"freshledger/internal/blob"
	"freshledger/internal/core"
	"freshledger/pkg/domain"
)

// KeyPrefix is the object key prefix every report is written under.
const KeyPrefix = "reports/"

// DefaultExpiringWindow is the day window for the expiring-soon list.
const DefaultExpiringWindow int64 = 7

const contentType = "application/json"

// InventoryReport is a point-in-time summary of the registry. Aggregates that
// are undefined for the current inventory are omitted.
type InventoryReport struct {
	ID                   string               `json:"id"`
	GeneratedAt          time.Time            `json:"generated_at"`
	Revision             uint64               `json:"revision"`
	ProductCount         int                  `json:"product_count"`
	ExpiredCount         int                  `json:"expired_count"`
	ByLocation           map[string]int       `json:"by_location"`
	ByCategory           map[string]int       `json:"by_category"`
	ExpiringWindowDays   int64                `json:"expiring_window_days"`
	ExpiringSoon         []string             `json:"expiring_soon"`
	Discount             domain.DiscountState `json:"discount"`
	AveragePrice         *int64               `json:"average_price,omitempty"`
	TotalInventoryValue  int64                `json:"total_inventory_value"`
	AverageShelfLifeDays *int64               `json:"average_shelf_life_days,omitempty"`
}

// Exporter builds reports from a registry and writes them to a blob store.
type Exporter struct {
	registry *core.Registry
	store    blob.Store
	logger   *zap.Logger
	newID    func() string
	window   int64
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithLogger sets the exporter logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDFunc overrides the report id generator.
func WithIDFunc(fn func() string) Option {
	return func(e *Exporter) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithExpiringWindow sets the expiring-soon window in days. Non-positive
// values are ignored.
func WithExpiringWindow(days int64) Option {
	return func(e *Exporter) {
		if days > 0 {
			e.window = days
		}
	}
}

// NewExporter constructs an exporter publishing into store.
func NewExporter(registry *core.Registry, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{
		registry: registry,
		store:    store,
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
		window:   DefaultExpiringWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build assembles a report as of now without writing it.
func (e *Exporter) Build(ctx context.Context, now time.Time) (InventoryReport, error) {
	rep := InventoryReport{
		ID:                 e.newID(),
		GeneratedAt:        now.UTC(),
		ByLocation:         make(map[string]int, len(domain.Locations())),
		ByCategory:         make(map[string]int, len(domain.Categories())),
		ExpiringWindowDays: e.window,
	}
	for _, l := range domain.Locations() {
		rep.ByLocation[l.String()] = 0
	}
	for _, c := range domain.Categories() {
		rep.ByCategory[c.String()] = 0
	}
	err := e.registry.Store().View(ctx, func(v domain.TransactionView) error {
		rep.Revision = v.Revision()
		rep.Discount = v.Discount()
		for _, p := range v.ListProducts() {
			rep.ProductCount++
			rep.ByLocation[p.Location.String()]++
			rep.ByCategory[p.Category.String()]++
			if p.IsExpired(now) {
				rep.ExpiredCount++
			}
		}
		return nil
	})
	if err != nil {
		return InventoryReport{}, fmt.Errorf("snapshot registry: %w", err)
	}

	analytics := e.registry.Analytics()
	if avg, err := analytics.AveragePrice(ctx, now); err == nil {
		rep.AveragePrice = &avg
	} else if !undefinedAggregate(err) {
		return InventoryReport{}, fmt.Errorf("average price: %w", err)
	}
	if rep.TotalInventoryValue, err = analytics.TotalInventoryValue(ctx, now); err != nil {
		return InventoryReport{}, fmt.Errorf("inventory value: %w", err)
	}
	if days, err := analytics.AverageShelfLifeDays(ctx); err == nil {
		rep.AverageShelfLifeDays = &days
	} else if !undefinedAggregate(err) {
		return InventoryReport{}, fmt.Errorf("average shelf life: %w", err)
	}
	if rep.ExpiringSoon, err = e.registry.Index().ExpiringWithin(ctx, e.window, now); err != nil {
		return InventoryReport{}, fmt.Errorf("expiring products: %w", err)
	}
	return rep, nil
}

func undefinedAggregate(err error) bool {
	return errors.Is(err, domain.ErrNoProducts) || errors.Is(err, domain.ErrNoValidProducts)
}

// Key returns the object key a report is written under.
func Key(rep InventoryReport) string {
	return fmt.Sprintf("%s%s/%s.json", KeyPrefix, rep.GeneratedAt.Format(time.DateOnly), rep.ID)
}

// Export builds a report as of now and writes it to the blob store.
func (e *Exporter) Export(ctx context.Context, now time.Time) (InventoryReport, blob.Info, error) {
	rep, err := e.Build(ctx, now)
	if err != nil {
		return InventoryReport{}, blob.Info{}, err
	}
	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return InventoryReport{}, blob.Info{}, fmt.Errorf("encode report: %w", err)
	}
	key := Key(rep)
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"revision":      strconv.FormatUint(rep.Revision, 10),
			"product_count": strconv.Itoa(rep.ProductCount),
		},
	})
	if err != nil {
		e.logger.Warn("report export failed", zap.String("key", key), zap.Error(err))
		return InventoryReport{}, blob.Info{}, fmt.Errorf("write report %s: %w", key, err)
	}
	e.logger.Info("report exported",
		zap.String("key", key),
		zap.String("driver", string(e.store.Driver())),
		zap.Uint64("revision", rep.Revision),
		zap.Int64("size_bytes", info.Size),
	)
	return rep, info, nil
}

// List returns the stored reports ordered by key.
func (e *Exporter) List(ctx context.Context) ([]blob.Info, error) {
	return e.store.List(ctx, KeyPrefix)
}

// Load reads a stored report back by key.
func (e *Exporter) Load(ctx context.Context, key string) (InventoryReport, error) {
	_, rc, err := e.store.Get(ctx, key)
	if err != nil {
		return InventoryReport{}, err
	}
	defer func() { _ = rc.Close() }()
	var rep InventoryReport
	if err := json.NewDecoder(rc).Decode(&rep); err != nil {
		return InventoryReport{}, fmt.Errorf("decode report %s: %w", key, err)
	}
	return rep, nil
}
