package core

import (
	"fmt"

	"go.uber.org/zap"

	"freshledger/internal/infra/persistence/memory"
	"freshledger/internal/infra/persistence/postgres"
	"freshledger/internal/infra/persistence/sqlite"
	"freshledger/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes a backend. internal/config fills it
// from the storage.* keys.
type StorageConfig struct {
	Driver      StorageDriver `mapstructure:"driver"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
}

// OpenPersistentStore opens the configured backend with engine. An empty
// driver defaults to sqlite. A nil engine gets the default rule set.
func OpenPersistentStore(cfg StorageConfig, engine *RulesEngine, logger *zap.Logger) (domain.PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	logger.Debug("opening persistent store", zap.String("driver", string(driver)))
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %s", domain.ErrInvalidArgument, driver)
	}
}
