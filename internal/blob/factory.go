// Package blob selects and opens the configured object storage driver.
package blob

import (
	"context"
	"fmt"

	"freshledger/internal/blob/core"
	fsblob "freshledger/internal/infra/blob/fs"
	memblob "freshledger/internal/infra/blob/memory"
	s3blob "freshledger/internal/infra/blob/s3"
)

type (
	// Store aliases core.Store.
	Store = core.Store
	// Driver aliases core.Driver.
	Driver = core.Driver
	// Info aliases core.Info.
	Info = core.Info
	// PutOptions aliases core.PutOptions.
	PutOptions = core.PutOptions
)

// Driver identifiers re-exported for callers that only import this package.
const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// Config selects a blob backend.
type Config struct {
	Driver Driver        `mapstructure:"driver"`
	FSRoot string        `mapstructure:"fs_root"`
	S3     s3blob.Config `mapstructure:"s3"`
}

// Open constructs the blob store named by cfg.Driver. An empty driver selects
// the filesystem backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", core.DriverFilesystem:
		st, err := fsblob.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return st, nil
	case core.DriverMemory:
		return memblob.New(), nil
	case core.DriverS3:
		st, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
