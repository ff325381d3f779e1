package core

import (
	"context"

	"github.com/google/uuid"
)

// TokenLedger issues the stable identifier a new product is registered under.
type TokenLedger interface {
	Issue(ctx context.Context, manufacturer string) (string, error)
}

// UUIDLedger issues random UUIDv4 identifiers.
type UUIDLedger struct{}

// Issue implements TokenLedger.
func (UUIDLedger) Issue(context.Context, string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
