package delivery

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
)

// UUIDMinter mints random v4 UUIDs locally.
type UUIDMinter struct{}

// Mint returns a random UUID
func (UUIDMinter) Mint(_ context.Context) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// FallbackMinter asks primary for an identifier and mints one locally when primary fails.
type FallbackMinter struct {
	primary IdentifierMinter
	local   UUIDMinter
	logger  ectologger.Logger
}

// NewFallbackMinter wraps primary with a local UUID fallback
func NewFallbackMinter(primary IdentifierMinter, logger ectologger.Logger) *FallbackMinter {
	return &FallbackMinter{primary: primary, logger: logger}
}

// Mint asks the primary minter and falls back to a local UUID when it fails
func (m *FallbackMinter) Mint(ctx context.Context) (string, error) {
	id, err := m.primary.Mint(ctx)
	if err == nil {
		return id, nil
	}
	m.logger.WithContext(ctx).WithError(err).Warn("identifier service unavailable, minting locally")
	return m.local.Mint(ctx)
}
