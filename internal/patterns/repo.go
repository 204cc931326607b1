package patterns

import (
	"context"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// Store abstracts persistence for mined patterns.
type Store interface {
	StorePatterns(ctx context.Context, runID string, patterns []models.Pattern) error
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, runID string, patterns []models.Pattern) error

// StorePatterns implements Store.
func (f StoreFunc) StorePatterns(ctx context.Context, runID string, patterns []models.Pattern) error {
	return f(ctx, runID, patterns)
}
