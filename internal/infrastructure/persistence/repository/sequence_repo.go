package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
)

// SequenceRepository implements port.SequenceAllocator on the sequences table
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence allocator
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) port.SequenceAllocator {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next increments and returns the named counter in a single statement.
// Inside a transaction the increment is rolled back with it, so gaps never appear.
func (r *SequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`

	var value int64
	if err := executorFor(ctx, r.db).QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		r.logger.Error("Failed to allocate sequence", zap.String("name", name), zap.Error(err))
		return 0, fmt.Errorf("failed to allocate sequence %s: %w", name, err)
	}

	return value, nil
}

var _ port.SequenceAllocator = (*SequenceRepository)(nil)
