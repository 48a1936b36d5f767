package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
)

type contextKey string

const txKey contextKey = "tx"

// txState travels in the context for the lifetime of the outermost transaction
type txState struct {
	tx *sql.Tx

	mu          sync.Mutex
	afterCommit []func()
}

// DB wraps sql.DB and implements TransactionManager
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction implements port.TransactionManager
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if state := extractState(ctx); state != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	state := &txState{tx: tx}
	txCtx := context.WithValue(ctx, txKey, state)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	state.mu.Lock()
	callbacks := state.afterCommit
	state.afterCommit = nil
	state.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}

	return nil
}

// AfterCommit implements port.TransactionManager
func (db *DB) AfterCommit(ctx context.Context, fn func()) {
	state := extractState(ctx)
	if state == nil {
		fn()
		return
	}

	state.mu.Lock()
	state.afterCommit = append(state.afterCommit, fn)
	state.mu.Unlock()
}

// InTransaction reports whether ctx carries an open transaction
func InTransaction(ctx context.Context) bool {
	return extractState(ctx) != nil
}

func extractState(ctx context.Context) *txState {
	if state, ok := ctx.Value(txKey).(*txState); ok {
		return state
	}
	return nil
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the context's transaction, or db when there is none
func GetExecutor(ctx context.Context, db *sql.DB) Executor {
	if state := extractState(ctx); state != nil {
		return state.tx
	}
	return db
}

var _ port.TransactionManager = (*DB)(nil)
