package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/persistence/sqlite"
)

// executor is the transaction from the context or the bare database
type executor = sqlite.Executor

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func executorFor(ctx context.Context, db *sql.DB) executor {
	return sqlite.GetExecutor(ctx, db)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// utcPtr normalizes optional timestamps so stored text compares chronologically
func utcPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
