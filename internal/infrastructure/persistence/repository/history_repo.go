package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.StatusHistory) error {
	query := `
		INSERT INTO status_history (
			application_id, previous_status, new_status, action,
			actor_id, actor_role, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		history.ApplicationID,
		history.PreviousStatus,
		history.NewStatus,
		history.Action,
		history.ActorID,
		history.ActorRole,
		history.Notes,
		history.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetByApplicationID retrieves all history records for an application in insertion order
func (r *HistoryRepository) GetByApplicationID(ctx context.Context, applicationID string) ([]*entity.StatusHistory, error) {
	query := `
		SELECT id, application_id, previous_status, new_status, action,
			actor_id, actor_role, notes, created_at
		FROM status_history
		WHERE application_id = ?
		ORDER BY id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, applicationID)
	if err != nil {
		r.logger.Error("Failed to get history by application ID", zap.String("application_id", applicationID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.StatusHistory
	for rows.Next() {
		var record entity.StatusHistory
		err := rows.Scan(
			&record.ID,
			&record.ApplicationID,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Action,
			&record.ActorID,
			&record.ActorRole,
			&record.Notes,
			&record.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan history record", zap.Error(err))
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

func (r *HistoryRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
