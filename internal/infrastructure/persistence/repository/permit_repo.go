package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
)

const permitColumns = `
	id, application_id, permit_number, business_name, owner_name, business_address,
	issue_date, expiry_date, is_active, revoked_at, reminder_sent_at`

// PermitRepository implements port.PermitRepository
type PermitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPermitRepository creates a new permit repository
func NewPermitRepository(db *sql.DB, logger *zap.Logger) port.PermitRepository {
	return &PermitRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new permit. application_id is unique, so a second permit for
// the same application fails at the store.
func (r *PermitRepository) Create(ctx context.Context, permit *entity.Permit) error {
	query := `INSERT INTO permits (` + permitColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		permit.ID,
		permit.ApplicationID,
		permit.PermitNumber,
		permit.BusinessName,
		permit.OwnerName,
		permit.BusinessAddress,
		permit.IssueDate.UTC(),
		permit.ExpiryDate.UTC(),
		permit.IsActive,
		utcPtr(permit.RevokedAt),
		utcPtr(permit.ReminderSentAt),
	)
	if err != nil {
		r.logger.Error("Failed to create permit",
			zap.String("application_id", permit.ApplicationID),
			zap.String("permit_number", permit.PermitNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create permit: %w", err)
	}

	return nil
}

// GetByID retrieves a permit by ID
func (r *PermitRepository) GetByID(ctx context.Context, id string) (*entity.Permit, error) {
	return r.getOne(ctx, "id", id)
}

// GetByApplicationID retrieves the permit issued for an application
func (r *PermitRepository) GetByApplicationID(ctx context.Context, applicationID string) (*entity.Permit, error) {
	return r.getOne(ctx, "application_id", applicationID)
}

// GetByNumber retrieves a permit by its permit number
func (r *PermitRepository) GetByNumber(ctx context.Context, permitNumber string) (*entity.Permit, error) {
	return r.getOne(ctx, "permit_number", permitNumber)
}

// Update writes the mutable permit fields
func (r *PermitRepository) Update(ctx context.Context, permit *entity.Permit) error {
	query := `UPDATE permits SET is_active = ?, revoked_at = ?, reminder_sent_at = ? WHERE id = ?`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		permit.IsActive,
		utcPtr(permit.RevokedAt),
		utcPtr(permit.ReminderSentAt),
		permit.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update permit", zap.String("id", permit.ID), zap.Error(err))
		return fmt.Errorf("failed to update permit: %w", err)
	}

	return nil
}

// MarkReminded is a conditional update so a concurrent revocation or reminder wins
func (r *PermitRepository) MarkReminded(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE permits SET reminder_sent_at = ?
		WHERE id = ? AND is_active = 1 AND reminder_sent_at IS NULL`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark permit reminded", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark permit reminded: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// ListExpiringBetween returns active, not yet reminded permits expiring in [from, to)
func (r *PermitRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*entity.Permit, error) {
	query := `SELECT ` + permitColumns + `
		FROM permits
		WHERE is_active = 1 AND reminder_sent_at IS NULL
			AND expiry_date >= ? AND expiry_date < ?
		ORDER BY expiry_date ASC`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		r.logger.Error("Failed to list expiring permits", zap.Error(err))
		return nil, fmt.Errorf("failed to list expiring permits: %w", err)
	}
	defer rows.Close()

	var permits []*entity.Permit
	for rows.Next() {
		permit, err := scanPermit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permit: %w", err)
		}
		permits = append(permits, permit)
	}

	return permits, rows.Err()
}

// column is always one of the constants above, never caller input
func (r *PermitRepository) getOne(ctx context.Context, column, value string) (*entity.Permit, error) {
	query := `SELECT ` + permitColumns + ` FROM permits WHERE ` + column + ` = ?`

	permit, err := scanPermit(r.getExecutor(ctx).QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get permit", zap.String(column, value), zap.Error(err))
		return nil, fmt.Errorf("failed to get permit: %w", err)
	}

	return permit, nil
}

func (r *PermitRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

func scanPermit(row scanner) (*entity.Permit, error) {
	var permit entity.Permit
	var revokedAt, reminderSentAt sql.NullTime

	err := row.Scan(
		&permit.ID,
		&permit.ApplicationID,
		&permit.PermitNumber,
		&permit.BusinessName,
		&permit.OwnerName,
		&permit.BusinessAddress,
		&permit.IssueDate,
		&permit.ExpiryDate,
		&permit.IsActive,
		&revokedAt,
		&reminderSentAt,
	)
	if err != nil {
		return nil, err
	}

	permit.RevokedAt = timePtr(revokedAt)
	permit.ReminderSentAt = timePtr(reminderSentAt)

	return &permit, nil
}

var _ port.PermitRepository = (*PermitRepository)(nil)
