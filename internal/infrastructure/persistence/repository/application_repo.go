package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	"github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

const applicationColumns = `
	id, reference_number, applicant_id, status, business_info, owner_info,
	fee_exempt, notes, permit_id, submitted_at, reviewed_at, reviewed_by,
	approved_at, approved_by, created_at, updated_at`

// ApplicationRepository implements port.ApplicationRepository
type ApplicationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *sql.DB, logger *zap.Logger) port.ApplicationRepository {
	return &ApplicationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new application
func (r *ApplicationRepository) Create(ctx context.Context, app *entity.Application) error {
	businessInfo, ownerInfo, err := marshalInfo(app)
	if err != nil {
		return err
	}

	query := `INSERT INTO applications (` + applicationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		app.ID,
		app.ReferenceNumber,
		app.ApplicantID,
		string(app.Status),
		businessInfo,
		ownerInfo,
		app.FeeExempt,
		app.Notes,
		app.PermitID,
		utcPtr(app.SubmittedAt),
		utcPtr(app.ReviewedAt),
		app.ReviewedBy,
		utcPtr(app.ApprovedAt),
		app.ApprovedBy,
		app.CreatedAt.UTC(),
		app.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create application", zap.String("id", app.ID), zap.Error(err))
		return fmt.Errorf("failed to create application: %w", err)
	}

	return nil
}

// GetByID retrieves an application by ID
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*entity.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = ?`

	app, err := scanApplication(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get application by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	return app, nil
}

// UpdateIfStatus writes the application only if its stored status is still expected
func (r *ApplicationRepository) UpdateIfStatus(ctx context.Context, app *entity.Application, expected workflow.State) (bool, error) {
	businessInfo, ownerInfo, err := marshalInfo(app)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE applications SET
			status = ?, business_info = ?, owner_info = ?, fee_exempt = ?, notes = ?,
			permit_id = ?, submitted_at = ?, reviewed_at = ?, reviewed_by = ?,
			approved_at = ?, approved_by = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		string(app.Status),
		businessInfo,
		ownerInfo,
		app.FeeExempt,
		app.Notes,
		app.PermitID,
		utcPtr(app.SubmittedAt),
		utcPtr(app.ReviewedAt),
		app.ReviewedBy,
		utcPtr(app.ApprovedAt),
		app.ApprovedBy,
		app.UpdatedAt.UTC(),
		app.ID,
		string(expected),
	)
	if err != nil {
		r.logger.Error("Failed to update application",
			zap.String("id", app.ID),
			zap.String("expected_status", string(expected)),
			zap.Error(err))
		return false, fmt.Errorf("failed to update application: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// ListByApplicant returns the applicant's applications, newest first
func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID string, limit, offset int) ([]*entity.Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications
		WHERE applicant_id = ?
		ORDER BY created_at DESC, reference_number DESC
		LIMIT ? OFFSET ?`

	return r.list(ctx, query, applicantID, limit, offset)
}

// ListByStatus returns applications in any of the statuses, oldest first. No statuses means all.
func (r *ApplicationRepository) ListByStatus(ctx context.Context, statuses []workflow.State, limit, offset int) ([]*entity.Application, error) {
	args := make([]interface{}, 0, len(statuses)+2)
	where := ""
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = "WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	args = append(args, limit, offset)

	query := `SELECT ` + applicationColumns + `
		FROM applications ` + where + `
		ORDER BY created_at ASC, reference_number ASC
		LIMIT ? OFFSET ?`

	return r.list(ctx, query, args...)
}

// CountByStatus returns the number of applications per status
func (r *ApplicationRepository) CountByStatus(ctx context.Context) (map[workflow.State]int, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, `SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		r.logger.Error("Failed to count applications", zap.Error(err))
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	defer rows.Close()

	counts := make(map[workflow.State]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[workflow.State(status)] = n
	}

	return counts, rows.Err()
}

func (r *ApplicationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Application, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list applications", zap.Error(err))
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*entity.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}

	return apps, rows.Err()
}

func (r *ApplicationRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

func scanApplication(row scanner) (*entity.Application, error) {
	var app entity.Application
	var status, businessInfo, ownerInfo string
	var submittedAt, reviewedAt, approvedAt sql.NullTime

	err := row.Scan(
		&app.ID,
		&app.ReferenceNumber,
		&app.ApplicantID,
		&status,
		&businessInfo,
		&ownerInfo,
		&app.FeeExempt,
		&app.Notes,
		&app.PermitID,
		&submittedAt,
		&reviewedAt,
		&app.ReviewedBy,
		&approvedAt,
		&app.ApprovedBy,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(businessInfo), &app.BusinessInfo); err != nil {
		return nil, fmt.Errorf("failed to decode business info: %w", err)
	}
	if err := json.Unmarshal([]byte(ownerInfo), &app.OwnerInfo); err != nil {
		return nil, fmt.Errorf("failed to decode owner info: %w", err)
	}

	app.Status = workflow.State(status)
	app.SubmittedAt = timePtr(submittedAt)
	app.ReviewedAt = timePtr(reviewedAt)
	app.ApprovedAt = timePtr(approvedAt)

	return &app, nil
}

func marshalInfo(app *entity.Application) (string, string, error) {
	businessInfo, err := json.Marshal(app.BusinessInfo)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode business info: %w", err)
	}
	ownerInfo, err := json.Marshal(app.OwnerInfo)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode owner info: %w", err)
	}
	return string(businessInfo), string(ownerInfo), nil
}

var _ port.ApplicationRepository = (*ApplicationRepository)(nil)
