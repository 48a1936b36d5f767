package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nasmusic-ai/permit-pro/internal/application/dispatcher"
	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	"github.com/nasmusic-ai/permit-pro/internal/domain/event"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

// PermitService issues and looks up business permits
type PermitService interface {
	IssuePermit(ctx context.Context, applicationID string, actor workflow.Actor) (*entity.Permit, error)
	GetByApplication(ctx context.Context, applicationID string, actor workflow.Actor) (*entity.Permit, error)
	GetByNumber(ctx context.Context, permitNumber string) (*entity.Permit, error)
	Revoke(ctx context.Context, permitID string, actor workflow.Actor, reason string) (*entity.Permit, error)
}

type permitServiceImpl struct {
	applications port.ApplicationRepository
	permits      port.PermitRepository
	txManager    port.TransactionManager
	locker       port.Locker
	notifier     port.NotificationSink
	engine       workflow.Engine
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	now          func() time.Time
}

// NewPermitService creates a new PermitService
func NewPermitService(
	applications port.ApplicationRepository,
	permits port.PermitRepository,
	txManager port.TransactionManager,
	locker port.Locker,
	notifier port.NotificationSink,
	engine workflow.Engine,
	d dispatcher.Dispatcher,
	logger Logger,
) PermitService {
	return &permitServiceImpl{
		applications: applications,
		permits:      permits,
		txManager:    txManager,
		locker:       locker,
		notifier:     notifier,
		engine:       engine,
		dispatcher:   d,
		logger:       logger,
		now:          utcNow,
	}
}

// IssuePermit issues the application's permit. An application that already
// has one gets it back unchanged.
func (s *permitServiceImpl) IssuePermit(ctx context.Context, applicationID string, actor workflow.Actor) (*entity.Permit, error) {
	if err := s.engine.Table().Authorize(domainwf.ActionIssuePermit, actor.Role); err != nil {
		return nil, err
	}

	lockCtx, unlock, err := s.locker.Lock(ctx, workflow.LockKey(applicationID))
	if err != nil {
		return nil, wrapInternal("acquire application lock", err)
	}
	defer unlock()

	app, err := s.applications.GetByID(lockCtx, applicationID)
	if err != nil {
		return nil, wrapInternal("get application", err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: application %s", domainwf.ErrNotFound, applicationID)
	}

	if app.PermitID != "" {
		existing, err := s.permits.GetByID(lockCtx, app.PermitID)
		if err != nil {
			return nil, wrapInternal("get permit", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	out, err := s.engine.Execute(lockCtx, workflow.Command{
		ApplicationID: applicationID,
		Action:        domainwf.ActionIssuePermit,
		Actor:         actor,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Permit issued",
		"application_id", applicationID,
		"permit_id", out.Permit.ID,
		"permit_number", out.Permit.PermitNumber,
		"expiry_date", out.Permit.ExpiryDate.Format("2006-01-02"),
	)
	return out.Permit, nil
}

// GetByApplication returns the permit issued for an application
func (s *permitServiceImpl) GetByApplication(ctx context.Context, applicationID string, actor workflow.Actor) (*entity.Permit, error) {
	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, wrapInternal("get application", err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: application %s", domainwf.ErrNotFound, applicationID)
	}
	if err := canView(app, actor); err != nil {
		return nil, err
	}

	p, err := s.permits.GetByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, wrapInternal("get permit", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no permit for application %s", domainwf.ErrNotFound, applicationID)
	}
	return p, nil
}

// GetByNumber looks up a permit by the number printed on it
func (s *permitServiceImpl) GetByNumber(ctx context.Context, permitNumber string) (*entity.Permit, error) {
	p, err := s.permits.GetByNumber(ctx, permitNumber)
	if err != nil {
		return nil, wrapInternal("get permit", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: permit %s", domainwf.ErrNotFound, permitNumber)
	}
	return p, nil
}

// Revoke deactivates a permit. Revoking an inactive permit is a no-op.
func (s *permitServiceImpl) Revoke(ctx context.Context, permitID string, actor workflow.Actor, reason string) (*entity.Permit, error) {
	if err := requireRole(actor, "revoke permits", domainwf.RoleStaff, domainwf.RoleAdmin); err != nil {
		return nil, err
	}

	p, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return nil, wrapInternal("get permit", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: permit %s", domainwf.ErrNotFound, permitID)
	}

	lockCtx, unlock, err := s.locker.Lock(ctx, workflow.LockKey(p.ApplicationID))
	if err != nil {
		return nil, wrapInternal("acquire application lock", err)
	}
	defer unlock()

	err = s.txManager.WithTransaction(lockCtx, func(txCtx context.Context) error {
		current, err := s.permits.GetByID(txCtx, permitID)
		if err != nil {
			return fmt.Errorf("get permit: %w", err)
		}
		if current == nil {
			return fmt.Errorf("%w: permit %s", domainwf.ErrNotFound, permitID)
		}
		p = current
		if !p.IsActive {
			return nil
		}

		now := s.now()
		p.IsActive = false
		p.RevokedAt = &now
		if err := s.permits.Update(txCtx, p); err != nil {
			return fmt.Errorf("update permit: %w", err)
		}

		app, err := s.applications.GetByID(txCtx, p.ApplicationID)
		if err != nil {
			return fmt.Errorf("get application: %w", err)
		}

		s.txManager.AfterCommit(txCtx, func() {
			s.logger.Info("Permit revoked",
				"permit_id", p.ID,
				"permit_number", p.PermitNumber,
				"actor_id", actor.ID,
			)
			if app != nil && s.notifier != nil {
				s.notifier.Enqueue(background(txCtx), revokedNotice(app, p, reason, now))
			}
			if s.dispatcher != nil {
				s.dispatcher.DispatchAsync(background(txCtx), event.NewEvent(event.TypePermitRevoked, p.ApplicationID, map[string]interface{}{
					"permit_id":     p.ID,
					"permit_number": p.PermitNumber,
					"actor_id":      actor.ID,
				}))
			}
		})
		return nil
	})
	if err != nil {
		return nil, wrapInternal("revoke permit", err)
	}

	return p, nil
}

func revokedNotice(app *entity.Application, p *entity.Permit, reason string, now time.Time) *entity.Notification {
	msg := fmt.Sprintf("Business permit %s for %s has been revoked.", p.PermitNumber, p.BusinessName)
	if reason != "" {
		msg += " Reason: " + reason
	}
	return &entity.Notification{
		ID:          uuid.NewString(),
		UserID:      app.ApplicantID,
		Title:       "Permit Revoked",
		Message:     msg,
		Severity:    entity.SeverityError,
		RelatedKind: entity.RelatedPermit,
		RelatedID:   p.ID,
		CreatedAt:   now,
	}
}
