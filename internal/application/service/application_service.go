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

// FormatReferenceNumber renders BP-<year>-<4 digit sequence>
func FormatReferenceNumber(year int, seq int64) string {
	return fmt.Sprintf("BP-%d-%04d", year, seq)
}

// ApplicationService manages permit applications
type ApplicationService interface {
	Create(ctx context.Context, actor workflow.Actor, business entity.BusinessInfo, owner entity.OwnerInfo) (*entity.Application, error)
	UpdateDraft(ctx context.Context, id string, actor workflow.Actor, business entity.BusinessInfo, owner entity.OwnerInfo) (*entity.Application, error)
	Get(ctx context.Context, id string, actor workflow.Actor) (*entity.Application, error)
	ListMine(ctx context.Context, actor workflow.Actor, limit, offset int) ([]*entity.Application, error)
	ListByStatus(ctx context.Context, actor workflow.Actor, statuses []domainwf.State, limit, offset int) ([]*entity.Application, error)
	History(ctx context.Context, id string, actor workflow.Actor) ([]*entity.StatusHistory, error)
	SetFeeExempt(ctx context.Context, id string, actor workflow.Actor, exempt bool) (*entity.Application, error)
	Transition(ctx context.Context, cmd workflow.Command) (*entity.Application, error)
	PermittedActions(ctx context.Context, id string, actor workflow.Actor) ([]domainwf.Action, error)
	Stats(ctx context.Context, actor workflow.Actor) (*entity.DashboardStats, error)
}

type applicationServiceImpl struct {
	applications port.ApplicationRepository
	history      port.HistoryRepository
	payments     port.PaymentRepository
	sequences    port.SequenceAllocator
	txManager    port.TransactionManager
	locker       port.Locker
	engine       workflow.Engine
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	now          func() time.Time
}

// NewApplicationService creates a new ApplicationService
func NewApplicationService(
	applications port.ApplicationRepository,
	history port.HistoryRepository,
	payments port.PaymentRepository,
	sequences port.SequenceAllocator,
	txManager port.TransactionManager,
	locker port.Locker,
	engine workflow.Engine,
	d dispatcher.Dispatcher,
	logger Logger,
) ApplicationService {
	return &applicationServiceImpl{
		applications: applications,
		history:      history,
		payments:     payments,
		sequences:    sequences,
		txManager:    txManager,
		locker:       locker,
		engine:       engine,
		dispatcher:   d,
		logger:       logger,
		now:          utcNow,
	}
}

// Create opens a draft application for the calling applicant
func (s *applicationServiceImpl) Create(ctx context.Context, actor workflow.Actor, business entity.BusinessInfo, owner entity.OwnerInfo) (*entity.Application, error) {
	if err := requireRole(actor, "create applications", domainwf.RoleApplicant); err != nil {
		return nil, err
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: applicant id is required", domainwf.ErrValidationFailed)
	}

	now := s.now()
	app := &entity.Application{
		ID:           uuid.NewString(),
		ApplicantID:  actor.ID,
		Status:       domainwf.StateDraft,
		BusinessInfo: business,
		OwnerInfo:    owner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		seq, err := s.sequences.Next(txCtx, entity.SequenceApplications)
		if err != nil {
			return fmt.Errorf("allocate reference number: %w", err)
		}
		app.ReferenceNumber = FormatReferenceNumber(now.Year(), seq)

		if err := s.applications.Create(txCtx, app); err != nil {
			return fmt.Errorf("create application: %w", err)
		}

		s.txManager.AfterCommit(txCtx, func() {
			s.logger.Info("Application created",
				"application_id", app.ID,
				"reference_number", app.ReferenceNumber,
				"applicant_id", app.ApplicantID,
			)
			s.publish(txCtx, event.TypeApplicationCreated, app.ID, map[string]interface{}{
				"reference_number": app.ReferenceNumber,
				"applicant_id":     app.ApplicantID,
			})
		})
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create application", "error", err, "applicant_id", actor.ID)
		return nil, wrapInternal("create application", err)
	}

	return app, nil
}

// UpdateDraft replaces business and owner info while the application is still a draft
func (s *applicationServiceImpl) UpdateDraft(ctx context.Context, id string, actor workflow.Actor, business entity.BusinessInfo, owner entity.OwnerInfo) (*entity.Application, error) {
	lockCtx, unlock, err := s.locker.Lock(ctx, workflow.LockKey(id))
	if err != nil {
		return nil, wrapInternal("acquire application lock", err)
	}
	defer unlock()

	var updated *entity.Application
	err = s.txManager.WithTransaction(lockCtx, func(txCtx context.Context) error {
		app, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if actor.Role != domainwf.RoleApplicant || !app.IsOwnedBy(actor.ID) {
			return fmt.Errorf("%w: only the owning applicant may edit application %s", domainwf.ErrForbidden, id)
		}
		if app.Status != domainwf.StateDraft {
			return fmt.Errorf("%w: application %s is %s, only drafts can be edited", domainwf.ErrInvalidTransition, id, app.Status)
		}

		next := app.Clone()
		next.BusinessInfo = business
		next.OwnerInfo = owner
		next.UpdatedAt = s.now()

		ok, err := s.applications.UpdateIfStatus(txCtx, next, domainwf.StateDraft)
		if err != nil {
			return fmt.Errorf("update application: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: application %s is no longer a draft", domainwf.ErrInvalidTransition, id)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, wrapInternal("update draft", err)
	}

	return updated, nil
}

// Get returns an application visible to the actor
func (s *applicationServiceImpl) Get(ctx context.Context, id string, actor workflow.Actor) (*entity.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, wrapInternal("get application", err)
	}
	if err := canView(app, actor); err != nil {
		return nil, err
	}
	return app, nil
}

// ListMine returns the actor's own applications, newest first
func (s *applicationServiceImpl) ListMine(ctx context.Context, actor workflow.Actor, limit, offset int) ([]*entity.Application, error) {
	limit, offset = page(limit, offset)
	apps, err := s.applications.ListByApplicant(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, wrapInternal("list applications", err)
	}
	return apps, nil
}

// ListByStatus is the office work queue. No statuses means every status.
func (s *applicationServiceImpl) ListByStatus(ctx context.Context, actor workflow.Actor, statuses []domainwf.State, limit, offset int) ([]*entity.Application, error) {
	if !isOffice(actor) {
		return nil, fmt.Errorf("%w: role %q may not browse applications", domainwf.ErrForbidden, actor.Role)
	}
	for _, st := range statuses {
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", domainwf.ErrValidationFailed, st)
		}
	}

	limit, offset = page(limit, offset)
	apps, err := s.applications.ListByStatus(ctx, statuses, limit, offset)
	if err != nil {
		return nil, wrapInternal("list applications", err)
	}
	return apps, nil
}

// History returns the application's transitions, oldest first
func (s *applicationServiceImpl) History(ctx context.Context, id string, actor workflow.Actor) ([]*entity.StatusHistory, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}

	rows, err := s.history.GetByApplicationID(ctx, id)
	if err != nil {
		return nil, wrapInternal("get history", err)
	}
	return rows, nil
}

// SetFeeExempt marks an application as not owing fees so it can be issued straight from approved
func (s *applicationServiceImpl) SetFeeExempt(ctx context.Context, id string, actor workflow.Actor, exempt bool) (*entity.Application, error) {
	if err := requireRole(actor, "change fee exemption", domainwf.RoleStaff, domainwf.RoleAdmin); err != nil {
		return nil, err
	}

	lockCtx, unlock, err := s.locker.Lock(ctx, workflow.LockKey(id))
	if err != nil {
		return nil, wrapInternal("acquire application lock", err)
	}
	defer unlock()

	var updated *entity.Application
	err = s.txManager.WithTransaction(lockCtx, func(txCtx context.Context) error {
		app, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if app.Status == domainwf.StateRejected || app.Status == domainwf.StatePermitIssued {
			return fmt.Errorf("%w: application %s is %s", domainwf.ErrInvalidTransition, id, app.Status)
		}
		if app.FeeExempt == exempt {
			updated = app
			return nil
		}

		next := app.Clone()
		next.FeeExempt = exempt
		next.UpdatedAt = s.now()

		ok, err := s.applications.UpdateIfStatus(txCtx, next, app.Status)
		if err != nil {
			return fmt.Errorf("update application: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: application %s changed concurrently", domainwf.ErrInvalidTransition, id)
		}

		s.txManager.AfterCommit(txCtx, func() {
			s.logger.Info("Fee exemption changed",
				"application_id", id,
				"fee_exempt", exempt,
				"actor_id", actor.ID,
			)
		})
		updated = next
		return nil
	})
	if err != nil {
		return nil, wrapInternal("set fee exemption", err)
	}

	return updated, nil
}

// Transition runs a workflow action
func (s *applicationServiceImpl) Transition(ctx context.Context, cmd workflow.Command) (*entity.Application, error) {
	return s.engine.ApplyTransition(ctx, cmd)
}

// PermittedActions lists what the actor may do next
func (s *applicationServiceImpl) PermittedActions(ctx context.Context, id string, actor workflow.Actor) ([]domainwf.Action, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.engine.PermittedActions(ctx, id, actor)
}

// Stats summarizes the pipeline for the office dashboard
func (s *applicationServiceImpl) Stats(ctx context.Context, actor workflow.Actor) (*entity.DashboardStats, error) {
	if !isOffice(actor) {
		return nil, fmt.Errorf("%w: role %q may not view statistics", domainwf.ErrForbidden, actor.Role)
	}

	counts, err := s.applications.CountByStatus(ctx)
	if err != nil {
		return nil, wrapInternal("count applications", err)
	}
	revenue, err := s.payments.SumCompleted(ctx)
	if err != nil {
		return nil, wrapInternal("sum payments", err)
	}

	stats := &entity.DashboardStats{
		ByStatus:     make(map[string]int, len(counts)),
		TotalRevenue: revenue.StringFixed(2),
	}
	for status, n := range counts {
		stats.ByStatus[status.String()] = n
		stats.TotalApplications += n
	}
	stats.PendingReview = counts[domainwf.StateSubmitted] + counts[domainwf.StateUnderReview]
	stats.PendingPayment = counts[domainwf.StatePendingPayment]
	stats.Approved = counts[domainwf.StateApproved] + counts[domainwf.StatePaymentVerified]
	stats.Rejected = counts[domainwf.StateRejected]
	stats.PermitsIssued = counts[domainwf.StatePermitIssued]

	return stats, nil
}

func (s *applicationServiceImpl) load(ctx context.Context, id string) (*entity.Application, error) {
	app, err := s.applications.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: application %s", domainwf.ErrNotFound, id)
	}
	return app, nil
}

func (s *applicationServiceImpl) publish(ctx context.Context, t event.Type, applicationID string, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(background(ctx), event.NewEvent(t, applicationID, payload))
}

// canView lets applicants see only their own applications
func canView(app *entity.Application, actor workflow.Actor) error {
	if isOffice(actor) || app.IsOwnedBy(actor.ID) {
		return nil
	}
	return fmt.Errorf("%w: application %s belongs to another applicant", domainwf.ErrForbidden, app.ID)
}
