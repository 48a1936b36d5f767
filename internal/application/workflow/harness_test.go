package workflow_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/payment"
	"github.com/nasmusic-ai/permit-pro/internal/application/permit"
	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/lock"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/persistence/repository"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/persistence/sqlite"
	"github.com/nasmusic-ai/permit-pro/migrations"
	"github.com/nasmusic-ai/permit-pro/pkg/database"
)

type captureSink struct {
	mu   sync.Mutex
	sent []*entity.Notification
}

func (c *captureSink) Enqueue(ctx context.Context, n *entity.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureSink) All() []*entity.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*entity.Notification(nil), c.sent...)
}

type harness struct {
	t        *testing.T
	db       *sqlite.DB
	apps     port.ApplicationRepository
	payments port.PaymentRepository
	permits  port.PermitRepository
	history  port.HistoryRepository
	ledger   *payment.Ledger
	sink     *captureSink
	engine   workflow.Engine
	now      time.Time
	seq      int
}

func newHarness(t *testing.T, opts ...workflow.EngineOption) *harness {
	t.Helper()

	raw, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "engine.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	require.NoError(t, database.NewMigrator(raw, zap.NewNop()).RunMigrationsFS(migrations.FS))

	logger := zap.NewNop()
	h := &harness{
		t:        t,
		db:       sqlite.NewDB(raw.DB, logger),
		apps:     repository.NewApplicationRepository(raw.DB, logger),
		payments: repository.NewPaymentRepository(raw.DB, logger),
		permits:  repository.NewPermitRepository(raw.DB, logger),
		history:  repository.NewHistoryRepository(raw.DB, logger),
		sink:     &captureSink{},
		now:      time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	}
	h.ledger = payment.NewLedger(h.payments, payment.DefaultFeeSchedule())
	h.engine = h.newEngine(lock.NewMemoryLocker(), opts...)

	return h
}

func (h *harness) newEngine(locker port.Locker, opts ...workflow.EngineOption) workflow.Engine {
	deps := workflow.Dependencies{
		Applications: h.apps,
		History:      h.history,
		TxManager:    h.db,
		Locker:       locker,
		Notifier:     h.sink,
		Ledger:       h.ledger,
		Issuer:       permit.NewIssuer(h.permits, repository.NewSequenceRepository(h.db.DB, zap.NewNop())),
	}
	all := append([]workflow.EngineOption{workflow.WithClock(func() time.Time { return h.now })}, opts...)
	return workflow.NewEngine(deps, all...)
}

func completeInfo() (entity.BusinessInfo, entity.OwnerInfo) {
	return entity.BusinessInfo{
			BusinessName:    "Sari-Sari Store",
			BusinessType:    "retail",
			BusinessAddress: "123 Rizal St",
			Barangay:        "San Antonio",
			City:            "Makati",
			Province:        "Metro Manila",
			ZipCode:         "1200",
			BusinessPhone:   "09171234567",
			BusinessEmail:   "store@example.com",
		}, entity.OwnerInfo{
			FirstName:   "Juan",
			LastName:    "Dela Cruz",
			DateOfBirth: "1980-01-01",
			Gender:      "male",
			Nationality: "Filipino",
			CivilStatus: "married",
			HomeAddress: "9 Luna St",
			Barangay:    "San Antonio",
			City:        "Makati",
			Province:    "Metro Manila",
			ZipCode:     "1200",
			Phone:       "09171234567",
			Email:       "juan@example.com",
			IDType:      "passport",
			IDNumber:    "P1234567",
		}
}

// seed stores an application directly in the given status
func (h *harness) seed(status domainwf.State, mutate ...func(*entity.Application)) *entity.Application {
	h.t.Helper()
	h.seq++

	business, owner := completeInfo()
	app := &entity.Application{
		ID:              fmt.Sprintf("app-%d", h.seq),
		ReferenceNumber: fmt.Sprintf("BP-2026-%04d", h.seq),
		ApplicantID:     "applicant-1",
		Status:          status,
		BusinessInfo:    business,
		OwnerInfo:       owner,
		CreatedAt:       h.now,
		UpdatedAt:       h.now,
	}
	for _, m := range mutate {
		m(app)
	}

	require.NoError(h.t, h.apps.Create(context.Background(), app))
	return app
}

func (h *harness) reload(id string) *entity.Application {
	h.t.Helper()
	app, err := h.apps.GetByID(context.Background(), id)
	require.NoError(h.t, err)
	require.NotNil(h.t, app)
	return app
}

func (h *harness) run(appID string, action domainwf.Action, actor workflow.Actor, mutate ...func(*workflow.Command)) (*workflow.Outcome, error) {
	cmd := workflow.Command{ApplicationID: appID, Action: action, Actor: actor}
	for _, m := range mutate {
		m(&cmd)
	}
	return h.engine.Execute(context.Background(), cmd)
}

// confirm plays the external gateway reporting a completed payment
func (h *harness) confirm(paymentID string) {
	h.t.Helper()
	err := h.db.WithTransaction(context.Background(), func(ctx context.Context) error {
		p, err := h.ledger.Get(ctx, paymentID)
		if err != nil {
			return err
		}
		_, err = h.ledger.Confirm(ctx, p, entity.PaymentStatusCompleted, "GW-1", h.now)
		return err
	})
	require.NoError(h.t, err)
}

var (
	owner     = workflow.Actor{ID: "applicant-1", Role: domainwf.RoleApplicant}
	stranger  = workflow.Actor{ID: "applicant-2", Role: domainwf.RoleApplicant}
	staff     = workflow.Actor{ID: "staff-1", Role: domainwf.RoleStaff}
	treasurer = workflow.Actor{ID: "treasurer-1", Role: domainwf.RoleTreasurer}
	system    = workflow.Actor{ID: "scheduler", Role: domainwf.RoleSystem}
)
