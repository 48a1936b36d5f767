package service

import (
	"context"
	"fmt"
	"io"
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
	"github.com/nasmusic-ai/permit-pro/pkg/utils"
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

type fakeLedgerWriter struct {
	from, to time.Time
	payments []*entity.Payment
	err      error
}

func (f *fakeLedgerWriter) WriteLedger(w io.Writer, from, to time.Time, payments []*entity.Payment) error {
	f.from, f.to, f.payments = from, to, payments
	if f.err != nil {
		return f.err
	}
	_, err := fmt.Fprintf(w, "%d payments", len(payments))
	return err
}

type fixture struct {
	t             *testing.T
	apps          port.ApplicationRepository
	payments      port.PaymentRepository
	permits       port.PermitRepository
	notifications port.NotificationRepository
	sink          *captureSink
	writer        *fakeLedgerWriter
	now           time.Time

	applications ApplicationService
	paymentSvc   PaymentService
	permitSvc    PermitService
	inbox        NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	raw, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "service.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	require.NoError(t, database.NewMigrator(raw, zap.NewNop()).RunMigrationsFS(migrations.FS))

	logger := zap.NewNop()
	kv := utils.NewKVLogger(logger)
	db := sqlite.NewDB(raw.DB, logger)

	f := &fixture{
		t:             t,
		apps:          repository.NewApplicationRepository(raw.DB, logger),
		payments:      repository.NewPaymentRepository(raw.DB, logger),
		permits:       repository.NewPermitRepository(raw.DB, logger),
		notifications: repository.NewNotificationRepository(raw.DB, logger),
		sink:          &captureSink{},
		writer:        &fakeLedgerWriter{},
		now:           time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC),
	}
	history := repository.NewHistoryRepository(raw.DB, logger)
	sequences := repository.NewSequenceRepository(raw.DB, logger)
	locker := lock.NewMemoryLocker()
	ledger := payment.NewLedger(f.payments, payment.DefaultFeeSchedule())
	clock := func() time.Time { return f.now }

	engine := workflow.NewEngine(workflow.Dependencies{
		Applications: f.apps,
		History:      history,
		TxManager:    db,
		Locker:       locker,
		Notifier:     f.sink,
		Ledger:       ledger,
		Issuer:       permit.NewIssuer(f.permits, sequences),
	}, workflow.WithClock(clock), workflow.WithLogger(kv))

	apps := NewApplicationService(f.apps, history, f.payments, sequences, db, locker, engine, nil, kv).(*applicationServiceImpl)
	apps.now = clock
	pays := NewPaymentService(f.apps, f.payments, ledger, db, locker, engine, f.writer, nil, kv).(*paymentServiceImpl)
	pays.now = clock
	permits := NewPermitService(f.apps, f.permits, db, locker, f.sink, engine, nil, kv).(*permitServiceImpl)
	permits.now = clock

	f.applications = apps
	f.paymentSvc = pays
	f.permitSvc = permits
	f.inbox = NewNotificationService(f.notifications, kv)
	return f
}

func completeInfo() (entity.BusinessInfo, entity.OwnerInfo) {
	return entity.BusinessInfo{
			BusinessName:    "Kapihan ni Aling Rosa",
			BusinessType:    "food",
			BusinessAddress: "45 Mabini Ave",
			Barangay:        "Poblacion",
			City:            "Quezon City",
			Province:        "Metro Manila",
			ZipCode:         "1100",
			BusinessPhone:   "0281234567",
			BusinessEmail:   "kapihan@example.com",
		}, entity.OwnerInfo{
			FirstName:   "Rosa",
			LastName:    "Santos",
			DateOfBirth: "1975-06-12",
			Gender:      "female",
			Nationality: "Filipino",
			CivilStatus: "widowed",
			HomeAddress: "45 Mabini Ave",
			Barangay:    "Poblacion",
			City:        "Quezon City",
			Province:    "Metro Manila",
			ZipCode:     "1100",
			Phone:       "09181234567",
			Email:       "rosa@example.com",
			IDType:      "drivers_license",
			IDNumber:    "N01-23-456789",
		}
}

// draft creates a complete draft owned by the applicant actor
func (f *fixture) draft() *entity.Application {
	f.t.Helper()
	business, owner := completeInfo()
	app, err := f.applications.Create(context.Background(), applicant, business, owner)
	require.NoError(f.t, err)
	return app
}

// advance drives an application through the given actions
func (f *fixture) advance(appID string, steps ...step) {
	f.t.Helper()
	for _, s := range steps {
		_, err := f.applications.Transition(context.Background(), workflow.Command{
			ApplicationID: appID, Action: s.action, Actor: s.actor,
		})
		require.NoError(f.t, err, "step %s", s.action)
	}
}

// pendingPayment returns an application waiting for its fee
func (f *fixture) pendingPayment() *entity.Application {
	app := f.draft()
	f.advance(app.ID,
		step{domainwf.ActionSubmit, applicant},
		step{domainwf.ActionBeginReview, staff},
		step{domainwf.ActionRequestPayment, staff},
	)
	return app
}

type step struct {
	action domainwf.Action
	actor  workflow.Actor
}

var (
	applicant = workflow.Actor{ID: "applicant-1", Role: domainwf.RoleApplicant}
	other     = workflow.Actor{ID: "applicant-2", Role: domainwf.RoleApplicant}
	staff     = workflow.Actor{ID: "staff-1", Role: domainwf.RoleStaff}
	treasurer = workflow.Actor{ID: "treasurer-1", Role: domainwf.RoleTreasurer}
	admin     = workflow.Actor{ID: "admin-1", Role: domainwf.RoleAdmin}
	gateway   = workflow.Actor{ID: "gateway", Role: domainwf.RoleSystem}
)
