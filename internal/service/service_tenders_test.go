package service_test

import (
	"context"
	"math"
	"testing"
	"time"

	"govtender/internal/ledger"
	"govtender/internal/models"
	"govtender/internal/notify"
	"govtender/internal/service"
	"govtender/internal/storage"
	"govtender/internal/testutils"

	"github.com/stretchr/testify/require"
)

func newTenderRequest() service.NewTender {
	return service.NewTender{
		Title:       "Bridge repair",
		Description: "Repair of the north bridge",
		Budget:      250000,
		Deadline:    time.Now().Add(72 * time.Hour),
		Documents:   []storage.File{{Name: "scope.pdf", Data: []byte("%PDF-1.4 scope")}},
	}
}

func TestCreateTender(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)

	tender, err := env.svc.CreateTender(ctx, &admin, newTenderRequest())
	require.NoError(t, err)
	require.Equal(t, models.TenderOpen, tender.Status)
	require.Equal(t, admin.Id, tender.CreatedBy)
	require.NotEmpty(t, tender.LedgerId)
	require.NotEmpty(t, tender.DocumentHash)

	require.Equal(t, []ledger.EventKind{ledger.TenderCreated}, env.ledger.Kinds())
	require.Equal(t, []string{notify.EventNewTender}, env.notifier.Types())
}

func TestCreateTenderValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)

	cases := map[string]func(r *service.NewTender){
		"blank title":   func(r *service.NewTender) { r.Title = " " },
		"no budget":     func(r *service.NewTender) { r.Budget = 0 },
		"past deadline": func(r *service.NewTender) { r.Deadline = time.Now().Add(-time.Hour) },
		"no deadline":   func(r *service.NewTender) { r.Deadline = time.Time{} },
	}
	for name, modify := range cases {
		t.Run(name, func(t *testing.T) {
			req := newTenderRequest()
			modify(&req)
			_, err := env.svc.CreateTender(ctx, &admin, req)
			require.ErrorIs(t, err, models.ErrValidation)
		})
	}
	require.Zero(t, env.store.TenderCount())
	require.Empty(t, env.ledger.Events())
}

func TestCreateTenderBudgetOutOfRange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)

	for name, budget := range map[string]float64{
		"below a cent":    0.001,
		"three decimals":  10.005,
		"negative":        -50,
		"column overflow": 1e18,
		"infinite":        math.Inf(1),
		"not a number":    math.NaN(),
	} {
		t.Run(name, func(t *testing.T) {
			req := newTenderRequest()
			req.Budget = budget
			_, err := env.svc.CreateTender(ctx, &admin, req)
			require.ErrorIs(t, err, models.ErrValidation)
		})
	}
	require.Empty(t, env.ledger.Events(), "nothing may reach the ledger for an invalid budget")
	require.Zero(t, env.storage.Pins())
	require.Zero(t, env.store.TenderCount())

	req := newTenderRequest()
	req.Budget = 0.01
	_, err := env.svc.CreateTender(ctx, &admin, req)
	require.NoError(t, err)

	req.Budget = 123456789012.34
	_, err = env.svc.CreateTender(ctx, &admin, req)
	require.NoError(t, err)
}

func TestCreateTenderStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)
	env.storage.Fail(testutils.ErrStorageDown)

	_, err := env.svc.CreateTender(context.Background(), &admin, newTenderRequest())
	require.ErrorIs(t, err, models.ErrStorage)
	require.Zero(t, env.store.TenderCount())
	require.Empty(t, env.ledger.Events(), "ledger must not be called when storage fails")
}

func TestCreateTenderLedgerFailure(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)
	env.ledger.Fail(testutils.ErrLedgerDown)

	_, err := env.svc.CreateTender(context.Background(), &admin, newTenderRequest())
	require.ErrorIs(t, err, models.ErrLedger)
	require.ErrorIs(t, err, testutils.ErrLedgerDown)
	require.Zero(t, env.store.TenderCount())
	require.Empty(t, env.notifier.Types())
}

func TestLedgerTimeout(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)

	slow := testutils.NewLedger()
	slow.Delay = time.Second
	svc := service.NewService(env.store, env.tokens,
		service.WithLedger(slow, 20*time.Millisecond),
		service.WithDocumentStore(env.storage),
		service.WithNotifier(env.notifier),
	)

	start := time.Now()
	_, err := svc.CreateTender(context.Background(), &admin, newTenderRequest())
	require.ErrorIs(t, err, models.ErrLedger)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Zero(t, env.store.TenderCount())
}

func TestGetTenders(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)

	for i := 0; i < 3; i++ {
		env.tender(t, &admin)
	}

	all, err := env.svc.GetTenders(ctx, models.TenderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	page, err := env.svc.GetTenders(ctx, models.TenderFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	_, err = env.svc.GetTenders(ctx, models.TenderFilter{Status: "DRAFT"})
	require.ErrorIs(t, err, models.ErrValidation)

	lo, hi := 10.0, 5.0
	_, err = env.svc.GetTenders(ctx, models.TenderFilter{MinBudget: &lo, MaxBudget: &hi})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestGetTender(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	alice := env.citizen(t)

	tender := env.tender(t, &admin)
	env.bid(t, &alice, tender, 900)

	details, err := env.svc.GetTender(ctx, &alice, tender.Id)
	require.NoError(t, err)
	require.Equal(t, tender.Id, details.Tender.Id)
	require.Empty(t, details.Bids, "citizens do not see competing bids")
	require.Nil(t, details.Ledger)

	details, err = env.svc.GetTender(ctx, &admin, tender.Id)
	require.NoError(t, err)
	require.Len(t, details.Bids, 1)
	require.Equal(t, alice.Email, details.Bids[0].BidderEmail)
	require.NotNil(t, details.Ledger)
	require.Equal(t, models.TenderOpen, details.Ledger.Status)

	_, err = env.svc.GetTender(ctx, &admin, "6f1d3c1e-0000-4000-8000-000000000000")
	require.ErrorIs(t, err, models.ErrNoTender)
	_, err = env.svc.GetTender(ctx, &admin, "42")
	require.ErrorIs(t, err, models.ErrNoTender)
}

func TestUpdateTenderStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	other := env.admin(t)

	tender := env.tender(t, &admin)

	_, err := env.svc.UpdateTenderStatus(ctx, &other, tender.Id, models.TenderUnderReview)
	require.ErrorIs(t, err, models.ErrForbidden)

	_, err = env.svc.UpdateTenderStatus(ctx, &admin, tender.Id, models.TenderAwarded)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.svc.UpdateTenderStatus(ctx, &admin, tender.Id, models.TenderCompleted)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.svc.UpdateTenderStatus(ctx, &admin, tender.Id, "DRAFT")
	require.ErrorIs(t, err, models.ErrValidation)

	updated, err := env.svc.UpdateTenderStatus(ctx, &admin, tender.Id, models.TenderUnderReview)
	require.NoError(t, err)
	require.Equal(t, models.TenderUnderReview, updated.Status)

	// ledger failure leaves the status alone
	env.ledger.Fail(testutils.ErrLedgerDown)
	_, err = env.svc.UpdateTenderStatus(ctx, &admin, tender.Id, models.TenderCancelled)
	require.ErrorIs(t, err, models.ErrLedger)

	details, err := env.svc.GetTender(ctx, &admin, tender.Id)
	require.NoError(t, err)
	require.Equal(t, models.TenderUnderReview, details.Tender.Status)

	env.ledger.Fail(nil)
	cancelled, err := env.svc.UpdateTenderStatus(ctx, &admin, tender.Id, models.TenderCancelled)
	require.NoError(t, err)
	require.Equal(t, models.TenderCancelled, cancelled.Status)

	_, err = env.svc.UpdateTenderStatus(ctx, &admin, tender.Id, models.TenderOpen)
	require.ErrorIs(t, err, models.ErrInvalidTransition, "cancelled is terminal")

	require.Equal(t,
		[]ledger.EventKind{ledger.TenderCreated, ledger.TenderStatusChanged, ledger.TenderCancelled},
		env.ledger.Kinds())
	require.Contains(t, env.notifier.Types(), notify.TenderEvent("CANCELLED"))
}

func TestCompleteTender(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	alice := env.citizen(t)

	tender := env.tender(t, &admin)
	_, err := env.svc.CompleteTender(ctx, &admin, tender.Id)
	require.ErrorIs(t, err, models.ErrInvalidTransition, "only awarded tenders complete")

	bid := env.bid(t, &alice, tender, 100)
	_, err = env.svc.UpdateBidStatus(ctx, &admin, bid.Id, models.BidAccepted)
	require.NoError(t, err)

	completed, err := env.svc.CompleteTender(ctx, &admin, tender.Id)
	require.NoError(t, err)
	require.Equal(t, models.TenderCompleted, completed.Status)
	require.Equal(t, ledger.TenderCompleted, env.ledger.Kinds()[len(env.ledger.Kinds())-1])
}
