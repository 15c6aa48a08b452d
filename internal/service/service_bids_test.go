package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
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

func TestSubmitBid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	alice := env.citizen(t)
	tender := env.tender(t, &admin)

	_, err := env.svc.SubmitBid(ctx, &alice, tender.Id, service.NewBid{Amount: 0, Description: "cheap"})
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = env.svc.SubmitBid(ctx, &alice, "6f1d3c1e-0000-4000-8000-000000000000", service.NewBid{Amount: 10, Description: "x"})
	require.ErrorIs(t, err, models.ErrNoTender)

	bid, err := env.svc.SubmitBid(ctx, &alice, tender.Id, service.NewBid{
		Amount:           1200,
		Description:      "We repair bridges",
		ProposedTimeline: "3 months",
		Documents:        []storage.File{{Name: "offer.pdf", Data: []byte("%PDF offer")}},
	})
	require.NoError(t, err)
	require.Equal(t, models.BidSubmitted, bid.Status)
	require.Equal(t, alice.Id, bid.BidderId)
	require.Equal(t, tender.Id, bid.TenderId)
	require.NotEmpty(t, bid.LedgerId)
	require.NotEmpty(t, bid.DocumentHash)
	require.Contains(t, env.notifier.Types(), notify.EventNewBid)

	mine, err := env.svc.CitizenBids(ctx, &alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, tender.Title, mine[0].TenderTitle)
}

func TestSubmitBidAmountOutOfRange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	alice := env.citizen(t)
	tender := env.tender(t, &admin)
	recorded := len(env.ledger.Events())

	for _, amount := range []float64{0.004, 12.345, 2e18, math.Inf(1), math.NaN()} {
		_, err := env.svc.SubmitBid(ctx, &alice, tender.Id, service.NewBid{
			Amount:      amount,
			Description: "offer",
			Documents:   []storage.File{{Name: "offer.pdf", Data: []byte("%PDF offer")}},
		})
		require.ErrorIs(t, err, models.ErrValidation, "amount %v", amount)
	}
	require.Len(t, env.ledger.Events(), recorded)
	require.Zero(t, env.storage.Pins())

	bid := env.bid(t, &alice, tender, 1234.56)
	require.Equal(t, 1234.56, bid.Amount)
}

func TestSubmitBidClosedTender(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	alice := env.citizen(t)
	tender := env.tender(t, &admin)

	_, err := env.svc.UpdateTenderStatus(ctx, &admin, tender.Id, models.TenderUnderReview)
	require.NoError(t, err)
	pinsBefore := env.storage.Pins()

	_, err = env.svc.SubmitBid(ctx, &alice, tender.Id, service.NewBid{
		Amount:      10,
		Description: "late",
		Documents:   []storage.File{{Name: "offer.pdf", Data: []byte("%PDF")}},
	})
	require.ErrorIs(t, err, models.ErrTenderNotOpen)
	require.Zero(t, env.store.BidCount())
	require.Equal(t, pinsBefore, env.storage.Pins(), "no documents are pinned for a closed tender")
}

func TestSubmitBidAfterDeadline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	alice := env.citizen(t)
	tender := env.tender(t, &admin)

	later := service.NewService(env.store, env.tokens,
		service.WithLedger(env.ledger, time.Second),
		service.WithNotifier(env.notifier),
		service.WithClock(func() time.Time { return tender.Deadline.Add(time.Minute) }),
	)

	_, err := later.SubmitBid(ctx, &alice, tender.Id, service.NewBid{Amount: 10, Description: "late"})
	require.ErrorIs(t, err, models.ErrTenderNotOpen)
	require.Zero(t, env.store.BidCount())
}

func TestSubmitBidLedgerFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	alice := env.citizen(t)
	tender := env.tender(t, &admin)

	env.ledger.Fail(testutils.ErrLedgerDown)
	_, err := env.svc.SubmitBid(ctx, &alice, tender.Id, service.NewBid{Amount: 10, Description: "x"})
	require.ErrorIs(t, err, models.ErrLedger)
	require.Zero(t, env.store.BidCount())
}

func TestTenderBidsAccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	owner := env.owner(t)
	alice := env.citizen(t)
	tender := env.tender(t, &admin)
	env.bid(t, &alice, tender, 500)

	_, err := env.svc.TenderBids(ctx, &alice, tender.Id)
	require.ErrorIs(t, err, models.ErrForbidden)

	bids, err := env.svc.TenderBids(ctx, &owner, tender.Id)
	require.NoError(t, err)
	require.Len(t, bids, 1)

	_, err = env.svc.TenderBids(ctx, &admin, "6f1d3c1e-0000-4000-8000-000000000000")
	require.ErrorIs(t, err, models.ErrNoTender)
}

func TestUpdateBidStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	other := env.admin(t)
	alice := env.citizen(t)
	tender := env.tender(t, &admin)
	bid := env.bid(t, &alice, tender, 500)

	_, err := env.svc.UpdateBidStatus(ctx, &other, bid.Id, models.BidUnderReview)
	require.ErrorIs(t, err, models.ErrForbidden)

	_, err = env.svc.UpdateBidStatus(ctx, &admin, bid.Id, models.BidSubmitted)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.svc.UpdateBidStatus(ctx, &admin, bid.Id, "WON")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = env.svc.UpdateBidStatus(ctx, &admin, "6f1d3c1e-0000-4000-8000-000000000000", models.BidRejected)
	require.ErrorIs(t, err, models.ErrNoBid)

	reviewed, err := env.svc.UpdateBidStatus(ctx, &admin, bid.Id, models.BidUnderReview)
	require.NoError(t, err)
	require.Equal(t, models.BidUnderReview, reviewed.Status)

	rejected, err := env.svc.UpdateBidStatus(ctx, &admin, bid.Id, models.BidRejected)
	require.NoError(t, err)
	require.Equal(t, models.BidRejected, rejected.Status)

	_, err = env.svc.UpdateBidStatus(ctx, &admin, bid.Id, models.BidAccepted)
	require.ErrorIs(t, err, models.ErrBidFinalized)

	require.Contains(t, env.notifier.Types(), notify.BidEvent("REJECTED"))
}

func TestAcceptBid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	tender := env.tender(t, &admin)

	var bids []models.Bid
	for i := 0; i < 3; i++ {
		c := env.citizen(t)
		bids = append(bids, env.bid(t, &c, tender, float64(1000+i)))
	}

	accepted, err := env.svc.UpdateBidStatus(ctx, &admin, bids[1].Id, models.BidAccepted)
	require.NoError(t, err)
	require.Equal(t, models.BidAccepted, accepted.Status)

	details, err := env.svc.GetTender(ctx, &admin, tender.Id)
	require.NoError(t, err)
	require.Equal(t, models.TenderAwarded, details.Tender.Status)
	require.NotNil(t, details.Tender.SelectedBidId)
	require.Equal(t, bids[1].Id, *details.Tender.SelectedBidId)
	for _, b := range details.Bids {
		if b.Id == bids[1].Id {
			require.Equal(t, models.BidAccepted, b.Status)
		} else {
			require.Equal(t, models.BidRejected, b.Status)
		}
	}
	require.Equal(t, models.TenderAwarded, details.Ledger.Status)
	require.Contains(t, env.ledger.Kinds(), ledger.BidAccepted)
	require.Contains(t, env.notifier.Types(), notify.TenderEvent("AWARDED"))
}

func TestAcceptBidLedgerFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	alice := env.citizen(t)
	tender := env.tender(t, &admin)
	bid := env.bid(t, &alice, tender, 10)

	env.ledger.Fail(testutils.ErrLedgerDown)
	_, err := env.svc.UpdateBidStatus(ctx, &admin, bid.Id, models.BidAccepted)
	require.ErrorIs(t, err, models.ErrLedger)

	details, err := env.svc.GetTender(ctx, &admin, tender.Id)
	require.NoError(t, err)
	require.Equal(t, models.TenderOpen, details.Tender.Status)
	require.Nil(t, details.Tender.SelectedBidId)
	require.Equal(t, models.BidSubmitted, details.Bids[0].Status)
}

func TestConcurrentAcceptBid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.admin(t)
	tender := env.tender(t, &admin)

	var bids []models.Bid
	for i := 0; i < 5; i++ {
		c := env.citizen(t)
		bids = append(bids, env.bid(t, &c, tender, 100))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(bids))
	start := make(chan struct{})
	for i := range bids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = env.svc.UpdateBidStatus(ctx, &admin, bids[i].Id, models.BidAccepted)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, models.ErrTenderNotOpen):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, winners)

	accepted := 0
	for _, k := range env.ledger.Kinds() {
		if k == ledger.BidAccepted {
			accepted++
		}
	}
	require.Equal(t, 1, accepted, "losers must not reach the ledger")
}
