package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"govtender/internal/models"
)

func TestBids(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	data := InsertTestInitData(t, repo)
	tender := AddTestTender(t, repo, data.admins[0], "Bridge", 1000)

	for i, c := range data.citizens {
		AddTestBid(t, repo, tender, c, float64(900-i*100))
	}

	bids, err := repo.TenderBids(ctx, tender.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != len(data.citizens) {
		t.Fatalf("Expected %d bids, got %d", len(data.citizens), len(bids))
	}
	if bids[0].Amount > bids[1].Amount {
		t.Error("Tender bids should be ordered by amount")
	}
	if bids[0].BidderEmail == "" || bids[0].BidderName == "" {
		t.Error("Tender bids should carry bidder contact")
	}

	mine, err := repo.CitizenBids(ctx, data.citizens[0].Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].TenderTitle != "Bridge" || mine[0].TenderStatus != models.TenderOpen {
		t.Errorf("Unexpected citizen bids: %+v", mine)
	}

	// prepare can refuse, nothing is inserted
	refused := errors.New("closed")
	_, err = repo.AddBid(ctx, tender.Id, func(models.Tender) (models.Bid, error) {
		return models.Bid{}, refused
	})
	if !errors.Is(err, refused) {
		t.Errorf("Expected prepare error, got %v", err)
	}
	if n := countRows(t, repo.db, "SELECT COUNT(*) FROM bids"); n != len(data.citizens) {
		t.Errorf("Refused bid must not be stored, have %d bids", n)
	}

	reviewed, err := repo.TransitionBid(ctx, bids[0].Id, func(tn models.Tender, b models.Bid) (models.BidStatus, error) {
		return models.BidUnderReview, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.Status != models.BidUnderReview {
		t.Errorf("Expected UNDER_REVIEW, got %s", reviewed.Status)
	}
}

func TestAcceptBid(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	data := InsertTestInitData(t, repo)
	tender := AddTestTender(t, repo, data.admins[0], "Bridge", 1000)

	var bids []models.Bid
	for _, c := range data.citizens {
		bids = append(bids, AddTestBid(t, repo, tender, c, 500))
	}

	// concurrent acceptance of different bids: one wins
	notOpen := errors.New("tender not open")
	var wg sync.WaitGroup
	errs := make([]error, len(bids))
	for i := range bids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = repo.AcceptBid(ctx, bids[i].Id, func(tn models.Tender, b models.Bid) error {
				if !tn.Status.AcceptsBids() {
					return notOpen
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	winner := ""
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != "" {
				t.Fatal("More than one bid was accepted")
			}
			winner = bids[i].Id
		case !errors.Is(err, notOpen):
			t.Errorf("Loser should see the awarded tender, got %v", err)
		}
	}
	if winner == "" {
		t.Fatal("No bid was accepted")
	}

	awarded, err := repo.GetTenderByUUID(ctx, tender.Id)
	if err != nil {
		t.Fatal(err)
	}
	if awarded.Status != models.TenderAwarded || awarded.SelectedBidId == nil || *awarded.SelectedBidId != winner {
		t.Errorf("Tender should be awarded to %s, got %+v", winner, awarded)
	}

	all, err := repo.TenderBids(ctx, tender.Id)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range all {
		want := models.BidRejected
		if b.Id == winner {
			want = models.BidAccepted
		}
		if b.Status != want {
			t.Errorf("Bid %s should be %s, got %s", b.Id, want, b.Status)
		}
	}
}
