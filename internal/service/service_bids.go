package service

import (
	"context"
	"fmt"
	"strings"

	"govtender/internal/ledger"
	"govtender/internal/models"
	"govtender/internal/notify"
	"govtender/internal/storage"
)

type NewBid struct {
	Amount           float64 `validate:"amount"`
	Description      string  `validate:"required,max=10000"`
	ProposedTimeline string  `validate:"max=500"`
	Documents        []storage.File
}

func (s *Service) openForBids(t models.Tender) error {
	if t.Status != models.TenderOpen {
		return fmt.Errorf("%w: tender is %s", models.ErrTenderNotOpen, t.Status)
	}
	if !t.Deadline.After(s.now()) {
		return fmt.Errorf("%w: deadline has passed", models.ErrTenderNotOpen)
	}
	return nil
}

// SubmitBid checks the tender up front so no documents are pinned for a
// closed tender, then re-checks it under lock before the ledger call.
func (s *Service) SubmitBid(ctx context.Context, citizen *models.Citizen, tenderId string, req NewBid) (models.Bid, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.ProposedTimeline = strings.TrimSpace(req.ProposedTimeline)

	if err := s.validateStruct(&req); err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.SubmitBid: %w", err)
	}

	tender, err := s.tender(ctx, tenderId)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.SubmitBid: %w", err)
	}
	if err = s.openForBids(tender); err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.SubmitBid: %w", err)
	}

	hash, err := s.pinDocuments(ctx, req.Documents)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.SubmitBid: %w", err)
	}

	bid, err := s.repo.AddBid(ctx, tender.Id, func(locked models.Tender) (models.Bid, error) {
		if err := s.openForBids(locked); err != nil {
			return models.Bid{}, err
		}

		receipt, err := s.ledger.Record(ctx, ledger.Event{
			Kind:     ledger.BidSubmitted,
			TenderId: locked.LedgerId,
			Fields: map[string]any{
				"bidder":       citizen.Id,
				"amount":       req.Amount,
				"documentHash": hash,
			},
		})
		if err != nil {
			return models.Bid{}, err
		}

		return models.Bid{
			LedgerId:         receipt.Id,
			BidderId:         citizen.Id,
			Amount:           req.Amount,
			Description:      req.Description,
			ProposedTimeline: req.ProposedTimeline,
			DocumentHash:     hash,
		}, nil
	})
	if err != nil {
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", notFound(err, models.ErrNoTender))
	}

	s.log.Info().Str("bid", bid.Id).Str("tender", tender.Id).Str("citizen", citizen.Id).Msg("bid submitted")
	s.notify(ctx, notify.EventNewBid, map[string]any{
		"bidId":    bid.Id,
		"tenderId": tender.Id,
		"amount":   bid.Amount,
	})
	return bid, nil
}

// TenderBids is for the tender side only; citizens see their own bids
// through CitizenBids.
func (s *Service) TenderBids(ctx context.Context, p models.Principal, tenderId string) ([]models.TenderBid, error) {
	if p.Role() == models.RoleCitizen {
		return nil, fmt.Errorf("service.Service.TenderBids: %w", models.ErrForbidden)
	}

	tender, err := s.tender(ctx, tenderId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.TenderBids: %w", err)
	}

	bids, err := s.repo.TenderBids(ctx, tender.Id)
	if err != nil {
		return nil, fmt.Errorf("service.Service.TenderBids: %w", err)
	}
	return bids, nil
}

func (s *Service) CitizenBids(ctx context.Context, citizen *models.Citizen) ([]models.CitizenBid, error) {
	bids, err := s.repo.CitizenBids(ctx, citizen.Id)
	if err != nil {
		return nil, fmt.Errorf("service.Service.CitizenBids: %w", err)
	}
	return bids, nil
}

// UpdateBidStatus reviews, rejects or accepts a bid. Accepting awards the
// tender and rejects every other bid on it in the same transaction.
func (s *Service) UpdateBidStatus(ctx context.Context, admin *models.Admin, bidId string, status models.BidStatus) (models.Bid, error) {
	if !models.ValidBidStatus(status) {
		return models.Bid{}, fmt.Errorf("service.Service.UpdateBidStatus: %w: unknown status %q", models.ErrValidation, status)
	}
	if status == models.BidSubmitted {
		return models.Bid{}, fmt.Errorf("service.Service.UpdateBidStatus: %w: bids cannot return to %s", models.ErrInvalidTransition, status)
	}
	if !validUUID(bidId) {
		return models.Bid{}, fmt.Errorf("service.Service.UpdateBidStatus: %w", models.ErrNoBid)
	}

	if status == models.BidAccepted {
		return s.acceptBid(ctx, admin, bidId)
	}

	bid, err := s.repo.TransitionBid(ctx, bidId, func(t models.Tender, b models.Bid) (models.BidStatus, error) {
		if err := checkBidChange(admin, t, b); err != nil {
			return "", err
		}
		if b.Status == status {
			return "", fmt.Errorf("%w: bid is already %s", models.ErrInvalidTransition, status)
		}
		if status == models.BidUnderReview && !t.Status.AcceptsBids() {
			return "", fmt.Errorf("%w: tender is %s", models.ErrTenderNotOpen, t.Status)
		}

		_, err := s.ledger.Record(ctx, ledger.Event{
			Kind:     ledger.BidStatusChanged,
			TenderId: t.LedgerId,
			BidId:    b.LedgerId,
			Status:   string(status),
		})
		if err != nil {
			return "", err
		}
		return status, nil
	})
	if err != nil {
		return bid, fmt.Errorf("service.Service.UpdateBidStatus: %w", notFound(err, models.ErrNoBid))
	}

	s.log.Info().Str("bid", bid.Id).Str("status", string(bid.Status)).Msg("bid status changed")
	s.notify(ctx, notify.BidEvent(string(bid.Status)), map[string]any{
		"bidId":    bid.Id,
		"tenderId": bid.TenderId,
		"bidderId": bid.BidderId,
		"status":   bid.Status,
	})
	return bid, nil
}

func checkBidChange(admin *models.Admin, t models.Tender, b models.Bid) error {
	if t.CreatedBy != admin.Id {
		return models.ErrForbidden
	}
	if b.Status.Final() {
		return fmt.Errorf("%w: bid is %s", models.ErrBidFinalized, b.Status)
	}
	return nil
}

func (s *Service) acceptBid(ctx context.Context, admin *models.Admin, bidId string) (models.Bid, error) {
	bid, tender, err := s.repo.AcceptBid(ctx, bidId, func(t models.Tender, b models.Bid) error {
		if t.CreatedBy != admin.Id {
			return models.ErrForbidden
		}
		// an awarded tender has no open bids left, report the tender
		if !t.Status.AcceptsBids() {
			return fmt.Errorf("%w: tender is %s", models.ErrTenderNotOpen, t.Status)
		}
		if err := checkBidChange(admin, t, b); err != nil {
			return err
		}

		_, err := s.ledger.Record(ctx, ledger.Event{
			Kind:     ledger.BidAccepted,
			TenderId: t.LedgerId,
			BidId:    b.LedgerId,
			Status:   string(models.TenderAwarded),
		})
		return err
	})
	if err != nil {
		return bid, fmt.Errorf("service.Service.UpdateBidStatus: %w", notFound(err, models.ErrNoBid))
	}

	s.log.Info().Str("bid", bid.Id).Str("tender", tender.Id).Msg("bid accepted, tender awarded")
	s.notify(ctx, notify.BidEvent(string(models.BidAccepted)), map[string]any{
		"bidId":    bid.Id,
		"tenderId": tender.Id,
		"bidderId": bid.BidderId,
		"status":   bid.Status,
	})
	s.notify(ctx, notify.TenderEvent(string(models.TenderAwarded)), map[string]any{
		"tenderId":      tender.Id,
		"title":         tender.Title,
		"status":        tender.Status,
		"selectedBidId": bid.Id,
	})
	return bid, nil
}
