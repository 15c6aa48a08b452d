package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"govtender/internal/ledger"
	"govtender/internal/models"
	"govtender/internal/notify"
	"govtender/internal/storage"
)

const (
	defaultTendersLimit = 50
	maxTendersLimit     = 100
)

type NewTender struct {
	Title       string    `validate:"required,max=200"`
	Description string    `validate:"required,max=10000"`
	Budget      float64   `validate:"amount"`
	Deadline    time.Time `validate:"required"`
	Documents   []storage.File
}

// CreateTender pins documents, records the tender on the ledger and only
// then stores it. A failure at any step leaves nothing behind locally.
func (s *Service) CreateTender(ctx context.Context, admin *models.Admin, req NewTender) (models.Tender, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)

	if err := s.validateStruct(&req); err != nil {
		return models.Tender{}, fmt.Errorf("service.Service.CreateTender: %w", err)
	}
	if !req.Deadline.After(s.now()) {
		return models.Tender{}, fmt.Errorf("service.Service.CreateTender: %w: deadline must be in the future", models.ErrValidation)
	}

	hash, err := s.pinDocuments(ctx, req.Documents)
	if err != nil {
		return models.Tender{}, fmt.Errorf("service.Service.CreateTender: %w", err)
	}

	receipt, err := s.ledger.Record(ctx, ledger.Event{
		Kind: ledger.TenderCreated,
		Fields: map[string]any{
			"title":        req.Title,
			"budget":       req.Budget,
			"deadline":     req.Deadline.UTC().Format(time.RFC3339),
			"createdBy":    admin.Id,
			"documentHash": hash,
		},
	})
	if err != nil {
		return models.Tender{}, fmt.Errorf("service.Service.CreateTender: %w", err)
	}

	tender, err := s.repo.AddTender(ctx, models.Tender{
		LedgerId:     receipt.Id,
		Title:        req.Title,
		Description:  req.Description,
		Budget:       req.Budget,
		Deadline:     req.Deadline.UTC(),
		CreatedBy:    admin.Id,
		DocumentHash: hash,
	})
	if err != nil {
		// the ledger already holds the record; keep the receipt for reconciliation
		s.log.Error().Err(err).Str("ledgerId", receipt.Id).Str("txHash", receipt.TxHash).Msg("tender recorded on ledger but not stored")
		return tender, fmt.Errorf("service.Service.CreateTender: %w", err)
	}

	s.log.Info().Str("tender", tender.Id).Str("admin", admin.Id).Str("ledgerId", tender.LedgerId).Msg("tender created")
	s.notify(ctx, notify.EventNewTender, map[string]any{
		"tenderId": tender.Id,
		"title":    tender.Title,
		"budget":   tender.Budget,
		"deadline": tender.Deadline,
	})
	return tender, nil
}

func (s *Service) GetTenders(ctx context.Context, filter models.TenderFilter) ([]models.Tender, error) {
	if filter.Status != "" && !models.ValidTenderStatus(filter.Status) {
		return nil, fmt.Errorf("service.Service.GetTenders: %w: unknown status %q", models.ErrValidation, filter.Status)
	}
	if filter.MinBudget != nil && filter.MaxBudget != nil && *filter.MinBudget > *filter.MaxBudget {
		return nil, fmt.Errorf("service.Service.GetTenders: %w: minBudget is greater than maxBudget", models.ErrValidation)
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("service.Service.GetTenders: %w: offset must not be negative", models.ErrValidation)
	}

	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultTendersLimit
	case filter.Limit > maxTendersLimit:
		filter.Limit = maxTendersLimit
	}
	filter.Search = strings.TrimSpace(filter.Search)

	tenders, err := s.repo.GetTenders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetTenders: %w", err)
	}
	return tenders, nil
}

// GetTender returns the tender for anyone; admins and owners also see its
// bids and, when the ledger serves lookups, the ledger's view of it.
func (s *Service) GetTender(ctx context.Context, p models.Principal, id string) (models.TenderDetails, error) {
	var details models.TenderDetails

	tender, err := s.tender(ctx, id)
	if err != nil {
		return details, fmt.Errorf("service.Service.GetTender: %w", err)
	}
	details.Tender = tender

	if p.Role() == models.RoleCitizen {
		return details, nil
	}

	details.Bids, err = s.repo.TenderBids(ctx, tender.Id)
	if err != nil {
		return details, fmt.Errorf("service.Service.GetTender: %w", err)
	}

	if tender.LedgerId != "" {
		snap, err := s.ledger.Tender(ctx, tender.LedgerId)
		switch {
		case err == nil:
			details.Ledger = &snap
		case !errors.Is(err, ledger.ErrNoSnapshot):
			// reads are served from the local copy
			s.log.Warn().Err(err).Str("tender", tender.Id).Msg("ledger snapshot unavailable")
		}
	}
	return details, nil
}

func (s *Service) tender(ctx context.Context, id string) (models.Tender, error) {
	if !validUUID(id) {
		return models.Tender{}, models.ErrNoTender
	}
	tender, err := s.repo.GetTenderByUUID(ctx, id)
	if err != nil {
		return tender, notFound(err, models.ErrNoTender)
	}
	return tender, nil
}

func tenderLedgerKind(status models.TenderStatus) ledger.EventKind {
	switch status {
	case models.TenderCompleted:
		return ledger.TenderCompleted
	case models.TenderCancelled:
		return ledger.TenderCancelled
	default:
		return ledger.TenderStatusChanged
	}
}

// UpdateTenderStatus moves a tender along its lifecycle. AWARDED is reached
// only by accepting a bid.
func (s *Service) UpdateTenderStatus(ctx context.Context, admin *models.Admin, id string, status models.TenderStatus) (models.Tender, error) {
	if !models.ValidTenderStatus(status) {
		return models.Tender{}, fmt.Errorf("service.Service.UpdateTenderStatus: %w: unknown status %q", models.ErrValidation, status)
	}
	if !validUUID(id) {
		return models.Tender{}, fmt.Errorf("service.Service.UpdateTenderStatus: %w", models.ErrNoTender)
	}

	tender, err := s.repo.TransitionTender(ctx, id, func(current models.Tender) (models.TenderStatus, error) {
		if current.CreatedBy != admin.Id {
			return "", models.ErrForbidden
		}
		if status == models.TenderAwarded {
			return "", fmt.Errorf("%w: a tender is awarded by accepting one of its bids", models.ErrInvalidTransition)
		}
		if !models.CanTransitionTender(current.Status, status) {
			return "", fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, current.Status, status)
		}

		_, err := s.ledger.Record(ctx, ledger.Event{
			Kind:     tenderLedgerKind(status),
			TenderId: current.LedgerId,
			Status:   string(status),
		})
		if err != nil {
			return "", err
		}
		return status, nil
	})
	if err != nil {
		return tender, fmt.Errorf("service.Service.UpdateTenderStatus: %w", notFound(err, models.ErrNoTender))
	}

	s.log.Info().Str("tender", tender.Id).Str("status", string(tender.Status)).Msg("tender status changed")
	s.notify(ctx, notify.TenderEvent(string(tender.Status)), map[string]any{
		"tenderId": tender.Id,
		"title":    tender.Title,
		"status":   tender.Status,
	})
	return tender, nil
}

func (s *Service) CompleteTender(ctx context.Context, admin *models.Admin, id string) (models.Tender, error) {
	return s.UpdateTenderStatus(ctx, admin, id, models.TenderCompleted)
}
