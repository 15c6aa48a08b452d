package repository

import (
	"context"
	"fmt"

	"govtender/internal/models"

	"github.com/jmoiron/sqlx"
)

const bidColumns = `id, ledger_id, tender_id, bidder_id, amount, description, proposed_timeline, document_hash, status, created_at, updated_at`

func getBid(ctx context.Context, q sqlx.QueryerContext, id, lock string) (models.Bid, error) {
	var bid models.Bid
	err := sqlx.GetContext(ctx, q, &bid, `SELECT `+bidColumns+` FROM bids WHERE id = $1 `+lock, id)
	if err != nil {
		return bid, fmt.Errorf("repository.getBid: %w", err)
	}
	return bid, nil
}

// GetBidByUUID returns sql.ErrNoRows (wrapped) when the bid does not exist.
func (repo *Repository) GetBidByUUID(ctx context.Context, id string) (models.Bid, error) {
	return getBid(ctx, repo.db, id, "")
}

// AddBid holds a share lock on the tender while prepare builds the bid, so
// the tender cannot change status between the check and the insert.
func (repo *Repository) AddBid(ctx context.Context, tenderId string, prepare func(models.Tender) (models.Bid, error)) (models.Bid, error) {
	var created models.Bid

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return created, fmt.Errorf("repository.Repository.AddBid: %w", err)
	}

	tender, err := getTender(ctx, tx, tenderId, "FOR SHARE")
	if err != nil {
		return created, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddBid: %w", err))
	}

	bid, err := prepare(tender)
	if err != nil {
		return created, wrapRollbackErr(tx, err)
	}

	query := `
	INSERT INTO bids (ledger_id, tender_id, bidder_id, amount, description, proposed_timeline, document_hash, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + bidColumns

	err = tx.GetContext(ctx, &created, query,
		bid.LedgerId, tender.Id, bid.BidderId, bid.Amount, bid.Description, bid.ProposedTimeline, bid.DocumentHash, models.BidSubmitted)
	if err != nil {
		return created, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddBid: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return created, fmt.Errorf("repository.Repository.AddBid: %w", err)
	}
	return created, nil
}

func (repo *Repository) TenderBids(ctx context.Context, tenderId string) ([]models.TenderBid, error) {
	query := `
	SELECT
		b.id, b.ledger_id, b.tender_id, b.bidder_id, b.amount, b.description, b.proposed_timeline,
		b.document_hash, b.status, b.created_at, b.updated_at,
		c.full_name AS bidder_name,
		c.email AS bidder_email
	FROM bids b
	JOIN citizens c ON c.id = b.bidder_id
	WHERE b.tender_id = $1
	ORDER BY b.amount, b.created_at
	`

	bids := []models.TenderBid{}
	err := repo.db.SelectContext(ctx, &bids, query, tenderId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.TenderBids: %w", err)
	}
	return bids, nil
}

func (repo *Repository) CitizenBids(ctx context.Context, citizenId string) ([]models.CitizenBid, error) {
	query := `
	SELECT
		b.id, b.ledger_id, b.tender_id, b.bidder_id, b.amount, b.description, b.proposed_timeline,
		b.document_hash, b.status, b.created_at, b.updated_at,
		t.title AS tender_title,
		t.status AS tender_status
	FROM bids b
	JOIN tenders t ON t.id = b.tender_id
	WHERE b.bidder_id = $1
	ORDER BY b.created_at DESC
	`

	bids := []models.CitizenBid{}
	err := repo.db.SelectContext(ctx, &bids, query, citizenId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.CitizenBids: %w", err)
	}
	return bids, nil
}

// lockBidAndTender takes the tender lock before the bid lock. Every
// transaction that locks both does so in this order.
func lockBidAndTender(ctx context.Context, tx *sqlx.Tx, bidId string) (models.Tender, models.Bid, error) {
	var tenderId string
	err := tx.GetContext(ctx, &tenderId, `SELECT tender_id FROM bids WHERE id = $1`, bidId)
	if err != nil {
		return models.Tender{}, models.Bid{}, err
	}

	tender, err := getTender(ctx, tx, tenderId, "FOR UPDATE")
	if err != nil {
		return tender, models.Bid{}, err
	}

	bid, err := getBid(ctx, tx, bidId, "FOR UPDATE")
	return tender, bid, err
}

// TransitionBid changes a single bid. decide runs under the tender and bid
// locks and returns the next status.
func (repo *Repository) TransitionBid(ctx context.Context, bidId string, decide func(models.Tender, models.Bid) (models.BidStatus, error)) (models.Bid, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Bid{}, fmt.Errorf("repository.Repository.TransitionBid: %w", err)
	}

	tender, bid, err := lockBidAndTender(ctx, tx, bidId)
	if err != nil {
		return bid, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.TransitionBid: %w", err))
	}

	status, err := decide(tender, bid)
	if err != nil {
		return bid, wrapRollbackErr(tx, err)
	}

	query := `UPDATE bids SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + bidColumns
	err = tx.GetContext(ctx, &bid, query, bidId, status)
	if err != nil {
		return bid, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.TransitionBid: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return bid, fmt.Errorf("repository.Repository.TransitionBid: %w", err)
	}
	return bid, nil
}

// AcceptBid accepts the bid, rejects every other bid on its tender and awards
// the tender, all in one transaction. check runs under the locks and may veto.
func (repo *Repository) AcceptBid(ctx context.Context, bidId string, check func(models.Tender, models.Bid) error) (models.Bid, models.Tender, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Bid{}, models.Tender{}, fmt.Errorf("repository.Repository.AcceptBid: %w", err)
	}

	tender, bid, err := lockBidAndTender(ctx, tx, bidId)
	if err != nil {
		return bid, tender, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: %w", err))
	}

	err = check(tender, bid)
	if err != nil {
		return bid, tender, wrapRollbackErr(tx, err)
	}

	err = tx.GetContext(ctx, &bid,
		`UPDATE bids SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+bidColumns,
		bidId, models.BidAccepted)
	if err != nil {
		return bid, tender, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: accept: %w", err))
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bids SET status = $3, updated_at = now() WHERE tender_id = $1 AND id <> $2 AND status <> $3`,
		tender.Id, bidId, models.BidRejected)
	if err != nil {
		return bid, tender, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: reject siblings: %w", err))
	}

	err = tx.GetContext(ctx, &tender,
		`UPDATE tenders SET status = $2, selected_bid_id = $3, updated_at = now() WHERE id = $1 RETURNING `+tenderColumns,
		tender.Id, models.TenderAwarded, bidId)
	if err != nil {
		return bid, tender, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AcceptBid: award tender: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return bid, tender, fmt.Errorf("repository.Repository.AcceptBid: %w", err)
	}
	return bid, tender, nil
}
