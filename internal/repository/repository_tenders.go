package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"govtender/internal/models"

	"github.com/jmoiron/sqlx"
)

const tenderColumns = `id, ledger_id, title, description, budget, deadline, status, created_by, document_hash, selected_bid_id, created_at, updated_at`

func (repo *Repository) prepTendersQuery(f models.TenderFilter) (query string, queryParams []interface{}) {
	query = `
	SELECT ` + tenderColumns + `
	FROM tenders
	$conditions$
	ORDER BY created_at DESC, id
	LIMIT $1
	OFFSET $2
	`

	queryParams = make([]interface{}, 0, 6)
	conditions := make([]string, 0, 4)

	if f.Limit <= 0 {
		queryParams = append(queryParams, nil)
	} else {
		queryParams = append(queryParams, f.Limit)
	}
	queryParams = append(queryParams, f.Offset)

	if len(f.Status) > 0 {
		conditions = append(conditions, "status = $$")
		queryParams = append(queryParams, f.Status)
	}

	if f.MinBudget != nil {
		conditions = append(conditions, "budget >= $$")
		queryParams = append(queryParams, *f.MinBudget)
	}

	if f.MaxBudget != nil {
		conditions = append(conditions, "budget <= $$")
		queryParams = append(queryParams, *f.MaxBudget)
	}

	if len(f.Search) > 0 {
		conditions = append(conditions, "(title ILIKE $$ OR description ILIKE $$)")
		queryParams = append(queryParams, "%"+escapeLike(f.Search)+"%")
	}

	condStr := ""
	if len(conditions) > 0 {
		for i := 0; i < len(conditions); i++ {
			conditions[i] = strings.Replace(conditions[i], "$$", "$"+strconv.Itoa(i+3), -1)
		}
		condStr = "WHERE " + strings.Join(conditions, " AND ")
	}
	query = strings.Replace(query, "$conditions$", condStr, -1)

	return query, queryParams
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (repo *Repository) GetTenders(ctx context.Context, filter models.TenderFilter) ([]models.Tender, error) {
	query, queryParams := repo.prepTendersQuery(filter)

	tenders := []models.Tender{}
	err := repo.db.SelectContext(ctx, &tenders, query, queryParams...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetTenders: %w", err)
	}
	return tenders, nil
}

// GetTenderByUUID returns sql.ErrNoRows (wrapped) when the tender does not exist.
func (repo *Repository) GetTenderByUUID(ctx context.Context, id string) (models.Tender, error) {
	return getTender(ctx, repo.db, id, "")
}

// getTender reads a tender through q, optionally with a row lock clause.
func getTender(ctx context.Context, q sqlx.QueryerContext, id, lock string) (models.Tender, error) {
	var tender models.Tender
	err := sqlx.GetContext(ctx, q, &tender, `SELECT `+tenderColumns+` FROM tenders WHERE id = $1 `+lock, id)
	if err != nil {
		return tender, fmt.Errorf("repository.getTender: %w", err)
	}
	return tender, nil
}

func (repo *Repository) AddTender(ctx context.Context, t models.Tender) (models.Tender, error) {
	query := `
	INSERT INTO tenders (ledger_id, title, description, budget, deadline, status, created_by, document_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + tenderColumns

	var created models.Tender
	err := repo.db.GetContext(ctx, &created, query,
		t.LedgerId, t.Title, t.Description, t.Budget, t.Deadline, models.TenderOpen, t.CreatedBy, t.DocumentHash)
	if err != nil {
		return created, fmt.Errorf("repository.Repository.AddTender: %w", err)
	}
	return created, nil
}

// TransitionTender locks the tender row and asks decide for the next status.
// decide runs while the lock is held, so it may call external systems that
// must observe the transition before it is committed locally. An error from
// decide rolls back and is returned as is.
func (repo *Repository) TransitionTender(ctx context.Context, id string, decide func(models.Tender) (models.TenderStatus, error)) (models.Tender, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Tender{}, fmt.Errorf("repository.Repository.TransitionTender: %w", err)
	}

	tender, err := getTender(ctx, tx, id, "FOR UPDATE")
	if err != nil {
		return tender, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.TransitionTender: %w", err))
	}

	status, err := decide(tender)
	if err != nil {
		return tender, wrapRollbackErr(tx, err)
	}

	query := `UPDATE tenders SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + tenderColumns
	err = tx.GetContext(ctx, &tender, query, id, status)
	if err != nil {
		return tender, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.TransitionTender: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return tender, fmt.Errorf("repository.Repository.TransitionTender: %w", err)
	}
	return tender, nil
}
