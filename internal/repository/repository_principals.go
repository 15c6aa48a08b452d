package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"govtender/internal/models"
)

const citizenColumns = `id, username, email, full_name, avatar, password, refresh_token, created_at, updated_at`

func (repo *Repository) AddCitizen(ctx context.Context, c models.Citizen) (models.Citizen, error) {
	query := `
	INSERT INTO citizens (username, email, full_name, avatar, password)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + citizenColumns

	var created models.Citizen
	err := repo.db.GetContext(ctx, &created, query, c.Username, c.Email, c.FullName, c.Avatar, c.Password)
	if isUniqueViolation(err) {
		return created, models.ErrDuplicateUser
	} else if err != nil {
		return created, fmt.Errorf("repository.Repository.AddCitizen: %w", err)
	}
	return created, nil
}

func (repo *Repository) CitizenExists(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM citizens WHERE email = $1 OR username = $2)`, email, username)
	if err != nil {
		return false, fmt.Errorf("repository.Repository.CitizenExists: %w", err)
	}
	return exists, nil
}

func (repo *Repository) CitizenByEmail(ctx context.Context, email string) (models.Citizen, bool, error) {
	var c models.Citizen
	err := repo.db.GetContext(ctx, &c, `SELECT `+citizenColumns+` FROM citizens WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	} else if err != nil {
		return c, false, fmt.Errorf("repository.Repository.CitizenByEmail: %w", err)
	}
	return c, true, nil
}

func (repo *Repository) CitizenById(ctx context.Context, id string) (models.Citizen, bool, error) {
	var c models.Citizen
	err := repo.db.GetContext(ctx, &c, `SELECT `+citizenColumns+` FROM citizens WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	} else if err != nil {
		return c, false, fmt.Errorf("repository.Repository.CitizenById: %w", err)
	}
	return c, true, nil
}

const adminColumns = `id, user_id, is_verified, password, refresh_token, created_at, updated_at`

// AddAdmin creates the admin unverified together with its pending approval.
func (repo *Repository) AddAdmin(ctx context.Context, a models.Admin) (models.Admin, error) {
	var created models.Admin

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return created, fmt.Errorf("repository.Repository.AddAdmin: %w", err)
	}

	query := `
	INSERT INTO admins (user_id, is_verified, password)
	VALUES ($1, FALSE, $2)
	RETURNING ` + adminColumns

	err = tx.GetContext(ctx, &created, query, a.UserId, a.Password)
	if isUniqueViolation(err) {
		return created, wrapRollbackErr(tx, models.ErrDuplicateUser)
	} else if err != nil {
		return created, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddAdmin: %w", err))
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO pending_approvals (admin_id, status) VALUES ($1, $2)`, created.Id, models.ApprovalPending)
	if err != nil {
		return created, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.AddAdmin: pending approval: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return created, fmt.Errorf("repository.Repository.AddAdmin: %w", err)
	}
	return created, nil
}

func (repo *Repository) AdminByUserId(ctx context.Context, userId int64) (models.Admin, bool, error) {
	var a models.Admin
	err := repo.db.GetContext(ctx, &a, `SELECT `+adminColumns+` FROM admins WHERE user_id = $1`, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return a, false, nil
	} else if err != nil {
		return a, false, fmt.Errorf("repository.Repository.AdminByUserId: %w", err)
	}
	return a, true, nil
}

func (repo *Repository) AdminById(ctx context.Context, id string) (models.Admin, bool, error) {
	var a models.Admin
	err := repo.db.GetContext(ctx, &a, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return a, false, nil
	} else if err != nil {
		return a, false, fmt.Errorf("repository.Repository.AdminById: %w", err)
	}
	return a, true, nil
}

// VerifyAdmin marks the admin verified and drops its pending approval.
// A missing approval row is not an error.
func (repo *Repository) VerifyAdmin(ctx context.Context, id string) (models.Admin, error) {
	var a models.Admin

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return a, fmt.Errorf("repository.Repository.VerifyAdmin: %w", err)
	}

	query := `
	UPDATE admins SET is_verified = TRUE, updated_at = now()
	WHERE id = $1
	RETURNING ` + adminColumns

	err = tx.GetContext(ctx, &a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return a, wrapRollbackErr(tx, models.ErrNoAdmin)
	} else if err != nil {
		return a, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.VerifyAdmin: %w", err))
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM pending_approvals WHERE admin_id = $1`, id)
	if err != nil {
		return a, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.VerifyAdmin: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return a, fmt.Errorf("repository.Repository.VerifyAdmin: %w", err)
	}
	return a, nil
}

func (repo *Repository) PendingAdmins(ctx context.Context) ([]models.PendingAdmin, error) {
	query := `
	SELECT p.admin_id, a.user_id, p.created_at AS requested_at
	FROM pending_approvals p
	JOIN admins a ON a.id = p.admin_id
	WHERE p.status = $1
	ORDER BY p.created_at
	`

	pending := []models.PendingAdmin{}
	err := repo.db.SelectContext(ctx, &pending, query, models.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.PendingAdmins: %w", err)
	}
	return pending, nil
}

const ownerColumns = `id, user_id, password, refresh_token, created_at, updated_at`

func (repo *Repository) AddOwner(ctx context.Context, o models.Owner) (models.Owner, error) {
	var created models.Owner
	query := `INSERT INTO owners (user_id, password) VALUES ($1, $2) RETURNING ` + ownerColumns

	err := repo.db.GetContext(ctx, &created, query, o.UserId, o.Password)
	if isUniqueViolation(err) {
		return created, models.ErrDuplicateUser
	} else if err != nil {
		return created, fmt.Errorf("repository.Repository.AddOwner: %w", err)
	}
	return created, nil
}

func (repo *Repository) OwnerByUserId(ctx context.Context, userId int64) (models.Owner, bool, error) {
	var o models.Owner
	err := repo.db.GetContext(ctx, &o, `SELECT `+ownerColumns+` FROM owners WHERE user_id = $1`, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return o, false, nil
	} else if err != nil {
		return o, false, fmt.Errorf("repository.Repository.OwnerByUserId: %w", err)
	}
	return o, true, nil
}

func (repo *Repository) OwnerById(ctx context.Context, id string) (models.Owner, bool, error) {
	var o models.Owner
	err := repo.db.GetContext(ctx, &o, `SELECT `+ownerColumns+` FROM owners WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return o, false, nil
	} else if err != nil {
		return o, false, fmt.Errorf("repository.Repository.OwnerById: %w", err)
	}
	return o, true, nil
}

//// Credentials shared by all principals

// SetRefreshToken overwrites the single refresh token slot. nil clears it.
func (repo *Repository) SetRefreshToken(ctx context.Context, role models.Role, id string, token *string) error {
	table, err := principalTable(role)
	if err != nil {
		return fmt.Errorf("repository.Repository.SetRefreshToken: %w", err)
	}

	_, err = repo.db.ExecContext(ctx, `UPDATE `+table+` SET refresh_token = $2, updated_at = now() WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("repository.Repository.SetRefreshToken: %w", err)
	}
	return nil
}

// SwapRefreshToken replaces old with next only if old is still the stored
// token. It reports false when another login, refresh or logout got there
// first.
func (repo *Repository) SwapRefreshToken(ctx context.Context, role models.Role, id, old, next string) (bool, error) {
	table, err := principalTable(role)
	if err != nil {
		return false, fmt.Errorf("repository.Repository.SwapRefreshToken: %w", err)
	}

	res, err := repo.db.ExecContext(ctx,
		`UPDATE `+table+` SET refresh_token = $3, updated_at = now() WHERE id = $1 AND refresh_token = $2`,
		id, old, next)
	if err != nil {
		return false, fmt.Errorf("repository.Repository.SwapRefreshToken: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository.Repository.SwapRefreshToken: %w", err)
	}
	return n == 1, nil
}

// ChangePassword stores a new hash and drops the refresh token, so other
// sessions have to log in again.
func (repo *Repository) ChangePassword(ctx context.Context, role models.Role, id, hash string) error {
	table, err := principalTable(role)
	if err != nil {
		return fmt.Errorf("repository.Repository.ChangePassword: %w", err)
	}

	_, err = repo.db.ExecContext(ctx, `UPDATE `+table+` SET password = $2, refresh_token = NULL, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("repository.Repository.ChangePassword: %w", err)
	}
	return nil
}
