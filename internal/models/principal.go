package models

import (
	"context"
	"time"
)

type Role string

const (
	RoleCitizen Role = "citizen"
	RoleAdmin   Role = "admin"
	RoleOwner   Role = "owner"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleCitizen, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// Principal is an authenticated identity. It is implemented only by
// *Citizen, *Admin and *Owner; callers type-assert to the variant they need.
type Principal interface {
	PrincipalId() string
	Role() Role
	principal()
}

type Citizen struct {
	Id           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	FullName     string    `json:"fullName" db:"full_name"`
	Avatar       string    `json:"avatar" db:"avatar"`
	Password     string    `json:"-" db:"password"`
	RefreshToken *string   `json:"-" db:"refresh_token"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

func (c *Citizen) PrincipalId() string { return c.Id }
func (c *Citizen) Role() Role          { return RoleCitizen }
func (c *Citizen) principal()          {}

type Admin struct {
	Id           string    `json:"id" db:"id"`
	UserId       int64     `json:"userId" db:"user_id"`
	IsVerified   bool      `json:"isVerified" db:"is_verified"`
	Password     string    `json:"-" db:"password"`
	RefreshToken *string   `json:"-" db:"refresh_token"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

func (a *Admin) PrincipalId() string { return a.Id }
func (a *Admin) Role() Role          { return RoleAdmin }
func (a *Admin) principal()          {}

type Owner struct {
	Id           string    `json:"id" db:"id"`
	UserId       int64     `json:"userId" db:"user_id"`
	Password     string    `json:"-" db:"password"`
	RefreshToken *string   `json:"-" db:"refresh_token"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

func (o *Owner) PrincipalId() string { return o.Id }
func (o *Owner) Role() Role          { return RoleOwner }
func (o *Owner) principal()          {}

type ApprovalStatus string

const ApprovalPending ApprovalStatus = "pending"

type PendingApproval struct {
	Id        string         `json:"id" db:"id"`
	AdminId   string         `json:"adminId" db:"admin_id"`
	Status    ApprovalStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

// PendingAdmin is a pending approval joined with the admin it refers to.
type PendingAdmin struct {
	AdminId     string    `json:"adminId" db:"admin_id"`
	UserId      int64     `json:"userId" db:"user_id"`
	RequestedAt time.Time `json:"requestedAt" db:"requested_at"`
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p != nil
}
