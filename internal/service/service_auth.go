package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"govtender/internal/auth"
	"govtender/internal/metrics"
	"govtender/internal/models"
	"govtender/internal/storage"
)

type CitizenRegistration struct {
	Username string `validate:"required,max=50"`
	Email    string `validate:"required,email,max=254"`
	FullName string `validate:"max=100"`
	Password string `validate:"required,max=72"`
	Avatar   storage.File
}

type AdminRegistration struct {
	UserId   int64  `validate:"required,gt=0"`
	Password string `validate:"required,max=72"`
}

// Session is the result of a successful login or refresh.
type Session struct {
	Principal    models.Principal
	AccessToken  string
	RefreshToken string
}

func (s *Service) audit(action string, role models.Role, id string, err error) {
	metrics.RecordAuthAttempt(string(role), action, err == nil)

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().AnErr("reason", err)
	}
	ev.Str("action", action).
		Str("role", string(role)).
		Str("principal", id).
		Bool("success", err == nil).
		Msg("auth")
}

//// Registration

func (s *Service) RegisterCitizen(ctx context.Context, reg CitizenRegistration) (citizen models.Citizen, err error) {
	defer func() { s.audit("register", models.RoleCitizen, citizen.Id, err) }()

	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.FullName = strings.TrimSpace(reg.FullName)

	if err = s.validateStruct(&reg); err != nil {
		return citizen, fmt.Errorf("service.Service.RegisterCitizen: %w", err)
	}
	if err = storage.ValidateImage(&reg.Avatar); err != nil {
		return citizen, fmt.Errorf("service.Service.RegisterCitizen: %w", err)
	}

	exists, err := s.repo.CitizenExists(ctx, reg.Email, reg.Username)
	if err != nil {
		return citizen, fmt.Errorf("service.Service.RegisterCitizen: %w", err)
	}
	if exists {
		return citizen, fmt.Errorf("service.Service.RegisterCitizen: %w", models.ErrDuplicateUser)
	}

	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return citizen, fmt.Errorf("service.Service.RegisterCitizen: %w", err)
	}

	avatar, err := s.uploadImage(ctx, reg.Avatar)
	if err != nil {
		return citizen, fmt.Errorf("service.Service.RegisterCitizen: %w", err)
	}

	citizen, err = s.repo.AddCitizen(ctx, models.Citizen{
		Username: reg.Username,
		Email:    reg.Email,
		FullName: reg.FullName,
		Avatar:   avatar,
		Password: hash,
	})
	if err != nil {
		return citizen, fmt.Errorf("service.Service.RegisterCitizen: %w", err)
	}
	return citizen, nil
}

// RegisterAdmin creates an unverified admin awaiting owner approval. No
// tokens are issued until an owner verifies the account.
func (s *Service) RegisterAdmin(ctx context.Context, reg AdminRegistration) (admin models.Admin, err error) {
	defer func() { s.audit("register", models.RoleAdmin, admin.Id, err) }()

	if err = s.validateStruct(&reg); err != nil {
		return admin, fmt.Errorf("service.Service.RegisterAdmin: %w", err)
	}

	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return admin, fmt.Errorf("service.Service.RegisterAdmin: %w", err)
	}

	admin, err = s.repo.AddAdmin(ctx, models.Admin{UserId: reg.UserId, Password: hash})
	if err != nil {
		return admin, fmt.Errorf("service.Service.RegisterAdmin: %w", err)
	}
	return admin, nil
}

// BootstrapOwner creates an owner account. Owners cannot register over HTTP.
func (s *Service) BootstrapOwner(ctx context.Context, userId int64, password string) (models.Owner, error) {
	if err := s.validateStruct(&AdminRegistration{UserId: userId, Password: password}); err != nil {
		return models.Owner{}, fmt.Errorf("service.Service.BootstrapOwner: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.Owner{}, fmt.Errorf("service.Service.BootstrapOwner: %w", err)
	}

	owner, err := s.repo.AddOwner(ctx, models.Owner{UserId: userId, Password: hash})
	if err != nil {
		return owner, fmt.Errorf("service.Service.BootstrapOwner: %w", err)
	}
	s.audit("bootstrap", models.RoleOwner, owner.Id, nil)
	return owner, nil
}

//// Approval

func (s *Service) VerifyAdmin(ctx context.Context, owner *models.Owner, adminId string) (admin models.Admin, err error) {
	defer func() { s.audit("verify", models.RoleOwner, owner.Id, err) }()

	adminId = strings.TrimSpace(adminId)
	if adminId == "" {
		return admin, fmt.Errorf("service.Service.VerifyAdmin: %w: adminId is required", models.ErrValidation)
	}
	if !validUUID(adminId) {
		return admin, fmt.Errorf("service.Service.VerifyAdmin: %w: adminId must be a uuid", models.ErrValidation)
	}

	admin, err = s.repo.VerifyAdmin(ctx, adminId)
	if err != nil {
		return admin, fmt.Errorf("service.Service.VerifyAdmin: %w", err)
	}

	s.log.Info().Str("owner", owner.Id).Str("admin", admin.Id).Msg("admin verified")
	return admin, nil
}

func (s *Service) PendingAdmins(ctx context.Context, owner *models.Owner) ([]models.PendingAdmin, error) {
	pending, err := s.repo.PendingAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Service.PendingAdmins: %w", err)
	}
	return pending, nil
}

//// Sessions

func (s *Service) LoginCitizen(ctx context.Context, email, password string) (session Session, err error) {
	var id string
	defer func() { s.audit("login", models.RoleCitizen, id, err) }()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return session, fmt.Errorf("service.Service.LoginCitizen: %w: email and password are required", models.ErrValidation)
	}

	citizen, found, err := s.repo.CitizenByEmail(ctx, email)
	if err != nil {
		return session, fmt.Errorf("service.Service.LoginCitizen: %w", err)
	}
	if !found {
		return session, fmt.Errorf("service.Service.LoginCitizen: %w", models.ErrInvalidCredentials)
	}
	id = citizen.Id

	if err = auth.ComparePassword(citizen.Password, password); err != nil {
		return session, fmt.Errorf("service.Service.LoginCitizen: %w", err)
	}

	session, err = s.rotateTokens(ctx, &citizen)
	if err != nil {
		return session, fmt.Errorf("service.Service.LoginCitizen: %w", err)
	}
	return session, nil
}

// LoginAdmin refuses unverified admins before looking at the password.
func (s *Service) LoginAdmin(ctx context.Context, userId int64, password string) (session Session, err error) {
	var id string
	defer func() { s.audit("login", models.RoleAdmin, id, err) }()

	if userId <= 0 || password == "" {
		return session, fmt.Errorf("service.Service.LoginAdmin: %w: userId and password are required", models.ErrValidation)
	}

	admin, found, err := s.repo.AdminByUserId(ctx, userId)
	if err != nil {
		return session, fmt.Errorf("service.Service.LoginAdmin: %w", err)
	}
	if !found {
		return session, fmt.Errorf("service.Service.LoginAdmin: %w", models.ErrInvalidCredentials)
	}
	id = admin.Id

	if !admin.IsVerified {
		return session, fmt.Errorf("service.Service.LoginAdmin: %w", models.ErrAccountNotVerified)
	}

	if err = auth.ComparePassword(admin.Password, password); err != nil {
		return session, fmt.Errorf("service.Service.LoginAdmin: %w", err)
	}

	session, err = s.rotateTokens(ctx, &admin)
	if err != nil {
		return session, fmt.Errorf("service.Service.LoginAdmin: %w", err)
	}
	return session, nil
}

func (s *Service) LoginOwner(ctx context.Context, userId int64, password string) (session Session, err error) {
	var id string
	defer func() { s.audit("login", models.RoleOwner, id, err) }()

	if userId <= 0 || password == "" {
		return session, fmt.Errorf("service.Service.LoginOwner: %w: userId and password are required", models.ErrValidation)
	}

	owner, found, err := s.repo.OwnerByUserId(ctx, userId)
	if err != nil {
		return session, fmt.Errorf("service.Service.LoginOwner: %w", err)
	}
	if !found {
		return session, fmt.Errorf("service.Service.LoginOwner: %w", models.ErrInvalidCredentials)
	}
	id = owner.Id

	if err = auth.ComparePassword(owner.Password, password); err != nil {
		return session, fmt.Errorf("service.Service.LoginOwner: %w", err)
	}

	session, err = s.rotateTokens(ctx, &owner)
	if err != nil {
		return session, fmt.Errorf("service.Service.LoginOwner: %w", err)
	}
	return session, nil
}

// rotateTokens issues a fresh pair and overwrites the refresh slot, which
// revokes whatever refresh token the principal held before.
func (s *Service) rotateTokens(ctx context.Context, p models.Principal) (Session, error) {
	session, err := s.issueTokens(p)
	if err != nil {
		return session, err
	}

	err = s.repo.SetRefreshToken(ctx, p.Role(), p.PrincipalId(), &session.RefreshToken)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *Service) issueTokens(p models.Principal) (Session, error) {
	access, err := s.tokens.IssueAccessToken(p)
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(p)
	if err != nil {
		return Session{}, err
	}
	return Session{Principal: p, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a refresh token for a new pair. The stored token is
// replaced only if it still equals the presented one, so a token can be
// used at most once even under concurrent requests.
func (s *Service) Refresh(ctx context.Context, role models.Role, token string) (session Session, err error) {
	var id string
	defer func() { s.audit("refresh", role, id, err) }()

	if token == "" {
		return session, fmt.Errorf("service.Service.Refresh: %w: refresh token is missing", models.ErrUnauthorized)
	}

	claims, err := s.tokens.VerifyRefresh(token)
	if err != nil {
		return session, fmt.Errorf("service.Service.Refresh: %w", err)
	}
	if claims.Role != role {
		return session, fmt.Errorf("service.Service.Refresh: %w: token was issued for %s", models.ErrInvalidToken, claims.Role)
	}
	id = claims.Subject

	p, err := s.lookupPrincipal(ctx, role, claims.Subject)
	if err != nil {
		return session, fmt.Errorf("service.Service.Refresh: %w", err)
	}

	stored := storedRefreshToken(p)
	if stored == nil || subtle.ConstantTimeCompare([]byte(*stored), []byte(token)) != 1 {
		return session, fmt.Errorf("service.Service.Refresh: %w", models.ErrExpiredOrRevokedToken)
	}

	session, err = s.issueTokens(p)
	if err != nil {
		return session, fmt.Errorf("service.Service.Refresh: %w", err)
	}

	swapped, err := s.repo.SwapRefreshToken(ctx, role, p.PrincipalId(), token, session.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("service.Service.Refresh: %w", err)
	}
	if !swapped {
		return Session{}, fmt.Errorf("service.Service.Refresh: %w", models.ErrExpiredOrRevokedToken)
	}
	return session, nil
}

func (s *Service) Logout(ctx context.Context, p models.Principal) (err error) {
	defer func() { s.audit("logout", p.Role(), p.PrincipalId(), err) }()

	if err = s.repo.SetRefreshToken(ctx, p.Role(), p.PrincipalId(), nil); err != nil {
		return fmt.Errorf("service.Service.Logout: %w", err)
	}
	return nil
}

// ChangePassword also revokes the refresh token, ending other sessions once
// their access tokens expire.
func (s *Service) ChangePassword(ctx context.Context, p models.Principal, oldPassword, newPassword string) (err error) {
	defer func() { s.audit("change-password", p.Role(), p.PrincipalId(), err) }()

	if oldPassword == "" {
		return fmt.Errorf("service.Service.ChangePassword: %w: oldPassword is required", models.ErrValidation)
	}
	if newPassword == "" {
		return fmt.Errorf("service.Service.ChangePassword: %w: newPassword is required", models.ErrValidation)
	}
	if len(newPassword) > 72 {
		return fmt.Errorf("service.Service.ChangePassword: %w: newPassword must be at most 72 bytes", models.ErrValidation)
	}

	current, err := s.lookupPrincipal(ctx, p.Role(), p.PrincipalId())
	if err != nil {
		return fmt.Errorf("service.Service.ChangePassword: %w", err)
	}
	if err = auth.ComparePassword(storedPassword(current), oldPassword); err != nil {
		return fmt.Errorf("service.Service.ChangePassword: %w", err)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("service.Service.ChangePassword: %w", err)
	}
	if err = s.repo.ChangePassword(ctx, p.Role(), p.PrincipalId(), hash); err != nil {
		return fmt.Errorf("service.Service.ChangePassword: %w", err)
	}
	return nil
}

// ResolvePrincipal maps a verified access token to the principal it names.
func (s *Service) ResolvePrincipal(ctx context.Context, accessToken string) (models.Principal, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("service.Service.ResolvePrincipal: %w", models.ErrUnauthorized)
	}

	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("service.Service.ResolvePrincipal: %w", err)
	}

	p, err := s.lookupPrincipal(ctx, claims.Role, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("service.Service.ResolvePrincipal: %w", err)
	}
	return p, nil
}

// lookupPrincipal loads the principal of the given role. Unknown principals
// are unauthorized; unverified admins are refused.
func (s *Service) lookupPrincipal(ctx context.Context, role models.Role, id string) (models.Principal, error) {
	if !validUUID(id) {
		return nil, models.ErrUnauthorized
	}

	var (
		p     models.Principal
		found bool
		err   error
	)
	switch role {
	case models.RoleCitizen:
		var c models.Citizen
		c, found, err = s.repo.CitizenById(ctx, id)
		p = &c
	case models.RoleAdmin:
		var a models.Admin
		a, found, err = s.repo.AdminById(ctx, id)
		if found && !a.IsVerified {
			return nil, models.ErrAccountNotVerified
		}
		p = &a
	case models.RoleOwner:
		var o models.Owner
		o, found, err = s.repo.OwnerById(ctx, id)
		p = &o
	default:
		return nil, models.ErrUnauthorized
	}

	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.ErrUnauthorized
	}
	return p, nil
}

func storedRefreshToken(p models.Principal) *string {
	switch v := p.(type) {
	case *models.Citizen:
		return v.RefreshToken
	case *models.Admin:
		return v.RefreshToken
	case *models.Owner:
		return v.RefreshToken
	}
	return nil
}

func storedPassword(p models.Principal) string {
	switch v := p.(type) {
	case *models.Citizen:
		return v.Password
	case *models.Admin:
		return v.Password
	case *models.Owner:
		return v.Password
	}
	return ""
}
