package auth

import (
	"errors"
	"fmt"
	"time"

	"govtender/internal/config"
	"govtender/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenExpired also matches models.ErrInvalidToken.
var ErrTokenExpired = fmt.Errorf("%w: token is expired", models.ErrInvalidToken)

type Claims struct {
	jwt.RegisteredClaims
	Role     models.Role `json:"role"`
	Email    string      `json:"email,omitempty"`
	Username string      `json:"username,omitempty"`
	FullName string      `json:"fullName,omitempty"`
	UserId   int64       `json:"userId,omitempty"`
}

type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenService(cfg config.TokenConfig) *TokenService {
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessExpiry,
		refreshTTL:    cfg.RefreshExpiry,
		now:           time.Now,
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccessToken(p models.Principal) (string, error) {
	claims := s.claims(p, s.accessTTL)

	switch v := p.(type) {
	case *models.Citizen:
		claims.Email = v.Email
		claims.Username = v.Username
		claims.FullName = v.FullName
	case *models.Admin:
		claims.UserId = v.UserId
	case *models.Owner:
		claims.UserId = v.UserId
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("auth.TokenService.IssueAccessToken: %w", err)
	}
	return token, nil
}

// IssueRefreshToken carries only the principal id and role. The random id
// keeps two tokens issued within the same second distinct.
func (s *TokenService) IssueRefreshToken(p models.Principal) (string, error) {
	claims := s.claims(p, s.refreshTTL)
	claims.ID = uuid.NewString()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("auth.TokenService.IssueRefreshToken: %w", err)
	}
	return token, nil
}

func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	return s.verify(token, s.accessSecret)
}

func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return s.verify(token, s.refreshSecret)
}

func (s *TokenService) claims(p models.Principal, ttl time.Duration) Claims {
	now := s.now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.PrincipalId(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: p.Role(),
	}
}

func (s *TokenService) verify(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidToken, err)
	case !parsed.Valid:
		return nil, models.ErrInvalidToken
	}

	if claims.Subject == "" || !models.ValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: missing subject or role", models.ErrInvalidToken)
	}
	return claims, nil
}
