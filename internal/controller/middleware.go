package controller

import (
	"net/http"
	"strings"
	"time"

	"govtender/internal/models"
	"govtender/internal/service"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// Authenticate resolves the access token from the cookie, or from a bearer
// header, and attaches the principal to the request context.
func (c *Controller) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessToken(r)
		if token == "" {
			c.errorResponse(w, http.StatusUnauthorized, "unauthorized request")
			return
		}

		p, err := c.service.ResolvePrincipal(r.Context(), token)
		if err != nil {
			c.serviceErrorResponse(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(models.WithPrincipal(r.Context(), p)))
	})
}

func accessToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func refreshToken(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func citizenFrom(r *http.Request) (*models.Citizen, bool) {
	p, _ := models.PrincipalFrom(r.Context())
	c, ok := p.(*models.Citizen)
	return c, ok
}

func adminFrom(r *http.Request) (*models.Admin, bool) {
	p, _ := models.PrincipalFrom(r.Context())
	a, ok := p.(*models.Admin)
	return a, ok
}

func ownerFrom(r *http.Request) (*models.Owner, bool) {
	p, _ := models.PrincipalFrom(r.Context())
	o, ok := p.(*models.Owner)
	return o, ok
}

func (c *Controller) forbidden(w http.ResponseWriter) {
	c.errorResponse(w, http.StatusForbidden, "principal does not have permission for requested action")
}

func (c *Controller) tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Controller) setTokenCookies(w http.ResponseWriter, s service.Session) {
	http.SetCookie(w, c.tokenCookie(accessCookie, s.AccessToken, c.accessTTL))
	http.SetCookie(w, c.tokenCookie(refreshCookie, s.RefreshToken, c.refreshTTL))
}

func (c *Controller) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		cookie := c.tokenCookie(name, "", 0)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}
