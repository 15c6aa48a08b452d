package controller

import (
	"context"
	"net/http"

	"govtender/internal/models"
	"govtender/internal/service"
)

type SessionResponse struct {
	Citizen      *models.Citizen `json:"citizen,omitempty"`
	Admin        *models.Admin   `json:"admin,omitempty"`
	Owner        *models.Owner   `json:"owner,omitempty"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

func sessionResponse(s service.Session) SessionResponse {
	resp := SessionResponse{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
	switch p := s.Principal.(type) {
	case *models.Citizen:
		resp.Citizen = p
	case *models.Admin:
		resp.Admin = p
	case *models.Owner:
		resp.Owner = p
	}
	return resp
}

type PendingAdminResponse struct {
	Admin  models.Admin          `json:"admin"`
	Status models.ApprovalStatus `json:"status"`
}

type VerifiedAdminResponse struct {
	Admin models.Admin `json:"admin"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

//// Citizens

// POST /api/citizens/register
func (c *Controller) RegisterCitizen(w http.ResponseWriter, r *http.Request) {
	defer removeMultipart(r)
	reg, err := ParseCitizenRegistration(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	citizen, err := c.service.RegisterCitizen(r.Context(), reg)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponseStatus(w, http.StatusCreated, citizen)
}

// POST /api/citizens/login
func (c *Controller) LoginCitizen(w http.ResponseWriter, r *http.Request) {
	data, err := c.readBody(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	var req CitizenLoginReq
	if err = parseJSON(data, &req); err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	session, err := c.service.LoginCitizen(r.Context(), req.Email, req.Password)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.setTokenCookies(w, session)
	c.marshalResponse(w, sessionResponse(session))
}

//// Admins

// POST /api/admins/register
//
// The admin stays unverified until an owner approves it, so no tokens or
// cookies are issued here.
func (c *Controller) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	data, err := c.readBody(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	var req AccountReq
	if err = parseJSON(data, &req); err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	admin, err := c.service.RegisterAdmin(r.Context(), service.AdminRegistration{UserId: req.UserId, Password: req.Password})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponseStatus(w, http.StatusCreated, PendingAdminResponse{Admin: admin, Status: models.ApprovalPending})
}

// POST /api/admins/login
func (c *Controller) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	c.loginByUserId(w, r, c.service.LoginAdmin)
}

//// Owners

// POST /api/owners/login
func (c *Controller) LoginOwner(w http.ResponseWriter, r *http.Request) {
	c.loginByUserId(w, r, c.service.LoginOwner)
}

func (c *Controller) loginByUserId(w http.ResponseWriter, r *http.Request, login func(ctx context.Context, userId int64, password string) (service.Session, error)) {
	data, err := c.readBody(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	var req AccountReq
	if err = parseJSON(data, &req); err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	session, err := login(r.Context(), req.UserId, req.Password)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.setTokenCookies(w, session)
	c.marshalResponse(w, sessionResponse(session))
}

// POST /api/owners/verify
func (c *Controller) VerifyAdmin(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		c.forbidden(w)
		return
	}

	data, err := c.readBody(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	var req VerifyAdminReq
	if err = parseJSON(data, &req); err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	admin, err := c.service.VerifyAdmin(r.Context(), owner, req.AdminId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, VerifiedAdminResponse{Admin: admin})
}

// GET /api/owners/pending
func (c *Controller) PendingAdmins(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		c.forbidden(w)
		return
	}

	pending, err := c.service.PendingAdmins(r.Context(), owner)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, pending)
}

//// Shared by all roles

// POST /api/{role}s/logout
func (c *Controller) Logout(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := models.PrincipalFrom(r.Context())
		if !ok || p.Role() != role {
			c.forbidden(w)
			return
		}

		if err := c.service.Logout(r.Context(), p); err != nil {
			c.serviceErrorResponse(w, err)
			return
		}

		c.clearTokenCookies(w)
		c.marshalResponse(w, MessageResponse{Message: "logged out"})
	}
}

// POST /api/{role}s/refresh-token
//
// The refresh token comes from the cookie, or from the JSON body for
// clients that do not keep cookies.
func (c *Controller) RefreshToken(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := refreshToken(r)
		if token == "" && r.ContentLength != 0 {
			data, err := c.readBody(w, r)
			if err != nil {
				c.serviceErrorResponse(w, err)
				return
			}
			var req RefreshReq
			if err = parseJSON(data, &req); err != nil {
				c.serviceErrorResponse(w, err)
				return
			}
			token = req.RefreshToken
		}

		session, err := c.service.Refresh(r.Context(), role, token)
		if err != nil {
			c.serviceErrorResponse(w, err)
			return
		}

		c.setTokenCookies(w, session)
		c.marshalResponse(w, sessionResponse(session))
	}
}

// POST /api/{role}s/change-password
func (c *Controller) ChangePassword(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := models.PrincipalFrom(r.Context())
		if !ok || p.Role() != role {
			c.forbidden(w)
			return
		}

		data, err := c.readBody(w, r)
		if err != nil {
			c.serviceErrorResponse(w, err)
			return
		}

		var req ChangePasswordReq
		if err = parseJSON(data, &req); err != nil {
			c.serviceErrorResponse(w, err)
			return
		}

		if err = c.service.ChangePassword(r.Context(), p, req.OldPassword, req.NewPassword); err != nil {
			c.serviceErrorResponse(w, err)
			return
		}

		c.clearTokenCookies(w)
		c.marshalResponse(w, MessageResponse{Message: "password changed, log in again"})
	}
}
