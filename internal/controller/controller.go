package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"govtender/internal/config"
	"govtender/internal/models"
	"govtender/internal/service"

	"github.com/rs/zerolog/log"
)

type Service interface {
	Ping(ctx context.Context) error

	RegisterCitizen(ctx context.Context, reg service.CitizenRegistration) (models.Citizen, error)
	RegisterAdmin(ctx context.Context, reg service.AdminRegistration) (models.Admin, error)
	VerifyAdmin(ctx context.Context, owner *models.Owner, adminId string) (models.Admin, error)
	PendingAdmins(ctx context.Context, owner *models.Owner) ([]models.PendingAdmin, error)
	LoginCitizen(ctx context.Context, email, password string) (service.Session, error)
	LoginAdmin(ctx context.Context, userId int64, password string) (service.Session, error)
	LoginOwner(ctx context.Context, userId int64, password string) (service.Session, error)
	Refresh(ctx context.Context, role models.Role, token string) (service.Session, error)
	Logout(ctx context.Context, p models.Principal) error
	ChangePassword(ctx context.Context, p models.Principal, oldPassword, newPassword string) error
	ResolvePrincipal(ctx context.Context, accessToken string) (models.Principal, error)

	CreateTender(ctx context.Context, admin *models.Admin, req service.NewTender) (models.Tender, error)
	GetTenders(ctx context.Context, filter models.TenderFilter) ([]models.Tender, error)
	GetTender(ctx context.Context, p models.Principal, id string) (models.TenderDetails, error)
	UpdateTenderStatus(ctx context.Context, admin *models.Admin, id string, status models.TenderStatus) (models.Tender, error)
	CompleteTender(ctx context.Context, admin *models.Admin, id string) (models.Tender, error)

	SubmitBid(ctx context.Context, citizen *models.Citizen, tenderId string, req service.NewBid) (models.Bid, error)
	TenderBids(ctx context.Context, p models.Principal, tenderId string) ([]models.TenderBid, error)
	CitizenBids(ctx context.Context, citizen *models.Citizen) ([]models.CitizenBid, error)
	UpdateBidStatus(ctx context.Context, admin *models.Admin, bidId string, status models.BidStatus) (models.Bid, error)
}

type Controller struct {
	service      Service
	accessTTL    time.Duration
	refreshTTL   time.Duration
	cookieSecure bool
}

func NewController(service Service, tokens config.TokenConfig) *Controller {
	return &Controller{
		service:      service,
		accessTTL:    tokens.AccessExpiry,
		refreshTTL:   tokens.RefreshExpiry,
		cookieSecure: tokens.CookieSecure,
	}
}

// GET /api/ping
func (c *Controller) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// GET /health
func (c *Controller) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := c.service.Ping(ctx); err != nil {
		c.marshalResponseStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "down: " + err.Error(),
		})
		return
	}
	c.marshalResponse(w, map[string]string{"status": "ok", "database": "ok"})
}

// Service

type ErrorResponse struct {
	Reason string `json:"reason"`
}

func (c *Controller) getQueryInt(query url.Values, key string) (int, error) {
	strs, ok := query[key]
	if ok && len(strs) > 0 && strs[0] != "" {
		return strconv.Atoi(strs[0])
	}
	return 0, nil
}

func (c *Controller) getQueryFloat(query url.Values, key string) (*float64, error) {
	str := query.Get(key)
	if str == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%q is not a finite number", str)
	}
	return &v, nil
}

func (c *Controller) errorResponse(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	data, err := json.Marshal(ErrorResponse{Reason: text})
	if err != nil {
		log.Error().Err(err).Msg("controller.Controller.errorResponse")
		return
	}

	_, err = w.Write(data)
	if err != nil {
		log.Error().Err(err).Msg("controller.Controller.errorResponse")
		return
	}
}

// reason cuts the call-site prefixes off err, keeping the text from the
// matched sentinel onwards.
func reason(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}

func (c *Controller) serviceErrorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.errorResponse(w, http.StatusBadRequest, reason(err, models.ErrValidation))
	case errors.Is(err, models.ErrDuplicateUser):
		c.errorResponse(w, http.StatusBadRequest, "user with this email, username or user id already exists")
	case errors.Is(err, models.ErrNoTender):
		c.errorResponse(w, http.StatusNotFound, "requested tender does not exist")
	case errors.Is(err, models.ErrNoBid):
		c.errorResponse(w, http.StatusNotFound, "requested bid does not exist")
	case errors.Is(err, models.ErrNoAdmin):
		c.errorResponse(w, http.StatusNotFound, "requested admin does not exist")
	case errors.Is(err, models.ErrNoCitizen), errors.Is(err, models.ErrNoOwner):
		c.errorResponse(w, http.StatusNotFound, "requested user does not exist")
	case errors.Is(err, models.ErrAccountNotVerified):
		c.errorResponse(w, http.StatusUnauthorized, "account is not verified yet, wait for owner approval")
	case errors.Is(err, models.ErrInvalidCredentials):
		c.errorResponse(w, http.StatusUnauthorized, "invalid user credentials")
	case errors.Is(err, models.ErrExpiredOrRevokedToken):
		c.errorResponse(w, http.StatusUnauthorized, "refresh token is expired or used")
	case errors.Is(err, models.ErrInvalidToken):
		c.errorResponse(w, http.StatusUnauthorized, "invalid access token")
	case errors.Is(err, models.ErrUnauthorized):
		c.errorResponse(w, http.StatusUnauthorized, "unauthorized request")
	case errors.Is(err, models.ErrForbidden):
		c.errorResponse(w, http.StatusForbidden, "principal does not have permission for requested action")
	case errors.Is(err, models.ErrTenderNotOpen):
		c.errorResponse(w, http.StatusConflict, reason(err, models.ErrTenderNotOpen))
	case errors.Is(err, models.ErrInvalidTransition):
		c.errorResponse(w, http.StatusConflict, reason(err, models.ErrInvalidTransition))
	case errors.Is(err, models.ErrBidFinalized):
		c.errorResponse(w, http.StatusConflict, reason(err, models.ErrBidFinalized))
	case errors.Is(err, models.ErrUpload), errors.Is(err, models.ErrStorage), errors.Is(err, models.ErrLedger):
		log.Error().Err(err).Msg("controller: external dependency failed")
		c.errorResponse(w, http.StatusInternalServerError, "internal server error: "+err.Error())
	default:
		log.Error().Err(err).Msg("controller")
		c.errorResponse(w, http.StatusInternalServerError, "internal server error: "+err.Error())
	}
}

func (c *Controller) marshalResponse(w http.ResponseWriter, data any) {
	c.marshalResponseStatus(w, http.StatusOK, data)
}

func (c *Controller) marshalResponseStatus(w http.ResponseWriter, status int, data any) {
	d, err := json.Marshal(data)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not marshal response data")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(d)
	if err != nil {
		log.Error().Err(err).Msg("controller.Controller.marshalResponse: could not write response data")
	}
}

// readBody reads at most maxJSONBody bytes of a JSON request body.
func (c *Controller) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	src := http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: request body exceeds %d bytes", models.ErrValidation, tooLarge.Limit)
		}
		return nil, err
	}
	return data, nil
}
