package controller

import (
	"net/http"
	"strings"

	"govtender/internal/models"

	"github.com/go-chi/chi/v5"
)

func (c *Controller) parseStatus(w http.ResponseWriter, r *http.Request) (string, error) {
	data, err := c.readBody(w, r)
	if err != nil {
		return "", err
	}

	var req StatusReq
	if err = parseJSON(data, &req); err != nil {
		return "", err
	}
	return strings.ToUpper(strings.TrimSpace(req.Status)), nil
}

//// Tenders

// GET /tenders
func (c *Controller) GetTenders(w http.ResponseWriter, r *http.Request) {
	filter, err := c.ParseTenderFilter(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	tenders, err := c.service.GetTenders(r.Context(), filter)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	if tenders == nil {
		tenders = []models.Tender{}
	}
	c.marshalResponse(w, tenders)
}

// POST /tenders
func (c *Controller) NewTender(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminFrom(r)
	if !ok {
		c.forbidden(w)
		return
	}

	defer removeMultipart(r)
	req, err := c.ParseNewTender(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	tender, err := c.service.CreateTender(r.Context(), admin, req)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponseStatus(w, http.StatusCreated, tender)
}

// GET /tenders/{id}
func (c *Controller) GetTender(w http.ResponseWriter, r *http.Request) {
	p, _ := models.PrincipalFrom(r.Context())

	details, err := c.service.GetTender(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, details)
}

// PATCH /tenders/{id}/status
func (c *Controller) SetTenderStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminFrom(r)
	if !ok {
		c.forbidden(w)
		return
	}

	status, err := c.parseStatus(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	tender, err := c.service.UpdateTenderStatus(r.Context(), admin, chi.URLParam(r, "id"), models.TenderStatus(status))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tender)
}

// POST /tenders/{id}/complete
func (c *Controller) CompleteTender(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminFrom(r)
	if !ok {
		c.forbidden(w)
		return
	}

	tender, err := c.service.CompleteTender(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tender)
}

//// Bids

// POST /tenders/{tenderId}/bids
func (c *Controller) NewBid(w http.ResponseWriter, r *http.Request) {
	citizen, ok := citizenFrom(r)
	if !ok {
		c.forbidden(w)
		return
	}

	defer removeMultipart(r)
	req, err := c.ParseNewBid(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	bid, err := c.service.SubmitBid(r.Context(), citizen, chi.URLParam(r, "tenderId"), req)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponseStatus(w, http.StatusCreated, bid)
}

// GET /tenders/{tenderId}/bids
func (c *Controller) TenderBids(w http.ResponseWriter, r *http.Request) {
	p, ok := models.PrincipalFrom(r.Context())
	if !ok {
		c.forbidden(w)
		return
	}

	bids, err := c.service.TenderBids(r.Context(), p, chi.URLParam(r, "tenderId"))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	if bids == nil {
		bids = []models.TenderBid{}
	}
	c.marshalResponse(w, bids)
}

// GET /users/me/bids
func (c *Controller) MyBids(w http.ResponseWriter, r *http.Request) {
	citizen, ok := citizenFrom(r)
	if !ok {
		c.forbidden(w)
		return
	}

	bids, err := c.service.CitizenBids(r.Context(), citizen)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	if bids == nil {
		bids = []models.CitizenBid{}
	}
	c.marshalResponse(w, bids)
}

// PATCH /bids/{id}/status
func (c *Controller) SetBidStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminFrom(r)
	if !ok {
		c.forbidden(w)
		return
	}

	status, err := c.parseStatus(w, r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	bid, err := c.service.UpdateBidStatus(r.Context(), admin, chi.URLParam(r, "id"), models.BidStatus(status))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, bid)
}
