package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"govtender/internal/models"
	"govtender/internal/service"
	"govtender/internal/storage"
)

const (
	maxJSONBody      = 16 << 10
	maxDocumentsBody = 20 << 20
	maxFormMemory    = 8 << 20

	imageField     = "dp"
	documentsField = "documents"
)

func parseJSON(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: request body is empty", models.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed json: %s", models.ErrValidation, err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart bounds the whole body by limit before parsing.
func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := r.ParseMultipartForm(maxFormMemory)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", models.ErrValidation, limit)
		}
		return fmt.Errorf("%w: malformed multipart form: %s", models.ErrValidation, err)
	}
	return nil
}

// removeMultipart deletes the temp files of a parsed form. The server only
// cleans up the form of its own request, not of the copies made by
// middleware.
func removeMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}

func readFormFile(fh *multipart.FileHeader, limit int64) (storage.File, error) {
	f, err := fh.Open()
	if err != nil {
		return storage.File{}, err
	}
	defer f.Close()

	// one byte over the limit lets the size check see oversized files
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return storage.File{}, err
	}
	return storage.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

func formFiles(r *http.Request, field string) ([]storage.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	var files []storage.File
	for _, fh := range r.MultipartForm.File[field] {
		f, err := readFormFile(fh, maxDocumentsBody)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Citizen registration

func ParseCitizenRegistration(w http.ResponseWriter, r *http.Request) (service.CitizenRegistration, error) {
	var reg service.CitizenRegistration

	if !isMultipart(r) {
		return reg, fmt.Errorf("%w: expected multipart/form-data with a '%s' image", models.ErrValidation, imageField)
	}
	if err := parseMultipart(w, r, storage.MaxImageSize+maxJSONBody); err != nil {
		return reg, err
	}

	reg.Username = r.FormValue("username")
	reg.Email = r.FormValue("email")
	reg.FullName = r.FormValue("fullName")
	reg.Password = r.FormValue("password")

	// a missing image is reported by the service as a validation error
	if fhs := r.MultipartForm.File[imageField]; len(fhs) > 0 {
		avatar, err := readFormFile(fhs[0], storage.MaxImageSize)
		if err != nil {
			return reg, err
		}
		reg.Avatar = avatar
	}
	return reg, nil
}

// Login requests

type CitizenLoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AccountReq struct {
	UserId   int64  `json:"userId"`
	Password string `json:"password"`
}

type RefreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordReq struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type VerifyAdminReq struct {
	AdminId string `json:"adminId"`
}

type StatusReq struct {
	Status string `json:"status"`
}

// New tender request

type NewTenderReq struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Budget      float64 `json:"budget"`
	Deadline    string  `json:"deadline"`
}

func parseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: deadline is required", models.ErrValidation)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: deadline must be RFC 3339 or YYYY-MM-DD, got %q", models.ErrValidation, s)
}

func parseAmount(field, s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be a number", models.ErrValidation, field)
	}
	return v, nil
}

// ParseNewTender accepts a JSON body or a multipart form whose 'documents'
// files are pinned with the tender.
func (c *Controller) ParseNewTender(w http.ResponseWriter, r *http.Request) (service.NewTender, error) {
	var (
		req   NewTenderReq
		files []storage.File
	)

	if isMultipart(r) {
		if err := parseMultipart(w, r, maxDocumentsBody); err != nil {
			return service.NewTender{}, err
		}
		budget, err := parseAmount("budget", r.FormValue("budget"))
		if err != nil {
			return service.NewTender{}, err
		}
		req = NewTenderReq{
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
			Budget:      budget,
			Deadline:    r.FormValue("deadline"),
		}
		if files, err = formFiles(r, documentsField); err != nil {
			return service.NewTender{}, err
		}
	} else {
		data, err := c.readBody(w, r)
		if err != nil {
			return service.NewTender{}, err
		}
		if err = parseJSON(data, &req); err != nil {
			return service.NewTender{}, err
		}
	}

	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return service.NewTender{}, err
	}

	return service.NewTender{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Deadline:    deadline,
		Documents:   files,
	}, nil
}

// New bid request

type NewBidReq struct {
	Amount           float64 `json:"amount"`
	Description      string  `json:"description"`
	ProposedTimeline string  `json:"proposedTimeline"`
}

func (c *Controller) ParseNewBid(w http.ResponseWriter, r *http.Request) (service.NewBid, error) {
	var (
		req   NewBidReq
		files []storage.File
	)

	if isMultipart(r) {
		if err := parseMultipart(w, r, maxDocumentsBody); err != nil {
			return service.NewBid{}, err
		}
		amount, err := parseAmount("amount", r.FormValue("amount"))
		if err != nil {
			return service.NewBid{}, err
		}
		req = NewBidReq{
			Amount:           amount,
			Description:      r.FormValue("description"),
			ProposedTimeline: r.FormValue("proposedTimeline"),
		}
		if files, err = formFiles(r, documentsField); err != nil {
			return service.NewBid{}, err
		}
	} else {
		data, err := c.readBody(w, r)
		if err != nil {
			return service.NewBid{}, err
		}
		if err = parseJSON(data, &req); err != nil {
			return service.NewBid{}, err
		}
	}

	return service.NewBid{
		Amount:           req.Amount,
		Description:      req.Description,
		ProposedTimeline: req.ProposedTimeline,
		Documents:        files,
	}, nil
}

// Tender list query

func (c *Controller) ParseTenderFilter(r *http.Request) (models.TenderFilter, error) {
	var (
		f   models.TenderFilter
		err error
	)
	query := r.URL.Query()

	f.Status = models.TenderStatus(strings.ToUpper(query.Get("status")))
	f.Search = query.Get("search")

	if f.Limit, err = c.getQueryInt(query, "limit"); err != nil {
		return f, fmt.Errorf("%w: invalid value of 'limit' query parameter: %s", models.ErrValidation, query.Get("limit"))
	}
	if f.Offset, err = c.getQueryInt(query, "offset"); err != nil {
		return f, fmt.Errorf("%w: invalid value of 'offset' query parameter: %s", models.ErrValidation, query.Get("offset"))
	}
	if f.MinBudget, err = c.getQueryFloat(query, "minBudget"); err != nil {
		return f, fmt.Errorf("%w: invalid value of 'minBudget' query parameter: %s", models.ErrValidation, query.Get("minBudget"))
	}
	if f.MaxBudget, err = c.getQueryFloat(query, "maxBudget"); err != nil {
		return f, fmt.Errorf("%w: invalid value of 'maxBudget' query parameter: %s", models.ErrValidation, query.Get("maxBudget"))
	}
	return f, nil
}
