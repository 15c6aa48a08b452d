package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"govtender/internal/auth"
	"govtender/internal/ledger"
	"govtender/internal/metrics"
	"govtender/internal/models"
	"govtender/internal/notify"
	"govtender/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultLedgerTimeout = 30 * time.Second

// Repository is the persistence the service needs. Transition methods run
// their callback while the affected rows are locked; an error returned from
// the callback rolls the whole change back.
type Repository interface {
	Ping(ctx context.Context) error

	AddCitizen(ctx context.Context, c models.Citizen) (models.Citizen, error)
	CitizenExists(ctx context.Context, email, username string) (bool, error)
	CitizenByEmail(ctx context.Context, email string) (models.Citizen, bool, error)
	CitizenById(ctx context.Context, id string) (models.Citizen, bool, error)
	AddAdmin(ctx context.Context, a models.Admin) (models.Admin, error)
	AdminByUserId(ctx context.Context, userId int64) (models.Admin, bool, error)
	AdminById(ctx context.Context, id string) (models.Admin, bool, error)
	VerifyAdmin(ctx context.Context, id string) (models.Admin, error)
	PendingAdmins(ctx context.Context) ([]models.PendingAdmin, error)
	AddOwner(ctx context.Context, o models.Owner) (models.Owner, error)
	OwnerByUserId(ctx context.Context, userId int64) (models.Owner, bool, error)
	OwnerById(ctx context.Context, id string) (models.Owner, bool, error)
	SetRefreshToken(ctx context.Context, role models.Role, id string, token *string) error
	SwapRefreshToken(ctx context.Context, role models.Role, id, old, next string) (bool, error)
	ChangePassword(ctx context.Context, role models.Role, id, hash string) error

	GetTenders(ctx context.Context, filter models.TenderFilter) ([]models.Tender, error)
	GetTenderByUUID(ctx context.Context, id string) (models.Tender, error)
	AddTender(ctx context.Context, t models.Tender) (models.Tender, error)
	TransitionTender(ctx context.Context, id string, decide func(models.Tender) (models.TenderStatus, error)) (models.Tender, error)

	GetBidByUUID(ctx context.Context, id string) (models.Bid, error)
	AddBid(ctx context.Context, tenderId string, prepare func(models.Tender) (models.Bid, error)) (models.Bid, error)
	TenderBids(ctx context.Context, tenderId string) ([]models.TenderBid, error)
	CitizenBids(ctx context.Context, citizenId string) ([]models.CitizenBid, error)
	TransitionBid(ctx context.Context, bidId string, decide func(models.Tender, models.Bid) (models.BidStatus, error)) (models.Bid, error)
	AcceptBid(ctx context.Context, bidId string, check func(models.Tender, models.Bid) error) (models.Bid, models.Tender, error)
}

type Service struct {
	repo      Repository
	tokens    *auth.TokenService
	ledger    ledger.Ledger
	images    storage.ImageStore
	documents storage.DocumentStore
	notifier  notify.Notifier
	validate  *validator.Validate
	log       zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithLedger bounds every call to l with timeout and reports failures as
// models.ErrLedger.
func WithLedger(l ledger.Ledger, timeout time.Duration) Option {
	return func(s *Service) {
		s.ledger = ledger.Guard(l, timeout)
	}
}

func WithImageStore(images storage.ImageStore) Option {
	return func(s *Service) {
		s.images = images
	}
}

func WithDocumentStore(documents storage.DocumentStore) Option {
	return func(s *Service) {
		s.documents = documents
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, tokens *auth.TokenService, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		tokens:   tokens,
		ledger:   ledger.Guard(ledger.NewNoop(), defaultLedgerTimeout),
		validate: newValidator(),
		log:      log.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewInline(notify.NewLogDeliverer(s.log))
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Amounts are stored as NUMERIC(20, 2) and must be positive.
const maxAmount = 1e18

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("amount", validAmount)
	return v
}

// validAmount accepts finite values of at least one cent, below maxAmount,
// with no more than two decimals.
func validAmount(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0.01 || v >= maxAmount {
		return false
	}
	digits := strconv.FormatFloat(v, 'f', -1, 64)
	if dot := strings.IndexByte(digits, '.'); dot >= 0 && len(digits)-dot-1 > 2 {
		return false
	}
	return true
}

// validateStruct runs the validate tags of v and reports the first failing
// field as models.ErrValidation.
func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}

	fe := verrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", models.ErrValidation, field)
	case "email":
		return fmt.Errorf("%w: %s is not a valid email", models.ErrValidation, field)
	case "min", "gt":
		return fmt.Errorf("%w: %s must be at least %s", models.ErrValidation, field, fe.Param())
	case "max":
		return fmt.Errorf("%w: %s must be at most %s", models.ErrValidation, field, fe.Param())
	case "amount":
		return fmt.Errorf("%w: %s must be between 0.01 and 1e18 with at most two decimals", models.ErrValidation, field)
	default:
		return fmt.Errorf("%w: %s is invalid (%s)", models.ErrValidation, field, fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// notFound turns a missing row into the given domain error.
func notFound(err, target error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return target
	}
	return err
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// notify never fails the caller: by the time it runs the change is committed.
func (s *Service) notify(ctx context.Context, typ string, payload map[string]any) {
	err := s.notifier.Notify(context.WithoutCancel(ctx), notify.NewEvent(typ, payload))
	if err != nil {
		s.log.Warn().Err(err).Str("event", typ).Msg("notification failed")
	}
}

func (s *Service) uploadImage(ctx context.Context, f storage.File) (string, error) {
	if s.images == nil {
		return "", fmt.Errorf("%w: no image store configured", models.ErrUpload)
	}
	url, err := s.images.UploadImage(ctx, f)
	metrics.RecordStorageUpload("image", err == nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrUpload, err)
	}
	return url, nil
}

// pinDocuments returns "" without touching the store when there is nothing to pin.
func (s *Service) pinDocuments(ctx context.Context, files []storage.File) (string, error) {
	if len(files) == 0 {
		return "", nil
	}
	if s.documents == nil {
		return "", fmt.Errorf("%w: no document store configured", models.ErrStorage)
	}
	hash, err := s.documents.Pin(ctx, files)
	metrics.RecordStorageUpload("document", err == nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	return hash, nil
}
