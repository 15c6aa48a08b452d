// Package testutils holds in-memory stand-ins for the database, ledger and
// object storage, plus small HTTP helpers for handler tests.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"govtender/internal/models"

	"github.com/google/uuid"
)

// Store mirrors repository.Repository in memory. A single mutex plays the
// role of the row locks, so callbacks run while the state cannot change.
type Store struct {
	mu       sync.Mutex
	citizens map[string]models.Citizen
	admins   map[string]models.Admin
	owners   map[string]models.Owner
	pending  map[string]time.Time
	tenders  map[string]models.Tender
	bids     map[string]models.Bid
}

func NewStore() *Store {
	return &Store{
		citizens: map[string]models.Citizen{},
		admins:   map[string]models.Admin{},
		owners:   map[string]models.Owner{},
		pending:  map[string]time.Time{},
		tenders:  map[string]models.Tender{},
		bids:     map[string]models.Bid{},
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func noRows(what, id string) error {
	return fmt.Errorf("testutils.Store: %s %s: %w", what, id, sql.ErrNoRows)
}

func cloneToken(t *string) *string {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

//// Principals

func (s *Store) AddCitizen(ctx context.Context, c models.Citizen) (models.Citizen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.citizens {
		if other.Email == c.Email || other.Username == c.Username {
			return c, fmt.Errorf("testutils.Store.AddCitizen: %w", models.ErrDuplicateUser)
		}
	}

	now := time.Now()
	c.Id = uuid.NewString()
	c.CreatedAt, c.UpdatedAt = now, now
	c.RefreshToken = nil
	s.citizens[c.Id] = c
	return c, nil
}

func (s *Store) CitizenExists(ctx context.Context, email, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.citizens {
		if c.Email == email || c.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CitizenByEmail(ctx context.Context, email string) (models.Citizen, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.citizens {
		if c.Email == email {
			c.RefreshToken = cloneToken(c.RefreshToken)
			return c, true, nil
		}
	}
	return models.Citizen{}, false, nil
}

func (s *Store) CitizenById(ctx context.Context, id string) (models.Citizen, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.citizens[id]
	c.RefreshToken = cloneToken(c.RefreshToken)
	return c, ok, nil
}

func (s *Store) AddAdmin(ctx context.Context, a models.Admin) (models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.admins {
		if other.UserId == a.UserId {
			return a, fmt.Errorf("testutils.Store.AddAdmin: %w", models.ErrDuplicateUser)
		}
	}

	now := time.Now()
	a.Id = uuid.NewString()
	a.IsVerified = false
	a.CreatedAt, a.UpdatedAt = now, now
	a.RefreshToken = nil
	s.admins[a.Id] = a
	s.pending[a.Id] = now
	return a, nil
}

func (s *Store) AdminByUserId(ctx context.Context, userId int64) (models.Admin, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.admins {
		if a.UserId == userId {
			a.RefreshToken = cloneToken(a.RefreshToken)
			return a, true, nil
		}
	}
	return models.Admin{}, false, nil
}

func (s *Store) AdminById(ctx context.Context, id string) (models.Admin, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admins[id]
	a.RefreshToken = cloneToken(a.RefreshToken)
	return a, ok, nil
}

func (s *Store) VerifyAdmin(ctx context.Context, id string) (models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admins[id]
	if !ok {
		return a, fmt.Errorf("testutils.Store.VerifyAdmin: %w", models.ErrNoAdmin)
	}
	a.IsVerified = true
	a.UpdatedAt = time.Now()
	s.admins[id] = a
	delete(s.pending, id)
	return a, nil
}

func (s *Store) PendingAdmins(ctx context.Context) ([]models.PendingAdmin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := []models.PendingAdmin{}
	for id, at := range s.pending {
		res = append(res, models.PendingAdmin{AdminId: id, UserId: s.admins[id].UserId, RequestedAt: at})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RequestedAt.Before(res[j].RequestedAt) })
	return res, nil
}

func (s *Store) AddOwner(ctx context.Context, o models.Owner) (models.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.owners {
		if other.UserId == o.UserId {
			return o, fmt.Errorf("testutils.Store.AddOwner: %w", models.ErrDuplicateUser)
		}
	}

	now := time.Now()
	o.Id = uuid.NewString()
	o.CreatedAt, o.UpdatedAt = now, now
	o.RefreshToken = nil
	s.owners[o.Id] = o
	return o, nil
}

func (s *Store) OwnerByUserId(ctx context.Context, userId int64) (models.Owner, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.owners {
		if o.UserId == userId {
			o.RefreshToken = cloneToken(o.RefreshToken)
			return o, true, nil
		}
	}
	return models.Owner{}, false, nil
}

func (s *Store) OwnerById(ctx context.Context, id string) (models.Owner, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.owners[id]
	o.RefreshToken = cloneToken(o.RefreshToken)
	return o, ok, nil
}

// slot gives access to the refresh token and password of any principal.
func (s *Store) slot(role models.Role, id string, fn func(token **string, password *string)) error {
	switch role {
	case models.RoleCitizen:
		c, ok := s.citizens[id]
		if ok {
			fn(&c.RefreshToken, &c.Password)
			s.citizens[id] = c
		}
	case models.RoleAdmin:
		a, ok := s.admins[id]
		if ok {
			fn(&a.RefreshToken, &a.Password)
			s.admins[id] = a
		}
	case models.RoleOwner:
		o, ok := s.owners[id]
		if ok {
			fn(&o.RefreshToken, &o.Password)
			s.owners[id] = o
		}
	default:
		return fmt.Errorf("testutils.Store: unknown role %q", role)
	}
	return nil
}

func (s *Store) SetRefreshToken(ctx context.Context, role models.Role, id string, token *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.slot(role, id, func(slot **string, _ *string) {
		*slot = cloneToken(token)
	})
}

func (s *Store) SwapRefreshToken(ctx context.Context, role models.Role, id, old, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swapped := false
	err := s.slot(role, id, func(slot **string, _ *string) {
		if *slot != nil && **slot == old {
			*slot = &next
			swapped = true
		}
	})
	return swapped, err
}

func (s *Store) ChangePassword(ctx context.Context, role models.Role, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.slot(role, id, func(slot **string, password *string) {
		*password = hash
		*slot = nil
	})
}

//// Tenders

func (s *Store) GetTenders(ctx context.Context, f models.TenderFilter) ([]models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(f.Search)
	res := []models.Tender{}
	for _, t := range s.tenders {
		switch {
		case f.Status != "" && t.Status != f.Status:
			continue
		case f.MinBudget != nil && t.Budget < *f.MinBudget:
			continue
		case f.MaxBudget != nil && t.Budget > *f.MaxBudget:
			continue
		case search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search):
			continue
		}
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })

	if f.Offset >= len(res) {
		return []models.Tender{}, nil
	}
	res = res[f.Offset:]
	if f.Limit > 0 && f.Limit < len(res) {
		res = res[:f.Limit]
	}
	return res, nil
}

func (s *Store) GetTenderByUUID(ctx context.Context, id string) (models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenders[id]
	if !ok {
		return t, noRows("tender", id)
	}
	return t, nil
}

func (s *Store) AddTender(ctx context.Context, t models.Tender) (models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.admins[t.CreatedBy]; !ok {
		return t, fmt.Errorf("testutils.Store.AddTender: unknown admin %s", t.CreatedBy)
	}

	now := time.Now()
	t.Id = uuid.NewString()
	t.Status = models.TenderOpen
	t.SelectedBidId = nil
	t.CreatedAt, t.UpdatedAt = now, now
	s.tenders[t.Id] = t
	return t, nil
}

func (s *Store) TransitionTender(ctx context.Context, id string, decide func(models.Tender) (models.TenderStatus, error)) (models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenders[id]
	if !ok {
		return t, noRows("tender", id)
	}

	status, err := decide(t)
	if err != nil {
		return t, err
	}

	t.Status = status
	t.UpdatedAt = time.Now()
	s.tenders[id] = t
	return t, nil
}

//// Bids

func (s *Store) GetBidByUUID(ctx context.Context, id string) (models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[id]
	if !ok {
		return b, noRows("bid", id)
	}
	return b, nil
}

func (s *Store) AddBid(ctx context.Context, tenderId string, prepare func(models.Tender) (models.Bid, error)) (models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenders[tenderId]
	if !ok {
		return models.Bid{}, noRows("tender", tenderId)
	}

	b, err := prepare(t)
	if err != nil {
		return models.Bid{}, err
	}

	now := time.Now()
	b.Id = uuid.NewString()
	b.TenderId = t.Id
	b.Status = models.BidSubmitted
	b.CreatedAt, b.UpdatedAt = now, now
	s.bids[b.Id] = b
	return b, nil
}

func (s *Store) TenderBids(ctx context.Context, tenderId string) ([]models.TenderBid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := []models.TenderBid{}
	for _, b := range s.bids {
		if b.TenderId != tenderId {
			continue
		}
		c := s.citizens[b.BidderId]
		res = append(res, models.TenderBid{Bid: b, BidderName: c.FullName, BidderEmail: c.Email})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Amount < res[j].Amount })
	return res, nil
}

func (s *Store) CitizenBids(ctx context.Context, citizenId string) ([]models.CitizenBid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := []models.CitizenBid{}
	for _, b := range s.bids {
		if b.BidderId != citizenId {
			continue
		}
		t := s.tenders[b.TenderId]
		res = append(res, models.CitizenBid{Bid: b, TenderTitle: t.Title, TenderStatus: t.Status})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (s *Store) bidAndTender(bidId string) (models.Tender, models.Bid, error) {
	b, ok := s.bids[bidId]
	if !ok {
		return models.Tender{}, b, noRows("bid", bidId)
	}
	return s.tenders[b.TenderId], b, nil
}

func (s *Store) TransitionBid(ctx context.Context, bidId string, decide func(models.Tender, models.Bid) (models.BidStatus, error)) (models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, b, err := s.bidAndTender(bidId)
	if err != nil {
		return b, err
	}

	status, err := decide(t, b)
	if err != nil {
		return b, err
	}

	b.Status = status
	b.UpdatedAt = time.Now()
	s.bids[bidId] = b
	return b, nil
}

func (s *Store) AcceptBid(ctx context.Context, bidId string, check func(models.Tender, models.Bid) error) (models.Bid, models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, b, err := s.bidAndTender(bidId)
	if err != nil {
		return b, t, err
	}

	if err = check(t, b); err != nil {
		return b, t, err
	}

	now := time.Now()
	for id, other := range s.bids {
		if other.TenderId != t.Id {
			continue
		}
		if id == bidId {
			other.Status = models.BidAccepted
		} else {
			other.Status = models.BidRejected
		}
		other.UpdatedAt = now
		s.bids[id] = other
	}

	selected := bidId
	t.Status = models.TenderAwarded
	t.SelectedBidId = &selected
	t.UpdatedAt = now
	s.tenders[t.Id] = t
	return s.bids[bidId], t, nil
}

//// Inspection

func (s *Store) TenderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tenders)
}

func (s *Store) BidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bids)
}

func (s *Store) CitizenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.citizens)
}

// StoredRefreshToken returns the refresh slot of a principal, "" when empty.
func (s *Store) StoredRefreshToken(role models.Role, id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var token string
	_ = s.slot(role, id, func(slot **string, _ *string) {
		if *slot != nil {
			token = **slot
		}
	})
	return token
}
