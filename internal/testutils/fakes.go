package testutils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"govtender/internal/config"
	"govtender/internal/ledger"
	"govtender/internal/models"
	"govtender/internal/notify"
	"govtender/internal/storage"
)

var (
	ErrLedgerDown  = errors.New("ledger is down")
	ErrStorageDown = errors.New("storage is down")
)

// Ledger records events in memory. Set Err to fail every call, Delay to
// make calls slow; a slow call still honours ctx.
type Ledger struct {
	mu     sync.Mutex
	Err    error
	Delay  time.Duration
	events []ledger.Event
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Fail(err error) {
	l.mu.Lock()
	l.Err = err
	l.mu.Unlock()
}

func (l *Ledger) Record(ctx context.Context, ev ledger.Event) (ledger.Receipt, error) {
	l.mu.Lock()
	delay, err := l.Delay, l.Err
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ledger.Receipt{}, ctx.Err()
		}
	}
	if err != nil {
		return ledger.Receipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	n := len(l.events)
	return ledger.Receipt{Id: fmt.Sprintf("L-%d", n), TxHash: fmt.Sprintf("0x%04x", n)}, nil
}

// Tender replays the recorded events of one tender.
func (l *Ledger) Tender(ctx context.Context, ledgerId string) (models.LedgerSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return models.LedgerSnapshot{}, l.Err
	}
	snap := models.LedgerSnapshot{Id: ledgerId}
	for i, ev := range l.events {
		switch {
		case ev.Kind == ledger.TenderCreated && fmt.Sprintf("L-%d", i+1) == ledgerId:
			snap.Status = models.TenderOpen
			snap.Fields = ev.Fields
		case ev.TenderId == ledgerId && ev.Status != "" && ev.Kind != ledger.BidStatusChanged:
			snap.Status = models.TenderStatus(ev.Status)
		}
	}
	if snap.Status == "" {
		return snap, fmt.Errorf("no such tender on ledger: %s", ledgerId)
	}
	return snap, nil
}

func (l *Ledger) Events() []ledger.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.Event(nil), l.events...)
}

func (l *Ledger) Kinds() []ledger.EventKind {
	var kinds []ledger.EventKind
	for _, ev := range l.Events() {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// Storage serves as both image and document store.
type Storage struct {
	mu     sync.Mutex
	Err    error
	images int
	pinned [][]storage.File
}

func NewStorage() *Storage {
	return &Storage{}
}

func (s *Storage) Fail(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

func (s *Storage) UploadImage(ctx context.Context, f storage.File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	s.images++
	return fmt.Sprintf("https://images.test/%d/%s", s.images, f.Name), nil
}

func (s *Storage) Pin(ctx context.Context, files []storage.File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	s.pinned = append(s.pinned, files)
	return fmt.Sprintf("bafy-test-%d", len(s.pinned)), nil
}

func (s *Storage) Images() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images
}

func (s *Storage) Pins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pinned)
}

// Notifier keeps every event it was given.
type Notifier struct {
	mu     sync.Mutex
	Err    error
	events []notify.Event
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Notify(ctx context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Err != nil {
		return n.Err
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *Notifier) Types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var types []string
	for _, ev := range n.events {
		types = append(types, ev.Type)
	}
	return types
}

// TokenConfig is a token setup with short-lived test secrets.
func TokenConfig() config.TokenConfig {
	return config.TokenConfig{
		AccessSecret:  "test-access-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshSecret: "test-refresh-secret",
		RefreshExpiry: time.Hour,
		CookieSecure:  true,
	}
}

// PNG returns a small valid png image.
func PNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var (
	_ ledger.Ledger         = (*Ledger)(nil)
	_ storage.ImageStore    = (*Storage)(nil)
	_ storage.DocumentStore = (*Storage)(nil)
	_ notify.Notifier       = (*Notifier)(nil)
)
