// Package ledger mirrors tender and bid lifecycle events to an external
// append-only ledger. The local database stays the source of truth for
// reads; the ledger receives every state change before it is committed
// locally.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"govtender/internal/metrics"
	"govtender/internal/models"
)

type EventKind string

const (
	TenderCreated       EventKind = "TenderCreated"
	TenderStatusChanged EventKind = "TenderStatusChanged"
	TenderCompleted     EventKind = "TenderCompleted"
	TenderCancelled     EventKind = "TenderCancelled"
	BidSubmitted        EventKind = "BidSubmitted"
	BidStatusChanged    EventKind = "BidStatusChanged"
	BidAccepted         EventKind = "BidAccepted"
)

// Event references tenders and bids by their ledger ids. Fields carries the
// record payload for creation events.
type Event struct {
	Kind     EventKind      `json:"kind"`
	TenderId string         `json:"tenderId,omitempty"`
	BidId    string         `json:"bidId,omitempty"`
	Status   string         `json:"status,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

type Receipt struct {
	Id     string `json:"id"`
	TxHash string `json:"txHash,omitempty"`
}

type Ledger interface {
	Record(ctx context.Context, ev Event) (Receipt, error)
	Tender(ctx context.Context, ledgerId string) (models.LedgerSnapshot, error)
}

var ErrNoSnapshot = errors.New("ledger does not provide tender snapshots")

// Guarded bounds every call with a timeout and reports failures as
// models.ErrLedger.
type Guarded struct {
	next    Ledger
	timeout time.Duration
}

func Guard(next Ledger, timeout time.Duration) *Guarded {
	return &Guarded{next: next, timeout: timeout}
}

func (g *Guarded) Record(ctx context.Context, ev Event) (Receipt, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	receipt, err := g.next.Record(ctx, ev)
	metrics.RecordLedgerCall(string(ev.Kind), err == nil)
	if err != nil {
		return receipt, fmt.Errorf("%w: %s: %w", models.ErrLedger, ev.Kind, err)
	}
	return receipt, nil
}

func (g *Guarded) Tender(ctx context.Context, ledgerId string) (models.LedgerSnapshot, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	snap, err := g.next.Tender(ctx, ledgerId)
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return snap, fmt.Errorf("%w: %w", models.ErrLedger, err)
	}
	return snap, err
}

func (g *Guarded) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
