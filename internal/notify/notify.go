package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventNewTender = "NEW_TENDER"
	EventNewBid    = "NEW_BID"
)

func TenderEvent(status string) string {
	return "TENDER_" + status
}

func BidEvent(status string) string {
	return "BID_" + status
}

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

func NewEvent(typ string, payload map[string]any) Event {
	return Event{Type: typ, Payload: payload, At: time.Now().UTC()}
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Deliverer hands an event to its final destination.
type Deliverer interface {
	Deliver(ctx context.Context, ev Event) error
}

// Inline delivers on the caller's goroutine. Used when no queue is configured.
type Inline struct {
	d Deliverer
}

func NewInline(d Deliverer) *Inline {
	return &Inline{d: d}
}

func (n *Inline) Notify(ctx context.Context, ev Event) error {
	return n.d.Deliver(ctx, ev)
}

type LogDeliverer struct {
	log zerolog.Logger
}

func NewLogDeliverer(log zerolog.Logger) *LogDeliverer {
	return &LogDeliverer{log: log}
}

func (d *LogDeliverer) Deliver(ctx context.Context, ev Event) error {
	d.log.Info().
		Str("event", ev.Type).
		Interface("payload", ev.Payload).
		Time("at", ev.At).
		Msg("notification")
	return nil
}

var (
	_ Notifier  = (*Inline)(nil)
	_ Notifier  = (*Queue)(nil)
	_ Deliverer = (*LogDeliverer)(nil)
	_ Deliverer = (*Webhook)(nil)
)
