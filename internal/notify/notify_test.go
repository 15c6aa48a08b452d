package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Deliver(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestEventNames(t *testing.T) {
	require.Equal(t, "TENDER_AWARDED", TenderEvent("AWARDED"))
	require.Equal(t, "BID_REJECTED", BidEvent("REJECTED"))
}

func TestWebhook(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "token", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithHeader("X-Api-Key", "token"))
	err := NewInline(hook).Notify(context.Background(), NewEvent(EventNewTender, map[string]any{"tenderId": "t1"}))
	require.NoError(t, err)
	require.Equal(t, EventNewTender, got.Type)
	require.Equal(t, "t1", got.Payload["tenderId"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	require.Error(t, NewWebhook(failing.URL).Deliver(context.Background(), NewEvent(EventNewBid, nil)))
}

func TestWorkerHandleDeliver(t *testing.T) {
	rec := &recorder{}
	w := &Worker{deliverer: rec, log: zerolog.Nop()}

	task, err := NewDeliverTask(NewEvent(BidEvent("ACCEPTED"), map[string]any{"bidId": "b1"}))
	require.NoError(t, err)
	require.Equal(t, TypeDeliver, task.Type())

	require.NoError(t, w.HandleDeliver(context.Background(), task))
	require.Len(t, rec.events, 1)
	require.Equal(t, "BID_ACCEPTED", rec.events[0].Type)

	// bad payloads are not retried
	err = w.HandleDeliver(context.Background(), asynq.NewTask(TypeDeliver, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	// delivery failures are retried
	rec.err = errors.New("down")
	err = w.HandleDeliver(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
