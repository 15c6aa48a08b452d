package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const TypeDeliver = "notification:deliver"

// Queue enqueues events for the Worker.
type Queue struct {
	client *asynq.Client
	log    zerolog.Logger
}

func NewQueue(redisOpt asynq.RedisClientOpt, log zerolog.Logger) *Queue {
	return &Queue{client: asynq.NewClient(redisOpt), log: log}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Notify(ctx context.Context, ev Event) error {
	task, err := NewDeliverTask(ev)
	if err != nil {
		return err
	}

	_, err = q.client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	if err != nil {
		q.log.Warn().Err(err).Str("event", ev.Type).Msg("enqueue notification failed")
		return fmt.Errorf("notify.Queue.Notify: %w", err)
	}
	return nil
}

func NewDeliverTask(ev Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("notify.NewDeliverTask: %w", err)
	}
	return asynq.NewTask(TypeDeliver, payload), nil
}

// Worker consumes notification tasks and hands them to a Deliverer.
type Worker struct {
	srv       *asynq.Server
	mux       *asynq.ServeMux
	deliverer Deliverer
	log       zerolog.Logger
}

func NewWorker(redisOpt asynq.RedisClientOpt, concurrency int, d Deliverer, log zerolog.Logger) *Worker {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		LogLevel:    asynq.WarnLevel,
	})
	w := &Worker{srv: srv, mux: asynq.NewServeMux(), deliverer: d, log: log}
	w.mux.HandleFunc(TypeDeliver, w.HandleDeliver)
	return w
}

// HandleDeliver drops undecodable payloads instead of retrying them.
func (w *Worker) HandleDeliver(ctx context.Context, t *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		w.log.Error().Err(err).Msg("notification task payload invalid")
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	if err := w.deliverer.Deliver(ctx, ev); err != nil {
		w.log.Warn().Err(err).Str("event", ev.Type).Msg("notification delivery failed")
		return err
	}
	return nil
}

// Start launches the processors and returns; call Shutdown to stop them.
func (w *Worker) Start() error {
	return w.srv.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
