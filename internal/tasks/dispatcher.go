package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

var ErrTaskNotFound = errors.New("task not found")

const defaultQueue = "default"

// Dispatcher enqueues background work and answers status polls. The
// enclosing request only ever waits for the enqueue, never for the work.
type Dispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewDispatcher(opt asynq.RedisClientOpt) *Dispatcher {
	return &Dispatcher{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

func (d *Dispatcher) Close() error {
	if err := d.client.Close(); err != nil {
		return err
	}
	return d.inspector.Close()
}

// Enqueue submits a task and returns its id for status polling.
// Completed tasks are retained so the poll contract survives success.
func (d *Dispatcher) Enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(defaultQueue),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return info.ID, nil
}

type TaskStatus struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	State     string `json:"state"`
	Retried   int    `json:"retried"`
	LastError string `json:"last_error,omitempty"`
}

func (d *Dispatcher) Status(id string) (*TaskStatus, error) {
	info, err := d.inspector.GetTaskInfo(defaultQueue, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("task info: %w", err)
	}
	return &TaskStatus{
		ID:        info.ID,
		Type:      info.Type,
		State:     info.State.String(),
		Retried:   info.Retried,
		LastError: info.LastErr,
	}, nil
}
