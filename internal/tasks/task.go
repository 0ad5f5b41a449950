package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task kinds produced by the bridge.
const (
	KindForwardNotification = "telegram.forward_notification"
	KindSetupWebhook        = "telegram.setup_webhook"
)

var (
	// ErrUnknownKind is returned when no handler is registered for a task kind.
	ErrUnknownKind = errors.New("no handler for task kind")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("task queue is closed")
)

// Task is the envelope of one background job.
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// New creates a task with a fresh ID. A nil payload produces a task without one.
func New(kind string, payload interface{}) (Task, error) {
	t := Task{ID: uuid.NewString(), Kind: kind, EnqueuedAt: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Task{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
		}
		t.Payload = raw
	}
	return t, nil
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v interface{}) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("task %s (%s) has no payload", t.ID, t.Kind)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("failed to decode task %s (%s) payload: %w", t.ID, t.Kind, err)
	}
	return nil
}

// Queue accepts tasks for background processing.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Close() error
}
