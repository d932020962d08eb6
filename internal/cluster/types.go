package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoHandler is returned when a task names a kind no handler was registered for.
var ErrNoHandler = errors.New("no handler registered for task kind")

// TaskKind identifies which registered handler processes a task.
type TaskKind string

// TaskStatus is the terminal outcome of a task. The set is closed: every
// task resolves to exactly one of these values.
type TaskStatus string

const (
	// StatusProcessed means a handler ran to completion and produced a payload.
	StatusProcessed TaskStatus = "processed"
	// StatusFailed means the handler returned an error or panicked.
	StatusFailed TaskStatus = "failed"
	// StatusTimeout means no result arrived within the execution deadline.
	StatusTimeout TaskStatus = "timeout"
	// StatusNoNodes means no healthy node was available for dispatch.
	StatusNoNodes TaskStatus = "no-nodes"
	// StatusCapacityExceeded means the cluster refused the task at a queue or
	// node ceiling.
	StatusCapacityExceeded TaskStatus = "capacity-exceeded"
)

// Task is one unit of work routed to a worker node. The payload is opaque
// to everything except the handler that processes it.
type Task struct {
	ID          string          `json:"id"`
	Kind        TaskKind        `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at,omitempty"`
}

// TaskResult is the terminal record for a task.
type TaskResult struct {
	TaskID   string          `json:"task_id"`
	Status   TaskStatus      `json:"status"`
	NodeID   string          `json:"node_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration,omitempty"`
}

// Handler processes one task and returns its result payload.
type Handler func(ctx context.Context, task Task) (json.RawMessage, error)

// HandlerRegistry maps task kinds to handlers. Dispatch is closed: a kind
// without a registered handler fails with ErrNoHandler instead of being
// routed by name.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[TaskKind]Handler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[TaskKind]Handler),
	}
}

// Register installs the handler for a kind, replacing any previous one.
func (r *HandlerRegistry) Register(kind TaskKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Lookup returns the handler for a kind, or ErrNoHandler.
func (r *HandlerRegistry) Lookup(kind TaskKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	if !ok {
		return nil, ErrNoHandler
	}
	return h, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *HandlerRegistry) Kinds() []TaskKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]TaskKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
