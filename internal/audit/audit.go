// Package audit maintains the append-only trail of security events. Events
// are persisted through the store and mirrored to the structured log; normal
// operation never mutates or deletes a recorded event.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"salesauto.org/internal/ids"
	"salesauto.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ClientContext carries requester metadata, threaded explicitly through the
// call chain rather than pulled from request-scoped globals.
type ClientContext struct {
	IP        string
	UserAgent string
}

// Event is one immutable audit record. ActorID is empty for system actions.
type Event struct {
	ID           string
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Description  string
	IP           string
	UserAgent    string
	OldValues    map[string]any
	NewValues    map[string]any
	CreatedAt    time.Time
}

// Page bounds a query result window.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Store persists events. All list queries return newest-first.
type Store interface {
	Append(ctx context.Context, e *Event) error
	ListByResource(ctx context.Context, resourceType, resourceID string, p Page) ([]Event, error)
	ListByActor(ctx context.Context, actorID string, p Page) ([]Event, error)
	ListByAction(ctx context.Context, action string, p Page) ([]Event, error)
	ListByTimeRange(ctx context.Context, from, to time.Time, p Page) ([]Event, error)
}

// Trail is the only mutation path for audit events.
type Trail struct {
	store Store
	now   func() time.Time
}

// NewTrail constructs a Trail.
func NewTrail(store Store) (*Trail, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	return &Trail{store: store, now: time.Now}, nil
}

// Record assigns a fresh event id and timestamp, persists the event, and
// mirrors it to the structured log.
func (t *Trail) Record(ctx context.Context, e Event) (*Event, error) {
	if strings.TrimSpace(e.Action) == "" {
		return nil, errors.New("audit: action is required")
	}
	e.ID = ids.New()
	e.CreatedAt = t.now().UTC()

	if err := t.store.Append(ctx, &e); err != nil {
		return nil, err
	}

	entry := map[string]any{
		"ts":            e.CreatedAt.Format(time.RFC3339Nano),
		"type":          "audit",
		"event_id":      e.ID,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}
	if e.ActorID != "" {
		entry["actor_id"] = e.ActorID
	}
	if e.ResourceID != "" {
		entry["resource_id"] = e.ResourceID
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	obs.LogRequest(entry)
	return &e, nil
}

// TryRecord is the best-effort variant: a failed audit write is logged and
// swallowed so it cannot abort the caller's primary operation.
func (t *Trail) TryRecord(ctx context.Context, e Event) {
	if _, err := t.Record(ctx, e); err != nil {
		obs.LogRequest(map[string]any{
			"level":  "error",
			"msg":    "audit write failed",
			"action": e.Action,
			"error":  err.Error(),
		})
	}
}

// ByResource lists events for a resource, newest-first.
func (t *Trail) ByResource(ctx context.Context, resourceType, resourceID string, p Page) ([]Event, error) {
	return t.store.ListByResource(ctx, resourceType, resourceID, p.normalize())
}

// ByActor lists events recorded for an actor, newest-first.
func (t *Trail) ByActor(ctx context.Context, actorID string, p Page) ([]Event, error) {
	return t.store.ListByActor(ctx, actorID, p.normalize())
}

// ByAction lists events for an action, newest-first.
func (t *Trail) ByAction(ctx context.Context, action string, p Page) ([]Event, error) {
	return t.store.ListByAction(ctx, action, p.normalize())
}

// ByTimeRange lists events with from <= created_at < to, newest-first.
func (t *Trail) ByTimeRange(ctx context.Context, from, to time.Time, p Page) ([]Event, error) {
	return t.store.ListByTimeRange(ctx, from, to, p.normalize())
}
