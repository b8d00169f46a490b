// Package events publishes domain and audit events after a change commits.
// Publishing is best effort: callers log failures and carry on.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/google/uuid"
)

type Type string

const (
	ReservationCreated       Type = "reservation.created"
	ReservationStatusChanged Type = "reservation.status_changed"
	PaymentStatusChanged     Type = "payment.status_changed"
	ClassDeleted             Type = "class.deleted"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	ActorID    uint      `json:"actorId"`
	ActorRole  auth.Role `json:"actorRole"`
	Payload    any       `json:"payload"`
}

func New(t Type, actor auth.Identity, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
