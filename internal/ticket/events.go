package ticket

import (
	"context"
	"time"
)

type EventType string

const (
	EventCharged        EventType = "ticket.charged"
	EventProofSubmitted EventType = "ticket.proof_submitted"
	EventVerified       EventType = "ticket.verified"
)

type Event struct {
	Type          EventType `json:"type"`
	TransactionID int64     `json:"transaction_id"`
	UserID        int64     `json:"user_id"`
	ActorID       int64     `json:"actor_id"`
	Amount        string    `json:"amount,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	Confirmed     int64     `json:"confirmed,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher announces lifecycle events. Failures are logged by callers and
// never undo the database work that preceded them.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error {
	return nil
}
