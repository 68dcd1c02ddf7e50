// Package queue carries event change notifications over RabbitMQ.
package queue

import "time"

// Actions published on the events queue.
const (
	ActionCreated   = "event.created"
	ActionUpdated   = "event.updated"
	ActionThumbnail = "event.thumbnail"
	ActionDeleted   = "event.deleted"
	ActionSwept     = "events.swept"
)

// EventChanged is published after every successful event write and after
// each retention sweep. Count is only set for sweeps.
type EventChanged struct {
	Action   string    `json:"action"`
	EventID  string    `json:"eventId,omitempty"`
	OwnerID  string    `json:"ownerId,omitempty"`
	Title    string    `json:"title,omitempty"`
	OccursAt time.Time `json:"occursAt,omitempty"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}
