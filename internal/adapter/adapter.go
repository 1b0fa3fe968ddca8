// Package adapter defines the capability surface shared by the chat
// platform connections. Each adapter owns one live transport and emits
// normalized events on a channel; the channel closing is the single
// disconnect notification for that connection attempt.
package adapter

import "context"

type EventKind string

const (
	KindMessage EventKind = "message"
	KindSystem  EventKind = "system"
	KindError   EventKind = "error"
)

// ChatEvent is one normalized chat message.
type ChatEvent struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// Event is what an adapter publishes: either a chat message or a
// lifecycle notice.
type Event struct {
	Kind    EventKind
	Message ChatEvent // set when Kind == KindMessage
	Notice  string    // set for system and error events
	Detail  string    // optional error detail
}

// Conn is one logical connection to a chat platform. Implementations
// must close the Events channel exactly once per connection attempt and
// absorb repeated or premature Close calls.
type Conn interface {
	Connect(ctx context.Context) error
	Events() <-chan Event
	Close(reason string)
	IsConnected() bool
}
