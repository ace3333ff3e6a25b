// Package transport maintains one live connection to a chat server and converts
// between wire traffic and structured events. Two adapters exist behind the same
// interface: a generic IRC client and a Twitch IRC client. Protocol callbacks
// are reframed as a single-consumer event channel so the session loop pulls
// events in order with natural backpressure.
//
// Keepalive (PING/PONG) is answered inside the adapters; the session layer may
// assume it is handled transparently. A Conn is not restartable: after a
// Disconnected event the dialer must be used again.
package transport

import (
	"context"
	"fmt"
	"time"
)

type EventKind int

const (
	EventJoined EventKind = iota
	EventMessage
	EventPing
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventMessage:
		return "message"
	case EventPing:
		return "ping"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is one structured inbound occurrence. Which fields are set depends on
// Kind: Joined carries Channel; Message carries Channel, Nick, Text; Ping
// carries Token; Disconnected carries Err (nil on clean close).
type Event struct {
	Kind    EventKind
	Channel string
	Nick    string
	Text    string
	Token   string
	Err     error
	At      time.Time
}

// Command is one outbound channel message.
type Command struct {
	Channel string
	Text    string
}

// Conn is a live connection. Events is closed after the Disconnected event is
// delivered; Send fails once the connection is down. Errors from Send are
// reported to the caller, never swallowed.
type Conn interface {
	Events() <-chan Event
	Send(Command) error
	Close() error
}

// Dialer establishes a fresh connection. Implementations must confine all
// protocol detail behind the Event/Command types.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// AuthError marks a registration-time failure (bad password, rejected nick,
// invalid oauth token). It is fatal: reconnecting with the same credentials
// cannot succeed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}
