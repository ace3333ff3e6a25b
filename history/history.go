// Package history keeps the per-channel conversation state: an ordered, bounded
// buffer of turns and read-only context windows derived from it. One buffer has
// exactly one owning goroutine (the channel's session loop); there is no internal
// locking.
package history

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Origin classifies who produced a turn.
type Origin int

const (
	OriginHuman Origin = iota
	OriginSelf
	OriginOtherBot
)

func (o Origin) String() string {
	switch o {
	case OriginHuman:
		return "human"
	case OriginSelf:
		return "self"
	case OriginOtherBot:
		return "other-bot"
	}
	return "unknown"
}

// Turn is one attributed message. Immutable once created.
type Turn struct {
	ID        string
	Speaker   string
	Text      string
	Timestamp time.Time
	Origin    Origin
}

// NewTurn stamps a fresh turn with a uuid and the given wall time.
func NewTurn(speaker, text string, at time.Time, origin Origin) Turn {
	return Turn{ID: uuid.NewString(), Speaker: speaker, Text: text, Timestamp: at, Origin: origin}
}

// Classifier derives a speaker's origin from its nickname. Nicknames can change
// mid-session, so classification happens per message, never cached on identity.
type Classifier struct {
	selfNick string
	botNicks map[string]struct{}
}

func NewClassifier(selfNick string, botNicks []string) *Classifier {
	m := make(map[string]struct{}, len(botNicks))
	for _, n := range botNicks {
		m[strings.ToLower(n)] = struct{}{}
	}
	return &Classifier{selfNick: strings.ToLower(selfNick), botNicks: m}
}

// Classify returns the origin for a nickname. Bots are recognized from the
// configured list or by the conventional "bot"/"_ai" suffix.
func (c *Classifier) Classify(nick string) Origin {
	n := strings.ToLower(nick)
	if n == c.selfNick {
		return OriginSelf
	}
	if _, ok := c.botNicks[n]; ok {
		return OriginOtherBot
	}
	if strings.HasSuffix(n, "bot") || strings.HasSuffix(n, "_ai") {
		return OriginOtherBot
	}
	return OriginHuman
}

// Buffer is a bounded FIFO of turns for one channel. Oldest entries are evicted
// first, on both capacity and age; order is never rearranged.
type Buffer struct {
	turns  []Turn
	cap    int
	maxAge time.Duration
	now    func() time.Time
}

func NewBuffer(capacity int, maxAge time.Duration) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{cap: capacity, maxAge: maxAge, now: time.Now}
}

// Append adds a turn and evicts whatever no longer fits the capacity or
// retention bounds.
func (b *Buffer) Append(t Turn) {
	b.turns = append(b.turns, t)
	b.evict(b.now())
}

// Len reports the current number of retained turns (after age eviction).
func (b *Buffer) Len() int {
	b.evict(b.now())
	return len(b.turns)
}

// Last returns the most recent turn, if any.
func (b *Buffer) Last() (Turn, bool) {
	if len(b.turns) == 0 {
		return Turn{}, false
	}
	return b.turns[len(b.turns)-1], true
}

func (b *Buffer) evict(now time.Time) {
	cut := 0
	if b.maxAge > 0 {
		deadline := now.Add(-b.maxAge)
		for cut < len(b.turns) && b.turns[cut].Timestamp.Before(deadline) {
			cut++
		}
	}
	if over := len(b.turns) - cut - b.cap; over > 0 {
		cut += over
	}
	if cut > 0 {
		b.turns = append(b.turns[:0:0], b.turns[cut:]...)
	}
}

// Window is a read-only snapshot of recent turns, ordered oldest first. It is
// built once per model request and never mutated afterwards.
type Window struct {
	Turns []Turn
}

// Window derives a snapshot bounded by maxTurns and maxAge, whichever cuts
// deeper. Zero disables the respective bound.
func (b *Buffer) Window(maxTurns int, maxAge time.Duration) Window {
	b.evict(b.now())
	now := b.now()
	start := 0
	if maxAge > 0 {
		deadline := now.Add(-maxAge)
		for start < len(b.turns) && b.turns[start].Timestamp.Before(deadline) {
			start++
		}
	}
	if maxTurns > 0 && len(b.turns)-start > maxTurns {
		start = len(b.turns) - maxTurns
	}
	snap := make([]Turn, len(b.turns)-start)
	copy(snap, b.turns[start:])
	return Window{Turns: snap}
}
