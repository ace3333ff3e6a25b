// Package policy decides when the bot speaks: per-message trigger evaluation,
// the bot-pair loop guard, and the outbound rate window. All state here is owned
// by a single channel loop; none of it is locked.
package policy

import (
	"math/rand"
	"strings"
	"time"

	"github.com/onnwee/chatbridge/history"
)

// Decision is the outcome of evaluating one inbound message.
type Decision int

const (
	Ignore Decision = iota
	Respond
	ScheduleLead
)

func (d Decision) String() string {
	switch d {
	case Respond:
		return "respond"
	case ScheduleLead:
		return "schedule-lead"
	}
	return "ignore"
}

// Action pairs a decision with the delay for ScheduleLead.
type Action struct {
	Kind  Decision
	After time.Duration
}

// Trigger evaluates inbound turns against the addressing rules, the loop guard
// and lead-mode idle scheduling.
type Trigger struct {
	nick   string
	lead   bool
	idle   time.Duration
	jitter time.Duration
	guard  *LoopGuard

	randInt63n func(int64) int64
}

func NewTrigger(nick string, lead bool, idle, jitter time.Duration, guard *LoopGuard) *Trigger {
	return &Trigger{nick: nick, lead: lead, idle: idle, jitter: jitter, guard: guard, randInt63n: rand.Int63n}
}

// Evaluate applies the rules in priority order. Suppression by the loop guard
// wins over direct addressing: once a bot pair is suppressed, nothing that pair
// says gets a response until the cooldown elapses.
func (t *Trigger) Evaluate(turn history.Turn, at time.Time) Action {
	if turn.Origin == history.OriginSelf {
		return t.idleAction()
	}
	if turn.Origin == history.OriginOtherBot && t.guard != nil && t.guard.Suppressed(turn.Speaker, at) {
		return t.idleAction()
	}
	if Addresses(turn.Text, t.nick) {
		return Action{Kind: Respond}
	}
	return t.idleAction()
}

// LeadDelay returns the jittered idle delay for arming a lead timer, or false
// when lead mode is off.
func (t *Trigger) LeadDelay() (time.Duration, bool) {
	if !t.lead {
		return 0, false
	}
	d := t.idle
	if t.jitter > 0 {
		d += time.Duration(t.randInt63n(int64(t.jitter)))
	}
	return d, true
}

func (t *Trigger) idleAction() Action {
	if d, ok := t.LeadDelay(); ok {
		return Action{Kind: ScheduleLead, After: d}
	}
	return Action{Kind: Ignore}
}

// Addresses reports whether text speaks to nick directly: a "nick:"/"nick,"
// prefix or the nick appearing as a standalone word, case-insensitive.
func Addresses(text, nick string) bool {
	if nick == "" {
		return false
	}
	lower := strings.ToLower(text)
	n := strings.ToLower(nick)
	trimmed := strings.TrimLeft(lower, " ")
	for _, sep := range []string{":", ",", " "} {
		if strings.HasPrefix(trimmed, n+sep) {
			return true
		}
	}
	if trimmed == n {
		return true
	}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_' || r == '-' || r == '[' || r == ']')
	}) {
		if w == n {
			return true
		}
	}
	return false
}
