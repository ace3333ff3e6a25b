package session

import (
	"sort"
	"strings"
	"time"
)

// InboundMessage is one coalesced channel message ready for trigger evaluation.
type InboundMessage struct {
	Nick string
	Text string
	At   time.Time
}

type pendingLines struct {
	parts []string
	first time.Time
	last  time.Time
}

// Coalescer merges rapid consecutive lines from the same sender into a single
// message once the sender has been quiet for the configured period. People
// often split one thought across several quick lines; evaluating each line
// separately triggers noisy partial responses.
type Coalescer struct {
	quiet    time.Duration
	bySender map[string]*pendingLines
}

func NewCoalescer(quiet time.Duration) *Coalescer {
	return &Coalescer{quiet: quiet, bySender: make(map[string]*pendingLines)}
}

// Add buffers one raw line.
func (c *Coalescer) Add(nick, text string, at time.Time) {
	p, ok := c.bySender[nick]
	if !ok {
		p = &pendingLines{first: at}
		c.bySender[nick] = p
	}
	p.parts = append(p.parts, text)
	p.last = at
}

// Flush returns messages whose senders have been quiet for the full period,
// ordered by the time of their last line.
func (c *Coalescer) Flush(now time.Time) []InboundMessage {
	var out []InboundMessage
	for nick, p := range c.bySender {
		if now.Sub(p.last) < c.quiet {
			continue
		}
		out = append(out, InboundMessage{Nick: nick, Text: strings.Join(p.parts, " "), At: p.last})
		delete(c.bySender, nick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Pending reports how many senders currently have buffered lines.
func (c *Coalescer) Pending() int { return len(c.bySender) }
