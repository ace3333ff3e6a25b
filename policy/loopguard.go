package policy

import (
	"sort"
	"strings"
	"time"
)

// PairState is the loop-guard state machine for one bot pair.
type PairState int

const (
	Normal PairState = iota
	Suspect
	Suppressed
)

func (s PairState) String() string {
	switch s {
	case Suspect:
		return "suspect"
	case Suppressed:
		return "suppressed"
	}
	return "normal"
}

type pair struct {
	count        int
	state        PairState
	suppressedAt time.Time
}

// LoopGuard tracks consecutive bot-to-bot exchanges per pair of bot nicknames
// and suppresses pairs that keep feeding each other. Without it, two instances
// sharing a channel can drive unbounded request volume.
type LoopGuard struct {
	suspectAfter  int
	suppressAfter int
	cooldown      time.Duration

	pairs   map[string]*pair
	prevBot string // last bot to speak with no human message since
}

func NewLoopGuard(suspectAfter, suppressAfter int, cooldown time.Duration) *LoopGuard {
	return &LoopGuard{
		suspectAfter:  suspectAfter,
		suppressAfter: suppressAfter,
		cooldown:      cooldown,
		pairs:         make(map[string]*pair),
	}
}

// Observe feeds one channel message into the guard. Bot messages (including
// this bot's own outbound turns) extend the consecutive-exchange chain; a human
// message breaks every chain and resets non-suppressed pairs to Normal.
// Suppressed pairs sit out their cooldown regardless.
func (g *LoopGuard) Observe(speaker string, isBot bool, at time.Time) {
	if !isBot {
		g.prevBot = ""
		for k, p := range g.pairs {
			if p.state == Suppressed && at.Sub(p.suppressedAt) < g.cooldown {
				p.count = 0
				continue
			}
			delete(g.pairs, k)
		}
		return
	}
	nick := strings.ToLower(speaker)
	if g.prevBot != "" && g.prevBot != nick {
		p := g.pair(g.prevBot, nick)
		if p.state == Suppressed {
			if at.Sub(p.suppressedAt) < g.cooldown {
				g.prevBot = nick
				return
			}
			p.state = Normal
			p.count = 0
		}
		p.count++
		switch {
		case p.count >= g.suppressAfter:
			p.state = Suppressed
			p.suppressedAt = at
		case p.count >= g.suspectAfter:
			p.state = Suspect
		}
	}
	g.prevBot = nick
}

// Suppressed reports whether any currently suppressed pair involves the given
// speaker. Expired cooldowns are reset to Normal on the way through.
func (g *LoopGuard) Suppressed(speaker string, at time.Time) bool {
	nick := strings.ToLower(speaker)
	for k, p := range g.pairs {
		if p.state != Suppressed {
			continue
		}
		if at.Sub(p.suppressedAt) >= g.cooldown {
			p.state = Normal
			p.count = 0
			continue
		}
		if a, b, ok := strings.Cut(k, "|"); ok && (a == nick || b == nick) {
			return true
		}
	}
	return false
}

// State exposes the machine state for one pair, mainly for status reporting.
func (g *LoopGuard) State(a, b string) PairState {
	key := pairKey(strings.ToLower(a), strings.ToLower(b))
	if p, ok := g.pairs[key]; ok {
		return p.state
	}
	return Normal
}

func (g *LoopGuard) pair(a, b string) *pair {
	key := pairKey(a, b)
	p, ok := g.pairs[key]
	if !ok {
		p = &pair{}
		g.pairs[key] = p
	}
	return p
}

func pairKey(a, b string) string {
	s := []string{a, b}
	sort.Strings(s)
	return s[0] + "|" + s[1]
}
