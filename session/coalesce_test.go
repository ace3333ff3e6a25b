package session

import (
	"testing"
	"time"
)

func TestCoalescerMergesBurst(t *testing.T) {
	now := time.Now()
	c := NewCoalescer(time.Second)

	c.Add("alice", "so I was thinking", now)
	c.Add("alice", "about the thing", now.Add(200*time.Millisecond))
	c.Add("alice", "you mentioned", now.Add(400*time.Millisecond))

	if got := c.Flush(now.Add(500 * time.Millisecond)); len(got) != 0 {
		t.Fatalf("flushed %d messages before quiet period elapsed", len(got))
	}
	got := c.Flush(now.Add(1500 * time.Millisecond))
	if len(got) != 1 {
		t.Fatalf("flushed %d messages, want 1", len(got))
	}
	if got[0].Text != "so I was thinking about the thing you mentioned" {
		t.Errorf("merged text = %q", got[0].Text)
	}
	if c.Pending() != 0 {
		t.Errorf("coalescer still holds %d senders after flush", c.Pending())
	}
}

func TestCoalescerPerSender(t *testing.T) {
	now := time.Now()
	c := NewCoalescer(time.Second)

	c.Add("alice", "first", now)
	c.Add("bob", "second", now.Add(100*time.Millisecond))

	got := c.Flush(now.Add(2 * time.Second))
	if len(got) != 2 {
		t.Fatalf("flushed %d messages, want 2", len(got))
	}
	// Ordered by last-line time.
	if got[0].Nick != "alice" || got[1].Nick != "bob" {
		t.Errorf("order = %s, %s; want alice, bob", got[0].Nick, got[1].Nick)
	}
}

func TestCoalescerNewLineExtendsQuietPeriod(t *testing.T) {
	now := time.Now()
	c := NewCoalescer(time.Second)

	c.Add("alice", "part one", now)
	c.Add("alice", "part two", now.Add(900*time.Millisecond))
	// 1.5s after the first line, but only 600ms after the second.
	if got := c.Flush(now.Add(1500 * time.Millisecond)); len(got) != 0 {
		t.Fatalf("flushed %d messages while sender still active", len(got))
	}
}
