package policy

import "time"

// RateWindow enforces a hard ceiling on outbound messages inside a sliding
// window. A token bucket would admit bursts above the ceiling, so timestamps
// are kept explicitly; at the default ceiling the slice stays tiny.
type RateWindow struct {
	ceiling int
	window  time.Duration
	stamps  []time.Time
}

func NewRateWindow(ceiling int, window time.Duration) *RateWindow {
	return &RateWindow{ceiling: ceiling, window: window}
}

// Allow records one send at the given time if the ceiling permits it. When the
// window is full the send must be dropped, not queued.
func (r *RateWindow) Allow(at time.Time) bool {
	r.prune(at)
	if len(r.stamps) >= r.ceiling {
		return false
	}
	r.stamps = append(r.stamps, at)
	return true
}

// Count reports sends still inside the window.
func (r *RateWindow) Count(at time.Time) int {
	r.prune(at)
	return len(r.stamps)
}

func (r *RateWindow) prune(at time.Time) {
	cut := 0
	for cut < len(r.stamps) && at.Sub(r.stamps[cut]) >= r.window {
		cut++
	}
	if cut > 0 {
		r.stamps = append(r.stamps[:0:0], r.stamps[cut:]...)
	}
}
