package guard

import (
	"fmt"
	"sync"
	"time"
)

// FrequencyWindow counts executed trades inside a sliding window. Pruning is
// lazy: stale timestamps fall off on the next query, so a burst followed by
// quiet naturally frees capacity as the window slides.
type FrequencyWindow struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	times  []time.Time

	nowFn func() time.Time
}

// NewFrequencyWindow allows limit trades per window.
func NewFrequencyWindow(limit int, window time.Duration) *FrequencyWindow {
	return &FrequencyWindow{
		window: window,
		limit:  limit,
		nowFn:  time.Now,
	}
}

// Record registers an executed trade. Call it only after execution; a vetoed
// trade never consumes capacity.
func (f *FrequencyWindow) Record() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times = append(f.times, f.nowFn())
	f.pruneLocked()
}

// Allow reports whether one more trade fits in the window right now.
func (f *FrequencyWindow) Allow() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked()
	if f.limit <= 0 {
		return true, "OK"
	}
	if len(f.times) >= f.limit {
		return false, fmt.Sprintf("trade frequency limit: %d trades in the last %s (max %d)",
			len(f.times), f.window, f.limit)
	}
	return true, "OK"
}

// Count returns the number of trades currently inside the window.
func (f *FrequencyWindow) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked()
	return len(f.times)
}

func (f *FrequencyWindow) pruneLocked() {
	cutoff := f.nowFn().Add(-f.window)
	keep := f.times[:0]
	for _, t := range f.times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	f.times = keep
}
