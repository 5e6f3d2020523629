package ingest

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces bursts of events per path. A path is settled once no
// event for it has been seen for the window.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewDebouncer returns a Debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, pending: make(map[string]time.Time)}
}

// Observe records an event for path at.
func (d *Debouncer) Observe(path string, at time.Time) {
	d.mu.Lock()
	d.pending[path] = at
	d.mu.Unlock()
}

// Forget drops a pending path, e.g. after it was removed.
func (d *Debouncer) Forget(path string) {
	d.mu.Lock()
	delete(d.pending, path)
	d.mu.Unlock()
}

// Pending returns the number of unsettled paths.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Settled removes and returns, sorted, every path quiet since now-window.
func (d *Debouncer) Settled(now time.Time) []string {
	d.mu.Lock()
	var out []string
	for path, last := range d.pending {
		if now.Sub(last) >= d.window {
			out = append(out, path)
			delete(d.pending, path)
		}
	}
	d.mu.Unlock()
	sort.Strings(out)
	return out
}

// Run flushes settled paths to handle every interval until ctx is done.
// handle runs on the flush goroutine outside the lock.
func (d *Debouncer) Run(ctx context.Context, interval time.Duration, handle func(paths []string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if paths := d.Settled(now); len(paths) > 0 {
				handle(paths)
			}
		}
	}
}
