package watch

import (
	"sort"
	"sync"
	"time"
)

// accumulator coalesces per-path change notifications and emits one batch
// after a quiet window. Rapid bursts for the same path collapse to a single
// entry so a save storm cannot thrash the index.
type accumulator struct {
	window time.Duration
	flush  func(paths []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
}

func newAccumulator(window time.Duration, flush func([]string)) *accumulator {
	return &accumulator{
		window:  window,
		flush:   flush,
		pending: make(map[string]struct{}),
	}
}

// Add records a changed path and (re)arms the flush timer. Each new change
// pushes the flush out by another window.
func (a *accumulator) Add(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}
	a.pending[path] = struct{}{}
	if a.timer == nil {
		a.timer = time.AfterFunc(a.window, a.fire)
	} else {
		a.timer.Reset(a.window)
	}
}

func (a *accumulator) fire() {
	a.mu.Lock()
	if a.stopped || len(a.pending) == 0 {
		a.timer = nil
		a.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(a.pending))
	for p := range a.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	a.pending = make(map[string]struct{})
	a.timer = nil
	a.mu.Unlock()

	a.flush(paths)
}

// Stop discards pending paths and prevents further flushes.
// Safe to call multiple times.
func (a *accumulator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending = make(map[string]struct{})
}
