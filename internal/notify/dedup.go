package notify

import (
	"sync"
	"time"
)

// DedupMap is a fixed-capacity key to last-seen-timestamp map. When adding a
// key would exceed the capacity, the whole map is cleared rather than
// evicting individual entries; the occasional duplicate alert after a clear
// is an accepted cost of the bound.
type DedupMap struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	entries  map[string]time.Time
}

// NewDedupMap creates a DedupMap. Keys re-seen within window are reported as
// duplicates.
func NewDedupMap(capacity int, window time.Duration) *DedupMap {
	if capacity <= 0 {
		capacity = 100
	}
	return &DedupMap{
		capacity: capacity,
		window:   window,
		entries:  make(map[string]time.Time, capacity),
	}
}

// Seen records key at now and reports whether it was already present within
// the dedup window.
func (d *DedupMap) Seen(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.entries[key]
	if ok && now.Sub(last) < d.window {
		d.entries[key] = now
		return true
	}

	if !ok && len(d.entries) >= d.capacity {
		d.entries = make(map[string]time.Time, d.capacity)
	}
	d.entries[key] = now
	return false
}

// Len returns the current number of tracked keys.
func (d *DedupMap) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
