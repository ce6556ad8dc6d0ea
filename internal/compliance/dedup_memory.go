package compliance

import (
	"context"
	"sync"
	"time"
)

type watermarks struct {
	mu     sync.Mutex
	warn   *time.Time
	breach *time.Time
}

func (w *watermarks) get(class AlertClass) *time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if class == AlertBreach {
		return w.breach
	}
	return w.warn
}

func (w *watermarks) set(class AlertClass, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if class == AlertBreach {
		w.breach = &at
		return
	}
	w.warn = &at
}

// MemoryDeduplicator keeps watermarks in process memory. Entries are never
// evicted and are lost on restart.
type MemoryDeduplicator struct {
	intervals Intervals
	entries   sync.Map
}

// NewMemoryDeduplicator constructs the volatile variant.
func NewMemoryDeduplicator(intervals Intervals) *MemoryDeduplicator {
	return &MemoryDeduplicator{intervals: intervals}
}

// MayFire implements Deduplicator.
func (d *MemoryDeduplicator) MayFire(_ context.Context, ticketID int64, class AlertClass, now time.Time) (bool, error) {
	if err := validClass(class); err != nil {
		return false, err
	}
	v, ok := d.entries.Load(ticketID)
	if !ok {
		return true, nil
	}
	return allow(v.(*watermarks).get(class), now, d.intervals.For(class)), nil
}

// RecordFired implements Deduplicator.
func (d *MemoryDeduplicator) RecordFired(_ context.Context, ticketID int64, class AlertClass, now time.Time) error {
	if err := validClass(class); err != nil {
		return err
	}
	v, _ := d.entries.LoadOrStore(ticketID, &watermarks{})
	v.(*watermarks).set(class, now)
	return nil
}

// Len reports how many tickets have ever fired.
func (d *MemoryDeduplicator) Len() int {
	n := 0
	d.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
