// Package history keeps the in-memory, insertion-ordered record of every
// executed command across all jobs.
package history

import (
	"sync"

	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

// Ledger is an append-only list of command results with paginated reads.
// It is safe for concurrent use.
//
// With a retention cap the entries live in a ring: once full, head marks the
// oldest entry and each append overwrites it in place.
type Ledger struct {
	mu         sync.RWMutex
	entries    []models.CommandResult
	head       int
	maxEntries int
}

// NewLedger creates a Ledger that retains at most maxEntries results, evicting
// the oldest first. maxEntries <= 0 means unbounded.
func NewLedger(maxEntries int) *Ledger {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Ledger{maxEntries: maxEntries}
}

// Append adds result to the end of the ledger.
func (l *Ledger) Append(result models.CommandResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxEntries == 0 || len(l.entries) < l.maxEntries {
		l.entries = append(l.entries, result)
		return
	}
	l.entries[l.head] = result
	l.head = (l.head + 1) % len(l.entries)
}

// at returns the i-th retained entry in insertion order. Caller holds mu.
func (l *Ledger) at(i int) models.CommandResult {
	return l.entries[(l.head+i)%len(l.entries)]
}

// Page returns the page-th slice of size entries in insertion order and the
// total number of retained entries. Pages are 1-based; a page past the end
// yields an empty slice. Non-positive page or size also yield an empty slice.
func (l *Ledger) Page(page, size int) ([]models.CommandResult, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := len(l.entries)
	lo, hi, ok := bounds(page, size, total)
	if !ok {
		return []models.CommandResult{}, total
	}
	out := make([]models.CommandResult, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, l.at(i))
	}
	return out, total
}

// PageNewestFirst is Page over the ledger in reverse insertion order.
func (l *Ledger) PageNewestFirst(page, size int) ([]models.CommandResult, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := len(l.entries)
	lo, hi, ok := bounds(page, size, total)
	if !ok {
		return []models.CommandResult{}, total
	}
	out := make([]models.CommandResult, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, l.at(total-1-i))
	}
	return out, total
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear removes every entry.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.head = 0
}

func bounds(page, size, total int) (lo, hi int, ok bool) {
	if page < 1 || size < 1 {
		return 0, 0, false
	}
	// Guard the multiplication against overflow on absurd page numbers.
	if page-1 > total/size {
		return 0, 0, false
	}
	lo = (page - 1) * size
	if lo >= total {
		return 0, 0, false
	}
	hi = lo + size
	if hi > total {
		hi = total
	}
	return lo, hi, true
}
