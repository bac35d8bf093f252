package active

import (
	"errors"
	"sync"
	"time"

	"liminal/internal/types"
)

// ============================================================================
// ACTIVE SPIN TABLE
// ============================================================================
//
// Entries are created by a running spin and marked complete when it finishes.
// Completed entries stay queryable until Sweep removes them; the sweep cutoff
// is owned by the scheduler (see active.retention in the config).

var (
	ErrDuplicateSpin = errors.New("spin already exists")
	ErrSpinNotFound  = errors.New("spin not found")
)

type Table struct {
	mu    sync.RWMutex
	spins map[string]*types.ActiveSpin
}

func NewTable() *Table {
	return &Table{spins: make(map[string]*types.ActiveSpin)}
}

// ============================================================================
// MUTATIONS
// ============================================================================

func (t *Table) Insert(spin types.ActiveSpin) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.spins[spin.ID]; exists {
		return ErrDuplicateSpin
	}
	c := spin.Clone()
	t.spins[spin.ID] = &c
	return nil
}

// Update applies fn to the entry under the table lock. Missing ids and
// completed entries are left untouched; the return value reports whether fn ran.
func (t *Table) Update(id string, fn func(*types.ActiveSpin)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	spin, ok := t.spins[id]
	if !ok || spin.IsComplete {
		return false
	}
	fn(spin)
	return true
}

// Sweep drops completed entries that finished before cutoff.
func (t *Table) Sweep(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, spin := range t.spins {
		if !spin.IsComplete || spin.CompletedAt == nil {
			continue
		}
		if spin.CompletedAt.Before(cutoff) {
			delete(t.spins, id)
			removed++
		}
	}
	return removed
}

// ============================================================================
// QUERIES
// ============================================================================

func (t *Table) Get(id string) (types.ActiveSpin, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	spin, ok := t.spins[id]
	if !ok {
		return types.ActiveSpin{}, ErrSpinNotFound
	}
	return spin.Clone(), nil
}

// Snapshot returns a point-in-time copy of every entry, completed ones included.
func (t *Table) Snapshot() []types.ActiveSpin {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.ActiveSpin, 0, len(t.spins))
	for _, spin := range t.spins {
		out = append(out, spin.Clone())
	}
	return out
}

// Active returns the entries that have not completed, in no particular order.
func (t *Table) Active() []types.ActiveSpin {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.ActiveSpin, 0, len(t.spins))
	for _, spin := range t.spins {
		if !spin.IsComplete {
			out = append(out, spin.Clone())
		}
	}
	return out
}

// Stats counts entries by completion.
func (t *Table) Stats() (running, completed int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, spin := range t.spins {
		if spin.IsComplete {
			completed++
		} else {
			running++
		}
	}
	return running, completed
}
