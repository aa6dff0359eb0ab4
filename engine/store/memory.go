// Package store provides an in-memory engine.Store for tests and demos.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/clearsplit/settlement-engine/engine"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory is a mutex-guarded map store. Atomically snapshots state
// before running fn and restores it on error, giving the same
// all-or-nothing behavior the SQL store gets from transactions.
type Memory struct {
	mu          sync.RWMutex
	entries     map[string]*engine.LedgerEntry
	settlements map[string]*engine.Settlement
}

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[string]*engine.LedgerEntry),
		settlements: make(map[string]*engine.Settlement),
	}
}

func (m *Memory) SaveEntry(_ context.Context, e *engine.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEntryLocked(e)
}

func (m *Memory) saveEntryLocked(e *engine.LedgerEntry) error {
	if prev, ok := m.entries[e.ID]; ok && prev.Settled && e.Settled {
		// Check-after-write guard: the entry was retired by someone
		// else since this operation read it.
		return &engine.ConcurrencyConflictError{Detail: "entry " + e.ID + " settled concurrently"}
	}
	m.entries[e.ID] = e.Clone()
	return nil
}

func (m *Memory) GetEntry(_ context.Context, id string) (*engine.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "ledger entry", ID: id}
	}
	return e.Clone(), nil
}

func (m *Memory) ListEntries(_ context.Context, f engine.EntryFilter) ([]*engine.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*engine.LedgerEntry
	for _, e := range m.entries {
		if matchEntry(e, f) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchEntry(e *engine.LedgerEntry, f engine.EntryFilter) bool {
	if f.UserID != "" && !e.Involves(f.UserID) {
		return false
	}
	if f.DebtorID != "" && e.DebtorID != f.DebtorID {
		return false
	}
	if f.CreditorID != "" && e.CreditorID != f.CreditorID {
		return false
	}
	if f.ExpenseID != "" && e.ExpenseID != f.ExpenseID {
		return false
	}
	if f.GroupID != "" && e.GroupID != f.GroupID {
		return false
	}
	if f.Currency != "" && e.Amount.Currency != f.Currency {
		return false
	}
	if f.Settled != nil && e.Settled != *f.Settled {
		return false
	}
	return true
}

func (m *Memory) SaveSettlement(_ context.Context, s *engine.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[s.ID] = s.Clone()
	return nil
}

func (m *Memory) GetSettlement(_ context.Context, id string) (*engine.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settlements[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "settlement", ID: id}
	}
	return s.Clone(), nil
}

func (m *Memory) ListSettlements(_ context.Context, f engine.SettlementFilter) ([]*engine.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*engine.Settlement
	for _, s := range m.settlements {
		if f.UserID != "" && s.PayerID != f.UserID && s.PayeeID != f.UserID {
			continue
		}
		if f.GroupID != "" && s.GroupID != f.GroupID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Atomically serializes the critical section under the write lock and
// rolls the maps back if fn fails.
func (m *Memory) Atomically(_ context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entrySnap := make(map[string]*engine.LedgerEntry, len(m.entries))
	for k, v := range m.entries {
		entrySnap[k] = v.Clone()
	}
	settlementSnap := make(map[string]*engine.Settlement, len(m.settlements))
	for k, v := range m.settlements {
		settlementSnap[k] = v.Clone()
	}

	if err := fn(&txMemory{m: m}); err != nil {
		m.entries = entrySnap
		m.settlements = settlementSnap
		return err
	}
	return nil
}

// Reset drops everything. Used by the demo scenario loader.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*engine.LedgerEntry)
	m.settlements = make(map[string]*engine.Settlement)
	return nil
}

// txMemory is the view handed to Atomically callbacks. The caller
// already holds the write lock, so it touches the maps directly.
type txMemory struct {
	m *Memory
}

func (t *txMemory) SaveEntry(_ context.Context, e *engine.LedgerEntry) error {
	return t.m.saveEntryLocked(e)
}

func (t *txMemory) GetEntry(_ context.Context, id string) (*engine.LedgerEntry, error) {
	e, ok := t.m.entries[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "ledger entry", ID: id}
	}
	return e.Clone(), nil
}

func (t *txMemory) ListEntries(_ context.Context, f engine.EntryFilter) ([]*engine.LedgerEntry, error) {
	var out []*engine.LedgerEntry
	for _, e := range t.m.entries {
		if matchEntry(e, f) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *txMemory) SaveSettlement(_ context.Context, s *engine.Settlement) error {
	t.m.settlements[s.ID] = s.Clone()
	return nil
}

func (t *txMemory) GetSettlement(_ context.Context, id string) (*engine.Settlement, error) {
	s, ok := t.m.settlements[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "settlement", ID: id}
	}
	return s.Clone(), nil
}

func (t *txMemory) ListSettlements(ctx context.Context, f engine.SettlementFilter) ([]*engine.Settlement, error) {
	var out []*engine.Settlement
	for _, s := range t.m.settlements {
		if f.UserID != "" && s.PayerID != f.UserID && s.PayeeID != f.UserID {
			continue
		}
		if f.GroupID != "" && s.GroupID != f.GroupID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Atomically on a transactional view just runs fn: the outer block
// already owns the lock and the snapshot.
func (t *txMemory) Atomically(_ context.Context, fn func(engine.Store) error) error {
	return fn(t)
}
