/*
store.go - Persistence interfaces for entries and settlements

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  mutates exactly two things: a ledger entry's settled state and a
  settlement record. Everything else (balances, plans) is derived and
  never stored.

ATOMICITY:
  Atomically runs a function against a transactional view of the store.
  Settlement completion uses it as its critical section: every linked
  entry is validated-then-written inside one boundary, so two
  concurrent completions over overlapping entries cannot both win.
  Implementations must roll back all writes when fn returns an error.

IMPLEMENTATIONS:
  - store/sqlite: production store (SQL transaction + conditional update)
  - engine/store:  in-memory store for tests and demos
*/
package engine

import "context"

// =============================================================================
// FILTERS
// =============================================================================

// EntryFilter narrows ListEntries. Zero fields are ignored.
type EntryFilter struct {
	UserID     string // matches debtor or creditor
	DebtorID   string
	CreditorID string
	ExpenseID  string
	GroupID    string
	Currency   string
	Settled    *bool
}

// SettlementFilter narrows ListSettlements. Zero fields are ignored.
type SettlementFilter struct {
	UserID  string // matches payer or payee
	GroupID string
	Status  Status
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

type EntryStore interface {
	// SaveEntry inserts a new entry or updates the settled state of an
	// existing one. Implementations must reject a settled->settled
	// write with ConcurrencyConflictError (check-after-write).
	SaveEntry(ctx context.Context, e *LedgerEntry) error

	// GetEntry returns NotFoundError when the ID is unknown.
	GetEntry(ctx context.Context, id string) (*LedgerEntry, error)

	// ListEntries returns matching entries ordered by creation time,
	// then ID. Oldest-first ordering is load-bearing: partial
	// settlement retires entries in creation order.
	ListEntries(ctx context.Context, f EntryFilter) ([]*LedgerEntry, error)
}

type SettlementStore interface {
	SaveSettlement(ctx context.Context, s *Settlement) error
	GetSettlement(ctx context.Context, id string) (*Settlement, error)
	ListSettlements(ctx context.Context, f SettlementFilter) ([]*Settlement, error)
}

// Store is the full persistence surface the engine needs.
type Store interface {
	EntryStore
	SettlementStore

	// Atomically runs fn against a transactional store view.
	// All writes inside fn commit together or not at all.
	Atomically(ctx context.Context, fn func(Store) error) error
}
