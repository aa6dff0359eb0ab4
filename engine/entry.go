/*
entry.go - Ledger entries (expense shares)

PURPOSE:
  A LedgerEntry is the atomic unit of debt: one share of one expense,
  owed by one user to another. Entries are created by the expense
  collaborator and, from then on, the engine owns exactly two fields:
  the settled flag and the settlement back-reference.

CRITICAL INVARIANTS:
  1. debtor != creditor, amount > 0, currency non-empty
  2. Once settled, debtor/creditor/amount/expense are immutable
  3. Entries are never deleted - a removed expense is corrected by an
     offsetting reversal entry, so history always replays

CORRECTIONS:
  ReversalOf produces the offsetting entry (parties swapped). If the
  original was still unsettled the pair nets to zero on the next read;
  if it was already settled the reversal is a genuine refund debt in
  the opposite direction.
*/
package engine

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER ENTRY - One share of one expense
// =============================================================================

type LedgerEntry struct {
	ID        string
	ExpenseID string
	// GroupID scopes the entry for balance queries. Optional; supplied
	// by the expense collaborator when the expense belongs to a group.
	GroupID    string
	DebtorID   string
	CreditorID string
	Amount     Money
	CreatedAt  time.Time

	// Settlement state - written only by the lifecycle manager.
	Settled      bool
	SettledAt    *time.Time
	SettlementID string

	// ReversalOfID links a correction entry back to the entry it offsets.
	ReversalOfID string
}

// NewEntry validates and constructs an unsettled ledger entry.
func NewEntry(expenseID, groupID, debtorID, creditorID string, amount Money) (*LedgerEntry, error) {
	if expenseID == "" {
		return nil, &ValidationError{Field: "expense_id", Message: "expense_id is required"}
	}
	if debtorID == "" || creditorID == "" {
		return nil, &ValidationError{Field: "debtor_id/creditor_id", Message: "both parties are required"}
	}
	if debtorID == creditorID {
		return nil, &ValidationError{Field: "debtor_id", Message: "debtor and creditor must differ"}
	}
	if err := amount.validate(); err != nil {
		return nil, err
	}

	return &LedgerEntry{
		ID:         uuid.New().String(),
		ExpenseID:  expenseID,
		GroupID:    groupID,
		DebtorID:   debtorID,
		CreditorID: creditorID,
		Amount:     amount,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// MarkSettled retires the entry under the given settlement.
// Settling twice must not double-count, so a second call fails with
// AlreadySettledError instead of silently succeeding.
func (e *LedgerEntry) MarkSettled(settlementID string, at time.Time) error {
	if e.Settled {
		return &AlreadySettledError{EntryID: e.ID}
	}
	if settlementID == "" {
		return &ValidationError{Field: "settlement_id", Message: "settlement_id is required"}
	}
	e.Settled = true
	e.SettledAt = &at
	e.SettlementID = settlementID
	return nil
}

// IsOwedBy reports whether userID is the debtor on this entry.
func (e *LedgerEntry) IsOwedBy(userID string) bool { return e.DebtorID == userID }

// IsOwedTo reports whether userID is the creditor on this entry.
func (e *LedgerEntry) IsOwedTo(userID string) bool { return e.CreditorID == userID }

// Involves reports whether userID is on either side of the entry.
func (e *LedgerEntry) Involves(userID string) bool {
	return e.DebtorID == userID || e.CreditorID == userID
}

// ReversalOf constructs the offsetting entry for a correction: same
// expense and amount, parties swapped. The original entry is retained.
func ReversalOf(original *LedgerEntry) *LedgerEntry {
	return &LedgerEntry{
		ID:           uuid.New().String(),
		ExpenseID:    original.ExpenseID,
		GroupID:      original.GroupID,
		DebtorID:     original.CreditorID,
		CreditorID:   original.DebtorID,
		Amount:       original.Amount,
		CreatedAt:    time.Now().UTC(),
		ReversalOfID: original.ID,
	}
}

// Clone returns a copy safe to hand across the store boundary.
func (e *LedgerEntry) Clone() *LedgerEntry {
	c := *e
	if e.SettledAt != nil {
		at := *e.SettledAt
		c.SettledAt = &at
	}
	return &c
}
