/*
settlement.go - Settlement records and their lifecycle

PURPOSE:
  A Settlement is a user-initiated act of paying down debt. It moves
  through a closed status machine; the ONLY transition with a ledger
  side effect is completion, which retires the linked entries inside
  one atomic store transaction.

LIFECYCLE:

      pending ──confirm (payee)──▶ confirmed
        │  │                          │
        │  ├─complete (payer)─────────┼────▶ completed  [retires entries]
        │  │                          │
        │  ├─cancel / reject──▶ cancelled
        │  │                          │
        │  └──────────dispute─────────┴───▶ disputed
        │
        └─start processing (payer)─▶ processing ──▶ completed | failed

  Statuses are a closed enum with exhaustive transition checks - an
  unknown status can't sneak through as a loose string.

GUARDS:
  confirm/reject are payee-only (the person owed money attests).
  complete from pending is payer-only (quick path: the payer records
  their own payment); from confirmed either party may finish.
  Wrong party -> NotAuthorizedError. Wrong state -> the error names
  both the current and the requested status.

COMPLETION ATOMICITY:
  All linked entries are re-read and marked settled inside one
  Atomically block. Any entry already settled aborts the whole
  completion with AlreadySettledError and no entries are mutated.
  Races detected by the store surface as ConcurrencyConflictError,
  which is safe to retry.
*/
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STATUS - Closed enum
// =============================================================================

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusDisputed   Status = "disputed"
)

// Terminal reports whether no further transitions leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusDisputed:
		return true
	}
	return false
}

// =============================================================================
// SETTLEMENT
// =============================================================================

type Settlement struct {
	ID      string
	PayerID string
	PayeeID string
	Amount  Money
	Status  Status

	// PaymentMethod is informational only ("cash", "venmo", ...);
	// the engine does not validate it.
	PaymentMethod string
	Note          string
	GroupID       string

	// LinkedEntryIDs are the ledger entries this settlement retires on
	// completion. Empty for lump-sum settlements.
	LinkedEntryIDs []string

	CreatedAt   time.Time
	CompletedAt *time.Time

	// CancellationReason records why a payee rejected or a party
	// disputed/failed the settlement.
	CancellationReason string
}

// NewSettlement validates and constructs a pending settlement.
func NewSettlement(payerID, payeeID string, amount Money, method, note, groupID string, linked []string) (*Settlement, error) {
	if payerID == "" || payeeID == "" {
		return nil, &ValidationError{Field: "payer_id/payee_id", Message: "both parties are required"}
	}
	if payerID == payeeID {
		return nil, &ValidationError{Field: "payer_id", Message: "payer and payee must differ"}
	}
	if err := amount.validate(); err != nil {
		return nil, err
	}

	return &Settlement{
		ID:             uuid.New().String(),
		PayerID:        payerID,
		PayeeID:        payeeID,
		Amount:         amount,
		Status:         StatusPending,
		PaymentMethod:  method,
		Note:           note,
		GroupID:        groupID,
		LinkedEntryIDs: append([]string(nil), linked...),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (s *Settlement) isParty(userID string) bool {
	return userID == s.PayerID || userID == s.PayeeID
}

// Clone returns a copy safe to hand across the store boundary.
func (s *Settlement) Clone() *Settlement {
	c := *s
	c.LinkedEntryIDs = append([]string(nil), s.LinkedEntryIDs...)
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// =============================================================================
// LIFECYCLE MANAGER
// =============================================================================

// Lifecycle drives settlements through the status machine. It is the
// only writer of Settlement records and of entry settled-state.
type Lifecycle struct {
	Store    Store
	Notifier Notifier

	// now is swappable for tests.
	now func() time.Time
}

func NewLifecycle(store Store, notifier Notifier) *Lifecycle {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Lifecycle{Store: store, Notifier: notifier, now: func() time.Time { return time.Now().UTC() }}
}

// Confirm records the payee's attestation of receipt intent.
func (lc *Lifecycle) Confirm(ctx context.Context, settlementID, actingUserID string) (*Settlement, error) {
	s, err := lc.Store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPending {
		return nil, &InvalidStateTransitionError{SettlementID: s.ID, Current: s.Status, Requested: StatusConfirmed}
	}
	if actingUserID != s.PayeeID {
		return nil, &NotAuthorizedError{ActorID: actingUserID, Action: "confirm this settlement (payee only)"}
	}

	s.Status = StatusConfirmed
	if err := lc.Store.SaveSettlement(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Complete finishes a settlement and retires its linked entries.
// Legal from pending (quick path, payer acting on their own debt) or
// confirmed (two-step path, either party). Completing an
// already-completed settlement reports AlreadySettledError so callers
// can tell a retry no-op from genuine success.
func (lc *Lifecycle) Complete(ctx context.Context, settlementID, actingUserID string) (*Settlement, error) {
	var completed *Settlement
	err := lc.Store.Atomically(ctx, func(st Store) error {
		s, err := st.GetSettlement(ctx, settlementID)
		if err != nil {
			return err
		}

		switch s.Status {
		case StatusPending:
			if actingUserID != s.PayerID {
				return &NotAuthorizedError{ActorID: actingUserID, Action: "complete a pending settlement (payer only)"}
			}
		case StatusConfirmed:
			if !s.isParty(actingUserID) {
				return &NotAuthorizedError{ActorID: actingUserID, Action: "complete this settlement"}
			}
		case StatusCompleted:
			return &AlreadySettledError{SettlementID: s.ID}
		default:
			return &InvalidStateTransitionError{SettlementID: s.ID, Current: s.Status, Requested: StatusCompleted}
		}

		completed, err = lc.finish(ctx, st, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	lc.notifyCompleted(ctx, completed)
	return completed, nil
}

// finish marks the settlement completed and retires every linked
// entry. Must run inside an Atomically block; any already-settled
// entry aborts the whole thing.
func (lc *Lifecycle) finish(ctx context.Context, st Store, s *Settlement) (*Settlement, error) {
	at := lc.now()
	for _, entryID := range s.LinkedEntryIDs {
		e, err := st.GetEntry(ctx, entryID)
		if err != nil {
			return nil, err
		}
		if err := e.MarkSettled(s.ID, at); err != nil {
			return nil, err
		}
		if err := st.SaveEntry(ctx, e); err != nil {
			return nil, err
		}
	}

	s.Status = StatusCompleted
	s.CompletedAt = &at
	if err := st.SaveSettlement(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (lc *Lifecycle) notifyCompleted(ctx context.Context, s *Settlement) {
	if err := lc.Notifier.SettlementCompleted(ctx, s); err != nil {
		// Notification delivery must not fail the operation.
		slog.Warn("settlement completion notification failed", "settlement_id", s.ID, "error", err)
	}
}

// Cancel abandons a pending settlement. Either party may cancel; no
// ledger mutation.
func (lc *Lifecycle) Cancel(ctx context.Context, settlementID, actingUserID string) (*Settlement, error) {
	s, err := lc.Store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPending {
		return nil, &InvalidStateTransitionError{SettlementID: s.ID, Current: s.Status, Requested: StatusCancelled}
	}
	if !s.isParty(actingUserID) {
		return nil, &NotAuthorizedError{ActorID: actingUserID, Action: "cancel this settlement"}
	}

	s.Status = StatusCancelled
	if err := lc.Store.SaveSettlement(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Reject is the payee declining a pending or confirmed settlement.
// Treated as cancellation with the reason recorded; no ledger mutation.
func (lc *Lifecycle) Reject(ctx context.Context, settlementID, actingUserID, reason string) (*Settlement, error) {
	s, err := lc.Store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPending && s.Status != StatusConfirmed {
		return nil, &InvalidStateTransitionError{SettlementID: s.ID, Current: s.Status, Requested: StatusCancelled}
	}
	if actingUserID != s.PayeeID {
		return nil, &NotAuthorizedError{ActorID: actingUserID, Action: "reject this settlement (payee only)"}
	}

	s.Status = StatusCancelled
	s.CancellationReason = reason
	if err := lc.Store.SaveSettlement(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Dispute freezes a pending or confirmed settlement. Either party;
// terminal; no ledger mutation.
func (lc *Lifecycle) Dispute(ctx context.Context, settlementID, actingUserID, reason string) (*Settlement, error) {
	s, err := lc.Store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPending && s.Status != StatusConfirmed {
		return nil, &InvalidStateTransitionError{SettlementID: s.ID, Current: s.Status, Requested: StatusDisputed}
	}
	if !s.isParty(actingUserID) {
		return nil, &NotAuthorizedError{ActorID: actingUserID, Action: "dispute this settlement"}
	}

	s.Status = StatusDisputed
	s.CancellationReason = reason
	if err := lc.Store.SaveSettlement(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// StartProcessing hands a pending settlement to an external payment
// rail. Payer only.
func (lc *Lifecycle) StartProcessing(ctx context.Context, settlementID, actingUserID string) (*Settlement, error) {
	s, err := lc.Store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPending {
		return nil, &InvalidStateTransitionError{SettlementID: s.ID, Current: s.Status, Requested: StatusProcessing}
	}
	if actingUserID != s.PayerID {
		return nil, &NotAuthorizedError{ActorID: actingUserID, Action: "start processing (payer only)"}
	}

	s.Status = StatusProcessing
	if err := lc.Store.SaveSettlement(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FinishProcessing completes a processing settlement once the external
// payment cleared. Retires linked entries like Complete.
func (lc *Lifecycle) FinishProcessing(ctx context.Context, settlementID, actingUserID string) (*Settlement, error) {
	var completed *Settlement
	err := lc.Store.Atomically(ctx, func(st Store) error {
		s, err := st.GetSettlement(ctx, settlementID)
		if err != nil {
			return err
		}
		if s.Status == StatusCompleted {
			return &AlreadySettledError{SettlementID: s.ID}
		}
		if s.Status != StatusProcessing {
			return &InvalidStateTransitionError{SettlementID: s.ID, Current: s.Status, Requested: StatusCompleted}
		}
		if !s.isParty(actingUserID) {
			return &NotAuthorizedError{ActorID: actingUserID, Action: "finish processing this settlement"}
		}

		completed, err = lc.finish(ctx, st, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	lc.notifyCompleted(ctx, completed)
	return completed, nil
}

// FailProcessing records an external payment failure. Terminal; no
// ledger mutation.
func (lc *Lifecycle) FailProcessing(ctx context.Context, settlementID, actingUserID, reason string) (*Settlement, error) {
	s, err := lc.Store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusProcessing {
		return nil, &InvalidStateTransitionError{SettlementID: s.ID, Current: s.Status, Requested: StatusFailed}
	}
	if !s.isParty(actingUserID) {
		return nil, &NotAuthorizedError{ActorID: actingUserID, Action: "fail this settlement"}
	}

	s.Status = StatusFailed
	s.CancellationReason = reason
	if err := lc.Store.SaveSettlement(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
