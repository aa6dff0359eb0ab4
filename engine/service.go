/*
service.go - Reconciliation service facade

PURPOSE:
  The one entry point callers use. Combines the aggregator, minimizer
  and lifecycle manager: produces the balances + plan view, accepts
  settle commands, and keeps entry and settlement records consistent.

PARTIAL SETTLEMENT POLICY (oldest-first, whole-entry):
  When a payer settles less than the full netted balance, entries
  between the pair are retired in creation order until the amount is
  exhausted. An entry is never split: QuickSettle requires the amount
  to exactly match a prefix sum of the pair's unsettled entries, and
  rejects anything that would strand mid-entry. Lump sums that are not
  tied to entries go through RecordSettlement instead.

CONCURRENCY:
  Entry selection + completion run inside one Atomically block, so two
  concurrent QuickSettles between the same pair cannot double-retire an
  entry. Balance reads take no locks; callers re-fetch after mutations
  instead of assuming cache coherence (read-recompute model).
*/
package engine

import (
	"context"
	"log/slog"
	"sort"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store     Store
	Lifecycle *Lifecycle
	Notifier  Notifier

	// DefaultCurrency scopes balance queries that don't name one.
	DefaultCurrency string
}

func NewService(store Store, notifier Notifier, defaultCurrency string) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Service{
		Store:           store,
		Lifecycle:       NewLifecycle(store, notifier),
		Notifier:        notifier,
		DefaultCurrency: defaultCurrency,
	}
}

// =============================================================================
// BALANCES VIEW
// =============================================================================

// Scope narrows a balance query. Currency defaults to the service's
// default; entries in other currencies are simply out of scope (the
// engine never converts).
type Scope struct {
	GroupID  string
	Currency string
}

// BalancesView is what the UI renders: the requesting user's pair
// balances plus the global optimized plan for the whole scope.
type BalancesView struct {
	Balances      []RelativeBalance
	Plan          []Transaction
	TotalOwed     Money
	TotalOwedToYou Money
}

// GetBalances aggregates currently-unsettled entries in scope and
// returns balances relative to userID. The plan is global - every
// participant sees the same optimized plan, not just their own pairs.
func (svc *Service) GetBalances(ctx context.Context, userID string, scope Scope) (*BalancesView, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	currency := scope.Currency
	if currency == "" {
		currency = svc.DefaultCurrency
	}

	unsettled := false
	entries, err := svc.Store.ListEntries(ctx, EntryFilter{
		GroupID:  scope.GroupID,
		Currency: currency,
		Settled:  &unsettled,
	})
	if err != nil {
		return nil, err
	}

	sheet, err := Aggregate(entries)
	if err != nil {
		return nil, err
	}

	totals := sheet.TotalsFor(userID)
	if sheet.Currency == "" {
		totals = UserTotals{Owed: Zero(currency), OwedTo: Zero(currency)}
	}

	return &BalancesView{
		Balances:       sheet.RelativeTo(userID),
		Plan:           Minimize(sheet),
		TotalOwed:      totals.Owed,
		TotalOwedToYou: totals.OwedTo,
	}, nil
}

// =============================================================================
// SETTLEMENT COMMANDS
// =============================================================================

// SettleInput carries the common settlement parameters.
type SettleInput struct {
	PayerID string
	PayeeID string
	Amount  Money
	Method  string
	Note    string
	GroupID string
}

// QuickSettle records and completes a settlement in one atomic
// operation: the payer is acting on their own debt, so no confirmation
// step. Entries payer->payee are linked oldest-first; the amount must
// exactly cover whole entries (see the partial settlement policy).
func (svc *Service) QuickSettle(ctx context.Context, in SettleInput) (*Settlement, error) {
	var completed *Settlement
	err := svc.Store.Atomically(ctx, func(st Store) error {
		linked, err := svc.selectEntries(ctx, st, in)
		if err != nil {
			return err
		}

		s, err := NewSettlement(in.PayerID, in.PayeeID, in.Amount, in.Method, in.Note, in.GroupID, linked)
		if err != nil {
			return err
		}
		if err := st.SaveSettlement(ctx, s); err != nil {
			return err
		}

		completed, err = svc.Lifecycle.finish(ctx, st, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.Lifecycle.notifyCompleted(ctx, completed)
	return completed, nil
}

// RecordSettlement creates a pending settlement awaiting the two-step
// confirm/complete flow. If the amount exactly matches an oldest-first
// prefix of the pair's unsettled entries those entries are linked;
// otherwise the settlement is recorded as a lump sum with no links.
func (svc *Service) RecordSettlement(ctx context.Context, in SettleInput) (*Settlement, error) {
	var created *Settlement
	err := svc.Store.Atomically(ctx, func(st Store) error {
		linked, err := svc.selectEntries(ctx, st, in)
		if err != nil {
			linked = nil // lump sum: entries stay unlinked until reconciled manually
			if !IsClientError(err) {
				return err
			}
		}

		created, err = NewSettlement(in.PayerID, in.PayeeID, in.Amount, in.Method, in.Note, in.GroupID, linked)
		if err != nil {
			return err
		}
		return st.SaveSettlement(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// selectEntries picks the oldest-first whole-entry prefix between the
// pair whose amounts sum exactly to in.Amount.
func (svc *Service) selectEntries(ctx context.Context, st Store, in SettleInput) ([]string, error) {
	if err := in.Amount.validate(); err != nil {
		return nil, err
	}

	unsettled := false
	entries, err := st.ListEntries(ctx, EntryFilter{
		DebtorID:   in.PayerID,
		CreditorID: in.PayeeID,
		GroupID:    in.GroupID,
		Currency:   in.Amount.Currency,
		Settled:    &unsettled,
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})

	remaining := in.Amount
	var linked []string
	for _, e := range entries {
		if remaining.IsZero() {
			break
		}
		if e.Amount.GreaterThan(remaining) {
			// No entry-splitting: the next entry doesn't fit, so the
			// amount strands mid-entry and the settle is rejected.
			return nil, &ValidationError{
				Field:   "amount",
				Message: "amount must match whole entries oldest-first (no entry-splitting)",
			}
		}
		linked = append(linked, e.ID)
		remaining = remaining.Sub(e.Amount)
	}
	if !remaining.IsZero() {
		return nil, &ValidationError{
			Field:   "amount",
			Message: "amount exceeds the unsettled balance between these users",
		}
	}
	return linked, nil
}

// SettleExpenseShare settles exactly one ledger entry and completes
// immediately on behalf of whichever party is acting.
func (svc *Service) SettleExpenseShare(ctx context.Context, entryID, actingUserID, method, note string) (*Settlement, error) {
	var completed *Settlement
	err := svc.Store.Atomically(ctx, func(st Store) error {
		e, err := st.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if !e.Involves(actingUserID) {
			return &NotAuthorizedError{ActorID: actingUserID, Action: "settle this expense share"}
		}
		if e.Settled {
			return &AlreadySettledError{EntryID: e.ID}
		}

		s, err := NewSettlement(e.DebtorID, e.CreditorID, e.Amount, method, note, e.GroupID, []string{e.ID})
		if err != nil {
			return err
		}
		if err := st.SaveSettlement(ctx, s); err != nil {
			return err
		}

		completed, err = svc.Lifecycle.finish(ctx, st, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.Lifecycle.notifyCompleted(ctx, completed)
	return completed, nil
}

// =============================================================================
// EXPENSE COLLABORATOR BOUNDARY
// =============================================================================

// ShareInput is one share of a split expense as supplied by the
// expense collaborator: debtor owes creditor amount for expense X.
type ShareInput struct {
	ExpenseID  string
	GroupID    string
	DebtorID   string
	CreditorID string
	Amount     Money
}

// RecordExpenseShares validates and persists one ledger entry per
// share, all-or-nothing.
func (svc *Service) RecordExpenseShares(ctx context.Context, shares []ShareInput) ([]*LedgerEntry, error) {
	if len(shares) == 0 {
		return nil, &ValidationError{Field: "shares", Message: "at least one share is required"}
	}

	entries := make([]*LedgerEntry, 0, len(shares))
	for _, sh := range shares {
		e, err := NewEntry(sh.ExpenseID, sh.GroupID, sh.DebtorID, sh.CreditorID, sh.Amount)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	err := svc.Store.Atomically(ctx, func(st Store) error {
		for _, e := range entries {
			if err := st.SaveEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReverseExpense appends offsetting entries for a deleted expense.
// History is never removed: the originals stay, the reversals net them
// out on the next balance read.
func (svc *Service) ReverseExpense(ctx context.Context, expenseID string) ([]*LedgerEntry, error) {
	var reversals []*LedgerEntry
	err := svc.Store.Atomically(ctx, func(st Store) error {
		entries, err := st.ListEntries(ctx, EntryFilter{ExpenseID: expenseID})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return &NotFoundError{Kind: "ledger entry", ID: "expense " + expenseID}
		}
		for _, e := range entries {
			if e.ReversalOfID != "" {
				return &ValidationError{Field: "expense_id", Message: "expense already reversed"}
			}
		}
		for _, e := range entries {
			r := ReversalOf(e)
			if err := st.SaveEntry(ctx, r); err != nil {
				return err
			}
			reversals = append(reversals, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversals, nil
}

// =============================================================================
// HISTORY
// =============================================================================

type HistoryFilter string

const (
	HistoryAll       HistoryFilter = "all"
	HistorySettled   HistoryFilter = "settled"
	HistoryUnsettled HistoryFilter = "unsettled"
)

// HistoryView is the chronological record for display.
type HistoryView struct {
	Entries     []*LedgerEntry
	Settlements []*Settlement
}

// History returns the user's ledger entries (per filter) and every
// settlement they are party to, both oldest-first.
func (svc *Service) History(ctx context.Context, userID string, filter HistoryFilter) (*HistoryView, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "user_id is required"}
	}

	f := EntryFilter{UserID: userID}
	switch filter {
	case HistoryAll, "":
	case HistorySettled:
		settled := true
		f.Settled = &settled
	case HistoryUnsettled:
		settled := false
		f.Settled = &settled
	default:
		return nil, &ValidationError{Field: "filter", Message: "filter must be all, settled or unsettled"}
	}

	entries, err := svc.Store.ListEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	settlements, err := svc.Store.ListSettlements(ctx, SettlementFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	return &HistoryView{Entries: entries, Settlements: settlements}, nil
}

// =============================================================================
// REMINDERS
// =============================================================================

// SendReminder dispatches a debt reminder to the notification
// collaborator. Fire-and-forget: delivery failure is logged, never
// surfaced, and nothing about the state machine changes.
func (svc *Service) SendReminder(ctx context.Context, r Reminder) {
	if err := svc.Notifier.RemindDebt(ctx, r); err != nil {
		slog.Warn("debt reminder delivery failed",
			"from", r.FromUserID, "to", r.ToUserID, "error", err)
	}
}
