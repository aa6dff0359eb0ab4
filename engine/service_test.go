package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsplit/settlement-engine/engine"
	"github.com/clearsplit/settlement-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newService(t *testing.T) (*engine.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return engine.NewService(mem, nil, "USD"), mem
}

// seedEntry saves an unsettled payer->payee entry with an explicit
// creation time, so oldest-first selection is deterministic.
func seedEntry(t *testing.T, mem *store.Memory, debtor, creditor, amount string, age time.Duration) *engine.LedgerEntry {
	t.Helper()
	e, err := engine.NewEntry("exp-"+amount, "", debtor, creditor, engine.MustMoney(amount, "USD"))
	require.NoError(t, err)
	e.CreatedAt = time.Now().UTC().Add(-age)
	require.NoError(t, mem.SaveEntry(context.Background(), e))
	return e
}

// =============================================================================
// BALANCES
// =============================================================================

func TestGetBalances_TwoParty(t *testing.T) {
	// GIVEN: bob owes alice 30 from a shared dinner
	// THEN: both users see the same 30, from opposite sides

	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "dinner", DebtorID: "bob", CreditorID: "alice", Amount: engine.MustMoney("30.00", "USD")},
	})
	require.NoError(t, err)

	bobView, err := svc.GetBalances(ctx, "bob", engine.Scope{})
	require.NoError(t, err)
	require.Len(t, bobView.Balances, 1)
	assert.True(t, bobView.Balances[0].YouOwe)
	assert.Equal(t, "30", bobView.Balances[0].Amount.String())
	assert.Equal(t, "30", bobView.TotalOwed.String())
	assert.Equal(t, "0", bobView.TotalOwedToYou.String())

	aliceView, err := svc.GetBalances(ctx, "alice", engine.Scope{})
	require.NoError(t, err)
	require.Len(t, aliceView.Balances, 1)
	assert.False(t, aliceView.Balances[0].YouOwe)
	assert.Equal(t, "30", aliceView.TotalOwedToYou.String())

	require.Len(t, bobView.Plan, 1)
	assert.Equal(t, "bob", bobView.Plan[0].FromUserID)
	assert.Equal(t, "alice", bobView.Plan[0].ToUserID)
}

func TestGetBalances_EmptyScope_ZeroTotals(t *testing.T) {
	svc, _ := newService(t)

	view, err := svc.GetBalances(context.Background(), "alice", engine.Scope{Currency: "EUR"})
	require.NoError(t, err)
	assert.Empty(t, view.Balances)
	assert.Empty(t, view.Plan)
	assert.Equal(t, "EUR", view.TotalOwed.Currency)
	assert.True(t, view.TotalOwed.IsZero())
}

func TestGetBalances_RequiresUser(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetBalances(context.Background(), "", engine.Scope{})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestGetBalances_GroupScoped(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "rent", GroupID: "apartment", DebtorID: "bob", CreditorID: "alice", Amount: engine.MustMoney("300.00", "USD")},
		{ExpenseID: "hotel", GroupID: "trip", DebtorID: "bob", CreditorID: "alice", Amount: engine.MustMoney("150.00", "USD")},
	})
	require.NoError(t, err)

	view, err := svc.GetBalances(ctx, "bob", engine.Scope{GroupID: "trip"})
	require.NoError(t, err)
	assert.Equal(t, "150", view.TotalOwed.String())
}

// =============================================================================
// QUICK SETTLE
// =============================================================================

func TestQuickSettle_FullBalance(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	seedEntry(t, mem, "bob", "alice", "30.00", time.Hour)

	s, err := svc.QuickSettle(ctx, engine.SettleInput{
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  engine.MustMoney("30.00", "USD"),
		Method:  "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, s.Status)
	require.Len(t, s.LinkedEntryIDs, 1)

	// Balance reads recompute from the ledger: nothing left.
	view, err := svc.GetBalances(ctx, "bob", engine.Scope{})
	require.NoError(t, err)
	assert.Empty(t, view.Balances)
	assert.Empty(t, view.Plan)
}

func TestQuickSettle_Partial_OldestFirst(t *testing.T) {
	// GIVEN: entries 10, 5, 25 (oldest to newest)
	// WHEN: bob settles 15
	// THEN: the 10 and 5 retire, the 25 stays open

	svc, mem := newService(t)
	ctx := context.Background()

	e1 := seedEntry(t, mem, "bob", "alice", "10.00", 3*time.Hour)
	e2 := seedEntry(t, mem, "bob", "alice", "5.00", 2*time.Hour)
	e3 := seedEntry(t, mem, "bob", "alice", "25.00", time.Hour)

	s, err := svc.QuickSettle(ctx, engine.SettleInput{
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  engine.MustMoney("15.00", "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{e1.ID, e2.ID}, s.LinkedEntryIDs)

	stored3, err := mem.GetEntry(ctx, e3.ID)
	require.NoError(t, err)
	assert.False(t, stored3.Settled)

	view, err := svc.GetBalances(ctx, "bob", engine.Scope{})
	require.NoError(t, err)
	assert.Equal(t, "25", view.TotalOwed.String())
}

func TestQuickSettle_MidEntryAmount_Rejected(t *testing.T) {
	// 5 against a single 10 entry would strand half an entry.
	svc, mem := newService(t)
	seedEntry(t, mem, "bob", "alice", "10.00", time.Hour)

	_, err := svc.QuickSettle(context.Background(), engine.SettleInput{
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  engine.MustMoney("5.00", "USD"),
	})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestQuickSettle_Overpayment_Rejected(t *testing.T) {
	svc, mem := newService(t)
	seedEntry(t, mem, "bob", "alice", "10.00", time.Hour)

	_, err := svc.QuickSettle(context.Background(), engine.SettleInput{
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  engine.MustMoney("50.00", "USD"),
	})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

// =============================================================================
// RECORD SETTLEMENT (two-step flow)
// =============================================================================

func TestRecordSettlement_PendingWithLinks(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	e := seedEntry(t, mem, "bob", "alice", "30.00", time.Hour)

	s, err := svc.RecordSettlement(ctx, engine.SettleInput{
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  engine.MustMoney("30.00", "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, s.Status)
	assert.Equal(t, []string{e.ID}, s.LinkedEntryIDs)

	// Nothing retires until completion.
	stored, err := mem.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, stored.Settled)
}

func TestRecordSettlement_LumpSum_NoLinks(t *testing.T) {
	// An amount that matches no entry prefix is still recordable as a
	// lump sum; it just doesn't retire anything on completion.
	svc, mem := newService(t)
	seedEntry(t, mem, "bob", "alice", "30.00", time.Hour)

	s, err := svc.RecordSettlement(context.Background(), engine.SettleInput{
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  engine.MustMoney("12.00", "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, s.Status)
	assert.Empty(t, s.LinkedEntryIDs)
}

func TestRecordThenConfirmThenComplete(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	e := seedEntry(t, mem, "bob", "alice", "30.00", time.Hour)

	s, err := svc.RecordSettlement(ctx, engine.SettleInput{
		PayerID: "bob", PayeeID: "alice", Amount: engine.MustMoney("30.00", "USD"),
	})
	require.NoError(t, err)

	_, err = svc.Lifecycle.Confirm(ctx, s.ID, "alice")
	require.NoError(t, err)

	completed, err := svc.Lifecycle.Complete(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, completed.Status)

	stored, err := mem.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, stored.Settled)
}

// =============================================================================
// SINGLE-SHARE SETTLEMENT
// =============================================================================

func TestSettleExpenseShare(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	e := seedEntry(t, mem, "bob", "alice", "25.00", time.Hour)

	_, err := svc.SettleExpenseShare(ctx, e.ID, "stranger", "cash", "")
	assert.ErrorIs(t, err, engine.ErrNotAuthorized)

	s, err := svc.SettleExpenseShare(ctx, e.ID, "bob", "cash", "thanks")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, s.Status)
	assert.Equal(t, []string{e.ID}, s.LinkedEntryIDs)

	// Settling the same share again is idempotency-guarded.
	_, err = svc.SettleExpenseShare(ctx, e.ID, "bob", "cash", "")
	assert.ErrorIs(t, err, engine.ErrAlreadySettled)
}

// =============================================================================
// EXPENSES
// =============================================================================

func TestRecordExpenseShares_AllOrNothing(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	_, err := svc.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "dinner", DebtorID: "bob", CreditorID: "alice", Amount: engine.MustMoney("10.00", "USD")},
		{ExpenseID: "dinner", DebtorID: "carol", CreditorID: "carol", Amount: engine.MustMoney("10.00", "USD")},
	})
	assert.ErrorIs(t, err, engine.ErrValidation)

	entries, err := mem.ListEntries(ctx, engine.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "a bad share must not leave partial entries behind")
}

func TestRecordExpenseShares_Empty(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.RecordExpenseShares(context.Background(), nil)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestReverseExpense(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "dinner", DebtorID: "bob", CreditorID: "alice", Amount: engine.MustMoney("30.00", "USD")},
		{ExpenseID: "dinner", DebtorID: "carol", CreditorID: "alice", Amount: engine.MustMoney("30.00", "USD")},
	})
	require.NoError(t, err)

	reversals, err := svc.ReverseExpense(ctx, "dinner")
	require.NoError(t, err)
	assert.Len(t, reversals, 2)

	// Reversal offsets the originals: everyone is square again.
	view, err := svc.GetBalances(ctx, "alice", engine.Scope{})
	require.NoError(t, err)
	assert.Empty(t, view.Balances)

	// History keeps all four entries.
	hist, err := svc.History(ctx, "alice", engine.HistoryAll)
	require.NoError(t, err)
	assert.Len(t, hist.Entries, 4)
}

func TestReverseExpense_Twice_Rejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "dinner", DebtorID: "bob", CreditorID: "alice", Amount: engine.MustMoney("30.00", "USD")},
	})
	require.NoError(t, err)

	_, err = svc.ReverseExpense(ctx, "dinner")
	require.NoError(t, err)

	_, err = svc.ReverseExpense(ctx, "dinner")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestReverseExpense_Unknown(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.ReverseExpense(context.Background(), "nope")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_Filters(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	seedEntry(t, mem, "bob", "alice", "10.00", 2*time.Hour)
	seedEntry(t, mem, "bob", "alice", "20.00", time.Hour)

	_, err := svc.QuickSettle(ctx, engine.SettleInput{
		PayerID: "bob", PayeeID: "alice", Amount: engine.MustMoney("10.00", "USD"),
	})
	require.NoError(t, err)

	all, err := svc.History(ctx, "bob", engine.HistoryAll)
	require.NoError(t, err)
	assert.Len(t, all.Entries, 2)
	assert.Len(t, all.Settlements, 1)

	settled, err := svc.History(ctx, "bob", engine.HistorySettled)
	require.NoError(t, err)
	require.Len(t, settled.Entries, 1)
	assert.Equal(t, "10", settled.Entries[0].Amount.String())

	unsettled, err := svc.History(ctx, "bob", engine.HistoryUnsettled)
	require.NoError(t, err)
	require.Len(t, unsettled.Entries, 1)
	assert.Equal(t, "20", unsettled.Entries[0].Amount.String())

	_, err = svc.History(ctx, "bob", engine.HistoryFilter("bogus"))
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestHistory_OnlyOwnRecords(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	seedEntry(t, mem, "bob", "alice", "10.00", time.Hour)
	seedEntry(t, mem, "carol", "dave", "99.00", time.Hour)

	hist, err := svc.History(ctx, "bob", engine.HistoryAll)
	require.NoError(t, err)
	require.Len(t, hist.Entries, 1)
	assert.Equal(t, "bob", hist.Entries[0].DebtorID)
}
