package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsplit/settlement-engine/engine"
	"github.com/clearsplit/settlement-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newEntry(t *testing.T, debtor, creditor, amount string, age time.Duration) *engine.LedgerEntry {
	t.Helper()
	e, err := engine.NewEntry("exp-"+debtor+"-"+amount, "grp", debtor, creditor, engine.MustMoney(amount, "USD"))
	require.NoError(t, err)
	e.CreatedAt = time.Now().UTC().Add(-age)
	return e
}

// =============================================================================
// ENTRY ROUND-TRIPS
// =============================================================================

func TestEntry_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := newEntry(t, "alice", "bob", "25.50", time.Hour)
	require.NoError(t, store.SaveEntry(ctx, e))

	got, err := store.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "alice", got.DebtorID)
	assert.True(t, got.Amount.Equal(engine.MustMoney("25.50", "USD")), "amount must survive the round-trip exactly")
	assert.False(t, got.Settled)
	assert.Nil(t, got.SettledAt)
}

func TestEntry_GetUnknown_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetEntry(context.Background(), "nope")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestEntry_SettleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := newEntry(t, "alice", "bob", "10.00", time.Hour)
	require.NoError(t, store.SaveEntry(ctx, e))

	require.NoError(t, e.MarkSettled("stl-1", time.Now().UTC()))
	require.NoError(t, store.SaveEntry(ctx, e))

	got, err := store.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)
	assert.Equal(t, "stl-1", got.SettlementID)
	require.NotNil(t, got.SettledAt)
}

func TestEntry_DoubleSettle_ConcurrencyConflict(t *testing.T) {
	// The conditional UPDATE is the race detector: a second settled
	// write for the same entry affects zero rows.
	store := newTestStore(t)
	ctx := context.Background()

	e := newEntry(t, "alice", "bob", "10.00", time.Hour)
	require.NoError(t, store.SaveEntry(ctx, e))

	settled := e.Clone()
	require.NoError(t, settled.MarkSettled("stl-1", time.Now().UTC()))
	require.NoError(t, store.SaveEntry(ctx, settled))

	rival := e.Clone()
	require.NoError(t, rival.MarkSettled("stl-2", time.Now().UTC()))
	err := store.SaveEntry(ctx, rival)
	assert.ErrorIs(t, err, engine.ErrConcurrencyConflict)
	assert.True(t, engine.IsRetryable(err))

	got, err := store.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "stl-1", got.SettlementID, "first settlement wins")
}

func TestListEntries_FiltersAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oldest := newEntry(t, "alice", "bob", "10.00", 3*time.Hour)
	middle := newEntry(t, "alice", "bob", "20.00", 2*time.Hour)
	other := newEntry(t, "carol", "dave", "5.00", time.Hour)
	for _, e := range []*engine.LedgerEntry{middle, other, oldest} {
		require.NoError(t, store.SaveEntry(ctx, e))
	}

	pair, err := store.ListEntries(ctx, engine.EntryFilter{DebtorID: "alice", CreditorID: "bob"})
	require.NoError(t, err)
	require.Len(t, pair, 2)
	assert.Equal(t, oldest.ID, pair[0].ID, "oldest first")
	assert.Equal(t, middle.ID, pair[1].ID)

	involving, err := store.ListEntries(ctx, engine.EntryFilter{UserID: "dave"})
	require.NoError(t, err)
	require.Len(t, involving, 1)
	assert.Equal(t, other.ID, involving[0].ID)

	settled := true
	none, err := store.ListEntries(ctx, engine.EntryFilter{Settled: &settled})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// SETTLEMENT ROUND-TRIPS
// =============================================================================

func TestSettlement_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s, err := engine.NewSettlement("alice", "bob", engine.MustMoney("42.00", "USD"), "venmo", "dinner", "grp", []string{"e1", "e2"})
	require.NoError(t, err)
	require.NoError(t, store.SaveSettlement(ctx, s))

	got, err := store.GetSettlement(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, got.Status)
	assert.Equal(t, []string{"e1", "e2"}, got.LinkedEntryIDs)
	assert.Equal(t, "venmo", got.PaymentMethod)
	assert.True(t, got.Amount.Equal(s.Amount))
}

func TestSettlement_StatusUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s, err := engine.NewSettlement("alice", "bob", engine.MustMoney("42.00", "USD"), "", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveSettlement(ctx, s))

	s.Status = engine.StatusCancelled
	s.CancellationReason = "typo"
	require.NoError(t, store.SaveSettlement(ctx, s))

	got, err := store.GetSettlement(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, got.Status)
	assert.Equal(t, "typo", got.CancellationReason)
}

func TestListSettlements_ByUserAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s1, err := engine.NewSettlement("alice", "bob", engine.MustMoney("10.00", "USD"), "", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveSettlement(ctx, s1))

	s2, err := engine.NewSettlement("carol", "alice", engine.MustMoney("20.00", "USD"), "", "", "", nil)
	require.NoError(t, err)
	s2.Status = engine.StatusCancelled
	require.NoError(t, store.SaveSettlement(ctx, s2))

	forAlice, err := store.ListSettlements(ctx, engine.SettlementFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)

	pending, err := store.ListSettlements(ctx, engine.SettlementFilter{UserID: "alice", Status: engine.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, s1.ID, pending[0].ID)
}

// =============================================================================
// ATOMICITY
// =============================================================================

func TestAtomically_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := newEntry(t, "alice", "bob", "10.00", time.Hour)

	err := store.Atomically(ctx, func(st engine.Store) error {
		if err := st.SaveEntry(ctx, e); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	_, err = store.GetEntry(ctx, e.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound, "rolled-back write must not be visible")
}

func TestAtomically_ConflictAbortsWholeBlock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	retired := newEntry(t, "alice", "bob", "10.00", 2*time.Hour)
	require.NoError(t, store.SaveEntry(ctx, retired))
	settledCopy := retired.Clone()
	require.NoError(t, settledCopy.MarkSettled("stl-0", time.Now().UTC()))
	require.NoError(t, store.SaveEntry(ctx, settledCopy))

	fresh := newEntry(t, "alice", "bob", "20.00", time.Hour)
	require.NoError(t, store.SaveEntry(ctx, fresh))

	// Try to retire both inside one block; the conflict on the first
	// must roll back the second.
	err := store.Atomically(ctx, func(st engine.Store) error {
		for _, id := range []string{fresh.ID, retired.ID} {
			e, err := st.GetEntry(ctx, id)
			if err != nil {
				return err
			}
			if err := e.MarkSettled("stl-1", time.Now().UTC()); err != nil {
				return err
			}
			if err := st.SaveEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	assert.ErrorIs(t, err, engine.ErrAlreadySettled)

	got, err := store.GetEntry(ctx, fresh.ID)
	require.NoError(t, err)
	assert.False(t, got.Settled)
}

func TestReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEntry(ctx, newEntry(t, "alice", "bob", "10.00", time.Hour)))
	require.NoError(t, store.Reset(ctx))

	entries, err := store.ListEntries(ctx, engine.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// SERVICE OVER SQLITE
// =============================================================================

func TestService_EndToEndOverSQLite(t *testing.T) {
	// The same flow the memory-store tests cover, against the real
	// persistence layer.
	store := newTestStore(t)
	ctx := context.Background()
	svc := engine.NewService(store, nil, "USD")

	_, err := svc.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "dinner", DebtorID: "bob", CreditorID: "alice", Amount: engine.MustMoney("30.00", "USD")},
		{ExpenseID: "dinner", DebtorID: "carol", CreditorID: "alice", Amount: engine.MustMoney("30.00", "USD")},
	})
	require.NoError(t, err)

	s, err := svc.QuickSettle(ctx, engine.SettleInput{
		PayerID: "bob", PayeeID: "alice", Amount: engine.MustMoney("30.00", "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, s.Status)

	view, err := svc.GetBalances(ctx, "alice", engine.Scope{})
	require.NoError(t, err)
	assert.Equal(t, "30", view.TotalOwedToYou.String())
	require.Len(t, view.Plan, 1)
	assert.Equal(t, "carol", view.Plan[0].FromUserID)
}
