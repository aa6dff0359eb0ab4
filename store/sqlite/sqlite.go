/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Production persistence for ledger entries and settlements. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  ledger_entries: One row per expense share. Immutable except for the
                  settled / settled_at / settlement_id columns, which
                  only the settlement lifecycle writes.
  settlements:    Settlement records with status and the JSON list of
                  linked entry IDs.

AMOUNTS:
  Stored as decimal TEXT, never REAL. Binary floats would break the
  conservation guarantee the netting engine makes.

CONCURRENCY:
  Atomically takes the store mutex and wraps fn in one sql.Tx. Marking
  an entry settled uses a conditional UPDATE (... WHERE settled = 0);
  zero rows affected means another settlement retired the entry first,
  and the whole operation rolls back with ConcurrencyConflictError.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so balance reads
  don't block settlement writes.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/clearsplit/settlement-engine/engine"
)

var _ engine.Store = (*Store)(nil)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		expense_id TEXT NOT NULL,
		group_id TEXT NOT NULL DEFAULT '',
		debtor_id TEXT NOT NULL,
		creditor_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		created_at TEXT NOT NULL,
		settled INTEGER NOT NULL DEFAULT 0,
		settled_at TEXT,
		settlement_id TEXT NOT NULL DEFAULT '',
		reversal_of_id TEXT NOT NULL DEFAULT '',
		CHECK (debtor_id <> creditor_id)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_pair_settled
		ON ledger_entries(debtor_id, creditor_id, settled);
	CREATE INDEX IF NOT EXISTS idx_entries_expense
		ON ledger_entries(expense_id);
	CREATE INDEX IF NOT EXISTS idx_entries_group_settled
		ON ledger_entries(group_id, settled);
	CREATE INDEX IF NOT EXISTS idx_entries_created_at
		ON ledger_entries(created_at);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		payer_id TEXT NOT NULL,
		payee_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		group_id TEXT NOT NULL DEFAULT '',
		linked_entry_ids TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		completed_at TEXT,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		CHECK (payer_id <> payee_id)
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_payer_status
		ON settlements(payer_id, status);
	CREATE INDEX IF NOT EXISTS idx_settlements_payee_status
		ON settlements(payee_id, status);
	CREATE INDEX IF NOT EXISTS idx_settlements_group_status
		ON settlements(group_id, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so the same statements serve
// both the direct and transactional paths.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (s *Store) SaveEntry(ctx context.Context, e *engine.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEntry(ctx, s.db, e)
}

func saveEntry(ctx context.Context, q querier, e *engine.LedgerEntry) error {
	if e.Settled {
		// Only the settled state of an existing row may change, and only
		// once: the conditional update is the race detector.
		res, err := q.ExecContext(ctx,
			`UPDATE ledger_entries
			 SET settled = 1, settled_at = ?, settlement_id = ?
			 WHERE id = ? AND settled = 0`,
			formatTimePtr(e.SettledAt), e.SettlementID, e.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to settle entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to settle entry: %w", err)
		}
		if n == 0 {
			return &engine.ConcurrencyConflictError{Detail: "entry " + e.ID + " settled concurrently or missing"}
		}
		return nil
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO ledger_entries
		 (id, expense_id, group_id, debtor_id, creditor_id, amount, currency, created_at, settled, settled_at, settlement_id, reversal_of_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, '', ?)`,
		e.ID, e.ExpenseID, e.GroupID, e.DebtorID, e.CreditorID,
		e.Amount.Value.String(), e.Amount.Currency, formatTime(e.CreatedAt), e.ReversalOfID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

const entryColumns = `id, expense_id, group_id, debtor_id, creditor_id, amount, currency, created_at, settled, settled_at, settlement_id, reversal_of_id`

func (s *Store) GetEntry(ctx context.Context, id string) (*engine.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q querier, id string) (*engine.LedgerEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "ledger entry", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, f engine.EntryFilter) ([]*engine.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(ctx, s.db, f)
}

func listEntries(ctx context.Context, q querier, f engine.EntryFilter) ([]*engine.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE 1=1`
	var args []any

	if f.UserID != "" {
		query += ` AND (debtor_id = ? OR creditor_id = ?)`
		args = append(args, f.UserID, f.UserID)
	}
	if f.DebtorID != "" {
		query += ` AND debtor_id = ?`
		args = append(args, f.DebtorID)
	}
	if f.CreditorID != "" {
		query += ` AND creditor_id = ?`
		args = append(args, f.CreditorID)
	}
	if f.ExpenseID != "" {
		query += ` AND expense_id = ?`
		args = append(args, f.ExpenseID)
	}
	if f.GroupID != "" {
		query += ` AND group_id = ?`
		args = append(args, f.GroupID)
	}
	if f.Currency != "" {
		query += ` AND currency = ?`
		args = append(args, f.Currency)
	}
	if f.Settled != nil {
		query += ` AND settled = ?`
		args = append(args, boolToInt(*f.Settled))
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var out []*engine.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return out, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*engine.LedgerEntry, error) {
	var (
		e         engine.LedgerEntry
		amount    string
		currency  string
		createdAt string
		settled   int
		settledAt sql.NullString
	)
	err := row.Scan(&e.ID, &e.ExpenseID, &e.GroupID, &e.DebtorID, &e.CreditorID,
		&amount, &currency, &createdAt, &settled, &settledAt, &e.SettlementID, &e.ReversalOfID)
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	e.Amount = engine.NewMoney(value, currency)
	e.Settled = settled != 0

	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if settledAt.Valid {
		at, err := parseTime(settledAt.String)
		if err != nil {
			return nil, err
		}
		e.SettledAt = &at
	}
	return &e, nil
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (s *Store) SaveSettlement(ctx context.Context, st *engine.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSettlement(ctx, s.db, st)
}

func saveSettlement(ctx context.Context, q querier, st *engine.Settlement) error {
	linked, err := json.Marshal(st.LinkedEntryIDs)
	if err != nil {
		return fmt.Errorf("failed to encode linked entries: %w", err)
	}

	// Only status, completion time, and cancellation reason are mutable
	// after creation.
	_, err = q.ExecContext(ctx,
		`INSERT INTO settlements
		 (id, payer_id, payee_id, amount, currency, status, payment_method, note, group_id, linked_entry_ids, created_at, completed_at, cancellation_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   completed_at = excluded.completed_at,
		   cancellation_reason = excluded.cancellation_reason`,
		st.ID, st.PayerID, st.PayeeID, st.Amount.Value.String(), st.Amount.Currency,
		string(st.Status), st.PaymentMethod, st.Note, st.GroupID, string(linked),
		formatTime(st.CreatedAt), formatTimePtr(st.CompletedAt), st.CancellationReason,
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	return nil
}

const settlementColumns = `id, payer_id, payee_id, amount, currency, status, payment_method, note, group_id, linked_entry_ids, created_at, completed_at, cancellation_reason`

func (s *Store) GetSettlement(ctx context.Context, id string) (*engine.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSettlement(ctx, s.db, id)
}

func getSettlement(ctx context.Context, q querier, id string) (*engine.Settlement, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE id = ?`, id)
	st, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "settlement", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return st, nil
}

func (s *Store) ListSettlements(ctx context.Context, f engine.SettlementFilter) ([]*engine.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSettlements(ctx, s.db, f)
}

func listSettlements(ctx context.Context, q querier, f engine.SettlementFilter) ([]*engine.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE 1=1`
	var args []any

	if f.UserID != "" {
		query += ` AND (payer_id = ? OR payee_id = ?)`
		args = append(args, f.UserID, f.UserID)
	}
	if f.GroupID != "" {
		query += ` AND group_id = ?`
		args = append(args, f.GroupID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var out []*engine.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return out, nil
}

func scanSettlement(row scannable) (*engine.Settlement, error) {
	var (
		st          engine.Settlement
		amount      string
		currency    string
		status      string
		linked      string
		createdAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&st.ID, &st.PayerID, &st.PayeeID, &amount, &currency, &status,
		&st.PaymentMethod, &st.Note, &st.GroupID, &linked, &createdAt, &completedAt, &st.CancellationReason)
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	st.Amount = engine.NewMoney(value, currency)
	st.Status = engine.Status(status)

	if err := json.Unmarshal([]byte(linked), &st.LinkedEntryIDs); err != nil {
		return nil, fmt.Errorf("corrupt linked entries: %w", err)
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		at, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		st.CompletedAt = &at
	}
	return &st, nil
}

// =============================================================================
// ATOMIC TRANSACTIONS
// =============================================================================

// Atomically runs fn inside one SQL transaction under the store mutex.
// All writes inside fn commit together or roll back together.
func (s *Store) Atomically(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every operation through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) SaveEntry(ctx context.Context, e *engine.LedgerEntry) error {
	return saveEntry(ctx, t.tx, e)
}

func (t *txStore) GetEntry(ctx context.Context, id string) (*engine.LedgerEntry, error) {
	return getEntry(ctx, t.tx, id)
}

func (t *txStore) ListEntries(ctx context.Context, f engine.EntryFilter) ([]*engine.LedgerEntry, error) {
	return listEntries(ctx, t.tx, f)
}

func (t *txStore) SaveSettlement(ctx context.Context, st *engine.Settlement) error {
	return saveSettlement(ctx, t.tx, st)
}

func (t *txStore) GetSettlement(ctx context.Context, id string) (*engine.Settlement, error) {
	return getSettlement(ctx, t.tx, id)
}

func (t *txStore) ListSettlements(ctx context.Context, f engine.SettlementFilter) ([]*engine.Settlement, error) {
	return listSettlements(ctx, t.tx, f)
}

// Atomically nested inside a transaction just reuses it.
func (t *txStore) Atomically(_ context.Context, fn func(engine.Store) error) error {
	return fn(t)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset wipes both tables. Used by the demo scenario loader only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"ledger_entries", "settlements"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TIME ENCODING
// =============================================================================

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
