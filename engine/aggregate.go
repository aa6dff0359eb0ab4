/*
aggregate.go - Folding ledger entries into net balances

PURPOSE:
  Answers "who owes whom, net" from the unsettled entries. Balances are
  derived on every read - there is no stored balance that can drift out
  of sync with the ledger (read-recompute, not incremental maintenance).

CANONICAL PAIRS:
  Internally a pair is ordered lexicographically and the net is signed:
  positive = lower-sorted user owes higher-sorted user. Callers get the
  you_owe / owes_you view via RelativeTo.

DETERMINISM:
  The fold is commutative and associative, so the output is identical
  regardless of entry insertion order. Pair and user lists are sorted
  before they leave this package.

SEE ALSO:
  - minimize.go: Turns per-user nets into a payment plan
  - service.go: Partitions entries by currency before calling in here
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE TYPES - Derived, never stored
// =============================================================================

// PairBalance is the net debt between two users. UserA sorts before
// UserB; a positive Net means UserA owes UserB.
type PairBalance struct {
	UserA string
	UserB string
	Net   Money
}

// UserTotals summarizes one user's position for display.
type UserTotals struct {
	// Owed is what the user owes others, summed over pairs.
	Owed Money
	// OwedTo is what others owe the user.
	OwedTo Money
}

// BalanceSheet is the aggregate view over one currency's unsettled entries.
type BalanceSheet struct {
	Currency string
	// Pairs holds non-zero canonical pair balances, sorted by (UserA, UserB).
	Pairs []PairBalance
	// Users lists every user appearing in Pairs, ascending.
	Users []string
	// net per user: positive = net creditor, negative = net debtor.
	nets map[string]decimal.Decimal
}

// RelativeBalance is a pair balance seen from one user's perspective.
type RelativeBalance struct {
	OtherUserID string
	// Amount is always positive; YouOwe says which way it points.
	Amount Money
	YouOwe bool
}

// =============================================================================
// AGGREGATOR - Pure fold over unsettled entries
// =============================================================================

type pairKey struct{ a, b string }

// Aggregate folds unsettled entries into a balance sheet. Settled
// entries are ignored. All entries must share one currency; mixing is
// refused with CurrencyMismatchError - the caller partitions first.
func Aggregate(entries []*LedgerEntry) (*BalanceSheet, error) {
	currency := ""
	pairs := make(map[pairKey]decimal.Decimal)

	for _, e := range entries {
		if e.Settled {
			continue
		}
		if currency == "" {
			currency = e.Amount.Currency
		} else if e.Amount.Currency != currency {
			return nil, &CurrencyMismatchError{Want: currency, Got: e.Amount.Currency}
		}

		k, sign := canonicalPair(e.DebtorID, e.CreditorID)
		pairs[k] = pairs[k].Add(e.Amount.Value.Mul(sign))
	}

	sheet := &BalanceSheet{
		Currency: currency,
		nets:     make(map[string]decimal.Decimal),
	}
	if currency == "" {
		return sheet, nil // nothing unsettled
	}

	eps := MinorUnit(currency)
	for k, net := range pairs {
		// Pairs that net to less than one minor unit are settled for
		// display purposes, even though the underlying entries stay
		// individually unsettled until a settlement retires them.
		if net.Abs().LessThan(eps) {
			continue
		}
		sheet.Pairs = append(sheet.Pairs, PairBalance{
			UserA: k.a,
			UserB: k.b,
			Net:   NewMoney(net, currency),
		})
		sheet.nets[k.a] = sheet.nets[k.a].Sub(net)
		sheet.nets[k.b] = sheet.nets[k.b].Add(net)
	}

	sort.Slice(sheet.Pairs, func(i, j int) bool {
		if sheet.Pairs[i].UserA != sheet.Pairs[j].UserA {
			return sheet.Pairs[i].UserA < sheet.Pairs[j].UserA
		}
		return sheet.Pairs[i].UserB < sheet.Pairs[j].UserB
	})

	for u := range sheet.nets {
		sheet.Users = append(sheet.Users, u)
	}
	sort.Strings(sheet.Users)

	return sheet, nil
}

// canonicalPair orders the pair and returns the sign with which the
// debt contributes to the canonical net (positive = a owes b).
func canonicalPair(debtor, creditor string) (pairKey, decimal.Decimal) {
	if debtor < creditor {
		return pairKey{a: debtor, b: creditor}, decimal.NewFromInt(1)
	}
	return pairKey{a: creditor, b: debtor}, decimal.NewFromInt(-1)
}

// NetOf returns the user's net balance: positive = net creditor.
func (s *BalanceSheet) NetOf(userID string) Money {
	return NewMoney(s.nets[userID], s.Currency)
}

// RelativeTo returns the sheet's pair balances as seen by userID,
// sorted by the other party's ID.
func (s *BalanceSheet) RelativeTo(userID string) []RelativeBalance {
	var out []RelativeBalance
	for _, p := range s.Pairs {
		switch userID {
		case p.UserA:
			out = append(out, RelativeBalance{
				OtherUserID: p.UserB,
				Amount:      p.Net.Abs(),
				YouOwe:      p.Net.IsPositive(),
			})
		case p.UserB:
			out = append(out, RelativeBalance{
				OtherUserID: p.UserA,
				Amount:      p.Net.Abs(),
				YouOwe:      p.Net.IsNegative(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OtherUserID < out[j].OtherUserID })
	return out
}

// TotalsFor sums the user's owed / owed-to positions over the sheet.
func (s *BalanceSheet) TotalsFor(userID string) UserTotals {
	t := UserTotals{Owed: Zero(s.Currency), OwedTo: Zero(s.Currency)}
	for _, rb := range s.RelativeTo(userID) {
		if rb.YouOwe {
			t.Owed = t.Owed.Add(rb.Amount)
		} else {
			t.OwedTo = t.OwedTo.Add(rb.Amount)
		}
	}
	return t
}
