/*
minimize.go - Minimal-transaction settlement plan

PURPOSE:
  Given per-user net balances, produce a short sequence of payments
  that zeroes everyone out. We use greedy largest-first matching: pair
  the biggest debtor with the biggest creditor, transfer the smaller of
  the two magnitudes, repeat. This yields at most n-1 transactions for
  n non-zero users, which is what the product needs; the true
  combinatorial minimum (a subset-sum problem over zero-sum components)
  is deliberately not attempted.

DETERMINISM:
  When several users share the maximal magnitude, ties break by
  ascending user ID, so the plan is reproducible across runs and in
  tests.

EXACTNESS:
  Amounts are quantized decimals and nets always sum to zero, so the
  loop terminates with every residual EXACTLY zero - the final transfer
  consumes the exact remaining amount by construction (min of the two
  sides).
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// Transaction is one payment instruction in the optimized plan.
// Ephemeral: recomputed on demand, never persisted.
type Transaction struct {
	FromUserID string
	ToUserID   string
	Amount     Money
}

type party struct {
	userID string
	amount decimal.Decimal // always positive
}

// Minimize reduces the sheet's net balances to a payment plan.
// An empty sheet (or one that nets out entirely) yields an empty plan.
func Minimize(sheet *BalanceSheet) []Transaction {
	if sheet == nil || sheet.Currency == "" {
		return nil
	}

	eps := MinorUnit(sheet.Currency)
	var debtors, creditors []party
	for _, u := range sheet.Users { // sorted: determinism of initial order
		net := sheet.nets[u]
		switch {
		case net.LessThanOrEqual(eps.Neg()):
			debtors = append(debtors, party{userID: u, amount: net.Neg()})
		case net.GreaterThanOrEqual(eps):
			creditors = append(creditors, party{userID: u, amount: net})
		}
	}

	var plan []Transaction
	for len(debtors) > 0 && len(creditors) > 0 {
		di := largest(debtors)
		ci := largest(creditors)

		amount := decimal.Min(debtors[di].amount, creditors[ci].amount)
		plan = append(plan, Transaction{
			FromUserID: debtors[di].userID,
			ToUserID:   creditors[ci].userID,
			Amount:     NewMoney(amount, sheet.Currency),
		})

		debtors[di].amount = debtors[di].amount.Sub(amount)
		creditors[ci].amount = creditors[ci].amount.Sub(amount)

		if debtors[di].amount.LessThan(eps) {
			debtors = append(debtors[:di], debtors[di+1:]...)
		}
		if creditors[ci].amount.LessThan(eps) {
			creditors = append(creditors[:ci], creditors[ci+1:]...)
		}
	}

	return plan
}

// largest returns the index of the party with the biggest outstanding
// amount, ties broken by ascending user ID.
func largest(parties []party) int {
	best := 0
	for i := 1; i < len(parties); i++ {
		switch parties[i].amount.Cmp(parties[best].amount) {
		case 1:
			best = i
		case 0:
			if parties[i].userID < parties[best].userID {
				best = i
			}
		}
	}
	return best
}
