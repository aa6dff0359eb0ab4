/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS ON THE WIRE:
  Amounts travel as decimal strings ("25.50"), never as JSON numbers.
  A float on the wire would undo the exactness the engine guarantees
  internally.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/clearsplit/settlement-engine/engine"
)

// =============================================================================
// REQUEST DTOs
// =============================================================================

// ShareRequest is one debtor->creditor share of a split expense.
type ShareRequest struct {
	DebtorID   string `json:"debtor_id"`
	CreditorID string `json:"creditor_id"`
	Amount     string `json:"amount"`
}

// RecordExpenseRequest posts the shares of one expense.
type RecordExpenseRequest struct {
	ExpenseID string         `json:"expense_id"`
	GroupID   string         `json:"group_id,omitempty"`
	Currency  string         `json:"currency,omitempty"`
	Shares    []ShareRequest `json:"shares"`
}

// SettleRequest creates a settlement. Quick=true records and completes
// in one step; otherwise the settlement waits in pending for the
// confirm/complete flow.
type SettleRequest struct {
	PayerID  string `json:"payer_id"`
	PayeeID  string `json:"payee_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency,omitempty"`
	Method   string `json:"method,omitempty"`
	Note     string `json:"note,omitempty"`
	GroupID  string `json:"group_id,omitempty"`
	Quick    bool   `json:"quick,omitempty"`
}

// SettleShareRequest settles a single ledger entry.
type SettleShareRequest struct {
	Method string `json:"method,omitempty"`
	Note   string `json:"note,omitempty"`
}

// ReasonRequest carries the reason for a reject/dispute/fail transition.
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ReminderRequest asks the engine to nudge a debtor.
type ReminderRequest struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency,omitempty"`
	Message    string `json:"message,omitempty"`
}

// LoadScenarioRequest selects a demo scenario by ID.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE DTOs
// =============================================================================

// EntryDTO is the wire form of a ledger entry.
type EntryDTO struct {
	ID           string  `json:"id"`
	ExpenseID    string  `json:"expense_id"`
	GroupID      string  `json:"group_id,omitempty"`
	DebtorID     string  `json:"debtor_id"`
	CreditorID   string  `json:"creditor_id"`
	Amount       string  `json:"amount"`
	Currency     string  `json:"currency"`
	CreatedAt    string  `json:"created_at"`
	Settled      bool    `json:"settled"`
	SettledAt    *string `json:"settled_at,omitempty"`
	SettlementID string  `json:"settlement_id,omitempty"`
	ReversalOfID string  `json:"reversal_of_id,omitempty"`
}

// SettlementDTO is the wire form of a settlement.
type SettlementDTO struct {
	ID                 string   `json:"id"`
	PayerID            string   `json:"payer_id"`
	PayeeID            string   `json:"payee_id"`
	Amount             string   `json:"amount"`
	Currency           string   `json:"currency"`
	Status             string   `json:"status"`
	PaymentMethod      string   `json:"payment_method,omitempty"`
	Note               string   `json:"note,omitempty"`
	GroupID            string   `json:"group_id,omitempty"`
	LinkedEntryIDs     []string `json:"linked_entry_ids,omitempty"`
	CreatedAt          string   `json:"created_at"`
	CompletedAt        *string  `json:"completed_at,omitempty"`
	CancellationReason string   `json:"cancellation_reason,omitempty"`
}

// RelativeBalanceDTO is one row of "you owe X" / "X owes you".
type RelativeBalanceDTO struct {
	OtherUserID string `json:"other_user_id"`
	Amount      string `json:"amount"`
	YouOwe      bool   `json:"you_owe"`
}

// PlannedTransactionDTO is one payment in the minimized plan.
type PlannedTransactionDTO struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

// BalancesDTO is the full balances view for one user.
type BalancesDTO struct {
	UserID         string                  `json:"user_id"`
	Currency       string                  `json:"currency"`
	Balances       []RelativeBalanceDTO    `json:"balances"`
	Plan           []PlannedTransactionDTO `json:"plan"`
	TotalOwed      string                  `json:"total_owed"`
	TotalOwedToYou string                  `json:"total_owed_to_you"`
}

// HistoryDTO is a user's chronological record.
type HistoryDTO struct {
	Entries     []EntryDTO      `json:"entries"`
	Settlements []SettlementDTO `json:"settlements"`
}

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toEntryDTO(e *engine.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:           e.ID,
		ExpenseID:    e.ExpenseID,
		GroupID:      e.GroupID,
		DebtorID:     e.DebtorID,
		CreditorID:   e.CreditorID,
		Amount:       e.Amount.String(),
		Currency:     e.Amount.Currency,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		Settled:      e.Settled,
		SettledAt:    timePtr(e.SettledAt),
		SettlementID: e.SettlementID,
		ReversalOfID: e.ReversalOfID,
	}
}

func toEntryDTOs(entries []*engine.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toSettlementDTO(s *engine.Settlement) SettlementDTO {
	return SettlementDTO{
		ID:                 s.ID,
		PayerID:            s.PayerID,
		PayeeID:            s.PayeeID,
		Amount:             s.Amount.String(),
		Currency:           s.Amount.Currency,
		Status:             string(s.Status),
		PaymentMethod:      s.PaymentMethod,
		Note:               s.Note,
		GroupID:            s.GroupID,
		LinkedEntryIDs:     s.LinkedEntryIDs,
		CreatedAt:          s.CreatedAt.Format(time.RFC3339),
		CompletedAt:        timePtr(s.CompletedAt),
		CancellationReason: s.CancellationReason,
	}
}

func toSettlementDTOs(settlements []*engine.Settlement) []SettlementDTO {
	dtos := make([]SettlementDTO, len(settlements))
	for i, s := range settlements {
		dtos[i] = toSettlementDTO(s)
	}
	return dtos
}

func toBalancesDTO(userID, currency string, v *engine.BalancesView) BalancesDTO {
	balances := make([]RelativeBalanceDTO, len(v.Balances))
	for i, b := range v.Balances {
		balances[i] = RelativeBalanceDTO{
			OtherUserID: b.OtherUserID,
			Amount:      b.Amount.String(),
			YouOwe:      b.YouOwe,
		}
	}
	plan := make([]PlannedTransactionDTO, len(v.Plan))
	for i, t := range v.Plan {
		plan[i] = PlannedTransactionDTO{
			FromUserID: t.FromUserID,
			ToUserID:   t.ToUserID,
			Amount:     t.Amount.String(),
			Currency:   t.Amount.Currency,
		}
	}
	return BalancesDTO{
		UserID:         userID,
		Currency:       currency,
		Balances:       balances,
		Plan:           plan,
		TotalOwed:      v.TotalOwed.String(),
		TotalOwedToYou: v.TotalOwedToYou.String(),
	}
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
