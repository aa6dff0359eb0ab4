/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the debt-netting and settlement engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Balances:
    GET    /api/users/{id}/balances    Netted balances + optimized plan
    GET    /api/users/{id}/history     Ledger entries + settlements

  Expenses:
    POST   /api/expenses               Record shares of a split expense
    DELETE /api/expenses/{id}          Reverse a deleted expense
    POST   /api/entries/{id}/settle    Settle one expense share

  Settlements:
    POST   /api/settlements            Record (or quick-settle) a payment
    GET    /api/settlements            List settlements
    GET    /api/settlements/{id}       Get one settlement
    POST   /api/settlements/{id}/confirm | complete | cancel | reject |
           dispute | start-processing | finish-processing | fail-processing

  Reminders:
    POST   /api/reminders              Nudge a debtor (no state change)

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario

ACTING USER:
  Role-gated transitions read the acting user from the X-Acting-User
  header. There is no authentication: the engine trusts the caller's
  identity and only enforces payer/payee role rules.

ERROR HANDLING:
  Engine errors map onto HTTP status via statusFor:
  - 400: validation, currency mismatch
  - 403: not authorized (wrong party for a transition)
  - 404: not found
  - 409: already settled, invalid transition, concurrency conflict
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearsplit/settlement-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that can be wiped for demo
// scenarios. Optional: without one the scenario endpoints refuse.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *engine.Service
	Resetter Resetter

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler around the service.
func NewHandler(svc *engine.Service, resetter Resetter) *Handler {
	return &Handler{Service: svc, Resetter: resetter}
}

// actingUser identifies who is performing a role-gated transition.
func actingUser(r *http.Request) string {
	return r.Header.Get("X-Acting-User")
}

// =============================================================================
// BALANCES
// =============================================================================

// GetBalances returns the user's netted balances and the optimized
// settlement plan for the scope.
// GET /api/users/{id}/balances?group_id=&currency=
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	scope := engine.Scope{
		GroupID:  r.URL.Query().Get("group_id"),
		Currency: r.URL.Query().Get("currency"),
	}

	view, err := h.Service.GetBalances(r.Context(), userID, scope)
	if err != nil {
		writeEngineError(w, "Failed to compute balances", err)
		return
	}

	currency := scope.Currency
	if currency == "" {
		currency = h.Service.DefaultCurrency
	}
	writeJSON(w, http.StatusOK, toBalancesDTO(userID, currency, view))
}

// GetHistory returns the user's ledger entries and settlements.
// GET /api/users/{id}/history?filter=all|settled|unsettled
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	filter := engine.HistoryFilter(r.URL.Query().Get("filter"))

	view, err := h.Service.History(r.Context(), userID, filter)
	if err != nil {
		writeEngineError(w, "Failed to load history", err)
		return
	}

	writeJSON(w, http.StatusOK, HistoryDTO{
		Entries:     toEntryDTOs(view.Entries),
		Settlements: toSettlementDTOs(view.Settlements),
	})
}

// =============================================================================
// EXPENSES
// =============================================================================

// RecordExpense persists one ledger entry per share, all-or-nothing.
// POST /api/expenses
func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req RecordExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.Service.DefaultCurrency
	}

	shares := make([]engine.ShareInput, 0, len(req.Shares))
	for _, sh := range req.Shares {
		amount, err := engine.ParseMoney(sh.Amount, currency)
		if err != nil {
			writeEngineError(w, "Invalid share amount", err)
			return
		}
		shares = append(shares, engine.ShareInput{
			ExpenseID:  req.ExpenseID,
			GroupID:    req.GroupID,
			DebtorID:   sh.DebtorID,
			CreditorID: sh.CreditorID,
			Amount:     amount,
		})
	}

	entries, err := h.Service.RecordExpenseShares(r.Context(), shares)
	if err != nil {
		writeEngineError(w, "Failed to record expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTOs(entries))
}

// ReverseExpense appends offsetting entries for a deleted expense.
// DELETE /api/expenses/{id}
func (h *Handler) ReverseExpense(w http.ResponseWriter, r *http.Request) {
	expenseID := chi.URLParam(r, "id")

	reversals, err := h.Service.ReverseExpense(r.Context(), expenseID)
	if err != nil {
		writeEngineError(w, "Failed to reverse expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(reversals))
}

// SettleShare settles exactly one ledger entry on behalf of the acting
// user.
// POST /api/entries/{id}/settle
func (h *Handler) SettleShare(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")

	var req SettleShareRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	s, err := h.Service.SettleExpenseShare(r.Context(), entryID, actingUser(r), req.Method, req.Note)
	if err != nil {
		writeEngineError(w, "Failed to settle share", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(s))
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// CreateSettlement records a payment between two users. With
// quick=true the settlement completes atomically; otherwise it waits
// in pending for the confirm/complete flow.
// POST /api/settlements
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.Service.DefaultCurrency
	}
	amount, err := engine.ParseMoney(req.Amount, currency)
	if err != nil {
		writeEngineError(w, "Invalid amount", err)
		return
	}

	in := engine.SettleInput{
		PayerID: req.PayerID,
		PayeeID: req.PayeeID,
		Amount:  amount,
		Method:  req.Method,
		Note:    req.Note,
		GroupID: req.GroupID,
	}

	var s *engine.Settlement
	if req.Quick {
		s, err = h.Service.QuickSettle(r.Context(), in)
	} else {
		s, err = h.Service.RecordSettlement(r.Context(), in)
	}
	if err != nil {
		writeEngineError(w, "Failed to create settlement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementDTO(s))
}

// GetSettlement returns one settlement.
// GET /api/settlements/{id}
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	s, err := h.Service.Store.GetSettlement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, "Failed to get settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(s))
}

// ListSettlements returns settlements matching the query filters.
// GET /api/settlements?user_id=&group_id=&status=
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.Service.Store.ListSettlements(r.Context(), engine.SettlementFilter{
		UserID:  r.URL.Query().Get("user_id"),
		GroupID: r.URL.Query().Get("group_id"),
		Status:  engine.Status(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeEngineError(w, "Failed to list settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTOs(settlements))
}

// transition adapts a lifecycle method into an HTTP handler.
func (h *Handler) transition(fn func(ctx context.Context, settlementID, actingUserID string) (*engine.Settlement, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fn(r.Context(), chi.URLParam(r, "id"), actingUser(r))
		if err != nil {
			writeEngineError(w, "Transition failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toSettlementDTO(s))
	}
}

// transitionWithReason is the same for transitions that carry a reason.
func (h *Handler) transitionWithReason(fn func(ctx context.Context, settlementID, actingUserID, reason string) (*engine.Settlement, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReasonRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid request body", err)
				return
			}
		}
		s, err := fn(r.Context(), chi.URLParam(r, "id"), actingUser(r), req.Reason)
		if err != nil {
			writeEngineError(w, "Transition failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toSettlementDTO(s))
	}
}

// =============================================================================
// REMINDERS
// =============================================================================

// SendReminder nudges a debtor. Explicitly not a state transition:
// the response is 202 regardless of delivery.
// POST /api/reminders
func (h *Handler) SendReminder(w http.ResponseWriter, r *http.Request) {
	var req ReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.Service.DefaultCurrency
	}
	amount, err := engine.ParseMoney(req.Amount, currency)
	if err != nil {
		writeEngineError(w, "Invalid amount", err)
		return
	}

	h.Service.SendReminder(r.Context(), engine.Reminder{
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Amount:     amount,
		Message:    req.Message,
	})
	w.WriteHeader(http.StatusAccepted)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation),
		errors.Is(err, engine.ErrCurrencyMismatch):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadySettled),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
