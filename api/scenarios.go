/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario records expenses and
	settlements that demonstrate specific engine features.

AVAILABLE SCENARIOS:

	roommates:    Three roommates sharing rent and groceries
	trip:         Group trip with uneven spending and a partial settle
	cycle:        A debt cycle that nets to an empty plan

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Record expense shares
 3. Optionally record/complete settlements

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "roommates"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context, writeJSON/writeError
  - engine/service.go: RecordExpenseShares, QuickSettle
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/clearsplit/settlement-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "roommates",
		Name:        "Roommates",
		Description: "Three roommates sharing rent and groceries",
	},
	{
		ID:          "trip",
		Name:        "Group Trip",
		Description: "Uneven trip spending with a partial settlement",
	},
	{
		ID:          "cycle",
		Name:        "Debt Cycle",
		Description: "A owes B owes C owes A - nets to an empty plan",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads the named scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "roommates":
		err = h.loadRoommatesScenario(ctx)
	case "trip":
		err = h.loadTripScenario(ctx)
	case "cycle":
		err = h.loadCycleScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// ResetDatabase wipes the store.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if h.Resetter == nil {
		return &engine.ValidationError{Field: "store", Message: "store does not support reset"}
	}
	return h.Resetter.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadRoommatesScenario: alice paid $900 rent, bob paid $120 groceries,
// carol paid nothing. Split evenly.
func (h *Handler) loadRoommatesScenario(ctx context.Context) error {
	_, err := h.Service.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "rent-jan", GroupID: "apartment", DebtorID: "bob", CreditorID: "alice", Amount: engine.MustMoney("300.00", "USD")},
		{ExpenseID: "rent-jan", GroupID: "apartment", DebtorID: "carol", CreditorID: "alice", Amount: engine.MustMoney("300.00", "USD")},
		{ExpenseID: "groceries-w1", GroupID: "apartment", DebtorID: "alice", CreditorID: "bob", Amount: engine.MustMoney("40.00", "USD")},
		{ExpenseID: "groceries-w1", GroupID: "apartment", DebtorID: "carol", CreditorID: "bob", Amount: engine.MustMoney("40.00", "USD")},
	})
	return err
}

// loadTripScenario: dave fronted the hotel, erin the car. frank settles
// part of his hotel debt right away.
func (h *Handler) loadTripScenario(ctx context.Context) error {
	_, err := h.Service.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "hotel", GroupID: "trip", DebtorID: "erin", CreditorID: "dave", Amount: engine.MustMoney("150.00", "USD")},
		{ExpenseID: "hotel", GroupID: "trip", DebtorID: "frank", CreditorID: "dave", Amount: engine.MustMoney("150.00", "USD")},
		{ExpenseID: "car", GroupID: "trip", DebtorID: "dave", CreditorID: "erin", Amount: engine.MustMoney("60.00", "USD")},
		{ExpenseID: "car", GroupID: "trip", DebtorID: "frank", CreditorID: "erin", Amount: engine.MustMoney("60.00", "USD")},
	})
	if err != nil {
		return err
	}

	// frank pays off his whole hotel share immediately.
	_, err = h.Service.QuickSettle(ctx, engine.SettleInput{
		PayerID: "frank",
		PayeeID: "dave",
		Amount:  engine.MustMoney("150.00", "USD"),
		Method:  "venmo",
		GroupID: "trip",
	})
	return err
}

// loadCycleScenario: equal debts around a ring disappear entirely
// after netting.
func (h *Handler) loadCycleScenario(ctx context.Context) error {
	_, err := h.Service.RecordExpenseShares(ctx, []engine.ShareInput{
		{ExpenseID: "lunch", GroupID: "ring", DebtorID: "alice", CreditorID: "bob", Amount: engine.MustMoney("25.00", "USD")},
		{ExpenseID: "coffee", GroupID: "ring", DebtorID: "bob", CreditorID: "carol", Amount: engine.MustMoney("25.00", "USD")},
		{ExpenseID: "snacks", GroupID: "ring", DebtorID: "carol", CreditorID: "alice", Amount: engine.MustMoney("25.00", "USD")},
	})
	return err
}
