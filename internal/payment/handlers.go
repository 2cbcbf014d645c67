package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/store"
	"github.com/quemvence/market-engine/internal/trade"
)

// CreateIntentRequest is the JSON body for POST /api/v1/payments.
type CreateIntentRequest struct {
	UserID      string `json:"user_id"`
	CandidateID string `json:"candidate_id"`
	Side        string `json:"side"`
	Quantity    int64  `json:"quantity"`
}

// ConfirmResponse pairs the settled intent with the executed trade.
type ConfirmResponse struct {
	Intent *Intent            `json:"intent"`
	Trade  *trade.TradeResult `json:"trade"`
}

// CreateIntentHandler handles POST /api/v1/payments
func (g *Gateway) CreateIntentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	side, err := model.ParseSide(req.Side)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	intent, err := g.CreateIntent(r.Context(), req.UserID, req.CandidateID, side, req.Quantity)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(intent)
}

// ConfirmHandler handles POST /api/v1/payments/{intentID}/confirm
func (g *Gateway) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")

	intent, result, err := g.Confirm(r.Context(), intentID)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ConfirmResponse{Intent: intent, Trade: result})
}

// CancelHandler handles POST /api/v1/payments/{intentID}/cancel
func (g *Gateway) CancelHandler(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")

	intent, err := g.Cancel(intentID)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intent)
}

// GetHandler handles GET /api/v1/payments/{intentID}
func (g *Gateway) GetHandler(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")

	intent, err := g.Get(intentID)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intent)
}

// Routes mounts the gateway handlers on a chi router.
func (g *Gateway) Routes(r chi.Router) {
	r.Post("/payments", g.CreateIntentHandler)
	r.Get("/payments/{intentID}", g.GetHandler)
	r.Post("/payments/{intentID}/confirm", g.ConfirmHandler)
	r.Post("/payments/{intentID}/cancel", g.CancelHandler)
}

func writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIntentNotFound), errors.Is(err, store.ErrUnknownCandidate):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, trade.ErrInvalidQuantity):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrIntentNotPending),
		errors.Is(err, ErrIntentExpired),
		errors.Is(err, trade.ErrSupplyExceeded),
		errors.Is(err, trade.ErrCandidateArchived):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
