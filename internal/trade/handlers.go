package trade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quemvence/market-engine/internal/curve"
	"github.com/quemvence/market-engine/internal/ledger"
	"github.com/quemvence/market-engine/internal/metrics"
	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/store"
)

// --- Request/Response types ---

// CreateCandidateRequest is the JSON body for POST /api/v1/candidates.
type CreateCandidateRequest struct {
	ID              string `json:"id"` // optional, generated when empty
	Name            string `json:"name"`
	Role            string `json:"role"`
	ImageURL        string `json:"image_url"`
	SupplyVenceSold int64  `json:"supply_vence_sold"` // optional seed supply
	SupplyPerdeSold int64  `json:"supply_perde_sold"`
}

// TradeRequest is the JSON body for POST /api/v1/trade and /api/v1/sell.
type TradeRequest struct {
	UserID      string `json:"user_id"`
	CandidateID string `json:"candidate_id"`
	Side        string `json:"side"` // "VENCE" or "PERDE"
	Quantity    int64  `json:"quantity"`
}

// WithdrawResponse is the JSON body returned from a withdrawal.
type WithdrawResponse struct {
	UserID    string `json:"user_id"`
	Withdrawn string `json:"withdrawn"`
}

// --- HTTP Handlers ---

// CreateCandidate handles POST /api/v1/candidates
func (s *Service) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req CreateCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.SupplyVenceSold < 0 || req.SupplyPerdeSold < 0 ||
		req.SupplyVenceSold > curve.MaxSupply || req.SupplyPerdeSold > curve.MaxSupply {
		writeError(w, "seed supply out of range", http.StatusBadRequest)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	candidate := &model.Candidate{
		ID:              id,
		Name:            req.Name,
		Role:            req.Role,
		ImageURL:        req.ImageURL,
		Status:          model.StatusActive,
		SupplyVenceSold: req.SupplyVenceSold,
		SupplyPerdeSold: req.SupplyPerdeSold,
		CreatedAt:       time.Now().UTC(),
	}

	ctx := r.Context()
	if err := s.store.CreateCandidate(ctx, candidate); err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.ActiveCandidates.Inc()

	created, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// ListCandidates handles GET /api/v1/candidates
func (s *Service) ListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.store.ListCandidates(r.Context())
	if err != nil {
		writeError(w, "failed to list candidates", http.StatusInternalServerError)
		return
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(candidates)
}

// GetCandidate handles GET /api/v1/candidates/{candidateID}
func (s *Service) GetCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidateID")

	candidate, err := s.store.GetCandidate(r.Context(), candidateID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(candidate)
}

// GetHistory handles GET /api/v1/candidates/{candidateID}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidateID")

	points, err := s.store.GetHistory(r.Context(), candidateID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(points)
}

// GetCandidateTrades handles GET /api/v1/candidates/{candidateID}/trades
func (s *Service) GetCandidateTrades(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidateID")

	entries, err := s.store.GetLedgerEntriesByCandidate(r.Context(), candidateID)
	if err != nil {
		writeError(w, "failed to get trades", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetQuote handles GET /api/v1/candidates/{candidateID}/quote?side=VENCE&quantity=10
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidateID")

	side, err := model.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	quantity, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil {
		writeError(w, "quantity must be an integer", http.StatusBadRequest)
		return
	}

	quote, err := s.Quote(r.Context(), candidateID, side, quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quote)
}

// ExecuteBuy handles POST /api/v1/trade
func (s *Service) ExecuteBuy(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTradeRequest(w, r)
	if !ok {
		return
	}

	side, err := model.ParseSide(req.Side)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.Buy(r.Context(), req.UserID, req.CandidateID, side, req.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ExecuteSell handles POST /api/v1/sell
func (s *Service) ExecuteSell(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTradeRequest(w, r)
	if !ok {
		return
	}

	side, err := model.ParseSide(req.Side)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.Sell(r.Context(), req.UserID, req.CandidateID, side, req.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	portfolio, err := s.Portfolio(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(portfolio)
}

// GetUserTrades handles GET /api/v1/portfolio/{userID}/trades
func (s *Service) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	entries, err := s.store.GetLedgerEntriesByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to get trades", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// ExecuteWithdraw handles POST /api/v1/portfolio/{userID}/withdraw
func (s *Service) ExecuteWithdraw(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	amount, err := s.Withdraw(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WithdrawResponse{
		UserID:    userID,
		Withdrawn: amount.String(),
	})
}

// Routes mounts all service handlers on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Get("/candidates", s.ListCandidates)
	r.Post("/candidates", s.CreateCandidate)
	r.Get("/candidates/{candidateID}", s.GetCandidate)
	r.Get("/candidates/{candidateID}/history", s.GetHistory)
	r.Get("/candidates/{candidateID}/trades", s.GetCandidateTrades)
	r.Get("/candidates/{candidateID}/quote", s.GetQuote)

	r.Post("/trade", s.ExecuteBuy)
	r.Post("/sell", s.ExecuteSell)

	r.Get("/portfolio/{userID}", s.GetPortfolio)
	r.Get("/portfolio/{userID}/trades", s.GetUserTrades)
	r.Post("/portfolio/{userID}/withdraw", s.ExecuteWithdraw)
}

func decodeTradeRequest(w http.ResponseWriter, r *http.Request) (TradeRequest, bool) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return req, false
	}
	if req.CandidateID == "" {
		writeError(w, "candidate_id is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeServiceError maps domain errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownCandidate), errors.Is(err, store.ErrNoPosition):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, model.ErrInvalidSide),
		errors.Is(err, curve.ErrNegativeQuantity):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSupplyExceeded),
		errors.Is(err, ErrCandidateArchived),
		errors.Is(err, store.ErrDuplicateCandidate),
		errors.Is(err, ledger.ErrInsufficientQuantity),
		errors.Is(err, ledger.ErrNothingToWithdraw):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
