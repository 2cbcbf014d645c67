// Package payment gates purchases behind an asynchronous payment
// confirmation, mirroring the PIX checkout flow: a pending intent is
// created for a quoted amount, and only an explicit confirmation of
// that intent triggers the actual buy. Abandoning or expiring an intent
// never mutates market or portfolio state.
//
// The gateway is a mock payment collaborator — it produces a BR Code
// payload for display but talks to no payment provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/trade"
)

var (
	// ErrIntentNotFound is returned for an unknown intent ID.
	ErrIntentNotFound = errors.New("payment: intent not found")

	// ErrIntentNotPending is returned when confirming or cancelling an
	// intent that has already been settled, cancelled, or failed.
	ErrIntentNotPending = errors.New("payment: intent is not pending")

	// ErrIntentExpired is returned when confirming an intent past its
	// expiry window.
	ErrIntentExpired = errors.New("payment: intent expired")
)

// DefaultExpiry is how long a pending intent stays confirmable.
const DefaultExpiry = 10 * time.Minute

// Intent statuses.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Intent is one pending (or settled) purchase awaiting payment.
type Intent struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	CandidateID string          `json:"candidate_id"`
	Side        model.Side      `json:"side"`
	Quantity    int64           `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	BRCode      string          `json:"br_code"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Trader is the slice of the trade service the gateway needs.
// Satisfied by *trade.Service.
type Trader interface {
	Quote(ctx context.Context, candidateID string, side model.Side, quantity int64) (*trade.QuoteResult, error)
	Buy(ctx context.Context, userID, candidateID string, side model.Side, quantity int64) (*trade.TradeResult, error)
}

// Gateway issues and settles payment intents. In-memory only: intents
// are ephemeral checkout state, not part of the persisted market.
type Gateway struct {
	trader Trader
	expiry time.Duration
	now    func() time.Time // injectable clock for expiry tests

	mu      sync.Mutex
	intents map[string]*Intent
}

// NewGateway creates a gateway over the trade service. A non-positive
// expiry falls back to DefaultExpiry.
func NewGateway(trader Trader, expiry time.Duration) *Gateway {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Gateway{
		trader:  trader,
		expiry:  expiry,
		now:     time.Now,
		intents: make(map[string]*Intent),
	}
}

// SetClock replaces the gateway clock. Test hook.
func (g *Gateway) SetClock(now func() time.Time) {
	g.now = now
}

// CreateIntent quotes the purchase at current market state and stores a
// pending intent for that amount. Nothing is committed yet.
func (g *Gateway) CreateIntent(ctx context.Context, userID, candidateID string, side model.Side, quantity int64) (*Intent, error) {
	if quantity <= 0 {
		return nil, trade.ErrInvalidQuantity
	}

	quote, err := g.trader.Quote(ctx, candidateID, side, quantity)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	intent := &Intent{
		ID:          uuid.New().String(),
		UserID:      userID,
		CandidateID: candidateID,
		Side:        side,
		Quantity:    quantity,
		Amount:      quote.Total,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.expiry),
	}
	intent.BRCode = brCode(intent)

	g.mu.Lock()
	g.intents[intent.ID] = intent
	g.mu.Unlock()

	slog.Info("payment intent created",
		"intent_id", intent.ID,
		"user", userID,
		"candidate", candidateID,
		"side", side,
		"qty", quantity,
		"amount", intent.Amount.String(),
	)
	return snapshot(intent), nil
}

// Confirm settles a pending intent: exactly one successful confirmation
// triggers the buy. Expired intents are marked expired and rejected;
// the quoted amount may differ from the executed total if the market
// moved between intent and confirmation — the executed total wins.
func (g *Gateway) Confirm(ctx context.Context, intentID string) (*Intent, *trade.TradeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, nil, ErrIntentNotFound
	}
	if intent.Status != StatusPending {
		return nil, nil, ErrIntentNotPending
	}
	if g.now().After(intent.ExpiresAt) {
		intent.Status = StatusExpired
		return nil, nil, ErrIntentExpired
	}

	result, err := g.trader.Buy(ctx, intent.UserID, intent.CandidateID, intent.Side, intent.Quantity)
	if err != nil {
		intent.Status = StatusFailed
		return nil, nil, err
	}

	intent.Status = StatusPaid
	intent.Amount = result.ExecutedTotal

	slog.Info("payment intent settled",
		"intent_id", intent.ID,
		"user", intent.UserID,
		"total", result.ExecutedTotal.String(),
	)
	return snapshot(intent), result, nil
}

// Cancel abandons a pending intent with no state mutation.
func (g *Gateway) Cancel(intentID string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if intent.Status != StatusPending {
		return nil, ErrIntentNotPending
	}
	intent.Status = StatusCancelled
	return snapshot(intent), nil
}

// Get returns the current state of an intent, marking it expired first
// if its window has lapsed.
func (g *Gateway) Get(intentID string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if intent.Status == StatusPending && g.now().After(intent.ExpiresAt) {
		intent.Status = StatusExpired
	}
	return snapshot(intent), nil
}

func snapshot(i *Intent) *Intent {
	cp := *i
	return &cp
}

// brCode renders a synthetic PIX BR Code payload for the intent. The
// shape follows the EMV merchant-presented format closely enough for a
// checkout screen; it is not a real charge.
func brCode(i *Intent) string {
	return fmt.Sprintf(
		"00020126580014BR.GOV.BCB.PIX0136%s5204000053039865406%s5802BR5913Quem Vence App6009Sao Paulo62070503***6304",
		i.ID, i.Amount.StringFixed(2),
	)
}
