// Package trade sequences user buys and sells across the market state
// and the portfolio ledger, and exposes the HTTP surface for markets,
// quotes, trades, and portfolios.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quemvence/market-engine/internal/curve"
	"github.com/quemvence/market-engine/internal/ledger"
	"github.com/quemvence/market-engine/internal/metrics"
	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/store"
)

var (
	// ErrInvalidQuantity is returned when a trade quantity is not a
	// positive integer.
	ErrInvalidQuantity = errors.New("trade: quantity must be a positive integer")

	// ErrSupplyExceeded is returned when a buy would push a side's sold
	// supply past the per-side cap. The trade is rejected outright, never
	// silently dropped.
	ErrSupplyExceeded = errors.New("trade: supply cap reached for this side")

	// ErrCandidateArchived is returned when trading on an archived
	// candidate market.
	ErrCandidateArchived = errors.New("trade: candidate market is archived")
)

// DefaultHistoryCap bounds each candidate's price history series.
const DefaultHistoryCap = 50

// Service owns trade execution. Each candidate has an exclusive commit
// lock, so concurrent trades on one candidate serialize into a total
// order while different candidates proceed independently.
type Service struct {
	store      store.Store
	ledger     *ledger.Ledger
	wsHub      *WSHub // optional WebSocket hub for real-time broadcasts
	historyCap int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, lg *ledger.Ledger, hub *WSHub, historyCap int) *Service {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Service{
		store:      st,
		ledger:     lg,
		wsHub:      hub,
		historyCap: historyCap,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *Service) candidateLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

// TradeResult reports a committed market trade.
type TradeResult struct {
	CandidateID   string          `json:"candidate_id"`
	Side          model.Side      `json:"side"`
	Quantity      int64           `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	ExecutedTotal decimal.Decimal `json:"executed_total"`
	NewPriceVence decimal.Decimal `json:"new_price_vence"`
	NewPricePerde decimal.Decimal `json:"new_price_perde"`
}

// SellResult reports a settled sell.
type SellResult struct {
	CandidateID       string          `json:"candidate_id"`
	Side              model.Side      `json:"side"`
	Quantity          int64           `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	SaleValue         decimal.Decimal `json:"sale_value"`
	RemovedCostBasis  decimal.Decimal `json:"removed_cost_basis"`
	RemainingQuantity int64           `json:"remaining_quantity"`
}

// QuoteResult is a read-only purchase preview.
type QuoteResult struct {
	CandidateID  string          `json:"candidate_id"`
	Side         model.Side      `json:"side"`
	Quantity     int64           `json:"quantity"`
	Total        decimal.Decimal `json:"total"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// CommitTrade applies a purchase to the market: prices the batch off the
// side's net delta, bumps the side's supply, rederives both prices from
// the new supply pair, and appends a history point. This is the single
// commit path for user buys and simulated trades alike; actorID is the
// buying user, empty for the simulator.
//
// On any error no state is mutated.
func (s *Service) CommitTrade(ctx context.Context, actorID, candidateID string, side model.Side, quantity int64) (*TradeResult, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	start := time.Now()

	mu := s.candidateLock(candidateID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusActive {
		return nil, ErrCandidateArchived
	}
	// Compared against the remaining headroom, not supply+quantity,
	// which can overflow int64 and slip past the cap.
	if quantity > curve.MaxSupply-c.Supply(side) {
		metrics.SupplyRejections.Inc()
		return nil, ErrSupplyExceeded
	}

	netDelta := c.Supply(side) - c.Supply(side.Opposite())
	quote, err := curve.BatchCost(netDelta, quantity)
	if err != nil {
		return nil, err
	}

	newVence := c.SupplyVenceSold
	newPerde := c.SupplyPerdeSold
	if side == model.SideVence {
		newVence += quantity
	} else {
		newPerde += quantity
	}

	if err := s.store.UpdateSupply(ctx, candidateID, newVence, newPerde); err != nil {
		return nil, fmt.Errorf("commit trade on %s: %w", candidateID, err)
	}

	// Both prices are rederived from the authoritative supply pair, not
	// from the batch's net delta, so the two sides can never drift apart.
	priceVence, pricePerde := curve.Prices(newVence, newPerde)

	// Supply is already advanced; history and ledger-entry failures from
	// here leave the commit in place and are surfaced via logs and the
	// post-commit failure counter rather than rolled back.
	now := time.Now().UTC()
	point := model.PricePoint{Timestamp: now, PriceVence: priceVence, PricePerde: pricePerde}
	if err := s.store.AppendPricePoint(ctx, candidateID, point, s.historyCap); err != nil {
		metrics.PostCommitWriteFailures.WithLabelValues("history").Inc()
		slog.Error("price history append failed", "candidate", candidateID, "err", err)
	}

	entry := &model.LedgerEntry{
		ID:          uuid.New().String(),
		UserID:      actorID,
		CandidateID: candidateID,
		Side:        side,
		Kind:        model.KindBuy,
		Quantity:    quantity,
		Price:       quote.AveragePrice,
		Cost:        quote.Total,
		Timestamp:   now,
	}
	if err := s.store.InsertLedgerEntry(ctx, entry); err != nil {
		metrics.PostCommitWriteFailures.WithLabelValues("ledger_entry").Inc()
		slog.Error("ledger entry insert failed", "candidate", candidateID, "err", err)
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())
	metrics.MarketVolume.WithLabelValues(candidateID, string(side)).Add(float64(quantity))

	slog.Info("trade committed",
		"trade_id", entry.ID,
		"user", actorID,
		"candidate", candidateID,
		"side", side,
		"qty", quantity,
		"total", quote.Total.String(),
		"avg_price", quote.AveragePrice.String(),
		"new_price_vence", priceVence.String(),
		"new_price_perde", pricePerde.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "trade_executed",
			CandidateID: candidateID,
			PriceVence:  priceVence.String(),
			PricePerde:  pricePerde.String(),
			Side:        string(side),
			Quantity:    quantity,
		})
	}

	return &TradeResult{
		CandidateID:   candidateID,
		Side:          side,
		Quantity:      quantity,
		AveragePrice:  quote.AveragePrice,
		ExecutedTotal: quote.Total,
		NewPriceVence: priceVence,
		NewPricePerde: pricePerde,
	}, nil
}

// Quote previews a purchase without mutating anything. For the same
// market state and quantity it returns exactly what CommitTrade would
// charge, including the same rejections; a zero quantity quotes to zero.
func (s *Service) Quote(ctx context.Context, candidateID string, side model.Side, quantity int64) (*QuoteResult, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusActive {
		return nil, ErrCandidateArchived
	}
	if quantity > curve.MaxSupply-c.Supply(side) {
		return nil, ErrSupplyExceeded
	}

	netDelta := c.Supply(side) - c.Supply(side.Opposite())
	quote, err := curve.BatchCost(netDelta, quantity)
	if err != nil {
		return nil, err
	}

	return &QuoteResult{
		CandidateID:  candidateID,
		Side:         side,
		Quantity:     quantity,
		Total:        quote.Total,
		AveragePrice: quote.AveragePrice,
	}, nil
}

// Buy commits a market trade for the user and records the position at
// the executed cost. If the market commit fails the ledger is untouched.
// The reverse gap — ledger failure after a successful commit — leaves
// the market trade in place and is logged; the ledger has no failure
// path under normal contracts.
func (s *Service) Buy(ctx context.Context, userID, candidateID string, side model.Side, quantity int64) (*TradeResult, error) {
	result, err := s.CommitTrade(ctx, userID, candidateID, side, quantity)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.RecordBuy(ctx, userID, candidateID, side, quantity, result.ExecutedTotal); err != nil {
		slog.Error("position record failed after market commit",
			"user", userID, "candidate", candidateID, "err", err)
		return nil, fmt.Errorf("record buy: %w", err)
	}

	return result, nil
}

// Sell settles a position reduction against the current market price.
// No supply is returned to the market pool and no price moves: sells are
// a ledger-only settlement at mark-to-market.
func (s *Service) Sell(ctx context.Context, userID, candidateID string, side model.Side, quantity int64) (*SellResult, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	unitPrice := c.Price(side)
	saleValue := unitPrice.Mul(decimal.NewFromInt(quantity))

	removed, err := s.ledger.RecordSell(ctx, userID, candidateID, side, quantity, saleValue)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &model.LedgerEntry{
		ID:          uuid.New().String(),
		UserID:      userID,
		CandidateID: candidateID,
		Side:        side,
		Kind:        model.KindSell,
		Quantity:    quantity,
		Price:       unitPrice,
		Cost:        saleValue,
		Timestamp:   now,
	}
	if err := s.store.InsertLedgerEntry(ctx, entry); err != nil {
		metrics.PostCommitWriteFailures.WithLabelValues("ledger_entry").Inc()
		slog.Error("ledger entry insert failed", "candidate", candidateID, "err", err)
	}

	remaining, err := s.ledger.Quantity(ctx, userID, candidateID, side)
	if err != nil {
		return nil, err
	}

	slog.Info("sell settled",
		"trade_id", entry.ID,
		"user", userID,
		"candidate", candidateID,
		"side", side,
		"qty", quantity,
		"sale_value", saleValue.String(),
		"removed_basis", removed.String(),
	)

	return &SellResult{
		CandidateID:       candidateID,
		Side:              side,
		Quantity:          quantity,
		UnitPrice:         unitPrice,
		SaleValue:         saleValue,
		RemovedCostBasis:  removed,
		RemainingQuantity: remaining,
	}, nil
}

// Portfolio returns the user's positions marked to current prices plus
// the withdrawable balance.
func (s *Service) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	return s.ledger.Portfolio(ctx, userID, func(candidateID string, side model.Side) (decimal.Decimal, error) {
		c, err := s.store.GetCandidate(ctx, candidateID)
		if err != nil {
			return decimal.Zero, err
		}
		return c.Price(side), nil
	})
}

// Withdraw zeroes the user's balance and returns the withdrawn amount.
func (s *Service) Withdraw(ctx context.Context, userID string) (decimal.Decimal, error) {
	amount, err := s.ledger.Withdraw(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	slog.Info("balance withdrawn", "user", userID, "amount", amount.String())
	return amount, nil
}
