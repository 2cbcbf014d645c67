// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Quantities and supplies are whole tokens, so they use int64.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one of the two mutually-priced outcomes for a candidate.
type Side string

const (
	// SideVence is the "will win" outcome.
	SideVence Side = "VENCE"
	// SidePerde is the "will lose" outcome.
	SidePerde Side = "PERDE"
)

// ErrInvalidSide is returned when a side string is neither VENCE nor PERDE.
var ErrInvalidSide = errors.New("model: side must be VENCE or PERDE")

// ParseSide validates and converts a side string.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideVence, SidePerde:
		return Side(s), nil
	}
	return "", ErrInvalidSide
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideVence {
		return SidePerde
	}
	return SideVence
}

// Candidate statuses.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Candidate is the market state for one candidate: two outcome supplies
// plus display metadata. PriceVence and PricePerde are derived from the
// supply pair on every read — they are snapshot fields, never the
// authoritative source of pricing.
type Candidate struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Role            string          `json:"role" db:"role"`
	ImageURL        string          `json:"image_url,omitempty" db:"image_url"`
	Status          string          `json:"status" db:"status"` // "active", "archived"
	SupplyVenceSold int64           `json:"supply_vence_sold" db:"supply_vence_sold"`
	SupplyPerdeSold int64           `json:"supply_perde_sold" db:"supply_perde_sold"`
	PriceVence      decimal.Decimal `json:"price_vence"`
	PricePerde      decimal.Decimal `json:"price_perde"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Supply returns the sold count for the given side.
func (c *Candidate) Supply(side Side) int64 {
	if side == SideVence {
		return c.SupplyVenceSold
	}
	return c.SupplyPerdeSold
}

// Price returns the snapshot price for the given side.
func (c *Candidate) Price(side Side) decimal.Decimal {
	if side == SideVence {
		return c.PriceVence
	}
	return c.PricePerde
}

// PricePoint is one entry in a candidate's bounded price history.
type PricePoint struct {
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
	PriceVence decimal.Decimal `json:"price_vence" db:"price_vence"`
	PricePerde decimal.Decimal `json:"price_perde" db:"price_perde"`
}

// Position is a user's holding on one (candidate, side) pair.
// TotalCost is the cost basis for the currently-held quantity only;
// sells remove basis pro-rata, so TotalCost/Quantity is always the
// volume-weighted average entry price.
type Position struct {
	UserID        string          `json:"user_id"`
	CandidateID   string          `json:"candidate_id"`
	Side          Side            `json:"side"`
	Quantity      int64           `json:"quantity"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"` // totalCost / quantity
	CurrentValue  decimal.Decimal `json:"current_value"`   // mark-to-market
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`  // currentValue - totalCost
}

// Portfolio aggregates a user's positions and withdrawable balance.
type Portfolio struct {
	UserID       string          `json:"user_id"`
	Positions    []Position      `json:"positions"`
	Balance      decimal.Decimal `json:"balance"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	CurrentValue decimal.Decimal `json:"current_value"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
}

// Trade kinds recorded in the ledger.
const (
	KindBuy  = "BUY"
	KindSell = "SELL"
)

// LedgerEntry is an immutable record of an executed trade.
// Once created, these are never modified or deleted.
// UserID is empty for simulated market trades.
type LedgerEntry struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	CandidateID string          `json:"candidate_id" db:"candidate_id"`
	Side        Side            `json:"side" db:"side"`
	Kind        string          `json:"kind" db:"kind"` // "BUY" or "SELL"
	Quantity    int64           `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"` // average fill price
	Cost        decimal.Decimal `json:"cost" db:"cost"`   // buy: charged; sell: proceeds
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}
