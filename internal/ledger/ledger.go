// Package ledger implements per-user portfolio bookkeeping: positions
// with pro-rata cost basis and the withdrawable balance credited by
// sells. It never consults market prices itself — sale proceeds are
// supplied by the caller, keeping the ledger decoupled from pricing.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/store"
)

var (
	// ErrInvalidQuantity is returned when a buy or sell quantity is not
	// strictly positive.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

	// ErrNegativeCost is returned when a buy cost or sale value is negative.
	ErrNegativeCost = errors.New("ledger: monetary amount must be non-negative")

	// ErrInsufficientQuantity is returned when a sell exceeds the held
	// quantity. Selling is never clamped to "sell all": the caller must
	// ask for at most what is held.
	ErrInsufficientQuantity = errors.New("ledger: insufficient quantity held")

	// ErrNothingToWithdraw is returned when withdrawing a zero balance.
	ErrNothingToWithdraw = errors.New("ledger: nothing to withdraw")
)

// userLockShards bounds the striped lock table.
const userLockShards = 64

// Ledger applies portfolio mutations against the store. Positions and
// balance for one user are guarded by a striped mutex so they are never
// observed half-applied.
type Ledger struct {
	store store.Store
	locks [userLockShards]sync.Mutex
}

// New creates a ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

func (l *Ledger) lockUser(userID string) *sync.Mutex {
	var h uint32
	for i := 0; i < len(userID); i++ {
		h = h*31 + uint32(userID[i])
	}
	return &l.locks[h%userLockShards]
}

// RecordBuy adds quantity and cost to the (candidate, side) position,
// creating it on first buy. Buys are unconditionally accepted — there
// is no balance check (deposits are out of scope).
func (l *Ledger) RecordBuy(ctx context.Context, userID, candidateID string, side model.Side, quantity int64, cost decimal.Decimal) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if cost.IsNegative() {
		return ErrNegativeCost
	}

	mu := l.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	pos, err := l.store.GetPosition(ctx, userID, candidateID, side)
	if errors.Is(err, store.ErrNoPosition) {
		pos = &model.Position{
			UserID:      userID,
			CandidateID: candidateID,
			Side:        side,
		}
	} else if err != nil {
		return err
	}

	pos.Quantity += quantity
	pos.TotalCost = pos.TotalCost.Add(cost)
	return l.store.UpsertPosition(ctx, pos)
}

// RecordSell removes quantity from the position, removing cost basis
// pro-rata, and credits saleValue to the user's balance. Returns the
// removed cost basis. The position is deleted when it reaches zero.
func (l *Ledger) RecordSell(ctx context.Context, userID, candidateID string, side model.Side, quantity int64, saleValue decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	if saleValue.IsNegative() {
		return decimal.Zero, ErrNegativeCost
	}

	mu := l.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	pos, err := l.store.GetPosition(ctx, userID, candidateID, side)
	if err != nil {
		return decimal.Zero, err
	}
	if quantity > pos.Quantity {
		return decimal.Zero, ErrInsufficientQuantity
	}

	var removed decimal.Decimal
	if quantity == pos.Quantity {
		// Closing out: remove the full basis so none strands on a
		// zero-quantity position.
		removed = pos.TotalCost
		if err := l.store.DeletePosition(ctx, userID, candidateID, side); err != nil {
			return decimal.Zero, err
		}
	} else {
		removed = pos.TotalCost.
			Mul(decimal.NewFromInt(quantity)).
			Div(decimal.NewFromInt(pos.Quantity))
		pos.Quantity -= quantity
		pos.TotalCost = pos.TotalCost.Sub(removed)
		if err := l.store.UpsertPosition(ctx, pos); err != nil {
			return decimal.Zero, err
		}
	}

	balance, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := l.store.SetBalance(ctx, userID, balance.Add(saleValue)); err != nil {
		return decimal.Zero, err
	}

	return removed, nil
}

// Withdraw zeroes the user's balance and returns the prior amount.
func (l *Ledger) Withdraw(ctx context.Context, userID string) (decimal.Decimal, error) {
	mu := l.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	balance, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if balance.IsZero() {
		return decimal.Zero, ErrNothingToWithdraw
	}
	if err := l.store.SetBalance(ctx, userID, decimal.Zero); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Quantity returns the held quantity for one position, zero if none.
func (l *Ledger) Quantity(ctx context.Context, userID, candidateID string, side model.Side) (int64, error) {
	pos, err := l.store.GetPosition(ctx, userID, candidateID, side)
	if errors.Is(err, store.ErrNoPosition) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return pos.Quantity, nil
}

// Portfolio assembles a user's positions marked to the supplied price
// lookup, plus the withdrawable balance. priceOf returns the current
// market price for a (candidate, side) pair.
func (l *Ledger) Portfolio(ctx context.Context, userID string, priceOf func(candidateID string, side model.Side) (decimal.Decimal, error)) (*model.Portfolio, error) {
	positions, err := l.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &model.Portfolio{
		UserID:    userID,
		Positions: make([]model.Position, 0, len(positions)),
		Balance:   balance,
	}

	for _, pos := range positions {
		if pos.Quantity > 0 {
			pos.AvgEntryPrice = pos.TotalCost.Div(decimal.NewFromInt(pos.Quantity))
		}
		price, err := priceOf(pos.CandidateID, pos.Side)
		if err != nil {
			return nil, err
		}
		pos.CurrentValue = price.Mul(decimal.NewFromInt(pos.Quantity))
		pos.UnrealizedPnL = pos.CurrentValue.Sub(pos.TotalCost)

		p.TotalCost = p.TotalCost.Add(pos.TotalCost)
		p.CurrentValue = p.CurrentValue.Add(pos.CurrentValue)
		p.TotalPnL = p.TotalPnL.Add(pos.UnrealizedPnL)
		p.Positions = append(p.Positions, pos)
	}

	return p, nil
}
