// Package curve implements the linear bonding curve that prices outcome
// tokens for binary candidate markets.
//
// The two sides of a candidate market are coupled through the net delta:
// the signed difference between a side's sold supply and its opposite's.
// Each net token moves the unit price by one PriceStep from BasePrice,
// so buying one side pushes its own price up and the other side's price
// down by the same per-unit step (a constant-sum-like market).
//
// All monetary values use shopspring/decimal — never float64 for money.
// The package is stateless: supplies are passed as arguments, not stored.
package curve

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeQuantity is returned when a batch quantity is negative.
	ErrNegativeQuantity = errors.New("curve: quantity must be non-negative")

	// BasePrice is the unit price at net delta zero.
	BasePrice = decimal.RequireFromString("10.00")

	// PriceStep is the per-unit price shift per net token sold.
	PriceStep = decimal.RequireFromString("0.01")

	// FloorPrice is the lowest a unit price can go; unit prices are
	// clamped here independently, never allowed to reach zero.
	FloorPrice = decimal.RequireFromString("0.01")
)

// MaxSupply is the maximum tokens sold per side of a candidate market.
const MaxSupply int64 = 10000

// minUnclampedDelta is the smallest net delta whose unclamped unit price
// still sits at or above FloorPrice: (FloorPrice - BasePrice) / PriceStep.
// Below it the floor clamp is active and the arithmetic-series shortcut
// in BatchCost is invalid.
const minUnclampedDelta int64 = -999

// Quote is the result of pricing a batch purchase.
type Quote struct {
	Total        decimal.Decimal `json:"total"`
	AveragePrice decimal.Decimal `json:"average_price"`
	NewNetDelta  int64           `json:"new_net_delta"`
}

// UnitPrice returns the price of the next unit at the given net delta:
//
//	max(FloorPrice, BasePrice + netDelta * PriceStep)
func UnitPrice(netDelta int64) decimal.Decimal {
	p := BasePrice.Add(PriceStep.Mul(decimal.NewFromInt(netDelta)))
	if p.LessThan(FloorPrice) {
		return FloorPrice
	}
	return p
}

// BatchCost prices a purchase of quantity units starting at the given
// net delta. The k-th unit (k = 0..quantity-1) costs UnitPrice(d + k):
// every unit sold shifts the net delta by one before the next is priced.
//
// Within the region where no unit price would be floor-clamped, the
// total is the exact arithmetic-series sum
//
//	quantity * (UnitPrice(d) + UnitPrice(d + quantity - 1)) / 2
//
// Outside that region each unit is floored independently and the prices
// are summed one by one, so the closed form and the per-unit sum always
// agree where both are defined.
func BatchCost(currentNetDelta, quantity int64) (Quote, error) {
	if quantity < 0 {
		return Quote{}, ErrNegativeQuantity
	}
	if quantity == 0 {
		return Quote{NewNetDelta: currentNetDelta}, nil
	}

	qty := decimal.NewFromInt(quantity)
	var total decimal.Decimal

	if currentNetDelta >= minUnclampedDelta {
		// Prices rise with k, so the first unit is the cheapest; if it
		// clears the floor the whole batch does.
		first := UnitPrice(currentNetDelta)
		last := UnitPrice(currentNetDelta + quantity - 1)
		total = qty.Mul(first.Add(last)).Div(decimal.NewFromInt(2))
	} else {
		for k := int64(0); k < quantity; k++ {
			total = total.Add(UnitPrice(currentNetDelta + k))
		}
	}

	return Quote{
		Total:        total,
		AveragePrice: total.Div(qty),
		NewNetDelta:  currentNetDelta + quantity,
	}, nil
}

// Prices derives both side prices from the authoritative supply pair.
// Each side prices off its own net-delta orientation:
//
//	priceVence = UnitPrice(supplyVence - supplyPerde)
//	pricePerde = UnitPrice(supplyPerde - supplyVence)
func Prices(supplyVenceSold, supplyPerdeSold int64) (priceVence, pricePerde decimal.Decimal) {
	net := supplyVenceSold - supplyPerdeSold
	return UnitPrice(net), UnitPrice(-net)
}
