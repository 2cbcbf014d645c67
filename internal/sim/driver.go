// Package sim animates candidate markets with synthetic trades in the
// absence of real users. The driver is owned by the composition root,
// runs on an injected interval and random source, and commits through
// the same trade path as user purchases — it is not a privileged writer.
package sim

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/quemvence/market-engine/internal/metrics"
	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/trade"
)

// DefaultInterval is how often the driver considers placing a trade.
const DefaultInterval = 1500 * time.Millisecond

// maxQuantity bounds each synthetic trade (1..maxQuantity tokens).
const maxQuantity = 50

// TradeCommitter is the shared commit path. Satisfied by *trade.Service.
type TradeCommitter interface {
	CommitTrade(ctx context.Context, actorID, candidateID string, side model.Side, quantity int64) (*trade.TradeResult, error)
}

// CandidateLister supplies the markets eligible for simulation.
// Satisfied by any store.Store.
type CandidateLister interface {
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
}

// Driver generates synthetic market activity on a fixed interval.
type Driver struct {
	committer TradeCommitter
	lister    CandidateLister
	interval  time.Duration
	rng       *rand.Rand
}

// New creates a driver. A nil rng gets a time-seeded source; tests pass
// a fixed-seed source for deterministic runs. A non-positive interval
// falls back to DefaultInterval.
func New(committer TradeCommitter, lister CandidateLister, interval time.Duration, rng *rand.Rand) *Driver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Driver{
		committer: committer,
		lister:    lister,
		interval:  interval,
		rng:       rng,
	}
}

// Run ticks until ctx is cancelled. Each tick calls Step; step failures
// are logged and never stop the loop.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("market simulation started", "interval", d.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("market simulation stopped")
			return
		case <-ticker.C:
			if err := d.Step(ctx); err != nil {
				slog.Warn("simulation step failed", "err", err)
			}
		}
	}
}

// Step places at most one synthetic trade: half the ticks do nothing to
// keep the tape from looking machine-gunned; otherwise a random active
// candidate gets a 1..50 token buy, biased 70/30 toward the side that is
// currently trending.
func (d *Driver) Step(ctx context.Context) error {
	if d.rng.Float64() > 0.5 {
		return nil
	}

	candidates, err := d.lister.ListCandidates(ctx)
	if err != nil {
		return err
	}

	active := candidates[:0]
	for _, c := range candidates {
		if c.Status == model.StatusActive {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return nil
	}

	candidate := active[d.rng.Intn(len(active))]

	trendUp := candidate.PriceVence.GreaterThan(candidate.PricePerde)
	threshold := 0.7
	if !trendUp {
		threshold = 0.3
	}
	side := model.SidePerde
	if d.rng.Float64() < threshold {
		side = model.SideVence
	}

	quantity := d.rng.Int63n(maxQuantity) + 1

	_, err = d.committer.CommitTrade(ctx, "", candidate.ID, side, quantity)
	if errors.Is(err, trade.ErrSupplyExceeded) {
		// A side at cap just stops moving; not a driver failure.
		return nil
	}
	if err != nil {
		return err
	}

	metrics.SimulatedTrades.Inc()
	return nil
}
