package sim_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/quemvence/market-engine/internal/ledger"
	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/sim"
	"github.com/quemvence/market-engine/internal/store"
	"github.com/quemvence/market-engine/internal/trade"
)

func newSimEnv(t *testing.T) (*store.MemoryStore, *trade.Service) {
	t.Helper()
	ms := store.NewMemoryStore()
	return ms, trade.NewService(ms, ledger.New(ms), nil, trade.DefaultHistoryCap)
}

func seed(t *testing.T, ms *store.MemoryStore, id, status string) {
	t.Helper()
	err := ms.CreateCandidate(context.Background(), &model.Candidate{
		ID:        id,
		Name:      "Candidate " + id,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestStepTradesThroughSharedPath(t *testing.T) {
	ms, svc := newSimEnv(t)
	seed(t, ms, "c1", model.StatusActive)
	ctx := context.Background()

	driver := sim.New(svc, ms, sim.DefaultInterval, rand.New(rand.NewSource(1)))

	// Enough steps that some must trade despite the 50% skip.
	for i := 0; i < 200; i++ {
		if err := driver.Step(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	c, err := ms.GetCandidate(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sold := c.SupplyVenceSold + c.SupplyPerdeSold
	if sold == 0 {
		t.Fatal("expected simulated trades to move supply")
	}

	// Every simulated trade went through the common commit path, so the
	// history and ledger record it like any user trade.
	points, _ := ms.GetHistory(ctx, "c1")
	if len(points) == 0 {
		t.Error("expected price history from simulated trades")
	}
	entries, _ := ms.GetLedgerEntriesByCandidate(ctx, "c1")
	if len(entries) == 0 {
		t.Fatal("expected ledger entries from simulated trades")
	}
	for _, e := range entries {
		if e.UserID != "" {
			t.Errorf("simulated trade carries user ID %q", e.UserID)
		}
		if e.Kind != model.KindBuy {
			t.Errorf("simulated trade kind %q", e.Kind)
		}
		if e.Quantity < 1 || e.Quantity > 50 {
			t.Errorf("simulated quantity %d outside 1..50", e.Quantity)
		}
	}
}

func TestStepSkipsSomeTicks(t *testing.T) {
	ms, svc := newSimEnv(t)
	seed(t, ms, "c1", model.StatusActive)
	ctx := context.Background()

	driver := sim.New(svc, ms, sim.DefaultInterval, rand.New(rand.NewSource(42)))

	for i := 0; i < 100; i++ {
		if err := driver.Step(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	entries, _ := ms.GetLedgerEntriesByCandidate(ctx, "c1")
	// Roughly half the ticks trade; all or none would mean the skip is broken.
	if len(entries) == 0 || len(entries) == 100 {
		t.Errorf("expected partial trading across 100 ticks, got %d trades", len(entries))
	}
}

func TestStepIgnoresArchivedCandidates(t *testing.T) {
	ms, svc := newSimEnv(t)
	seed(t, ms, "old", model.StatusArchived)
	seed(t, ms, "live", model.StatusActive)
	ctx := context.Background()

	driver := sim.New(svc, ms, sim.DefaultInterval, rand.New(rand.NewSource(7)))
	for i := 0; i < 100; i++ {
		if err := driver.Step(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	archived, _ := ms.GetCandidate(ctx, "old")
	if archived.SupplyVenceSold != 0 || archived.SupplyPerdeSold != 0 {
		t.Errorf("archived candidate was traded: %d/%d",
			archived.SupplyVenceSold, archived.SupplyPerdeSold)
	}
	live, _ := ms.GetCandidate(ctx, "live")
	if live.SupplyVenceSold+live.SupplyPerdeSold == 0 {
		t.Error("expected trades on the active candidate")
	}
}

func TestStepNoCandidates(t *testing.T) {
	ms, svc := newSimEnv(t)

	driver := sim.New(svc, ms, sim.DefaultInterval, rand.New(rand.NewSource(3)))
	for i := 0; i < 20; i++ {
		if err := driver.Step(context.Background()); err != nil {
			t.Fatalf("step with empty market errored: %v", err)
		}
	}
}

func TestStepDeterministicWithFixedSeed(t *testing.T) {
	run := func() (int64, int64) {
		ms, svc := newSimEnv(t)
		seed(t, ms, "c1", model.StatusActive)
		driver := sim.New(svc, ms, sim.DefaultInterval, rand.New(rand.NewSource(99)))
		for i := 0; i < 50; i++ {
			if err := driver.Step(context.Background()); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
		c, _ := ms.GetCandidate(context.Background(), "c1")
		return c.SupplyVenceSold, c.SupplyPerdeSold
	}

	v1, p1 := run()
	v2, p2 := run()
	if v1 != v2 || p1 != p2 {
		t.Errorf("same seed diverged: %d/%d vs %d/%d", v1, p1, v2, p2)
	}
}

type capErrorCommitter struct{}

func (capErrorCommitter) CommitTrade(context.Context, string, string, model.Side, int64) (*trade.TradeResult, error) {
	return nil, trade.ErrSupplyExceeded
}

type failCommitter struct{}

func (failCommitter) CommitTrade(context.Context, string, string, model.Side, int64) (*trade.TradeResult, error) {
	return nil, errors.New("boom")
}

func TestStepToleratesSupplyCap(t *testing.T) {
	ms, _ := newSimEnv(t)
	seed(t, ms, "c1", model.StatusActive)

	driver := sim.New(capErrorCommitter{}, ms, sim.DefaultInterval, rand.New(rand.NewSource(5)))
	for i := 0; i < 50; i++ {
		if err := driver.Step(context.Background()); err != nil {
			t.Fatalf("supply cap surfaced as step error: %v", err)
		}
	}
}

func TestStepSurfacesCommitErrors(t *testing.T) {
	ms, _ := newSimEnv(t)
	seed(t, ms, "c1", model.StatusActive)

	driver := sim.New(failCommitter{}, ms, sim.DefaultInterval, rand.New(rand.NewSource(5)))
	var failed bool
	for i := 0; i < 50; i++ {
		if err := driver.Step(context.Background()); err != nil {
			failed = true
			break
		}
	}
	if !failed {
		t.Error("expected at least one step to surface the commit error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ms, svc := newSimEnv(t)
	seed(t, ms, "c1", model.StatusActive)

	driver := sim.New(svc, ms, time.Millisecond, rand.New(rand.NewSource(11)))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		driver.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after cancel")
	}
}
