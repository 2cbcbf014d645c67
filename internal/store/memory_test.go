package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/store"
)

func newCandidate(id string) *model.Candidate {
	return &model.Candidate{
		ID:        id,
		Name:      "Candidate " + id,
		Role:      "Governador",
		Status:    model.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGetCandidate(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateCandidate(ctx, newCandidate("c1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := ms.GetCandidate(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name != "Candidate c1" {
		t.Errorf("expected name 'Candidate c1', got %q", c.Name)
	}
	// A fresh market sits at the base price on both sides.
	if c.PriceVence.String() != "10" || c.PricePerde.String() != "10" {
		t.Errorf("expected base prices 10/10, got %s/%s", c.PriceVence, c.PricePerde)
	}
}

func TestCreateCandidateDuplicate(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.CreateCandidate(ctx, newCandidate("c1"))
	if err := ms.CreateCandidate(ctx, newCandidate("c1")); err != store.ErrDuplicateCandidate {
		t.Errorf("expected ErrDuplicateCandidate, got %v", err)
	}
}

func TestGetCandidateUnknown(t *testing.T) {
	ms := store.NewMemoryStore()

	if _, err := ms.GetCandidate(context.Background(), "missing"); err != store.ErrUnknownCandidate {
		t.Errorf("expected ErrUnknownCandidate, got %v", err)
	}
}

func TestUpdateSupplyDerivesPrices(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.CreateCandidate(ctx, newCandidate("c1"))
	if err := ms.UpdateSupply(ctx, "c1", 2500, 2250); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := ms.GetCandidate(ctx, "c1")
	if c.SupplyVenceSold != 2500 || c.SupplyPerdeSold != 2250 {
		t.Errorf("expected supplies 2500/2250, got %d/%d", c.SupplyVenceSold, c.SupplyPerdeSold)
	}
	if c.PriceVence.String() != "12.5" {
		t.Errorf("expected VENCE price 12.5, got %s", c.PriceVence)
	}
	if c.PricePerde.String() != "7.5" {
		t.Errorf("expected PERDE price 7.5, got %s", c.PricePerde)
	}
}

func TestUpdateSupplyUnknown(t *testing.T) {
	ms := store.NewMemoryStore()

	if err := ms.UpdateSupply(context.Background(), "missing", 1, 1); err != store.ErrUnknownCandidate {
		t.Errorf("expected ErrUnknownCandidate, got %v", err)
	}
}

func TestHistoryAppendAndCap(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateCandidate(ctx, newCandidate("c1"))

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 55; i++ {
		point := model.PricePoint{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			PriceVence: decimal.NewFromInt(int64(i)),
			PricePerde: decimal.NewFromInt(int64(100 - i)),
		}
		if err := ms.AppendPricePoint(ctx, "c1", point, 50); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	points, err := ms.GetHistory(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 50 {
		t.Fatalf("expected history capped at 50, got %d", len(points))
	}
	// Oldest entries are evicted first: the window is points 5..54.
	if !points[0].PriceVence.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected oldest surviving point 5, got %s", points[0].PriceVence)
	}
	if !points[49].PriceVence.Equal(decimal.NewFromInt(54)) {
		t.Errorf("expected newest point 54, got %s", points[49].PriceVence)
	}
}

func TestHistoryUnknownCandidate(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.AppendPricePoint(ctx, "missing", model.PricePoint{}, 50); err != store.ErrUnknownCandidate {
		t.Errorf("expected ErrUnknownCandidate on append, got %v", err)
	}
	if _, err := ms.GetHistory(ctx, "missing"); err != store.ErrUnknownCandidate {
		t.Errorf("expected ErrUnknownCandidate on read, got %v", err)
	}
}

func TestPositionLifecycle(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.GetPosition(ctx, "user1", "c1", model.SideVence); err != store.ErrNoPosition {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}

	pos := &model.Position{
		UserID:      "user1",
		CandidateID: "c1",
		Side:        model.SideVence,
		Quantity:    50,
		TotalCost:   decimal.RequireFromString("500.00"),
	}
	if err := ms.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := ms.GetPosition(ctx, "user1", "c1", model.SideVence)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Quantity != 50 {
		t.Errorf("expected quantity 50, got %d", got.Quantity)
	}

	// Same (user, candidate, side) key overwrites.
	pos.Quantity = 75
	ms.UpsertPosition(ctx, pos)
	got, _ = ms.GetPosition(ctx, "user1", "c1", model.SideVence)
	if got.Quantity != 75 {
		t.Errorf("expected quantity 75 after upsert, got %d", got.Quantity)
	}

	if err := ms.DeletePosition(ctx, "user1", "c1", model.SideVence); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ms.GetPosition(ctx, "user1", "c1", model.SideVence); err != store.ErrNoPosition {
		t.Errorf("expected ErrNoPosition after delete, got %v", err)
	}
	if err := ms.DeletePosition(ctx, "user1", "c1", model.SideVence); err != store.ErrNoPosition {
		t.Errorf("expected ErrNoPosition on double delete, got %v", err)
	}
}

func TestPositionSidesAreIndependent(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.UpsertPosition(ctx, &model.Position{
		UserID: "user1", CandidateID: "c1", Side: model.SideVence, Quantity: 10,
	})
	ms.UpsertPosition(ctx, &model.Position{
		UserID: "user1", CandidateID: "c1", Side: model.SidePerde, Quantity: 20,
	})

	positions, err := ms.ListPositions(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
}

func TestListPositionsFiltersByUser(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ms.UpsertPosition(ctx, &model.Position{
			UserID: "user1", CandidateID: fmt.Sprintf("c%d", i), Side: model.SideVence, Quantity: 1,
		})
	}
	ms.UpsertPosition(ctx, &model.Position{
		UserID: "user2", CandidateID: "c0", Side: model.SideVence, Quantity: 1,
	})

	positions, _ := ms.ListPositions(ctx, "user1")
	if len(positions) != 3 {
		t.Errorf("expected 3 positions for user1, got %d", len(positions))
	}
	positions, _ = ms.ListPositions(ctx, "user3")
	if len(positions) != 0 {
		t.Errorf("expected 0 positions for user3, got %d", len(positions))
	}
}

func TestBalanceDefaultsToZero(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	bal, err := ms.GetBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bal.IsZero() {
		t.Errorf("expected zero balance, got %s", bal)
	}

	ms.SetBalance(ctx, "user1", decimal.RequireFromString("210.00"))
	bal, _ = ms.GetBalance(ctx, "user1")
	if bal.String() != "210" {
		t.Errorf("expected balance 210, got %s", bal)
	}
}

func TestLedgerEntryQueries(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	entries := []model.LedgerEntry{
		{ID: "t1", UserID: "user1", CandidateID: "c1", Side: model.SideVence, Kind: model.KindBuy, Quantity: 10},
		{ID: "t2", UserID: "", CandidateID: "c1", Side: model.SidePerde, Kind: model.KindBuy, Quantity: 5},
		{ID: "t3", UserID: "user1", CandidateID: "c2", Side: model.SideVence, Kind: model.KindSell, Quantity: 3},
	}
	for i := range entries {
		if err := ms.InsertLedgerEntry(ctx, &entries[i]); err != nil {
			t.Fatalf("insert %s: %v", entries[i].ID, err)
		}
	}

	byUser, _ := ms.GetLedgerEntriesByUser(ctx, "user1")
	if len(byUser) != 2 {
		t.Errorf("expected 2 entries for user1, got %d", len(byUser))
	}

	// Simulated trades carry an empty user ID but still show up per candidate.
	byCandidate, _ := ms.GetLedgerEntriesByCandidate(ctx, "c1")
	if len(byCandidate) != 2 {
		t.Errorf("expected 2 entries for c1, got %d", len(byCandidate))
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.CreateCandidate(ctx, newCandidate("c1"))

	c, _ := ms.GetCandidate(ctx, "c1")
	c.SupplyVenceSold = 9999

	again, _ := ms.GetCandidate(ctx, "c1")
	if again.SupplyVenceSold != 0 {
		t.Errorf("mutating a snapshot leaked into the store: supply %d", again.SupplyVenceSold)
	}
}
