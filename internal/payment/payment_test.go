package payment_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quemvence/market-engine/internal/ledger"
	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/payment"
	"github.com/quemvence/market-engine/internal/store"
	"github.com/quemvence/market-engine/internal/trade"
)

func newGateway(t *testing.T) (*store.MemoryStore, *payment.Gateway) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := trade.NewService(ms, ledger.New(ms), nil, trade.DefaultHistoryCap)
	err := ms.CreateCandidate(context.Background(), &model.Candidate{
		ID:        "c1",
		Name:      "Roberto Silva",
		Status:    model.StatusActive,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	return ms, payment.NewGateway(svc, payment.DefaultExpiry)
}

func TestCreateIntentQuotesWithoutCommitting(t *testing.T) {
	ms, gw := newGateway(t)
	ctx := context.Background()

	intent, err := gw.CreateIntent(ctx, "user1", "c1", model.SideVence, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if intent.Status != payment.StatusPending {
		t.Errorf("expected pending status, got %q", intent.Status)
	}
	if intent.Amount.String() != "1049.5" {
		t.Errorf("expected quoted amount 1049.5, got %s", intent.Amount)
	}
	if !strings.Contains(intent.BRCode, "BR.GOV.BCB.PIX") {
		t.Errorf("BR Code missing PIX GUI: %q", intent.BRCode)
	}
	if !strings.Contains(intent.BRCode, "1049.50") {
		t.Errorf("BR Code missing amount: %q", intent.BRCode)
	}

	// Creating an intent must not touch the market.
	c, _ := ms.GetCandidate(ctx, "c1")
	if c.SupplyVenceSold != 0 {
		t.Errorf("intent creation moved supply to %d", c.SupplyVenceSold)
	}
}

func TestCreateIntentRejections(t *testing.T) {
	_, gw := newGateway(t)
	ctx := context.Background()

	if _, err := gw.CreateIntent(ctx, "user1", "c1", model.SideVence, 0); err != trade.ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := gw.CreateIntent(ctx, "user1", "missing", model.SideVence, 1); err != store.ErrUnknownCandidate {
		t.Errorf("expected ErrUnknownCandidate, got %v", err)
	}
}

func TestConfirmTriggersExactlyOneBuy(t *testing.T) {
	ms, gw := newGateway(t)
	ctx := context.Background()

	intent, err := gw.CreateIntent(ctx, "user1", "c1", model.SideVence, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settled, result, err := gw.Confirm(ctx, intent.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled.Status != payment.StatusPaid {
		t.Errorf("expected paid status, got %q", settled.Status)
	}
	if result.Quantity != 50 {
		t.Errorf("expected 50 units bought, got %d", result.Quantity)
	}

	c, _ := ms.GetCandidate(ctx, "c1")
	if c.SupplyVenceSold != 50 {
		t.Errorf("expected supply 50 after settle, got %d", c.SupplyVenceSold)
	}
	pos, err := ms.GetPosition(ctx, "user1", "c1", model.SideVence)
	if err != nil {
		t.Fatalf("expected position after settle: %v", err)
	}
	if pos.Quantity != 50 {
		t.Errorf("expected position 50, got %d", pos.Quantity)
	}

	// Settling twice never double-buys.
	if _, _, err := gw.Confirm(ctx, intent.ID); err != payment.ErrIntentNotPending {
		t.Errorf("expected ErrIntentNotPending on second confirm, got %v", err)
	}
	c, _ = ms.GetCandidate(ctx, "c1")
	if c.SupplyVenceSold != 50 {
		t.Errorf("second confirm moved supply to %d", c.SupplyVenceSold)
	}
}

func TestConfirmExpiredIntent(t *testing.T) {
	ms, gw := newGateway(t)
	ctx := context.Background()

	intent, err := gw.CreateIntent(ctx, "user1", "c1", model.SideVence, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gw.SetClock(func() time.Time { return time.Now().Add(payment.DefaultExpiry + time.Minute) })

	if _, _, err := gw.Confirm(ctx, intent.ID); err != payment.ErrIntentExpired {
		t.Fatalf("expected ErrIntentExpired, got %v", err)
	}

	got, _ := gw.Get(intent.ID)
	if got.Status != payment.StatusExpired {
		t.Errorf("expected expired status, got %q", got.Status)
	}

	c, _ := ms.GetCandidate(ctx, "c1")
	if c.SupplyVenceSold != 0 {
		t.Errorf("expired intent mutated supply to %d", c.SupplyVenceSold)
	}
}

func TestGetLazilyExpires(t *testing.T) {
	_, gw := newGateway(t)

	intent, err := gw.CreateIntent(context.Background(), "user1", "c1", model.SideVence, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gw.SetClock(func() time.Time { return time.Now().Add(time.Hour) })

	got, err := gw.Get(intent.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != payment.StatusExpired {
		t.Errorf("expected expired on read, got %q", got.Status)
	}
}

func TestCancelIntent(t *testing.T) {
	ms, gw := newGateway(t)
	ctx := context.Background()

	intent, err := gw.CreateIntent(ctx, "user1", "c1", model.SidePerde, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, err := gw.Cancel(intent.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != payment.StatusCancelled {
		t.Errorf("expected cancelled status, got %q", cancelled.Status)
	}

	if _, _, err := gw.Confirm(ctx, intent.ID); err != payment.ErrIntentNotPending {
		t.Errorf("expected ErrIntentNotPending after cancel, got %v", err)
	}
	if _, err := gw.Cancel(intent.ID); err != payment.ErrIntentNotPending {
		t.Errorf("expected ErrIntentNotPending on double cancel, got %v", err)
	}

	c, _ := ms.GetCandidate(ctx, "c1")
	if c.SupplyPerdeSold != 0 {
		t.Errorf("cancelled intent mutated supply to %d", c.SupplyPerdeSold)
	}
}

// rejectingTrader quotes normally but refuses every buy, standing in
// for a market that closed between intent and confirmation.
type rejectingTrader struct{}

func (rejectingTrader) Quote(_ context.Context, candidateID string, side model.Side, quantity int64) (*trade.QuoteResult, error) {
	return &trade.QuoteResult{CandidateID: candidateID, Side: side, Quantity: quantity}, nil
}

func (rejectingTrader) Buy(context.Context, string, string, model.Side, int64) (*trade.TradeResult, error) {
	return nil, trade.ErrCandidateArchived
}

func TestConfirmFailedBuyMarksIntentFailed(t *testing.T) {
	gw := payment.NewGateway(rejectingTrader{}, payment.DefaultExpiry)
	ctx := context.Background()

	intent, err := gw.CreateIntent(ctx, "user1", "c1", model.SideVence, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := gw.Confirm(ctx, intent.ID); err != trade.ErrCandidateArchived {
		t.Fatalf("expected buy failure to surface, got %v", err)
	}
	got, _ := gw.Get(intent.ID)
	if got.Status != payment.StatusFailed {
		t.Errorf("expected failed status, got %q", got.Status)
	}
	if _, _, err := gw.Confirm(ctx, intent.ID); err != payment.ErrIntentNotPending {
		t.Errorf("expected ErrIntentNotPending after failure, got %v", err)
	}
}

func TestIntentNotFound(t *testing.T) {
	_, gw := newGateway(t)

	if _, _, err := gw.Confirm(context.Background(), "missing"); err != payment.ErrIntentNotFound {
		t.Errorf("expected ErrIntentNotFound on confirm, got %v", err)
	}
	if _, err := gw.Cancel("missing"); err != payment.ErrIntentNotFound {
		t.Errorf("expected ErrIntentNotFound on cancel, got %v", err)
	}
	if _, err := gw.Get("missing"); err != payment.ErrIntentNotFound {
		t.Errorf("expected ErrIntentNotFound on get, got %v", err)
	}
}
