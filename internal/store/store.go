// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-process demo use).
//
// Candidate prices are never persisted: every candidate read derives both
// side prices from the authoritative supply pair, so stored state can
// never drift from the pricing formula.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/quemvence/market-engine/internal/model"
)

var (
	// ErrUnknownCandidate is returned when a candidate ID does not exist.
	ErrUnknownCandidate = errors.New("store: unknown candidate")

	// ErrDuplicateCandidate is returned when creating a candidate whose
	// ID already exists.
	ErrDuplicateCandidate = errors.New("store: candidate already exists")

	// ErrNoPosition is returned when no position exists for the
	// requested (user, candidate, side) triple.
	ErrNoPosition = errors.New("store: no position")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Candidate market state ---

	// CreateCandidate persists a new candidate market.
	CreateCandidate(ctx context.Context, c *model.Candidate) error

	// GetCandidate retrieves a candidate by ID with derived prices.
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)

	// ListCandidates returns all candidates with derived prices.
	ListCandidates(ctx context.Context) ([]model.Candidate, error)

	// UpdateSupply replaces the supply pair after a committed trade.
	UpdateSupply(ctx context.Context, id string, supplyVenceSold, supplyPerdeSold int64) error

	// --- Bounded price history ---

	// AppendPricePoint appends a history point, evicting the oldest
	// while the series exceeds maxPoints.
	AppendPricePoint(ctx context.Context, candidateID string, point model.PricePoint, maxPoints int) error

	// GetHistory returns the price series oldest first.
	GetHistory(ctx context.Context, candidateID string) ([]model.PricePoint, error)

	// --- Portfolio positions ---

	// GetPosition retrieves one (user, candidate, side) position.
	GetPosition(ctx context.Context, userID, candidateID string, side model.Side) (*model.Position, error)

	// UpsertPosition creates or replaces a position.
	UpsertPosition(ctx context.Context, p *model.Position) error

	// DeletePosition removes a fully closed position.
	DeletePosition(ctx context.Context, userID, candidateID string, side model.Side) error

	// ListPositions returns all positions held by a user.
	ListPositions(ctx context.Context, userID string) ([]model.Position, error)

	// --- Balances ---

	// GetBalance returns a user's withdrawable balance (zero if unknown).
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	// SetBalance replaces a user's withdrawable balance.
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	// --- Immutable trade ledger ---

	// InsertLedgerEntry appends an immutable trade record.
	InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// GetLedgerEntriesByUser returns all trades placed by a user.
	GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByCandidate returns all trades on a candidate.
	GetLedgerEntriesByCandidate(ctx context.Context, candidateID string) ([]model.LedgerEntry, error)
}
