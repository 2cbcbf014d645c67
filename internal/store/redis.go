package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/quemvence/market-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Cached candidate snapshots include derived prices; they stay correct
// because the only write path that changes prices (UpdateSupply) also
// invalidates the candidate key.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	if err := s.primary.CreateCandidate(ctx, c); err != nil {
		return err
	}
	s.rdb.Del(ctx, candidateKey(c.ID))
	return nil
}

func (s *CachedStore) UpdateSupply(ctx context.Context, id string, supplyVenceSold, supplyPerdeSold int64) error {
	if err := s.primary.UpdateSupply(ctx, id, supplyVenceSold, supplyPerdeSold); err != nil {
		return err
	}
	// Invalidate; next read re-derives prices from the new supplies.
	s.rdb.Del(ctx, candidateKey(id))
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpsertPosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.UserID))
	return nil
}

func (s *CachedStore) DeletePosition(ctx context.Context, userID, candidateID string, side model.Side) error {
	if err := s.primary.DeletePosition(ctx, userID, candidateID, side); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(userID))
	return nil
}

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	return s.primary.InsertLedgerEntry(ctx, entry)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	data, err := s.rdb.Get(ctx, candidateKey(id)).Bytes()
	if err == nil {
		var c model.Candidate
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	// Cache miss: read from primary.
	c, err := s.primary.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, candidateKey(id), data, s.ttl)
	}
	return c, nil
}

func (s *CachedStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	return s.primary.ListCandidates(ctx)
}

func (s *CachedStore) AppendPricePoint(ctx context.Context, candidateID string, point model.PricePoint, maxPoints int) error {
	return s.primary.AppendPricePoint(ctx, candidateID, point, maxPoints)
}

func (s *CachedStore) GetHistory(ctx context.Context, candidateID string) ([]model.PricePoint, error) {
	return s.primary.GetHistory(ctx, candidateID)
}

func (s *CachedStore) GetPosition(ctx context.Context, userID, candidateID string, side model.Side) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, candidateID, side)
}

func (s *CachedStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.primary.GetBalance(ctx, userID)
}

func (s *CachedStore) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	return s.primary.SetBalance(ctx, userID, balance)
}

func (s *CachedStore) GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByUser(ctx, userID)
}

func (s *CachedStore) GetLedgerEntriesByCandidate(ctx context.Context, candidateID string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByCandidate(ctx, candidateID)
}

func candidateKey(id string) string  { return fmt.Sprintf("candidate:%s", id) }
func positionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
