package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quemvence/market-engine/internal/curve"
	"github.com/quemvence/market-engine/internal/model"
)

type positionKey struct {
	userID      string
	candidateID string
	side        model.Side
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and single-process demo deployments (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	candidates map[string]*model.Candidate
	history    map[string][]model.PricePoint
	positions  map[positionKey]*model.Position
	balances   map[string]decimal.Decimal
	ledger     []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candidates: make(map[string]*model.Candidate),
		history:    make(map[string][]model.PricePoint),
		positions:  make(map[positionKey]*model.Position),
		balances:   make(map[string]decimal.Decimal),
	}
}

func (s *MemoryStore) CreateCandidate(_ context.Context, c *model.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[c.ID]; ok {
		return ErrDuplicateCandidate
	}

	// Store a copy to avoid external mutation.
	cp := *c
	s.candidates[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCandidate(_ context.Context, id string) (*model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, ErrUnknownCandidate
	}
	return snapshotCandidate(c), nil
}

func (s *MemoryStore) ListCandidates(_ context.Context) ([]model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]model.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		candidates = append(candidates, *snapshotCandidate(c))
	}
	return candidates, nil
}

func (s *MemoryStore) UpdateSupply(_ context.Context, id string, supplyVenceSold, supplyPerdeSold int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[id]
	if !ok {
		return ErrUnknownCandidate
	}
	c.SupplyVenceSold = supplyVenceSold
	c.SupplyPerdeSold = supplyPerdeSold
	return nil
}

func (s *MemoryStore) AppendPricePoint(_ context.Context, candidateID string, point model.PricePoint, maxPoints int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[candidateID]; !ok {
		return ErrUnknownCandidate
	}

	points := append(s.history[candidateID], point)
	if maxPoints > 0 && len(points) > maxPoints {
		points = points[len(points)-maxPoints:]
	}
	s.history[candidateID] = points
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, candidateID string) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.candidates[candidateID]; !ok {
		return nil, ErrUnknownCandidate
	}

	points := make([]model.PricePoint, len(s.history[candidateID]))
	copy(points, s.history[candidateID])
	return points, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userID, candidateID string, side model.Side) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionKey{userID, candidateID, side}]
	if !ok {
		return nil, ErrNoPosition
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.positions[positionKey{p.UserID, p.CandidateID, p.Side}] = &cp
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, userID, candidateID string, side model.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey{userID, candidateID, side}
	if _, ok := s.positions[key]; !ok {
		return ErrNoPosition
	}
	delete(s.positions, key)
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for key, p := range s.positions {
		if key.userID == userID {
			positions = append(positions, *p)
		}
	}
	return positions, nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[userID], nil
}

func (s *MemoryStore) SetBalance(_ context.Context, userID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[userID] = balance
	return nil
}

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByUser(_ context.Context, userID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByCandidate(_ context.Context, candidateID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.CandidateID == candidateID {
			result = append(result, e)
		}
	}
	return result, nil
}

// snapshotCandidate copies a candidate and fills in both side prices
// from the supply pair. Prices are always derived here, never read from
// stored state.
func snapshotCandidate(c *model.Candidate) *model.Candidate {
	cp := *c
	cp.PriceVence, cp.PricePerde = curve.Prices(cp.SupplyVenceSold, cp.SupplyPerdeSold)
	return &cp
}
