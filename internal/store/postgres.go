package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quemvence/market-engine/internal/curve"
	"github.com/quemvence/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// supplies and quantities are BIGINT. Prices are not stored at all — they
// are derived from the supply pair on every scan.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO candidates (id, name, role, image_url, status, supply_vence_sold, supply_perde_sold, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Role, c.ImageURL, c.Status,
		c.SupplyVenceSold, c.SupplyPerdeSold, c.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCandidate
	}
	return err
}

func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	var c model.Candidate
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, role, image_url, status, supply_vence_sold, supply_perde_sold, created_at
		 FROM candidates WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Role, &c.ImageURL, &c.Status,
			&c.SupplyVenceSold, &c.SupplyPerdeSold, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownCandidate
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate %s: %w", id, err)
	}

	c.PriceVence, c.PricePerde = curve.Prices(c.SupplyVenceSold, c.SupplyPerdeSold)
	return &c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, role, image_url, status, supply_vence_sold, supply_perde_sold, created_at
		 FROM candidates ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Role, &c.ImageURL, &c.Status,
			&c.SupplyVenceSold, &c.SupplyPerdeSold, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.PriceVence, c.PricePerde = curve.Prices(c.SupplyVenceSold, c.SupplyPerdeSold)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (s *PostgresStore) UpdateSupply(ctx context.Context, id string, supplyVenceSold, supplyPerdeSold int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET supply_vence_sold = $2, supply_perde_sold = $3 WHERE id = $1`,
		id, supplyVenceSold, supplyPerdeSold,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownCandidate
	}
	return nil
}

func (s *PostgresStore) AppendPricePoint(ctx context.Context, candidateID string, point model.PricePoint, maxPoints int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_history (candidate_id, timestamp, price_vence, price_perde)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)`,
		candidateID, point.Timestamp, point.PriceVence.String(), point.PricePerde.String(),
	)
	if err != nil {
		return err
	}
	if maxPoints <= 0 {
		return nil
	}

	// FIFO eviction: drop everything older than the newest maxPoints.
	_, err = s.pool.Exec(ctx,
		`DELETE FROM price_history
		 WHERE candidate_id = $1 AND id NOT IN (
		     SELECT id FROM price_history
		     WHERE candidate_id = $1
		     ORDER BY id DESC LIMIT $2)`,
		candidateID, maxPoints,
	)
	return err
}

func (s *PostgresStore) GetHistory(ctx context.Context, candidateID string) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, price_vence::TEXT, price_perde::TEXT
		 FROM price_history WHERE candidate_id = $1 ORDER BY id`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var venceS, perdeS string
		if err := rows.Scan(&p.Timestamp, &venceS, &perdeS); err != nil {
			return nil, err
		}
		p.PriceVence, _ = decimal.NewFromString(venceS)
		p.PricePerde, _ = decimal.NewFromString(perdeS)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID, candidateID string, side model.Side) (*model.Position, error) {
	var p model.Position
	var costS string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, candidate_id, side, quantity, total_cost::TEXT
		 FROM positions WHERE user_id = $1 AND candidate_id = $2 AND side = $3`,
		userID, candidateID, string(side)).
		Scan(&p.UserID, &p.CandidateID, &p.Side, &p.Quantity, &costS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPosition
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s/%s: %w", userID, candidateID, side, err)
	}

	p.TotalCost, _ = decimal.NewFromString(costS)
	return &p, nil
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (user_id, candidate_id, side, quantity, total_cost)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC)
		 ON CONFLICT (user_id, candidate_id, side)
		 DO UPDATE SET quantity = EXCLUDED.quantity, total_cost = EXCLUDED.total_cost`,
		p.UserID, p.CandidateID, string(p.Side), p.Quantity, p.TotalCost.String(),
	)
	return err
}

func (s *PostgresStore) DeletePosition(ctx context.Context, userID, candidateID string, side model.Side) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM positions WHERE user_id = $1 AND candidate_id = $2 AND side = $3`,
		userID, candidateID, string(side),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoPosition
	}
	return nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, candidate_id, side, quantity, total_cost::TEXT
		 FROM positions WHERE user_id = $1 ORDER BY candidate_id, side`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var costS string
		if err := rows.Scan(&p.UserID, &p.CandidateID, &p.Side, &p.Quantity, &costS); err != nil {
			return nil, err
		}
		p.TotalCost, _ = decimal.NewFromString(costS)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balS string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::TEXT FROM balances WHERE user_id = $1`, userID).
		Scan(&balS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", userID, err)
	}
	bal, _ := decimal.NewFromString(balS)
	return bal, nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO balances (user_id, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`,
		userID, balance.String(),
	)
	return err
}

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_entries (id, user_id, candidate_id, side, kind, quantity, price, cost, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9)`,
		e.ID, e.UserID, e.CandidateID, string(e.Side), e.Kind,
		e.Quantity, e.Price.String(), e.Cost.String(), e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, candidate_id, side, kind, quantity, price::TEXT, cost::TEXT, timestamp
		 FROM ledger_entries WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByCandidate(ctx context.Context, candidateID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, candidate_id, side, kind, quantity, price::TEXT, cost::TEXT, timestamp
		 FROM ledger_entries WHERE candidate_id = $1 ORDER BY timestamp`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows pgx.Rows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var priceS, costS string

		if err := rows.Scan(&e.ID, &e.UserID, &e.CandidateID, &e.Side, &e.Kind,
			&e.Quantity, &priceS, &costS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Price, _ = decimal.NewFromString(priceS)
		e.Cost, _ = decimal.NewFromString(costS)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
