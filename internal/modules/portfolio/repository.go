// Package portfolio persists ledgers and orchestrates the calculation engines
// behind a per-user service.
package portfolio

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/nestegg/internal/database"
	"github.com/aristath/nestegg/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository stores one msgpack-encoded ledger per user in the portfolios table
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Encode serializes a portfolio with its JSON field names
func Encode(p *domain.Portfolio) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode portfolio: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode
func Decode(data []byte) (*domain.Portfolio, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var p domain.Portfolio
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode portfolio: %w", err)
	}
	if p.ManualPrices == nil {
		p.ManualPrices = map[string]domain.ManualPrice{}
	}
	return &p, nil
}

// LoadPortfolio returns the user's ledger or domain.ErrPortfolioNotFound
func (r *Repository) LoadPortfolio(ctx context.Context, userID string) (*domain.Portfolio, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, "SELECT data FROM portfolios WHERE user_id = ?", userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", userID, domain.ErrPortfolioNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	return Decode(data)
}

// SavePortfolio inserts or replaces the user's ledger, bumping its version
func (r *Repository) SavePortfolio(ctx context.Context, p *domain.Portfolio) error {
	if p == nil || p.UserID == "" {
		return domain.NewValidationError("user_id", "portfolio has no owner", nil)
	}
	data, err := Encode(p)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO portfolios (user_id, id, data, version, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				data = excluded.data,
				version = portfolios.version + 1,
				updated_at = excluded.updated_at
		`, p.UserID, p.ID, data, now, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}

	r.log.Debug().Str("user_id", p.UserID).Int("bytes", len(data)).Msg("Portfolio saved")
	return nil
}

// Version returns the number of times the user's ledger has been saved
func (r *Repository) Version(ctx context.Context, userID string) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx, "SELECT version FROM portfolios WHERE user_id = ?", userID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", userID, domain.ErrPortfolioNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read portfolio version: %w", err)
	}
	return version, nil
}

// ListUserIDs returns every user with a stored ledger
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM portfolios ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return ids, nil
}
