// Package postgres provides a PostgreSQL implementation of analytics.Store.
// It uses pgx/v5 for connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trygate-dev/trygate/pkg/analytics"
)

// Store is a PostgreSQL-backed analytics event store.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements analytics.Store at compile time.
var _ analytics.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// RecordEvent persists an analytics event.
func (s *Store) RecordEvent(ctx context.Context, ev *analytics.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_events (
			id, event_type, subject, issuer, referrer, campaign_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		ev.ID, string(ev.Type), ev.Subject, ev.Issuer,
		nullString(ev.Referrer), nullString(ev.CampaignID), ev.CreatedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return analytics.ErrConflict
		}
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// ListEvents returns up to limit events, newest first. limit <= 0 applies
// a server-side cap of 1000.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]*analytics.Event, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, subject, issuer, referrer, campaign_id, created_at
		FROM auth_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []*analytics.Event
	for rows.Next() {
		var ev analytics.Event
		var evType string
		var referrer, campaignID *string

		if err := rows.Scan(&ev.ID, &evType, &ev.Subject, &ev.Issuer,
			&referrer, &campaignID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		ev.Type = analytics.EventType(evType)
		if referrer != nil {
			ev.Referrer = *referrer
		}
		if campaignID != nil {
			ev.CampaignID = *campaignID
		}

		out = append(out, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return out, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	return strings.Contains(err.Error(), "23505")
}
