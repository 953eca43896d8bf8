package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"rc_harvester/models"
)

// PostgresStore mirrors enriched listings into Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS enriched_listings (
			listing_id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			street_name TEXT,
			suburb TEXT,
			postcode TEXT,
			property_types TEXT[],
			status TEXT,
			asking_price TEXT,
			land_size TEXT,
			floor_area TEXT,
			zoning TEXT,
			tenure TEXT,
			date_added DATE,
			agency TEXT,
			agent_name_1 TEXT,
			agent_name_2 TEXT,
			description TEXT,
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// UpsertListing writes l keyed by listing ID. Re-fetched listings overwrite
// the previous values; first_seen_at is kept.
func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.EnrichedListing) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("upsert listing: missing listing id")
	}

	var dateAdded *time.Time
	if d, err := time.Parse("2006-01-02", l.DateAdded); err == nil {
		dateAdded = &d
	}

	query := `
		INSERT INTO enriched_listings (
			listing_id, url, street_name, suburb, postcode, property_types, status,
			asking_price, land_size, floor_area, zoning, tenure, date_added, agency,
			agent_name_1, agent_name_2, description, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW()
		)
		ON CONFLICT (listing_id) DO UPDATE SET
			url = EXCLUDED.url,
			street_name = EXCLUDED.street_name,
			suburb = EXCLUDED.suburb,
			postcode = EXCLUDED.postcode,
			property_types = EXCLUDED.property_types,
			status = EXCLUDED.status,
			asking_price = EXCLUDED.asking_price,
			land_size = EXCLUDED.land_size,
			floor_area = EXCLUDED.floor_area,
			zoning = EXCLUDED.zoning,
			tenure = EXCLUDED.tenure,
			date_added = EXCLUDED.date_added,
			agency = EXCLUDED.agency,
			agent_name_1 = EXCLUDED.agent_name_1,
			agent_name_2 = EXCLUDED.agent_name_2,
			description = EXCLUDED.description,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.URL, l.StreetName, l.Suburb, l.Postcode, l.PropertyTypes, string(l.Status),
		l.AskingPrice, l.LandSize, l.FloorArea, l.Zoning, l.Tenure, dateAdded, l.Agency,
		l.AgentName1, l.AgentName2, l.Description)
	return err
}

// CountListings returns how many listings the mirror holds.
func (s *PostgresStore) CountListings(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM enriched_listings`).Scan(&n)
	return n, err
}
