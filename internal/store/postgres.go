package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/core"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cable_records (
	id          UUID PRIMARY KEY,
	session_id  TEXT NOT NULL,
	label       TEXT NOT NULL,
	properties  JSONB NOT NULL,
	geometry    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS cable_records_session_idx ON cable_records (session_id);

CREATE TABLE IF NOT EXISTS cables (
	cable_id           BIGSERIAL PRIMARY KEY,
	feature_collection JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PoolConfig sizes the PostgreSQL connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PostgresStore keeps records and collections in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, cfg PoolConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) PersistRecord(ctx context.Context, req core.PersistRequest) (string, error) {
	props, geom, err := encodeRecord(req)
	if err != nil {
		return "", err
	}

	id := uuid.New()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO cable_records (id, session_id, label, properties, geometry) VALUES ($1, $2, $3, $4, $5)`,
		id, req.SessionID, req.Label, props, geom)
	if err != nil {
		return "", fmt.Errorf("insert record %q: %w", req.Label, err)
	}
	return id.String(), nil
}

func (s *PostgresStore) ConfirmCollection(ctx context.Context, fc *geojson.FeatureCollection) (string, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode collection: %w", err)
	}

	var cableID int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO cables (feature_collection) VALUES ($1) RETURNING cable_id`, data).Scan(&cableID)
	if err != nil {
		return "", fmt.Errorf("insert collection: %w", err)
	}
	return strconv.FormatInt(cableID, 10), nil
}

func (s *PostgresStore) ListCables(ctx context.Context, f Filter) ([]*geojson.Feature, error) {
	rows, err := s.pool.Query(ctx, `SELECT feature_collection FROM cables ORDER BY cable_id`)
	if err != nil {
		return nil, fmt.Errorf("query cables: %w", err)
	}
	defer rows.Close()

	features := []*geojson.Feature{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan cable: %w", err)
		}
		if features, err = appendMatching(features, raw, f); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cables: %w", err)
	}
	return features, nil
}

func (s *PostgresStore) Record(ctx context.Context, id string) (StoredRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return StoredRecord{}, ErrNotFound
	}

	var (
		rec         StoredRecord
		props, geom []byte
	)
	err = s.pool.QueryRow(ctx,
		`SELECT id::text, session_id, label, properties, geometry, created_at FROM cable_records WHERE id = $1`,
		parsed).Scan(&rec.ID, &rec.SessionID, &rec.Label, &props, &geom, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredRecord{}, ErrNotFound
	}
	if err != nil {
		return StoredRecord{}, fmt.Errorf("query record: %w", err)
	}
	if err := decodeRecord(&rec, props, geom); err != nil {
		return StoredRecord{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
