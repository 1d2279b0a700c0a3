package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/cablemap/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cable_records (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	label       TEXT NOT NULL,
	properties  TEXT NOT NULL,
	geometry    TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS cable_records_session_idx ON cable_records (session_id);

CREATE TABLE IF NOT EXISTS cables (
	cable_id           INTEGER PRIMARY KEY AUTOINCREMENT,
	feature_collection TEXT NOT NULL,
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore keeps records and collections in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) and migrates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) PersistRecord(ctx context.Context, req core.PersistRequest) (string, error) {
	props, geom, err := encodeRecord(req)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cable_records (id, session_id, label, properties, geometry, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, req.SessionID, req.Label, string(props), string(geom), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert record %q: %w", req.Label, err)
	}
	return id, nil
}

func (s *SQLiteStore) ConfirmCollection(ctx context.Context, fc *geojson.FeatureCollection) (string, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode collection: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO cables (feature_collection) VALUES (?)`, string(data))
	if err != nil {
		return "", fmt.Errorf("insert collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("insert collection: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLiteStore) ListCables(ctx context.Context, f Filter) ([]*geojson.Feature, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT feature_collection FROM cables ORDER BY cable_id`)
	if err != nil {
		return nil, fmt.Errorf("query cables: %w", err)
	}
	defer rows.Close()

	features := []*geojson.Feature{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan cable: %w", err)
		}
		if features, err = appendMatching(features, []byte(raw), f); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cables: %w", err)
	}
	return features, nil
}

func (s *SQLiteStore) Record(ctx context.Context, id string) (StoredRecord, error) {
	var (
		rec         StoredRecord
		props, geom string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, label, properties, geometry, created_at FROM cable_records WHERE id = ?`, id).
		Scan(&rec.ID, &rec.SessionID, &rec.Label, &props, &geom, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredRecord{}, ErrNotFound
	}
	if err != nil {
		return StoredRecord{}, fmt.Errorf("query record: %w", err)
	}
	if err := decodeRecord(&rec, []byte(props), []byte(geom)); err != nil {
		return StoredRecord{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
