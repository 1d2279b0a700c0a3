package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/core"
)

func cableFeature(name, status, condition, category string) *geojson.Feature {
	var p core.Properties
	p.Set(core.FieldName, name)
	p.Set(core.FieldStatus, status)
	p.Set(core.FieldCondition, condition)
	p.Set(core.FieldCategoryOfCable, category)

	f := geojson.NewFeature(orb.LineString{{8, 57}, {9, 58}})
	f.Properties = p.Map()
	return f
}

func TestFilter_Match(t *testing.T) {
	feat := cableFeature("Skagerrak 4", "1", "1", "6")

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"name substring", Filter{Name: "rak"}, true},
		{"name case-insensitive", Filter{Name: "  SKAGERRAK "}, true},
		{"name miss", Filter{Name: "baltic"}, false},
		{"all fields", Filter{Name: "4", Status: "1", Condition: "1", CategoryOfCable: "6"}, true},
		{"one field misses", Filter{Status: "1", Condition: "5"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(feat.Properties); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_NullProperty(t *testing.T) {
	feat := cableFeature("Unnamed", "", "", "")
	if (Filter{Status: "1"}).Match(feat.Properties) {
		t.Error("null Status should not match a Status filter")
	}
}

func TestFilter_Key(t *testing.T) {
	if (Filter{Name: "A "}).Key() != (Filter{Name: "a"}).Key() {
		t.Error("equivalent filters should share a cache key")
	}
	if (Filter{Name: "a"}).Key() == (Filter{Status: "a"}).Key() {
		t.Error("different fields should not share a cache key")
	}
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cables.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// exerciseStore runs the same checks against any backend.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	id, err := s.PersistRecord(ctx, core.PersistRequest{
		SessionID:   "session-1",
		Label:       "Skagerrak 4",
		Properties:  map[string]any{"Status": "1", "Condition": nil},
		Coordinates: orb.LineString{{8, 57}, {9, 58}},
	})
	if err != nil {
		t.Fatalf("PersistRecord() error = %v", err)
	}
	if id == "" {
		t.Fatal("PersistRecord() returned an empty id")
	}

	rec, err := s.Record(ctx, id)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if rec.Label != "Skagerrak 4" || rec.SessionID != "session-1" || len(rec.Geometry) != 2 {
		t.Errorf("Record() = %+v", rec)
	}
	if rec.Properties["Status"] != "1" {
		t.Errorf("stored Status = %v, want 1", rec.Properties["Status"])
	}
	if time.Since(rec.CreatedAt) > time.Hour {
		t.Errorf("CreatedAt = %v, want recent", rec.CreatedAt)
	}

	if _, err := s.Record(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Record(missing) error = %v, want ErrNotFound", err)
	}

	first := geojson.NewFeatureCollection()
	first.Append(cableFeature("Skagerrak 4", "1", "1", "6"))
	first.Append(cableFeature("Kontiskan", "4", "5", "6"))
	second := geojson.NewFeatureCollection()
	second.Append(cableFeature("Baltic Link", "1", "2", "1"))

	id1, err := s.ConfirmCollection(ctx, first)
	if err != nil {
		t.Fatalf("ConfirmCollection() error = %v", err)
	}
	id2, err := s.ConfirmCollection(ctx, second)
	if err != nil {
		t.Fatalf("ConfirmCollection() error = %v", err)
	}
	if id1 == id2 {
		t.Errorf("confirmations share id %q", id1)
	}

	all, err := s.ListCables(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListCables() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListCables() returned %d features, want 3", len(all))
	}
	if all[2].Properties["[Feature Name]: Name"] != "Baltic Link" {
		t.Errorf("features out of confirmation order: last = %v", all[2].Properties["[Feature Name]: Name"])
	}

	active, err := s.ListCables(ctx, Filter{Status: "1"})
	if err != nil {
		t.Fatalf("ListCables(Status=1) error = %v", err)
	}
	if len(active) != 2 {
		t.Errorf("ListCables(Status=1) returned %d features, want 2", len(active))
	}
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openTestSQLite(t))
}

func TestSQLiteStore_EmptyListing(t *testing.T) {
	s := openTestSQLite(t)
	features, err := s.ListCables(context.Background(), Filter{Name: "x"})
	if err != nil {
		t.Fatalf("ListCables() error = %v", err)
	}
	if features == nil || len(features) != 0 {
		t.Errorf("ListCables() = %v, want empty non-nil slice", features)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("CABLEMAP_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CABLEMAP_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, PoolConfig{URL: url, MaxConns: 2})
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer s.Close()
	if _, err := s.pool.Exec(ctx, `TRUNCATE cable_records, cables`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, s)
}

func TestCachedStore(t *testing.T) {
	addr := os.Getenv("CABLEMAP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CABLEMAP_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := OpenRedis(ctx, RedisConfig{Addr: addr, DB: 15})
	if err != nil {
		t.Fatalf("OpenRedis() error = %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	exerciseStore(t, NewCachedStore(openTestSQLite(t), rdb, time.Minute))
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mysql"}); err == nil {
		t.Error("Open() expected error for unknown driver")
	}
}

func TestOpen_SQLiteWithoutRedis(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, URL: filepath.Join(t.TempDir(), "c.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open() = %T, want *SQLiteStore without redis", s)
	}
}
