package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/bsaid97/go-patch-editor/engine"
)

// PatchStore persists patches as WKT in Postgres. The engine never sees
// this package; handlers wire the two together at session start and on
// commit.
type PatchStore struct {
	db *sql.DB
}

// OpenFromEnv connects using DATABASE_URL, or the PG* variables when it
// is unset.
func OpenFromEnv() (*PatchStore, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := envOr("PGHOST", "localhost")
		port := envOr("PGPORT", "5432")
		user := envOr("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		name := envOr("PGDATABASE", "patches")
		ssl := envOr("PGSSLMODE", "disable")
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, pass, name, ssl)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %v", err)
	}
	return &PatchStore{db: db}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *PatchStore) Close() error { return s.db.Close() }

// EnsureSchema creates the patches table when missing.
func (s *PatchStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS patches (
			id       TEXT PRIMARY KEY,
			code     TEXT NOT NULL,
			name     TEXT NOT NULL DEFAULT '',
			geometry TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create patches table: %v", err)
	}
	return nil
}

// LoadPatches reads the full patch list for session start. Rows whose
// WKT does not parse to a polygonal geometry are skipped with a count.
func (s *PatchStore) LoadPatches(ctx context.Context) ([]engine.Patch, int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, name, geometry FROM patches ORDER BY id`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query patches: %v", err)
	}
	defer rows.Close()

	var patches []engine.Patch
	skipped := 0
	for rows.Next() {
		var id, code, name, geomWKT string
		if err := rows.Scan(&id, &code, &name, &geomWKT); err != nil {
			return nil, skipped, fmt.Errorf("failed to scan patch row: %v", err)
		}
		geom, err := DecodeWKT(geomWKT)
		if err != nil {
			skipped++
			continue
		}
		patches = append(patches, engine.Patch{ID: id, Code: code, Name: name, Geometry: geom})
	}
	return patches, skipped, rows.Err()
}

// SavePatch upserts one patch's geometry as WKT, truncated to the
// engine's coordinate precision.
func (s *PatchStore) SavePatch(ctx context.Context, p engine.Patch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patches (id, code, name, geometry)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET code = EXCLUDED.code, name = EXCLUDED.name, geometry = EXCLUDED.geometry`,
		p.ID, p.Code, p.Name, EncodeWKT(p.Geometry))
	if err != nil {
		return fmt.Errorf("failed to save patch %s: %v", p.ID, err)
	}
	return nil
}

// DeletePatch removes a patch by id.
func (s *PatchStore) DeletePatch(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM patches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete patch %s: %v", id, err)
	}
	return nil
}

// EncodeWKT renders a MultiPolygon as MULTIPOLYGON(((lon lat, ...))),
// coordinates truncated for stable round trips.
func EncodeWKT(mp orb.MultiPolygon) string {
	return wkt.MarshalString(engine.TruncateMultiPolygon(mp))
}

// DecodeWKT parses WKT back into a MultiPolygon, normalising a bare
// POLYGON to a one-element MultiPolygon.
func DecodeWKT(s string) (orb.MultiPolygon, error) {
	geom, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WKT: %v", err)
	}
	mp := engine.NormalizeMultiPolygon(geom)
	if mp == nil {
		return nil, fmt.Errorf("not a polygonal geometry: %T", geom)
	}
	return mp, nil
}
