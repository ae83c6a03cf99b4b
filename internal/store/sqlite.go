package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/tilemap/internal/journey"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

// SQLiteStore keeps snapshots in a SQLite database, one set of rows per map.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Persister = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store needs a path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY inside transactions
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

// Load reads the snapshot of map name.
func (s *SQLiteStore) Load(ctx context.Context, name string) (Snapshot, error) {
	snap := Snapshot{Map: name}

	var mapType, savedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT map_type, saved_at FROM maps WHERE name = ?", name,
	).Scan(&mapType, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query map %q: %w", name, err)
	}
	snap.MapType = rastercache.MapType(mapType)
	if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
		snap.SavedAt = t
	}

	if snap.TileSets, err = s.loadTileSets(ctx, name); err != nil {
		return Snapshot{}, err
	}
	if snap.Tiles, err = s.loadSlippy(ctx, name); err != nil {
		return Snapshot{}, err
	}
	if snap.Journeys, err = s.loadJourneys(ctx, name); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *SQLiteStore) loadSlippy(ctx context.Context, name string) ([]rastercache.SlippyTile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT z, x, y, ref FROM slippy_tiles WHERE map = ? ORDER BY z, x, y", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query slippy tiles: %w", err)
	}
	defer rows.Close()

	var tiles []rastercache.SlippyTile
	for rows.Next() {
		var t rastercache.SlippyTile
		var ref string
		if err := rows.Scan(&t.ID.Z, &t.ID.X, &t.ID.Y, &ref); err != nil {
			return nil, fmt.Errorf("failed to scan slippy tile row: %w", err)
		}
		t.Ref = rastercache.ResourceRef(ref)
		tiles = append(tiles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slippy tiles: %w", err)
	}
	return tiles, nil
}

func (s *SQLiteStore) loadTileSets(ctx context.Context, name string) ([]rastercache.TileSet, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, map_type, src_0, src_1, src_2, src_3 FROM tile_sets WHERE map = ? ORDER BY name", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tile sets: %w", err)
	}
	defer rows.Close()

	var sets []rastercache.TileSet
	index := make(map[string]int)
	for rows.Next() {
		var ts rastercache.TileSet
		var mt string
		if err := rows.Scan(&ts.Name, &mt, &ts.Source[0], &ts.Source[1], &ts.Source[2], &ts.Source[3]); err != nil {
			return nil, fmt.Errorf("failed to scan tile set row: %w", err)
		}
		ts.MapType = rastercache.MapType(mt)
		index[ts.Name] = len(sets)
		sets = append(sets, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tile sets: %w", err)
	}

	levels, err := s.db.QueryContext(ctx,
		"SELECT name, zoom, ref FROM tile_levels WHERE map = ? ORDER BY name, zoom", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tile levels: %w", err)
	}
	defer levels.Close()

	for levels.Next() {
		var set, ref string
		var zoom float64
		if err := levels.Scan(&set, &zoom, &ref); err != nil {
			return nil, fmt.Errorf("failed to scan tile level row: %w", err)
		}
		i, ok := index[set]
		if !ok {
			continue
		}
		sets[i].Levels = append(sets[i].Levels, rastercache.CachedZoomLevel{Zoom: zoom, Ref: rastercache.ResourceRef(ref)})
	}
	if err := levels.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tile levels: %w", err)
	}
	return sets, nil
}

func (s *SQLiteStore) loadJourneys(ctx context.Context, name string) ([]journey.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT destination_id, travel_mode, payload, extents_x, extents_y, extents_zoom
		FROM journeys WHERE map = ? ORDER BY destination_id, travel_mode`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query journeys: %w", err)
	}
	defer rows.Close()

	var entries []journey.Entry
	for rows.Next() {
		var (
			e      journey.Entry
			mode   string
			ex, ey sql.NullFloat64
			ez     sql.NullInt64
		)
		if err := rows.Scan(&e.Key.DestinationID, &mode, &e.Payload, &ex, &ey, &ez); err != nil {
			return nil, fmt.Errorf("failed to scan journey row: %w", err)
		}
		e.Key.Mode = journey.TravelMode(mode)
		if ex.Valid && ey.Valid && ez.Valid {
			e.Extents = &journey.Extents{
				Point: journey.ScreenPoint{X: ex.Float64, Y: ey.Float64},
				Zoom:  int(ez.Int64),
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journeys: %w", err)
	}
	return entries, nil
}

// Save replaces all rows of snap.Map in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ValidateName(snap.Map); err != nil {
		return err
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO maps (name, map_type, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET map_type = excluded.map_type, saved_at = excluded.saved_at`,
		snap.Map, string(snap.MapType), snap.SavedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to upsert map %q: %w", snap.Map, err)
	}

	for _, table := range []string{"tile_levels", "tile_sets", "slippy_tiles", "journeys"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE map = ?", snap.Map); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	setStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO tile_sets (map, name, map_type, src_0, src_1, src_2, src_3) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare tile set insert: %w", err)
	}
	defer setStmt.Close()

	levelStmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO tile_levels (map, name, zoom, ref) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare tile level insert: %w", err)
	}
	defer levelStmt.Close()

	for _, ts := range snap.TileSets {
		if _, err := setStmt.ExecContext(ctx, snap.Map, ts.Name, string(ts.MapType),
			ts.Source[0], ts.Source[1], ts.Source[2], ts.Source[3]); err != nil {
			return fmt.Errorf("failed to insert tile set %q: %w", ts.Name, err)
		}
		for _, l := range ts.Levels {
			if _, err := levelStmt.ExecContext(ctx, snap.Map, ts.Name, l.Zoom, string(l.Ref)); err != nil {
				return fmt.Errorf("failed to insert level %v of %q: %w", l.Zoom, ts.Name, err)
			}
		}
	}

	tileStmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO slippy_tiles (map, z, x, y, ref) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare slippy tile insert: %w", err)
	}
	defer tileStmt.Close()

	for _, t := range snap.Tiles {
		if _, err := tileStmt.ExecContext(ctx, snap.Map, t.ID.Z, t.ID.X, t.ID.Y, string(t.Ref)); err != nil {
			return fmt.Errorf("failed to insert tile %s: %w", t.ID, err)
		}
	}

	journeyStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO journeys (map, destination_id, travel_mode, payload, extents_x, extents_y, extents_zoom)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare journey insert: %w", err)
	}
	defer journeyStmt.Close()

	for _, e := range snap.Journeys {
		var ex, ey, ez any
		if e.Extents != nil {
			ex, ey, ez = e.Extents.Point.X, e.Extents.Point.Y, e.Extents.Zoom
		}
		payload := e.Payload
		if payload == nil {
			payload = []byte{}
		}
		if _, err := journeyStmt.ExecContext(ctx, snap.Map, e.Key.DestinationID, string(e.Key.Mode),
			payload, ex, ey, ez); err != nil {
			return fmt.Errorf("failed to insert journey %s: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Names returns the names of all saved maps.
func (s *SQLiteStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM maps ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query maps: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan map row: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
