package mbtiles

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/tilemap/internal/tile"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

// DefaultBatchSize is the number of tiles buffered before a flush.
const DefaultBatchSize = 100

type entry struct {
	id   tile.CanonicalID
	data []byte
}

// Writer writes tiles to an MBTiles database.
type Writer struct {
	db        *sql.DB
	path      string
	meta      Metadata
	batch     []entry
	batchSize int
	gzip      bool
	written   int
	extent    *types.BoundingBox
	minZoom   int
	maxZoom   int
	mu        sync.Mutex
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithGzip stores tile blobs gzip-compressed.
func WithGzip() WriterOption {
	return func(w *Writer) { w.gzip = true }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// Create creates (or opens) the archive at path and initializes its schema.
// Metadata zoom range and bounds are completed from the written tiles on Close
// when left empty.
func Create(path string, meta Metadata, opts ...WriterOption) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	w := &Writer{
		db:        db,
		path:      path,
		meta:      meta,
		batchSize: DefaultBatchSize,
		minZoom:   -1,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.batch = make([]entry, 0, w.batchSize)
	return w, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Put buffers a tile. Full batches are flushed automatically.
func (w *Writer) Put(id tile.CanonicalID, data []byte) error {
	if !id.Valid() {
		return fmt.Errorf("invalid tile %s", id)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.batch = append(w.batch, entry{id: id, data: data})
	w.track(id)

	if len(w.batch) >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

func (w *Writer) track(id tile.CanonicalID) {
	b := types.FromBound(id.GeoBound())
	if w.extent == nil {
		w.extent = &b
	} else {
		w.extent = &types.BoundingBox{
			MinLon: min(w.extent.MinLon, b.MinLon),
			MinLat: min(w.extent.MinLat, b.MinLat),
			MaxLon: max(w.extent.MaxLon, b.MaxLon),
			MaxLat: max(w.extent.MaxLat, b.MaxLat),
		}
	}
	if w.minZoom < 0 || id.Z < w.minZoom {
		w.minZoom = id.Z
	}
	if id.Z > w.maxZoom {
		w.maxZoom = id.Z
	}
}

// Count returns the number of tiles written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written + len(w.batch)
}

// Flush writes any buffered tiles to the database.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// flushLocked must be called with w.mu held.
func (w *Writer) flushLocked() error {
	if len(w.batch) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range w.batch {
		data := e.data
		if w.gzip {
			if data, err = gzipCompress(data); err != nil {
				return fmt.Errorf("failed to compress tile %s: %w", e.id, err)
			}
		}
		if _, err := stmt.Exec(e.id.Z, e.id.X, tmsRow(e.id), data); err != nil {
			return fmt.Errorf("failed to insert tile %s: %w", e.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.written += len(w.batch)
	w.batch = w.batch[:0]
	return nil
}

// tmsRow flips a slippy row into the bottom-up TMS row MBTiles stores.
func tmsRow(id tile.CanonicalID) int {
	return (1 << id.Z) - 1 - id.Y
}

func (w *Writer) writeMetadata() error {
	meta := w.meta
	if w.minZoom >= 0 && meta.MinZoom == 0 && meta.MaxZoom == 0 {
		meta.MinZoom, meta.MaxZoom = w.minZoom, w.maxZoom
	}
	if w.extent != nil && meta.Bounds == (types.BoundingBox{}) {
		meta.Bounds = *w.extent
	}
	if meta.Center == [3]float64{} && meta.Bounds != (types.BoundingBox{}) {
		lat, lon := meta.Bounds.Center()
		meta.Center = [3]float64{lon, lat, float64(meta.MinZoom)}
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	for key, value := range meta.ToMap() {
		if _, err := tx.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// Close flushes remaining tiles, writes the metadata and closes the database.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		w.db.Close()
		return err
	}
	if err := w.writeMetadata(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)

	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
