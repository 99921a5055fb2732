package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/monitoring"
)

// importBatchSize is the number of rows written per transaction on import.
const importBatchSize = 10000

// PointStore is a point cloud held in a SQLite database.
type PointStore struct {
	db *DB
}

// OpenPointStore opens an existing point database. A missing or unreadable
// file is reported as l1points.ErrSourceOpen.
func OpenPointStore(path string) (*PointStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", l1points.ErrSourceOpen, err)
	}
	return openPointStore(path)
}

// CreatePointStore opens the point database at path, creating it if needed.
func CreatePointStore(path string) (*PointStore, error) {
	return openPointStore(path)
}

func openPointStore(path string) (*PointStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", l1points.ErrSourceOpen, err)
	}
	return &PointStore{db: db}, nil
}

// NewPointStore wraps an already opened database.
func NewPointStore(db *DB) *PointStore {
	return &PointStore{db: db}
}

// DB returns the underlying database.
func (s *PointStore) DB() *DB { return s.db }

// Close closes the database.
func (s *PointStore) Close() error { return s.db.Close() }

// Extent returns the bounding envelope of all stored points.
func (s *PointStore) Extent(ctx context.Context) (l1points.Envelope, error) {
	var minX, maxX, minY, maxY sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(x), MAX(x), MIN(y), MAX(y) FROM points`,
	).Scan(&minX, &maxX, &minY, &maxY)
	if err != nil {
		return l1points.Envelope{}, fmt.Errorf("%w: extent: %w", l1points.ErrSourceQuery, err)
	}
	if !minX.Valid || !maxX.Valid || !minY.Valid || !maxY.Valid {
		return l1points.Envelope{}, fmt.Errorf("%w: point table is empty", l1points.ErrInvalidEnvelope)
	}
	return l1points.Envelope{
		MinX: minX.Float64, MaxX: maxX.Float64,
		MinY: minY.Float64, MaxY: maxY.Float64,
	}, nil
}

// Count returns the number of stored points.
func (s *PointStore) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return uint64(n), nil
}

// Insert writes records in one transaction. A record whose feature id
// already exists replaces the stored row.
func (s *PointStore) Insert(ctx context.Context, recs []l1points.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO points (fid, x, y, z, classification)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.FeatureID, r.X, r.Y, r.Z, int(r.Classification)); err != nil {
			return fmt.Errorf("insert point %d: %w", r.FeatureID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// ImportCSV loads rows of fid,x,y,z[,classification] from r. A header row
// whose first field is not an integer is skipped. It returns the number of
// points imported.
func (s *PointStore) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	batch := make([]l1points.Record, 0, importBatchSize)
	total := 0
	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, fmt.Errorf("read csv: %w", err)
		}
		line++
		rec, err := parseCSVRecord(row)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return total, fmt.Errorf("csv line %d: %w", line, err)
		}
		batch = append(batch, rec)
		if len(batch) == importBatchSize {
			if err := s.Insert(ctx, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := s.Insert(ctx, batch); err != nil {
		return total, err
	}
	total += len(batch)
	monitoring.Logf("imported %d points into %s", total, s.db.Path)
	return total, nil
}

func parseCSVRecord(row []string) (l1points.Record, error) {
	if len(row) < 4 {
		return l1points.Record{}, fmt.Errorf("expected at least 4 fields, got %d", len(row))
	}
	fid, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil {
		return l1points.Record{}, fmt.Errorf("fid: %w", err)
	}
	var xyz [3]float64
	for i := range xyz {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return l1points.Record{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		xyz[i] = v
	}
	rec := l1points.Record{FeatureID: fid, X: xyz[0], Y: xyz[1], Z: xyz[2]}
	if len(row) > 4 && strings.TrimSpace(row[4]) != "" {
		c, err := strconv.ParseUint(strings.TrimSpace(row[4]), 10, 8)
		if err != nil {
			return l1points.Record{}, fmt.Errorf("classification: %w", err)
		}
		rec.Classification = uint8(c)
	}
	return rec, nil
}

// Session returns a new PointSource over the store with its own filter
// state. Sessions share the connection pool, so each concurrent tile may
// hold one.
func (s *PointStore) Session() *PointSession {
	return &PointSession{store: s}
}

// PointSession is one independent query handle on a PointStore.
type PointSession struct {
	store  *PointStore
	filter orb.Polygon
	bound  orb.Bound
}

// Extent implements l1points.PointSource.
func (ps *PointSession) Extent(ctx context.Context) (l1points.Envelope, error) {
	return ps.store.Extent(ctx)
}

// SetSpatialFilter implements l1points.PointSource. Only the outer ring of
// poly is used for the SQL prefilter; containment is exact.
func (ps *PointSession) SetSpatialFilter(poly orb.Polygon) error {
	if len(poly) == 0 || !poly[0].Closed() {
		return fmt.Errorf("spatial filter needs a closed outer ring")
	}
	ps.filter = poly
	ps.bound = poly.Bound()
	return nil
}

// ClearSpatialFilter implements l1points.PointSource.
func (ps *PointSession) ClearSpatialFilter() {
	ps.filter = nil
	ps.bound = orb.Bound{}
}

// EstimateCount implements l1points.PointSource. The filtered estimate
// counts the filter's bounding box, which is exact for rectangular tiles.
func (ps *PointSession) EstimateCount(ctx context.Context, filtered bool) (uint64, error) {
	if !filtered || ps.filter == nil {
		return ps.store.Count(ctx)
	}
	var n int64
	err := ps.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM points
		WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ?
	`, ps.bound.Min[0], ps.bound.Max[0], ps.bound.Min[1], ps.bound.Max[1]).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("estimate count: %w", err)
	}
	return uint64(n), nil
}

// Cursor implements l1points.PointSource. Records come back in feature id
// order.
func (ps *PointSession) Cursor(ctx context.Context) (l1points.Cursor, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if ps.filter == nil {
		rows, err = ps.store.db.QueryContext(ctx, `
			SELECT fid, x, y, z, classification FROM points ORDER BY fid
		`)
	} else {
		rows, err = ps.store.db.QueryContext(ctx, `
			SELECT fid, x, y, z, classification FROM points
			WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ?
			ORDER BY fid
		`, ps.bound.Min[0], ps.bound.Max[0], ps.bound.Min[1], ps.bound.Max[1])
	}
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	return &pointCursor{rows: rows, filter: ps.filter}, nil
}

type pointCursor struct {
	rows   *sql.Rows
	filter orb.Polygon
	rec    l1points.Record
	err    error
}

func (c *pointCursor) Next() bool {
	if c.err != nil {
		return false
	}
	for c.rows.Next() {
		var class int
		if err := c.rows.Scan(&c.rec.FeatureID, &c.rec.X, &c.rec.Y, &c.rec.Z, &class); err != nil {
			c.err = fmt.Errorf("scan point: %w", err)
			return false
		}
		c.rec.Classification = uint8(class)
		if c.filter == nil || planar.PolygonContains(c.filter, orb.Point{c.rec.X, c.rec.Y}) {
			return true
		}
	}
	return false
}

func (c *pointCursor) Record() l1points.Record { return c.rec }

func (c *pointCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *pointCursor) Close() error { return c.rows.Close() }
