package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
)

// Run status values stored in filter_runs.status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial" // some tiles failed
	RunStatusFailed    = "failed"
)

// FilterRun is one invocation of the tiling pipeline over a point source.
type FilterRun struct {
	RunID      string            `json:"run_id"`
	SourcePath string            `json:"source_path"`
	ConfigJSON []byte            `json:"config_json"`
	Envelope   l1points.Envelope `json:"envelope"`
	Jobs       uint32            `json:"jobs"`
	Side       int               `json:"side"`
	Status     string            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// TileRecord is the stored outcome of one tile in a run.
type TileRecord struct {
	RunID        string            `json:"run_id"`
	Index        int               `json:"tile_index"`
	Row          int               `json:"tile_row"`
	Col          int               `json:"tile_col"`
	Envelope     l1points.Envelope `json:"envelope"`
	PointCount   int               `json:"point_count"`
	OccupiedBins int               `json:"occupied_bins"`
	MeanZ        *float64          `json:"mean_z,omitempty"`
	Duration     time.Duration     `json:"duration"`
	Error        string            `json:"error,omitempty"`
	RecordedAt   time.Time         `json:"recorded_at"`
}

// Failed reports whether the tile recorded an error.
func (r *TileRecord) Failed() bool { return r.Error != "" }

// RunStore provides persistence for filter runs and their tile results.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

// StartRun inserts run with status running.
// If run.RunID is empty, a new UUID is generated.
func (s *RunStore) StartRun(ctx context.Context, run *FilterRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = RunStatusRunning
	if len(run.ConfigJSON) == 0 {
		run.ConfigJSON = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO filter_runs (
			run_id, source_path, config_json,
			min_x, max_x, min_y, max_y,
			jobs, side, status, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID, run.SourcePath, string(run.ConfigJSON),
		run.Envelope.MinX, run.Envelope.MaxX, run.Envelope.MinY, run.Envelope.MaxY,
		run.Jobs, run.Side, run.Status, run.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert filter run: %w", err)
	}
	return nil
}

// RecordTile stores the outcome of one tile. Recording the same tile again
// (a retry) replaces the earlier row.
func (s *RunStore) RecordTile(ctx context.Context, rec *TileRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tile_results (
			run_id, tile_index, tile_row, tile_col,
			min_x, max_x, min_y, max_y,
			point_count, occupied_bins, mean_z,
			duration_ns, error, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID, rec.Index, rec.Row, rec.Col,
		rec.Envelope.MinX, rec.Envelope.MaxX, rec.Envelope.MinY, rec.Envelope.MaxY,
		rec.PointCount, rec.OccupiedBins, nullFloat64(rec.MeanZ),
		rec.Duration.Nanoseconds(), nullString(rec.Error), rec.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record tile %d: %w", rec.Index, err)
	}
	return nil
}

// FinishRun sets the final status of a run.
func (s *RunStore) FinishRun(ctx context.Context, runID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE filter_runs SET status = ?, finished_at = ? WHERE run_id = ?
	`, status, time.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// GetRun returns a run by ID. It returns an error wrapping sql.ErrNoRows
// when the run does not exist.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*FilterRun, error) {
	run := &FilterRun{}
	var configJSON string
	var startedAt int64
	var finishedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, source_path, config_json,
		       min_x, max_x, min_y, max_y,
		       jobs, side, status, started_at, finished_at
		FROM filter_runs WHERE run_id = ?
	`, runID).Scan(
		&run.RunID, &run.SourcePath, &configJSON,
		&run.Envelope.MinX, &run.Envelope.MaxX, &run.Envelope.MinY, &run.Envelope.MaxY,
		&run.Jobs, &run.Side, &run.Status, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.ConfigJSON = []byte(configJSON)
	run.StartedAt = time.Unix(0, startedAt)
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64)
		run.FinishedAt = &t
	}
	return run, nil
}

// TileResults returns every recorded tile of a run, ordered by index.
func (s *RunStore) TileResults(ctx context.Context, runID string) ([]*TileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, tile_index, tile_row, tile_col,
		       min_x, max_x, min_y, max_y,
		       point_count, occupied_bins, mean_z,
		       duration_ns, error, recorded_at
		FROM tile_results
		WHERE run_id = ?
		ORDER BY tile_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tile results: %w", err)
	}
	defer rows.Close()

	var out []*TileRecord
	for rows.Next() {
		r := &TileRecord{}
		var meanZ sql.NullFloat64
		var errText sql.NullString
		var durationNs, recordedAt int64
		err := rows.Scan(
			&r.RunID, &r.Index, &r.Row, &r.Col,
			&r.Envelope.MinX, &r.Envelope.MaxX, &r.Envelope.MinY, &r.Envelope.MaxY,
			&r.PointCount, &r.OccupiedBins, &meanZ,
			&durationNs, &errText, &recordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tile result: %w", err)
		}
		if meanZ.Valid {
			r.MeanZ = &meanZ.Float64
		}
		if errText.Valid {
			r.Error = errText.String
		}
		r.Duration = time.Duration(durationNs)
		r.RecordedAt = time.Unix(0, recordedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailedTiles returns the indices of tiles in a run that recorded an error.
func (s *RunStore) FailedTiles(ctx context.Context, runID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tile_index FROM tile_results
		WHERE run_id = ? AND error IS NOT NULL
		ORDER BY tile_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list failed tiles: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan failed tile: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
