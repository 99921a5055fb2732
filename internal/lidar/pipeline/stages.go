package pipeline

import (
	"context"

	"github.com/banshee-data/bcal/internal/lidar/l3bins"
	sqlite "github.com/banshee-data/bcal/internal/lidar/storage/sqlite"
)

// Consumer receives one binned and sorted working set per tile. It stands in
// for the ground-classification stage. An error is recorded against the tile
// and does not stop sibling tiles.
//
// Consume may be called from several goroutines at once, one tile each.
type Consumer interface {
	Consume(ctx context.Context, ws *l3bins.WorkingSet) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, ws *l3bins.WorkingSet) error

// Consume calls f(ctx, ws).
func (f ConsumerFunc) Consume(ctx context.Context, ws *l3bins.WorkingSet) error {
	return f(ctx, ws)
}

// DiscardConsumer accepts every working set and does nothing with it.
var DiscardConsumer Consumer = ConsumerFunc(func(context.Context, *l3bins.WorkingSet) error { return nil })

// TileRecorder persists runs and their per-tile outcomes. It is an adapter,
// implemented by sqlite.RunStore.
type TileRecorder interface {
	// StartRun inserts a run and assigns run.RunID when empty.
	StartRun(ctx context.Context, run *sqlite.FilterRun) error
	// RecordTile writes or replaces the outcome of one tile.
	RecordTile(ctx context.Context, rec *sqlite.TileRecord) error
	// FinishRun marks a run finished with the given status.
	FinishRun(ctx context.Context, runID, status string) error
}

var _ TileRecorder = (*sqlite.RunStore)(nil)
