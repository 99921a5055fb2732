// Package pipeline runs the tiling pipeline over a point source.
//
// It is the composition root for the lidar layers: it partitions the source
// envelope (l2tiles), extracts each tile's points, bins and sorts them
// (l3bins), hands the working set to a Consumer and records the outcome
// through a TileRecorder (storage/sqlite). None of those packages import
// pipeline/.
package pipeline
