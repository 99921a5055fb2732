// Package sqlite contains the SQLite-backed point source and run ledger.
//
// PointStore holds an imported point cloud and hands out PointSession
// values that implement l1points.PointSource; each session owns its own
// filter state and cursors, so concurrent tiles never share query state.
// RunStore records each filter run and one row per tile result so failed
// tiles can be listed and retried.
//
// The schema is managed by golang-migrate from the embedded migrations/
// directory.
package sqlite
