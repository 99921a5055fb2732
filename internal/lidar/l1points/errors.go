package l1points

import "errors"

var (
	// ErrInvalidEnvelope is returned for a degenerate or missing bounding box.
	// It is fatal: no tiling happens.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrZeroJobs is returned when a partition is requested with jobs == 0.
	ErrZeroJobs = errors.New("partition requires at least one job")

	// ErrSourceQuery wraps a point source failure for a single tile.
	// Sibling tiles are unaffected.
	ErrSourceQuery = errors.New("point source query failed")

	// ErrSourceOpen is returned when the point source cannot be opened.
	ErrSourceOpen = errors.New("point source could not be opened")
)
