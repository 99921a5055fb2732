// Package l3bins owns Layer 3 (Bins) of the bcal data model.
//
// Responsibilities: assigning every point of a tile to a canopy-spacing
// bin, ordering the tile's points by bin, and summarising the result for
// logging and plots.
// Key types: WorkingSet, GridDims, BinRange, Summary.
//
// Dependency rule: L3 may depend on L1-L2, but never on the pipeline.
// Binning has no I/O and no failure modes.
package l3bins
