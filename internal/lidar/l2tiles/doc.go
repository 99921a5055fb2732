// Package l2tiles owns Layer 2 (Tiles) of the bcal data model.
//
// Responsibilities: splitting the dataset extent into a near-square grid of
// sub-envelopes, deciding which tile owns a point that lies on a shared
// edge, and extracting one tile's points from a PointSource into an
// exactly sized buffer.
// Key types: Decomposition, Tile, Extractor.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2tiles
