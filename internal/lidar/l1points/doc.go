// Package l1points owns Layer 1 (Points) of the bcal data model.
//
// Responsibilities: the Envelope and Point value types, the PointSource
// contract through which tiles query the dataset, and an in-memory source
// used by tests and small CSV-driven runs.
// Key types: Envelope, Point, Record, PointSource, Cursor.
//
// Dependency rule: L1 depends on nothing else in internal/lidar.
// No SQL/database code is allowed in this package.
package l1points
