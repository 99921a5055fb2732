package l1points

import (
	"fmt"
	"math"
)

// BinUnset marks a point that has not been assigned a bin yet.
const BinUnset = math.MaxUint32

// Envelope is an axis-aligned bounding rectangle in map coordinates.
type Envelope struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Width returns MaxX - MinX.
func (e Envelope) Width() float64 { return e.MaxX - e.MinX }

// Height returns MaxY - MinY.
func (e Envelope) Height() float64 { return e.MaxY - e.MinY }

// Area returns Width * Height.
func (e Envelope) Area() float64 { return e.Width() * e.Height() }

// Contains reports whether (x, y) lies inside the closed envelope.
func (e Envelope) Contains(x, y float64) bool {
	return x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

// Validate returns ErrInvalidEnvelope when the envelope has non-finite
// bounds or zero/negative width or height.
func (e Envelope) Validate() error {
	for _, v := range [...]float64{e.MinX, e.MaxX, e.MinY, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite bound in %v", ErrInvalidEnvelope, e)
		}
	}
	if e.MaxX <= e.MinX {
		return fmt.Errorf("%w: width %g is not positive", ErrInvalidEnvelope, e.Width())
	}
	if e.MaxY <= e.MinY {
		return fmt.Errorf("%w: height %g is not positive", ErrInvalidEnvelope, e.Height())
	}
	return nil
}

// String formats the envelope as {minX,maxX,minY,maxY}.
func (e Envelope) String() string {
	return fmt.Sprintf("{%g,%g,%g,%g}", e.MinX, e.MaxX, e.MinY, e.MaxY)
}

// Point is a single lidar return owned by one tile's working set.
type Point struct {
	ID             int64 // feature id from the point source
	X, Y, Z        float64
	Classification uint8
	Bin            uint32 // BinUnset until binning assigns it
}

// Record is one row yielded by a PointSource cursor.
type Record struct {
	FeatureID      int64
	X, Y, Z        float64
	Classification uint8
}

// Point converts the record into an unbinned Point.
func (r Record) Point() Point {
	return Point{
		ID:             r.FeatureID,
		X:              r.X,
		Y:              r.Y,
		Z:              r.Z,
		Classification: r.Classification,
		Bin:            BinUnset,
	}
}
