package l2tiles

import (
	"github.com/paulmach/orb"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
)

// TilePolygon builds the spatial-filter polygon for env: a single closed
// outer ring wound counter-clockwise from (MinX, MinY).
func TilePolygon(env l1points.Envelope) orb.Polygon {
	ring := orb.Ring{
		{env.MinX, env.MinY},
		{env.MaxX, env.MinY},
		{env.MaxX, env.MaxY},
		{env.MinX, env.MaxY},
		{env.MinX, env.MinY},
	}
	return orb.Polygon{ring}
}
