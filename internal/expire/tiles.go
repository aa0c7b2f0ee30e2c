// Package expire derives the map tiles invalidated by an update cycle.
package expire

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxMercatorLat is the northern edge of the Web Mercator tile pyramid.
const MaxMercatorLat = 85.0511287798

// FormatTile renders a tile in the z/x/y form expected by tile servers.
func FormatTile(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// TileAt returns the tile containing p, clamping p to the Mercator range.
func TileAt(p orb.Point, z maptile.Zoom) maptile.Tile {
	lat := math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, p.Lat()))
	lon := math.Max(-180, math.Min(180, p.Lon()))
	t := maptile.At(orb.Point{lon, lat}, z)

	// lon 180 falls on the first tile past the edge
	last := uint32(1)<<uint32(z) - 1
	t.X = min(t.X, last)
	t.Y = min(t.Y, last)
	return t
}

// TileRange is the block of tiles covering a bound at one zoom level.
type TileRange struct {
	Z          maptile.Zoom
	MinX, MaxX uint32
	MinY, MaxY uint32
}

// BoundToTileRange returns the tiles intersecting b at zoom z. Tile rows
// grow southwards.
func BoundToTileRange(b orb.Bound, z maptile.Zoom) TileRange {
	topLeft := TileAt(orb.Point{b.Min.Lon(), b.Max.Lat()}, z)
	bottomRight := TileAt(orb.Point{b.Max.Lon(), b.Min.Lat()}, z)
	return TileRange{
		Z:    z,
		MinX: topLeft.X,
		MaxX: bottomRight.X,
		MinY: topLeft.Y,
		MaxY: bottomRight.Y,
	}
}

// Count returns the number of tiles in the range.
func (r TileRange) Count() uint64 {
	return uint64(r.MaxX-r.MinX+1) * uint64(r.MaxY-r.MinY+1)
}

// Tiles lists every tile in the range.
func (r TileRange) Tiles() []maptile.Tile {
	tiles := make([]maptile.Tile, 0, r.Count())
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			tiles = append(tiles, maptile.New(x, y, r.Z))
		}
	}
	return tiles
}
