package tilecover

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	webMercatorLatLimit float64 = 85.05112877980659

	// MaxZoom is the deepest zoom the grid math supports. 2^30 columns still fit
	// the uint32 tile coordinates used by maptile.
	MaxZoom = 30

	// Fractional coordinates this close to a grid line are snapped onto it.
	gridSnap = 1e-9
)

// TileBounds is the geographic extent of a tile in degrees.
type TileBounds struct {
	West  float64
	South float64
	East  float64
	North float64
}

// Contains reports whether the point falls inside the bounds, edges included,
// allowing tol degrees of slack.
func (b TileBounds) Contains(p orb.Point, tol float64) bool {
	return p.Lon() >= b.West-tol && p.Lon() <= b.East+tol &&
		p.Lat() >= b.South-tol && p.Lat() <= b.North+tol
}

func (b TileBounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Ring returns the closed tile outline starting at the south-west corner.
func (b TileBounds) Ring() orb.Ring {
	return orb.Ring{
		{b.West, b.South},
		{b.East, b.South},
		{b.East, b.North},
		{b.West, b.North},
		{b.West, b.South},
	}
}

// ValidateZoom checks that z addresses a grid the tile math can represent.
func ValidateZoom(z int) (maptile.Zoom, error) {
	if z < 0 || z > MaxZoom {
		return 0, fmt.Errorf("%w: %d is outside 0-%d", ErrInvalidZoom, z, MaxZoom)
	}
	return maptile.Zoom(z), nil
}

func clampLat(lat float64) float64 {
	return math.Max(-webMercatorLatLimit, math.Min(webMercatorLatLimit, lat))
}

func snap(v float64) float64 {
	r := math.Round(v)
	if math.Abs(v-r) < gridSnap {
		return r
	}
	return v
}

// FractionalTile maps a lon/lat point onto continuous tile grid coordinates at
// zoom z. Latitudes beyond the web mercator limit are clamped. Longitudes are
// not wrapped, so values past +/-180 land outside [0, 2^z).
func FractionalTile(p orb.Point, z maptile.Zoom) orb.Point {
	n := float64(uint64(1) << uint(z))
	lat := clampLat(p.Lat())

	fx := (p.Lon() + 180.0) / 360.0 * n
	fy := (1.0 - math.Log(math.Tan(math.Pi/4.0+lat*math.Pi/360.0))/math.Pi) / 2.0 * n

	return orb.Point{snap(fx), snap(fy)}
}

// TileAt returns the tile containing the point at zoom z.
func TileAt(p orb.Point, z maptile.Zoom) maptile.Tile {
	f := FractionalTile(p, z)
	n := int64(1) << uint(z)

	x := int64(math.Floor(f.X()))
	if x == n {
		// lon 180 belongs to the last column rather than wrapping
		x = n - 1
	}
	x = wrapColumn(x, n)

	y := clampRow(int64(math.Floor(f.Y())), n)

	return maptile.New(uint32(x), uint32(y), z)
}

// Bounds is the inverse of TileAt: the geographic corners of the tile.
func Bounds(t maptile.Tile) TileBounds {
	n := float64(uint64(1) << uint(t.Z))

	return TileBounds{
		West:  float64(t.X)/n*360.0 - 180.0,
		East:  float64(t.X+1)/n*360.0 - 180.0,
		North: rowLat(float64(t.Y), n),
		South: rowLat(float64(t.Y)+1, n),
	}
}

func rowLat(y float64, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180.0 / math.Pi
}

func wrapColumn(x int64, n int64) int64 {
	x %= n
	if x < 0 {
		x += n
	}
	return x
}

func clampRow(y int64, n int64) int64 {
	if y < 0 {
		return 0
	}
	if y >= n {
		return n - 1
	}
	return y
}
