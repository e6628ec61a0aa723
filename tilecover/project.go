package tilecover

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// antimeridianStep is the smallest longitude step between consecutive
// vertices that is read as a crossing of +/-180. Shorter steps, such as the
// edges of a polygon spanning most of the globe, are taken literally.
const antimeridianStep = 300.0

// projector converts geographic vertices into fractional tile coordinates at
// a single zoom.
type projector struct {
	zoom maptile.Zoom
	wrap bool
}

func (p projector) size() float64 {
	return float64(uint64(1) << uint(p.zoom))
}

// project converts a vertex sequence. When wrapping is enabled, steps longer
// than antimeridianStep are treated as crossings of the antimeridian and
// unwrapped, so x may leave [0, 2^z). ref, when non-nil, is the longitude the
// first vertex is aligned to.
//
// A vertex exactly on the +180 meridian belongs to the last column, as in
// TileAt, rather than to column 0 across the antimeridian.
func (p projector) project(points []orb.Point, ref *float64) ([]orb.Point, bool) {
	out := make([]orb.Point, len(points))

	var prev, offset float64
	hasPrev := false
	if ref != nil && p.wrap {
		prev, hasPrev = *ref, true
	}

	for i, pt := range points {
		lon, lat := pt.Lon(), pt.Lat()
		if !finite(lon) || !finite(lat) {
			return nil, false
		}

		if p.wrap && hasPrev {
			offset += wrapOffset(lon - prev)
		}
		prev, hasPrev = lon, true

		f := FractionalTile(orb.Point{lon + offset, lat}, p.zoom)
		if lon+offset == 180 {
			f[0] = math.Nextafter(f[0], math.Inf(-1))
		}
		out[i] = f
	}

	return out, true
}

// projectRing is project for closed rings. An unwrapped ring that no longer
// closes circles a pole and is capped along the pole row. An unwrapped ring
// that came out wider than the raw one is dropped in favour of the raw one.
func (p projector) projectRing(ring orb.Ring, ref *float64) ([]orb.Point, bool) {
	out, ok := p.project(ring, ref)
	if !ok || !p.wrap || len(out) < 2 {
		return out, ok
	}

	n := p.size()
	closed := ring[0] == ring[len(ring)-1]
	if closed && math.Abs(out[0].X()-out[len(out)-1].X()) >= n/2 {
		return capRing(out, n), true
	}

	raw, _ := projector{zoom: p.zoom}.project(ring, nil)
	if xSpan(raw) < xSpan(out) {
		return raw, true
	}
	return out, true
}

// capRing closes a ring that circles a pole by running it along the pole
// row, so the fill covers everything between the ring and that pole. The pole
// on the side of the ring's mean row is used.
func capRing(ring []orb.Point, n float64) []orb.Point {
	var sum float64
	for _, p := range ring {
		sum += p.Y()
	}

	pole := 0.0
	if sum/float64(len(ring)) > n/2 {
		pole = n
	}

	first, last := ring[0], ring[len(ring)-1]
	capped := make([]orb.Point, 0, len(ring)+2)
	capped = append(capped, ring...)
	return append(capped, orb.Point{last.X(), pole}, orb.Point{first.X(), pole})
}

func xSpan(points []orb.Point) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, p.X())
		hi = math.Max(hi, p.X())
	}
	return hi - lo
}

// wrapOffset is the shift applied when consecutive raw longitudes differ by
// d. A jump of a full 360 degrees or more is an edge drawn along the whole
// parallel and is kept as is.
func wrapOffset(d float64) float64 {
	switch {
	case d > antimeridianStep && d < 360:
		return -360
	case d < -antimeridianStep && d > -360:
		return 360
	default:
		return 0
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
