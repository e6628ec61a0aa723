package tilecover

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
)

// TouchPolicy decides whether tiles a polygon only touches along an edge or
// at a corner are part of its coverage.
type TouchPolicy int

const (
	// TouchInterior covers a tile only when the polygon interior overlaps the
	// tile interior.
	TouchInterior TouchPolicy = iota

	// TouchInclusive also covers every tile the polygon boundary touches.
	TouchInclusive
)

// rasterizer burns single geometries into a tile map at one zoom.
type rasterizer struct {
	proj  projector
	n     int64
	touch TouchPolicy
	tiles map[maptile.Tile]struct{}
}

func newRasterizer(z maptile.Zoom, wrap bool, touch TouchPolicy, tiles map[maptile.Tile]struct{}) *rasterizer {
	return &rasterizer{
		proj:  projector{zoom: z, wrap: wrap},
		n:     int64(1) << uint(z),
		touch: touch,
		tiles: tiles,
	}
}

func (r *rasterizer) emit(x, y int64) {
	t := maptile.New(uint32(wrapColumn(x, r.n)), uint32(clampRow(y, r.n)), r.proj.zoom)
	r.tiles[t] = struct{}{}
}

// burn rasterizes g. An empty reason means the geometry contributed tiles.
func (r *rasterizer) burn(g orb.Geometry) SkipReason {
	switch g := g.(type) {
	case nil:
		return SkipEmpty
	case orb.Point:
		return r.burnPoints([]orb.Point{g})
	case orb.MultiPoint:
		return r.burnPoints(g)
	case orb.LineString:
		return r.burnLine(g)
	case orb.MultiLineString:
		return r.burnMulti(len(g), func(i int) SkipReason { return r.burnLine(g[i]) })
	case orb.Ring:
		return r.burnPolygon(orb.Polygon{g})
	case orb.Polygon:
		return r.burnPolygon(g)
	case orb.MultiPolygon:
		return r.burnMulti(len(g), func(i int) SkipReason { return r.burnPolygon(g[i]) })
	case orb.Bound:
		// min and max are explicit, so a bound is never unwrapped
		literal := *r
		literal.proj.wrap = false
		return literal.burnPolygon(g.ToPolygon())
	case orb.Collection:
		return r.burnMulti(len(g), func(i int) SkipReason { return r.burn(g[i]) })
	default:
		return SkipUnsupported
	}
}

// burnMulti burns each part, succeeding if any part did. When every part is
// skipped the first reason is reported.
func (r *rasterizer) burnMulti(count int, part func(i int) SkipReason) SkipReason {
	if count == 0 {
		return SkipEmpty
	}

	var first SkipReason
	burned := false
	for i := 0; i < count; i++ {
		reason := part(i)
		if reason == "" {
			burned = true
		} else if first == "" {
			first = reason
		}
	}

	if burned {
		return ""
	}
	return first
}

func (r *rasterizer) burnPoints(points []orb.Point) SkipReason {
	if len(points) == 0 {
		return SkipEmpty
	}

	projected, ok := r.proj.project(points, nil)
	if !ok {
		return SkipNonFinite
	}

	for _, p := range projected {
		r.emit(floorInt(p.X()), floorInt(p.Y()))
	}
	return ""
}

func (r *rasterizer) burnLine(line orb.LineString) SkipReason {
	switch len(line) {
	case 0:
		return SkipEmpty
	case 1:
		return SkipTooFewVertices
	}

	projected, ok := r.proj.project(line, nil)
	if !ok {
		return SkipNonFinite
	}

	for i := 0; i+1 < len(projected); i++ {
		walkSegment(projected[i], projected[i+1], walkConnected, r.emit)
	}
	return ""
}

func (r *rasterizer) burnPolygon(poly orb.Polygon) SkipReason {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return SkipEmpty
	}

	outer := poly[0]
	if !hasDistinct(outer, 3) {
		return SkipTooFewVertices
	}

	ref := outer[0].Lon()
	rings := make([][]orb.Point, 0, len(poly))
	for i, ring := range poly {
		if i > 0 && !hasDistinct(ring, 3) {
			continue
		}

		projected, ok := r.proj.projectRing(ring, &ref)
		if !ok {
			return SkipNonFinite
		}
		rings = append(rings, projected)
	}

	// A ring with no height or width, such as one clamped onto the pole
	// row, has no interior to fill and keeps the tiles its edges touch.
	edgeMode := walkInterior
	if r.touch == TouchInclusive || flat(rings[0]) {
		edgeMode = walkConnected
	}
	for _, ring := range rings {
		for i := range ring {
			walkSegment(ring[i], ring[(i+1)%len(ring)], edgeMode, r.emit)
		}
	}

	if holesNested(rings) {
		fillRings(rings, r.n, r.emit)
	} else {
		for _, ring := range rings {
			fillRings([][]orb.Point{ring}, r.n, r.emit)
		}
	}

	return ""
}

// holesNested reports whether every hole lies within the outer ring, edges
// included. A hole with any vertex outside means the nesting cannot be trusted.
func holesNested(rings [][]orb.Point) bool {
	if len(rings) < 2 {
		return true
	}

	outer := orb.Ring(rings[0])
	for _, hole := range rings[1:] {
		for _, p := range hole {
			if !planar.RingContains(outer, p) {
				return false
			}
		}
	}
	return true
}

// flat reports whether every vertex shares one row or one column coordinate.
func flat(ring []orb.Point) bool {
	sameX, sameY := true, true
	for _, p := range ring[1:] {
		sameX = sameX && p.X() == ring[0].X()
		sameY = sameY && p.Y() == ring[0].Y()
	}
	return sameX || sameY
}

func hasDistinct(points []orb.Point, want int) bool {
	seen := make([]orb.Point, 0, want)
	for _, p := range points {
		dup := false
		for _, s := range seen {
			if s == p {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, p)
			if len(seen) >= want {
				return true
			}
		}
	}
	return false
}
