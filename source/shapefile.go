package source

import (
	"context"

	shp "gitee.com/LJ_COOL/go-shp"
	"github.com/paulmach/orb"
)

func openShapefile(ctx context.Context, path string) (*Source, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	s := &Source{}
	for n := 0; reader.Next(); n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		_, shape := reader.Shape()
		s.add(shapeGeometry(shape))
	}

	if err := reader.Err(); err != nil {
		return nil, err
	}

	return s, nil
}

// shapeGeometry converts a shapefile record. Z and M values are discarded.
// Null shapes and unknown types return nil.
func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}
	case *shp.PointM:
		return orb.Point{s.X, s.Y}
	case *shp.MultiPoint:
		return multiPoint(s.Points)
	case *shp.MultiPointZ:
		return multiPoint(s.Points)
	case *shp.MultiPointM:
		return multiPoint(s.Points)
	case *shp.PolyLine:
		return lines(s.Points, s.Parts)
	case *shp.PolyLineZ:
		return lines(s.Points, s.Parts)
	case *shp.PolyLineM:
		return lines(s.Points, s.Parts)
	case *shp.Polygon:
		return polygons(s.Points, s.Parts)
	case *shp.PolygonZ:
		return polygons(s.Points, s.Parts)
	case *shp.PolygonM:
		return polygons(s.Points, s.Parts)
	default:
		return nil
	}
}

func toOrb(points []shp.Point) []orb.Point {
	out := make([]orb.Point, len(points))
	for i, p := range points {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

func multiPoint(points []shp.Point) orb.Geometry {
	if len(points) == 1 {
		return orb.Point{points[0].X, points[0].Y}
	}
	return orb.MultiPoint(toOrb(points))
}

// splitParts cuts a shape's point array at the part start offsets. Offsets
// out of range are clamped.
func splitParts(points []shp.Point, parts []int32) [][]orb.Point {
	if len(parts) == 0 {
		if len(points) == 0 {
			return nil
		}
		return [][]orb.Point{toOrb(points)}
	}

	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		start = max(0, min(start, int32(len(points))))
		end = max(start, min(end, int32(len(points))))
		out = append(out, toOrb(points[start:end]))
	}
	return out
}

func lines(points []shp.Point, parts []int32) orb.Geometry {
	split := splitParts(points, parts)
	if len(split) == 1 {
		return orb.LineString(split[0])
	}

	mls := make(orb.MultiLineString, len(split))
	for i, p := range split {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygons groups rings by orientation: each clockwise ring starts a polygon
// and the counter-clockwise rings after it are its holes. A hole with no
// preceding outer ring becomes a polygon of its own.
func polygons(points []shp.Point, parts []int32) orb.Geometry {
	var mp orb.MultiPolygon

	for _, p := range splitParts(points, parts) {
		ring := orb.Ring(p)
		if len(ring) == 0 {
			continue
		}

		if ring.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}

		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}

	switch len(mp) {
	case 0:
		return orb.Polygon{}
	case 1:
		return mp[0]
	default:
		return mp
	}
}
