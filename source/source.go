// Package source loads geometries from GeoJSON documents and ESRI
// shapefiles for rasterizing.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrNotGeographic is returned when coordinates fall outside the
	// longitude/latitude range, as happens with projected data.
	ErrNotGeographic = errors.New("coordinates are not longitude/latitude")
)

// geographicSlack allows for rounding in data that touches the edge of the
// world.
const geographicSlack = 1e-6

var world = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// Stats counts what a source contained.
type Stats struct {
	// Records is the number of features or shapes read.
	Records int
	// Dropped records had no geometry or an empty one.
	Dropped int
}

// Source is the loaded content of one file.
type Source struct {
	Path       string
	Geometries []orb.Geometry
	Bound      orb.Bound
	Stats      Stats
}

// Open reads every geometry in the file at path. The format is chosen by
// extension: .geojson and .json are read as GeoJSON, .shp as a shapefile.
func Open(ctx context.Context, path string) (*Source, error) {
	var (
		s   *Source
		err error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		s, err = openGeoJSON(ctx, path)
	case ".shp":
		s, err = openShapefile(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	s.Path = path
	if err := s.checkGeographic(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

func (s *Source) add(g orb.Geometry) {
	s.Stats.Records++
	if isEmpty(g) {
		s.Stats.Dropped++
		return
	}

	if len(s.Geometries) == 0 {
		s.Bound = g.Bound()
	} else {
		s.Bound = s.Bound.Union(g.Bound())
	}
	s.Geometries = append(s.Geometries, g)
}

func (s *Source) checkGeographic() error {
	if len(s.Geometries) == 0 {
		return nil
	}

	limit := world.Pad(geographicSlack)
	if !limit.Contains(s.Bound.Min) || !limit.Contains(s.Bound.Max) {
		return fmt.Errorf("%w: bounds %v", ErrNotGeographic, s.Bound)
	}
	return nil
}

// isEmpty reports whether g has no vertices at all.
func isEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return true
	case orb.Point, orb.Bound:
		return false
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.Ring:
		return len(g) == 0
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) == 0
	case orb.MultiPolygon:
		for _, p := range g {
			if !isEmpty(p) {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range g {
			if !isEmpty(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
