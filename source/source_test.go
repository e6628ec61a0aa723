package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	shp "gitee.com/LJ_COOL/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roads = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "a"}, "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}},
    {"type": "Feature", "properties": {"name": "b"}, "geometry": null},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Polygon", "coordinates": [[[10, 10], [11, 10], [11, 11], [10, 10]]]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "MultiLineString", "coordinates": []}}
  ]
}`

func TestReadGeoJSON_FeatureCollection(t *testing.T) {
	s, err := ReadGeoJSON(context.Background(), strings.NewReader(roads))
	require.NoError(t, err)

	require.Len(t, s.Geometries, 2)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, s.Geometries[0])
	assert.Equal(t, 4, s.Stats.Records)
	assert.Equal(t, 2, s.Stats.Dropped)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{11, 11}}, s.Bound)
}

func TestReadGeoJSON_FeatureAndGeometry(t *testing.T) {
	s, err := ReadGeoJSON(context.Background(), strings.NewReader(
		`{"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [5, 6]}}`))
	require.NoError(t, err)
	assert.Equal(t, []orb.Geometry{orb.Point{5, 6}}, s.Geometries)

	s, err = ReadGeoJSON(context.Background(), strings.NewReader(
		`{"type": "MultiPoint", "coordinates": [[1, 2], [3, 4]]}`))
	require.NoError(t, err)
	assert.Equal(t, []orb.Geometry{orb.MultiPoint{{1, 2}, {3, 4}}}, s.Geometries)
}

func TestReadGeoJSON_Invalid(t *testing.T) {
	for _, doc := range []string{`not json`, `{"coordinates": []}`, `{"type": "Banana", "coordinates": []}`} {
		_, err := ReadGeoJSON(context.Background(), strings.NewReader(doc))
		assert.Error(t, err, doc)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roads.geojson")
	require.NoError(t, os.WriteFile(path, []byte(roads), 0644))

	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path)
	assert.Len(t, s.Geometries, 2)

	_, err = Open(context.Background(), filepath.Join(dir, "roads.csv"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Open(context.Background(), filepath.Join(dir, "missing.geojson"))
	assert.Error(t, err)
}

func TestOpen_ProjectedCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projected.json")
	doc := `{"type": "LineString", "coordinates": [[500000, 4649776], [500100, 4649900]]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := Open(context.Background(), path)
	assert.True(t, errors.Is(err, ErrNotGeographic))
}

func TestShapeGeometry(t *testing.T) {
	square := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}}
	other := []shp.Point{{X: 20, Y: 20}, {X: 20, Y: 21}, {X: 21, Y: 21}, {X: 20, Y: 20}}

	concat := func(parts ...[]shp.Point) ([]shp.Point, []int32) {
		var points []shp.Point
		var offsets []int32
		for _, p := range parts {
			offsets = append(offsets, int32(len(points)))
			points = append(points, p...)
		}
		return points, offsets
	}

	tests := []struct {
		name  string
		shape shp.Shape
		want  orb.Geometry
	}{
		{"point", &shp.Point{X: 1, Y: 2}, orb.Point{1, 2}},
		{"point z", &shp.PointZ{X: 1, Y: 2, Z: 3}, orb.Point{1, 2}},
		{"single multipoint", &shp.MultiPoint{Points: []shp.Point{{X: 1, Y: 2}}}, orb.Point{1, 2}},
		{"multipoint", &shp.MultiPoint{Points: []shp.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}}, orb.MultiPoint{{1, 2}, {3, 4}}},
		{"polyline", &shp.PolyLine{Parts: []int32{0}, Points: []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}}, orb.LineString{{0, 0}, {1, 1}}},
		{
			"multi part polyline",
			&shp.PolyLine{Parts: []int32{0, 2}, Points: []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 5, Y: 5}, {X: 6, Y: 6}}},
			orb.MultiLineString{{{0, 0}, {1, 1}}, {{5, 5}, {6, 6}}},
		},
		{"null", &shp.Null{}, nil},
	}

	points, parts := concat(square, hole)
	tests = append(tests, struct {
		name  string
		shape shp.Shape
		want  orb.Geometry
	}{"polygon with hole", &shp.Polygon{Parts: parts, Points: points}, orb.Polygon{orb.Ring(toOrb(square)), orb.Ring(toOrb(hole))}})

	points, parts = concat(square, hole, other)
	tests = append(tests, struct {
		name  string
		shape shp.Shape
		want  orb.Geometry
	}{"multipolygon", &shp.Polygon{Parts: parts, Points: points}, orb.MultiPolygon{
		{orb.Ring(toOrb(square)), orb.Ring(toOrb(hole))},
		{orb.Ring(toOrb(other))},
	}})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shapeGeometry(tt.shape))
		})
	}
}

func TestSplitParts_ClampsOffsets(t *testing.T) {
	points := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}

	got := splitParts(points, []int32{0, 5})
	assert.Equal(t, [][]orb.Point{{{0, 0}, {1, 1}}, {}}, got)

	assert.Equal(t, [][]orb.Point{{{0, 0}, {1, 1}}}, splitParts(points, nil))
}

func TestOpen_Shapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.shp")

	w, err := shp.Create(path, shp.POLYLINE)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 20)}))

	w.Write(shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}}))
	require.NoError(t, w.WriteAttribute(0, 0, "a"))
	w.Write(shp.NewPolyLine([][]shp.Point{{{X: 10, Y: 10}, {X: 11, Y: 12}}, {{X: 20, Y: 20}, {X: 21, Y: 21}}}))
	require.NoError(t, w.WriteAttribute(1, 0, "b"))
	w.Close()

	s, err := Open(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, s.Geometries, 2)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, s.Geometries[0])
	assert.Equal(t, orb.MultiLineString{{{10, 10}, {11, 12}}, {{20, 20}, {21, 21}}}, s.Geometries[1])
	assert.Equal(t, 0, s.Stats.Dropped)
}
