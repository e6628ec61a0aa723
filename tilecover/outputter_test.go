package tilecover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/protomaps/go-pmtiles/pmtiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOutputter struct {
	saved   []maptile.Tile
	failAt  int
	closed  bool
	aborted bool
}

func (o *recordingOutputter) CreateTiles() error { return nil }

func (o *recordingOutputter) Save(tile maptile.Tile, data []byte) error {
	if o.failAt > 0 && len(o.saved)+1 == o.failAt {
		return errors.New("disk full")
	}
	o.saved = append(o.saved, tile)
	return nil
}

func (o *recordingOutputter) Close() error {
	o.closed = true
	return nil
}

func (o *recordingOutputter) Abort() error {
	o.aborted = true
	return nil
}

func TestSaveCoverage_Order(t *testing.T) {
	set := NewTileSet(maptile.New(3, 1, 2), maptile.New(1, 0, 2), maptile.New(0, 0, 0))
	o := &recordingOutputter{}

	require.NoError(t, SaveCoverage(context.Background(), o, set, nil))

	assert.Equal(t, set.Tiles(), o.saved)
	assert.True(t, o.closed)
	assert.False(t, o.aborted)
}

func TestSaveCoverage_AbortsOnFailure(t *testing.T) {
	set := NewTileSet(maptile.New(0, 0, 1), maptile.New(1, 0, 1), maptile.New(1, 1, 1))
	o := &recordingOutputter{failAt: 2}

	err := SaveCoverage(context.Background(), o, set, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, o.aborted)
	assert.False(t, o.closed)
}

func TestSaveCoverage_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := &recordingOutputter{}
	err := SaveCoverage(ctx, o, NewTileSet(maptile.New(0, 0, 0)), nil)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, o.aborted)
	assert.Empty(t, o.saved)
}

func TestSpatialExtent(t *testing.T) {
	_, _, _, ok := SpatialExtent(nil)
	assert.False(t, ok)

	bound, minZoom, maxZoom, ok := SpatialExtent([]maptile.Tile{maptile.New(0, 0, 1), maptile.New(3, 3, 2)})
	require.True(t, ok)
	assert.Equal(t, maptile.Zoom(1), minZoom)
	assert.Equal(t, maptile.Zoom(2), maxZoom)
	assert.InDelta(t, -180, bound.Left(), 1e-9)
	assert.InDelta(t, 180, bound.Right(), 1e-9)
	assert.InDelta(t, webMercatorLatLimit, bound.Top(), 1e-9)
	assert.InDelta(t, -webMercatorLatLimit, bound.Bottom(), 1e-9)
}

func TestMbtilesOutputter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.mbtiles")
	set := NewTileSet(maptile.New(2, 1, 2), maptile.New(3, 1, 2), maptile.New(3, 2, 2))

	o, err := NewMbtilesOutputter(path, NewMbtilesMetadata(map[string]string{"name": "roads"}))
	require.NoError(t, err)
	require.NoError(t, SaveCoverage(context.Background(), o, set, nil))

	reader, err := NewMbtilesReader(path)
	require.NoError(t, err)
	defer reader.Close()

	td, err := reader.GetTile(maptile.New(3, 2, 2))
	require.NoError(t, err)
	require.NotNil(t, td.Data)

	f, err := geojson.UnmarshalFeature(*td.Data)
	require.NoError(t, err)
	assert.Equal(t, 3.0, f.Properties.MustFloat64("x"))
	assert.Equal(t, 2.0, f.Properties.MustFloat64("y"))
	_, isPolygon := f.Geometry.(orb.Polygon)
	assert.True(t, isPolygon)

	missing, err := reader.GetTile(maptile.New(0, 0, 2))
	require.NoError(t, err)
	assert.Nil(t, missing.Data)

	visited := NewTileSet()
	err = reader.VisitAllTiles(func(tile maptile.Tile, data []byte) error {
		visited = visited.Union(NewTileSet(tile))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, set.Equal(visited))

	metadata, err := reader.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "roads", metadata.Name())
	assert.Equal(t, "geojson", metadata.Format())
	scheme, _ := metadata.Get("scheme")
	assert.Equal(t, "xyz", scheme)

	minZoom, err := metadata.MinZoom()
	require.NoError(t, err)
	assert.Equal(t, maptile.Zoom(2), minZoom)

	bounds, err := metadata.Bounds()
	require.NoError(t, err)
	assert.InDelta(t, 0, bounds.Left(), 1e-9)
	assert.InDelta(t, 180, bounds.Right(), 1e-9)

	center, centerZoom, err := metadata.Center()
	require.NoError(t, err)
	assert.InDelta(t, 90, center.Lon(), 1e-9)
	assert.Equal(t, maptile.Zoom(2), centerZoom)
}

func TestMbtilesOutputter_AbortRemovesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.mbtiles")

	o, err := NewMbtilesOutputter(path, nil)
	require.NoError(t, err)
	require.NoError(t, o.CreateTiles())
	require.NoError(t, o.Save(maptile.New(0, 0, 0), []byte(`{}`)))
	require.NoError(t, o.Abort())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMbtilesOutputter_AssignSpatialMetadataRejectsZoomRange(t *testing.T) {
	o, err := NewMbtilesOutputter(filepath.Join(t.TempDir(), "x.mbtiles"), nil)
	require.NoError(t, err)
	defer o.Abort()

	assert.Error(t, o.AssignSpatialMetadata(orb.Bound{}, 5, 4))
}

func TestMbtilesMetadata(t *testing.T) {
	m := NewMbtilesMetadata(map[string]string{
		"bounds":  "-10,-5,10,5",
		"center":  "0,0,3",
		"minzoom": "3",
		"maxzoom": "x",
		"zeta":    "last",
		"alpha":   "first",
	})

	assert.Equal(t, []string{"alpha", "bounds", "center", "maxzoom", "minzoom", "zeta"}, m.Keys())

	b, err := m.Bounds()
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{-10, -5}, Max: orb.Point{10, 5}}, b)

	_, err = m.MaxZoom()
	assert.Error(t, err)

	m.Set("bounds", "1,2,3")
	_, err = m.Bounds()
	assert.Error(t, err)

	_, _, err = NewMbtilesMetadata(nil).Center()
	assert.Error(t, err)
}

func TestPmtilesOutputter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.pmtiles")
	set := NewTileSet(maptile.New(1, 1, 1), maptile.New(0, 0, 1), maptile.New(5, 9, 4))

	o, err := NewPmtilesOutputter(path, "roads", nil)
	require.NoError(t, err)
	tmp := o.tileData.Name()

	require.NoError(t, SaveCoverage(context.Background(), o, set, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), pmtiles.HeaderV3LenBytes)

	header, err := pmtiles.DeserializeHeader(data[:pmtiles.HeaderV3LenBytes])
	require.NoError(t, err)
	assert.Equal(t, uint64(3), header.AddressedTilesCount)
	assert.Equal(t, uint8(1), header.MinZoom)
	assert.Equal(t, uint8(4), header.MaxZoom)
	assert.Equal(t, pmtiles.Compression(pmtiles.Gzip), header.TileCompression)
	assert.True(t, header.Clustered)
	assert.Equal(t, uint64(len(data)), header.TileDataOffset+header.TileDataLength)

	_, err = os.Stat(tmp)
	assert.True(t, os.IsNotExist(err), "spooled tile data is removed")
}

func TestPmtilesOutputter_Abort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.pmtiles")

	o, err := NewPmtilesOutputter(path, "roads", nil)
	require.NoError(t, err)
	require.NoError(t, o.Save(maptile.New(0, 0, 0), []byte(`{}`)))
	assert.Error(t, o.Save(maptile.New(0, 0, 0), []byte(`{}`)))
	require.NoError(t, o.Abort())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
