package tilecover

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

const (
	TileListContentType = "text/plain; charset=utf-8"
	GeoJSONContentType  = "application/geo+json"
)

// WriteTileList writes one z/x/y line per tile in the order given.
func WriteTileList(w io.Writer, tiles []maptile.Tile) error {
	bw := bufio.NewWriter(w)
	for _, t := range tiles {
		if _, err := fmt.Fprintf(bw, "%d/%d/%d\n", t.Z, t.X, t.Y); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// TileFeature returns the tile outline as a polygon feature carrying the tile
// coordinates as integer properties.
func TileFeature(t maptile.Tile) (*geojson.Feature, error) {
	b := Bounds(t)
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if !finite(v) {
			return nil, fmt.Errorf("%w: tile %d/%d/%d has non-finite bounds", ErrSerialization, t.Z, t.X, t.Y)
		}
	}

	f := geojson.NewFeature(orb.Polygon{b.Ring()})
	f.Properties["z"] = int(t.Z)
	f.Properties["x"] = int(t.X)
	f.Properties["y"] = int(t.Y)
	return f, nil
}

// NewFeatureCollection builds one tile outline feature per tile, in the order given.
func NewFeatureCollection(tiles []maptile.Tile) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, t := range tiles {
		f, err := TileFeature(t)
		if err != nil {
			return nil, err
		}
		fc.Append(f)
	}
	return fc, nil
}

// Serialize encodes the set as a tile list and a GeoJSON FeatureCollection of
// tile outlines, both sorted by (z, x, y). Either both artifacts are returned
// or neither is.
func Serialize(set *TileSet) (tileList []byte, featureCollection []byte, err error) {
	tiles := set.Tiles()

	var list bytes.Buffer
	if err := WriteTileList(&list, tiles); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	fc, err := NewFeatureCollection(tiles)
	if err != nil {
		return nil, nil, err
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	return list.Bytes(), data, nil
}
