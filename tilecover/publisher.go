package tilecover

import (
	"context"
	"fmt"
	"path"
	"time"
)

// Artifact is a named file produced from a coverage.
type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// ArtifactPublisher delivers a batch of artifacts to a destination.
// Implementations leave no partial artifact behind when Publish fails.
type ArtifactPublisher interface {
	Publish(ctx context.Context, artifacts []Artifact) error
}

// ArtifactNames are the names the tile list and feature collection are
// published under.
type ArtifactNames struct {
	TileList string
	GeoJSON  string
}

// stagingPrefix is the key prefix a remote publish uploads under before the
// artifacts are copied onto their final keys.
func stagingPrefix(prefix string) string {
	return path.Join(prefix, fmt.Sprintf(".staging-%d", time.Now().UnixNano()))
}

// LocalArtifactNames are the names used when writing to a local directory.
func LocalArtifactNames(z int) ArtifactNames {
	dir := fmt.Sprintf("tiles_z%d", z)
	return ArtifactNames{
		TileList: path.Join(dir, fmt.Sprintf("tile_list_z%d.txt", z)),
		GeoJSON:  path.Join(dir, fmt.Sprintf("tiles_z%d.geojson", z)),
	}
}

// RemoteArtifactNames are the names used under an object store prefix.
func RemoteArtifactNames() ArtifactNames {
	return ArtifactNames{TileList: "tiles.list", GeoJSON: "tiles.geojson"}
}

// CoverageArtifacts serializes set into the tile list and feature collection
// artifacts.
func CoverageArtifacts(set *TileSet, names ArtifactNames) ([]Artifact, error) {
	list, fc, err := Serialize(set)
	if err != nil {
		return nil, err
	}
	return NewArtifacts(names, list, fc), nil
}

// NewArtifacts wraps an already serialized tile list and feature collection.
func NewArtifacts(names ArtifactNames, tileList, featureCollection []byte) []Artifact {
	return []Artifact{
		{Name: names.TileList, ContentType: TileListContentType, Body: tileList},
		{Name: names.GeoJSON, ContentType: GeoJSONContentType, Body: featureCollection},
	}
}
