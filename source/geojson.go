package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb/geojson"
)

func openGeoJSON(ctx context.Context, path string) (*Source, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	return ReadGeoJSON(ctx, fh)
}

// ReadGeoJSON reads a FeatureCollection, a single Feature or a bare geometry.
func ReadGeoJSON(ctx context.Context, r io.Reader) (*Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid geojson: %w", err)
	}

	s := &Source{}

	switch doc.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		for i, f := range fc.Features {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			s.add(f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		s.add(f.Geometry)
	case "":
		return nil, fmt.Errorf("invalid geojson: missing type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		s.add(g.Geometry())
	}

	return s, nil
}
