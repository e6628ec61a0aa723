package tilecover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileOutputter stores one payload per tile. Close commits what was saved,
// Abort discards it.
type TileOutputter interface {
	CreateTiles() error
	Save(tile maptile.Tile, data []byte) error
	Close() error
	Abort() error
}

// SpatialMetadataAssigner is implemented by outputters that record the extent
// of their tiles.
type SpatialMetadataAssigner interface {
	AssignSpatialMetadata(bound orb.Bound, minZoom maptile.Zoom, maxZoom maptile.Zoom) error
}

const saveLogInterval = 10000

// SaveCoverage writes the outline feature of every tile in the set to o and
// closes it. On any failure o is aborted instead.
func SaveCoverage(ctx context.Context, o TileOutputter, set *TileSet, logger *slog.Logger) (err error) {
	if logger == nil {
		logger = slog.Default()
	}

	defer func() {
		if err == nil {
			return
		}
		if abortErr := o.Abort(); abortErr != nil {
			err = errors.Join(err, fmt.Errorf("abort: %w", abortErr))
		}
	}()

	if err := o.CreateTiles(); err != nil {
		return err
	}

	tiles := set.Tiles()
	if bound, minZoom, maxZoom, ok := SpatialExtent(tiles); ok {
		if a, isAssigner := o.(SpatialMetadataAssigner); isAssigner {
			if err := a.AssignSpatialMetadata(bound, minZoom, maxZoom); err != nil {
				return err
			}
		}
	}

	for i, t := range tiles {
		if i%saveLogInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if i > 0 {
				logger.Debug("Saved tiles", "count", i, "total", len(tiles))
			}
		}

		f, err := TileFeature(t)
		if err != nil {
			return err
		}

		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		}

		if err := o.Save(t, data); err != nil {
			return fmt.Errorf("save tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
		}
	}

	if err := o.Close(); err != nil {
		return err
	}

	logger.Info("Saved coverage tiles", "count", len(tiles))
	return nil
}

// SpatialExtent returns the union of the tile bounds and the zoom range of
// tiles. ok is false for an empty slice.
func SpatialExtent(tiles []maptile.Tile) (bound orb.Bound, minZoom, maxZoom maptile.Zoom, ok bool) {
	for i, t := range tiles {
		tb := Bounds(t).Bound()
		if i == 0 {
			bound, minZoom, maxZoom = tb, t.Z, t.Z
			continue
		}
		bound = bound.Union(tb)
		minZoom = min(minZoom, t.Z)
		maxZoom = max(maxZoom, t.Z)
	}
	return bound, minZoom, maxZoom, len(tiles) > 0
}
