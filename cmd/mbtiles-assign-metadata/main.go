package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/paulmach/orb/maptile"

	"github.com/tilezen/go-tilecover/internal/config"
	"github.com/tilezen/go-tilecover/tilecover"
)

// assignSpatialMetadata recomputes bounds, center and zoom range from the
// tiles stored in a coverage mbtiles file and writes them back to its
// metadata table. Existing metadata keys are preserved.
func assignSpatialMetadata(path string) error {
	reader, err := tilecover.NewMbtilesReader(path)
	if err != nil {
		return fmt.Errorf("couldn't read input mbtiles %s: %w", path, err)
	}

	var tiles []maptile.Tile
	err = reader.VisitAllTiles(func(t maptile.Tile, _ []byte) error {
		tiles = append(tiles, t)
		return nil
	})
	if err != nil {
		reader.Close()
		return fmt.Errorf("couldn't read tiles from %s: %w", path, err)
	}

	metadata, err := reader.Metadata()
	reader.Close()
	if err != nil {
		return fmt.Errorf("unable to read metadata for %s: %w", path, err)
	}

	bound, minZoom, maxZoom, ok := tilecover.SpatialExtent(tiles)
	if !ok {
		return fmt.Errorf("%s has no tiles", path)
	}

	writer, err := tilecover.NewMbtilesOutputter(path, metadata)
	if err != nil {
		return err
	}

	if err := writer.CreateTiles(); err != nil {
		return errors.Join(err, writer.Close())
	}

	if err := writer.AssignSpatialMetadata(bound, minZoom, maxZoom); err != nil {
		return errors.Join(fmt.Errorf("failed to assign spatial metadata to %s: %w", path, err), writer.Close())
	}

	return writer.Close()
}

func verify(path string, logger *slog.Logger) error {
	reader, err := tilecover.NewMbtilesReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	metadata, err := reader.Metadata()
	if err != nil {
		return fmt.Errorf("unable to read metadata for %s: %w", path, err)
	}

	bounds, err := metadata.Bounds()
	if err != nil {
		return fmt.Errorf("failed to derive bounds metadata after update: %w", err)
	}

	center, zoom, err := metadata.Center()
	if err != nil {
		return fmt.Errorf("failed to derive center metadata after update: %w", err)
	}

	minZoom, err := metadata.MinZoom()
	if err != nil {
		return fmt.Errorf("failed to derive min zoom metadata after update: %w", err)
	}

	maxZoom, err := metadata.MaxZoom()
	if err != nil {
		return fmt.Errorf("failed to derive max zoom metadata after update: %w", err)
	}

	logger.Info("Verified", "path", path, "bounds", bounds, "center", center, "center_zoom", zoom, "minzoom", minZoom, "maxzoom", maxZoom)
	return nil
}

func main() {
	var verifyAfter bool

	flag.BoolVar(&verifyAfter, "verify", false, "Verify that spatial metadata was written to each database")
	logLevel := flag.String("log-level", config.Getenv(config.Env("log-level"), "info"), "Log level: debug, info, warn or error.")
	flag.Parse()

	logger, err := config.NewLogger(os.Stderr, *logLevel)
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	for _, path := range flag.Args() {
		if err := assignSpatialMetadata(path); err != nil {
			log.Fatalf("%+v", err)
		}

		if verifyAfter {
			if err := verify(path, logger); err != nil {
				log.Fatalf("%+v", err)
			}
		}
	}
}
