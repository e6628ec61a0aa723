package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/maptile"

	"github.com/tilezen/go-tilecover/internal/config"
	"github.com/tilezen/go-tilecover/tilecover"
)

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// readCoverage loads the tiles of a tile list or a coverage mbtiles file.
func readCoverage(path string) (*tilecover.TileSet, error) {
	if strings.EqualFold(filepath.Ext(path), ".mbtiles") {
		return readMbtilesCoverage(path)
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	set, err := tilecover.ReadTileList(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

func readMbtilesCoverage(path string) (*tilecover.TileSet, error) {
	if !pathExists(path) {
		return nil, fmt.Errorf("%s does not exist", path)
	}

	reader, err := tilecover.NewMbtilesReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var tiles []maptile.Tile
	err = reader.VisitAllTiles(func(t maptile.Tile, _ []byte) error {
		tiles = append(tiles, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't read tiles from %s: %w", path, err)
	}
	return tilecover.NewTileSet(tiles...), nil
}

func merge(paths []string) (*tilecover.TileSet, error) {
	sets := make([]*tilecover.TileSet, 0, len(paths))
	for _, p := range paths {
		set, err := readCoverage(p)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return tilecover.NewTileSet().Union(sets...), nil
}

func main() {
	outputDir := flag.String("output", config.Getenv(config.Env("output"), ""), "The directory to write the merged tile list and GeoJSON to")
	listName := flag.String("list-name", config.Getenv(config.Env("list-name"), "tiles.list"), "Name of the merged tile list")
	geojsonName := flag.String("geojson-name", config.Getenv(config.Env("geojson-name"), "tiles.geojson"), "Name of the merged GeoJSON")
	mbtilesOut := flag.String("mbtiles", config.Getenv(config.Env("mbtiles"), ""), "Also write the merged coverage to this mbtiles path")
	logLevel := flag.String("log-level", config.Getenv(config.Env("log-level"), "info"), "Log level: debug, info, warn or error.")
	flag.Parse()
	inputFilenames := flag.Args()

	logger, err := config.NewLogger(os.Stderr, *logLevel)
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	if *outputDir == "" {
		log.Fatalf("Must specify --output path")
	}

	if len(inputFilenames) == 0 {
		log.Fatalf("Must specify at least one input path")
	}

	// If the mbtiles output exists already we shouldn't overwrite it
	if *mbtilesOut != "" && pathExists(*mbtilesOut) {
		log.Fatalf("Output path %s already exists and cannot be overwritten", *mbtilesOut)
	}

	logger.Info("Merging coverage", "inputs", strings.Join(inputFilenames, ", "), "output", *outputDir)

	set, err := merge(inputFilenames)
	if err != nil {
		log.Fatalf("Couldn't read input: %+v", err)
	}

	ctx := context.Background()

	publisher, err := tilecover.NewDiskPublisher(*outputDir)
	if err != nil {
		log.Fatalf("Couldn't create output: %+v", err)
	}

	artifacts, err := tilecover.CoverageArtifacts(set, tilecover.ArtifactNames{TileList: *listName, GeoJSON: *geojsonName})
	if err != nil {
		log.Fatalf("Couldn't serialize merged coverage: %+v", err)
	}

	if err := publisher.Publish(ctx, artifacts); err != nil {
		log.Fatalf("Couldn't write merged coverage: %+v", err)
	}

	if *mbtilesOut != "" {
		out, err := tilecover.NewMbtilesOutputter(*mbtilesOut, tilecover.NewMbtilesMetadata(map[string]string{"name": "merged"}))
		if err != nil {
			log.Fatalf("Couldn't create output mbtiles: %+v", err)
		}
		if err := tilecover.SaveCoverage(ctx, out, set, logger); err != nil {
			log.Fatalf("Couldn't write output mbtiles: %+v", err)
		}
	}

	logger.Info("Merged coverage", "inputs", len(inputFilenames), "tiles", set.Len())
}
