package tilecover

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/protomaps/go-pmtiles/pmtiles"
)

// PmtilesOutputter writes one gzip-compressed GeoJSON feature per tile into a
// PMTiles v3 archive. Tile data is spooled to a temp file until Close.
type PmtilesOutputter struct {
	dsn            string
	tileset        *roaring64.Bitmap
	tileData       *os.File
	entries        []pmtiles.EntryV3
	compressBuffer *bytes.Buffer
	compressor     *gzip.Writer
	header         pmtiles.HeaderV3
	metadata       map[string]interface{}
	logger         *slog.Logger
}

func NewPmtilesOutputter(dsn string, name string, logger *slog.Logger) (*PmtilesOutputter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tmpFile, err := os.CreateTemp("", "pmtiles-tiledata")
	if err != nil {
		return nil, fmt.Errorf("error creating temp file: %w", err)
	}

	buf := &bytes.Buffer{}
	return &PmtilesOutputter{
		dsn:            dsn,
		tileset:        roaring64.New(),
		tileData:       tmpFile,
		entries:        make([]pmtiles.EntryV3, 0),
		compressBuffer: buf,
		compressor:     gzip.NewWriter(buf),
		header: pmtiles.HeaderV3{
			SpecVersion:         3,
			Clustered:           true,
			InternalCompression: pmtiles.Gzip,
			TileCompression:     pmtiles.Gzip,
			TileType:            pmtiles.UnknownTileType,
		},
		metadata: map[string]interface{}{
			"name":   name,
			"format": "geojson",
		},
		logger: logger,
	}, nil
}

func (p *PmtilesOutputter) CreateTiles() error {
	return nil
}

func (p *PmtilesOutputter) Save(tile maptile.Tile, data []byte) error {
	id := pmtiles.ZxyToID(uint8(tile.Z), tile.X, tile.Y)
	if p.tileset.Contains(id) {
		return fmt.Errorf("tile %d/%d/%d saved twice", tile.Z, tile.X, tile.Y)
	}
	p.tileset.Add(id)

	offset, err := p.tileData.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	p.compressBuffer.Reset()
	p.compressor.Reset(p.compressBuffer)
	if _, err := p.compressor.Write(data); err != nil {
		return err
	}
	if err := p.compressor.Close(); err != nil {
		return err
	}

	bytesWritten, err := p.tileData.Write(p.compressBuffer.Bytes())
	if err != nil {
		return err
	}

	p.entries = append(p.entries, pmtiles.EntryV3{
		TileID:    id,
		Offset:    uint64(offset),
		Length:    uint32(bytesWritten),
		RunLength: 1,
	})

	return nil
}

func e7(v float64) int32 {
	return int32(v * 10000000)
}

func (p *PmtilesOutputter) AssignSpatialMetadata(bound orb.Bound, minZoom maptile.Zoom, maxZoom maptile.Zoom) error {
	center := bound.Center()

	p.header.MinZoom = uint8(minZoom)
	p.header.MaxZoom = uint8(maxZoom)
	p.header.MinLonE7 = e7(bound.Left())
	p.header.MinLatE7 = e7(bound.Bottom())
	p.header.MaxLonE7 = e7(bound.Right())
	p.header.MaxLatE7 = e7(bound.Top())
	p.header.CenterZoom = uint8(minZoom)
	p.header.CenterLonE7 = e7(center.Lon())
	p.header.CenterLatE7 = e7(center.Lat())
	return nil
}

// Abort discards the spooled tile data without creating the archive.
func (p *PmtilesOutputter) Abort() error {
	return p.removeTemp()
}

func (p *PmtilesOutputter) removeTemp() error {
	if p.tileData == nil {
		return nil
	}
	name := p.tileData.Name()
	err := p.tileData.Close()
	p.tileData = nil
	return errors.Join(err, os.Remove(name))
}

func (p *PmtilesOutputter) Close() (err error) {
	defer func() {
		err = errors.Join(err, p.removeTemp())
	}()

	sort.Slice(p.entries, func(i, j int) bool {
		return p.entries[i].TileID < p.entries[j].TileID
	})

	p.header.AddressedTilesCount = p.tileset.GetCardinality()
	p.header.TileEntriesCount = uint64(len(p.entries))
	p.header.TileContentsCount = uint64(len(p.entries))

	rootBytes, leavesBytes, numLeaves := optimizeDirectories(p.entries, 16384-pmtiles.HeaderV3LenBytes, pmtiles.Gzip)

	p.logger.Info("Writing pmtiles",
		"tiles", p.header.AddressedTilesCount,
		"root_dir_bytes", len(rootBytes),
		"leaf_dir_bytes", len(leavesBytes),
		"leaf_dirs", numLeaves,
	)

	metadataBytes, err := pmtiles.SerializeMetadata(p.metadata, pmtiles.Gzip)
	if err != nil {
		return fmt.Errorf("error serializing pmtiles metadata: %w", err)
	}

	dataLength, err := p.tileData.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	p.header.RootOffset = pmtiles.HeaderV3LenBytes
	p.header.RootLength = uint64(len(rootBytes))
	p.header.MetadataOffset = p.header.RootOffset + p.header.RootLength
	p.header.MetadataLength = uint64(len(metadataBytes))
	p.header.LeafDirectoryOffset = p.header.MetadataOffset + p.header.MetadataLength
	p.header.LeafDirectoryLength = uint64(len(leavesBytes))
	p.header.TileDataOffset = p.header.LeafDirectoryOffset + p.header.LeafDirectoryLength
	p.header.TileDataLength = uint64(dataLength)

	outFile, err := os.Create(p.dsn)
	if err != nil {
		return fmt.Errorf("error creating pmtiles output file: %w", err)
	}

	if err := p.writeArchive(outFile, rootBytes, metadataBytes, leavesBytes); err != nil {
		outFile.Close()
		os.Remove(p.dsn)
		return err
	}

	return outFile.Close()
}

func (p *PmtilesOutputter) writeArchive(out io.Writer, rootBytes, metadataBytes, leavesBytes []byte) error {
	if _, err := out.Write(pmtiles.SerializeHeader(p.header)); err != nil {
		return fmt.Errorf("error writing pmtiles header: %w", err)
	}

	if _, err := out.Write(rootBytes); err != nil {
		return fmt.Errorf("error writing pmtiles root directory: %w", err)
	}

	if _, err := out.Write(metadataBytes); err != nil {
		return fmt.Errorf("error writing pmtiles metadata: %w", err)
	}

	if _, err := out.Write(leavesBytes); err != nil {
		return fmt.Errorf("error writing pmtiles leaf directory: %w", err)
	}

	if _, err := p.tileData.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to start of tile data: %w", err)
	}

	if _, err := io.Copy(out, p.tileData); err != nil {
		return fmt.Errorf("error copying tile data to outfile: %w", err)
	}

	return nil
}

func optimizeDirectories(entries []pmtiles.EntryV3, targetRootLen int, compression pmtiles.Compression) ([]byte, []byte, int) {
	if len(entries) < 16384 {
		testRootBytes := pmtiles.SerializeEntries(entries, compression)
		if len(testRootBytes) <= targetRootLen {
			return testRootBytes, make([]byte, 0), 0
		}
	}

	// Root directory holds leaf pointers only. Grow the leaf size until the
	// root fits.
	leafSize := float32(len(entries)) / 3500
	if leafSize < 4096 {
		leafSize = 4096
	}

	for {
		rootBytes, leavesBytes, numLeaves := buildRootsLeaves(entries, int(leafSize), compression)
		if len(rootBytes) <= targetRootLen {
			return rootBytes, leavesBytes, numLeaves
		}
		leafSize *= 1.2
	}
}

func buildRootsLeaves(entries []pmtiles.EntryV3, leafSize int, compression pmtiles.Compression) ([]byte, []byte, int) {
	rootEntries := make([]pmtiles.EntryV3, 0)
	leavesBytes := make([]byte, 0)
	numLeaves := 0

	for i := 0; i < len(entries); i += leafSize {
		numLeaves++
		end := min(i+leafSize, len(entries))
		serialized := pmtiles.SerializeEntries(entries[i:end], compression)

		rootEntries = append(rootEntries, pmtiles.EntryV3{
			TileID:    entries[i].TileID,
			Offset:    uint64(len(leavesBytes)),
			Length:    uint32(len(serialized)),
			RunLength: 0,
		})
		leavesBytes = append(leavesBytes, serialized...)
	}

	rootBytes := pmtiles.SerializeEntries(rootEntries, compression)
	return rootBytes, leavesBytes, numLeaves
}
