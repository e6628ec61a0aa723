package tilecover

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// NewMbtilesOutputter stores one GeoJSON feature per tile in an MBTiles
// database. All tiles and metadata are written in a single transaction that
// Close commits. Tile rows use the XYZ scheme, recorded as scheme=xyz.
func NewMbtilesOutputter(dsn string, metadata *MbtilesMetadata) (*MbtilesOutputter, error) {
	_, statErr := os.Stat(dsn)
	created := os.IsNotExist(statErr)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if metadata == nil {
		metadata = NewMbtilesMetadata(map[string]string{})
	}
	metadata.Set("format", "geojson")
	metadata.Set("scheme", "xyz")

	return &MbtilesOutputter{db: db, dsn: dsn, created: created, metadata: metadata}, nil
}

type MbtilesOutputter struct {
	db       *sql.DB
	txn      *sql.Tx
	dsn      string
	created  bool
	metadata *MbtilesMetadata
	hasTiles bool
}

func (o *MbtilesOutputter) Close() error {
	var err error

	if o.txn == nil && o.hasTiles {
		err = o.begin()
	}

	if err == nil && o.txn != nil {
		err = o.writeMetadata()
		if err == nil {
			err = o.txn.Commit()
		} else {
			err = errors.Join(err, o.txn.Rollback())
		}
		o.txn = nil
	}

	if o.db != nil {
		if err2 := o.db.Close(); err2 != nil {
			err = errors.Join(err, err2)
		}
		o.db = nil
	}

	return err
}

// Abort rolls back everything saved and removes the database if this
// outputter created it.
func (o *MbtilesOutputter) Abort() error {
	var err error

	if o.txn != nil {
		err = o.txn.Rollback()
		o.txn = nil
	}

	if o.db != nil {
		err = errors.Join(err, o.db.Close())
		o.db = nil
	}

	if o.created {
		if rmErr := os.Remove(o.dsn); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.Join(err, rmErr)
		}
	}

	return err
}

func (o *MbtilesOutputter) CreateTiles() error {
	if o.hasTiles {
		return nil
	}
	if _, err := o.db.Exec(`
		BEGIN TRANSACTION;
		CREATE TABLE IF NOT EXISTS map (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_id TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS map_index ON map (zoom_level, tile_column, tile_row);
		CREATE TABLE IF NOT EXISTS images (
			tile_data BLOB NOT NULL,
			tile_id TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS images_id ON images (tile_id);
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT,
			value TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name);
		CREATE VIEW IF NOT EXISTS tiles AS
		SELECT
			map.zoom_level AS zoom_level,
			map.tile_column AS tile_column,
			map.tile_row AS tile_row,
			images.tile_data AS tile_data
		FROM map
		JOIN images ON images.tile_id = map.tile_id;
		COMMIT;
	`); err != nil {
		return err
	}
	o.hasTiles = true
	return nil
}

func (o *MbtilesOutputter) begin() error {
	if o.txn != nil {
		return nil
	}
	tx, err := o.db.Begin()
	if err != nil {
		return err
	}
	o.txn = tx
	return nil
}

func (o *MbtilesOutputter) Save(tile maptile.Tile, data []byte) error {
	if err := o.CreateTiles(); err != nil {
		return err
	}

	if err := o.begin(); err != nil {
		return err
	}

	hash := md5.Sum(data)
	tileID := hex.EncodeToString(hash[:])

	_, err := o.txn.Exec("INSERT OR REPLACE INTO images (tile_id, tile_data) VALUES (?, ?);", tileID, data)
	if err != nil {
		return err
	}

	_, err = o.txn.Exec("INSERT OR REPLACE INTO map (zoom_level, tile_column, tile_row, tile_id) VALUES (?, ?, ?, ?);", tile.Z, tile.X, tile.Y, tileID)
	return err
}

// AssignSpatialMetadata records bounds, center and zoom range. It is written
// to the database on Close.
func (o *MbtilesOutputter) AssignSpatialMetadata(bound orb.Bound, minZoom maptile.Zoom, maxZoom maptile.Zoom) error {
	if minZoom > maxZoom {
		return fmt.Errorf("min zoom %d is greater than max zoom %d", minZoom, maxZoom)
	}
	o.metadata.SetSpatial(bound, minZoom, maxZoom)
	return nil
}

func (o *MbtilesOutputter) writeMetadata() error {
	for _, k := range o.metadata.Keys() {
		v, _ := o.metadata.Get(k)
		if _, err := o.txn.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?);", k, v); err != nil {
			return fmt.Errorf("write metadata %s: %w", k, err)
		}
	}
	return nil
}
