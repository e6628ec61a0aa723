package tilecover

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver
	"github.com/paulmach/orb/maptile"
)

type TileData struct {
	Tile maptile.Tile
	Data *[]byte
}

type MbtilesReader interface {
	Close() error
	GetTile(tile maptile.Tile) (*TileData, error)
	VisitAllTiles(visitor func(maptile.Tile, []byte) error) error
	Metadata() (*MbtilesMetadata, error)
}

func NewMbtilesReader(dsn string) (MbtilesReader, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	return NewMbtilesReaderWithDatabase(db)
}

func NewMbtilesReaderWithDatabase(db *sql.DB) (MbtilesReader, error) {
	return &mbtilesReader{db: db}, nil
}

type mbtilesReader struct {
	db *sql.DB
}

// Close gracefully tears down the mbtiles connection.
func (o *mbtilesReader) Close() error {
	if o.db == nil {
		return nil
	}
	return o.db.Close()
}

// GetTile returns data for the given tile. Data is nil when the tile is not
// stored.
func (o *mbtilesReader) GetTile(tile maptile.Tile) (*TileData, error) {
	var data []byte

	result := o.db.QueryRow("SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=? LIMIT 1", tile.Z, tile.X, tile.Y)
	err := result.Scan(&data)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &TileData{Tile: tile, Data: nil}, nil
		}
		return nil, err
	}

	return &TileData{Tile: tile, Data: &data}, nil
}

// VisitAllTiles runs the given function on all tiles in this mbtiles archive,
// stopping at the first error it returns.
func (o *mbtilesReader) VisitAllTiles(visitor func(maptile.Tile, []byte) error) error {
	rows, err := o.db.Query("SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles")
	if err != nil {
		return err
	}
	defer rows.Close()

	var x, y uint32
	var z maptile.Zoom
	for rows.Next() {
		data := []byte{}
		if err := rows.Scan(&z, &x, &y, &data); err != nil {
			return fmt.Errorf("couldn't scan row: %w", err)
		}

		if err := visitor(maptile.New(x, y, z), data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Metadata reads the metadata table.
func (o *mbtilesReader) Metadata() (*MbtilesMetadata, error) {
	rows, err := o.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := map[string]string{}
	for rows.Next() {
		var name, value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("couldn't scan metadata row: %w", err)
		}
		if name.Valid {
			metadata[name.String] = value.String
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewMbtilesMetadata(metadata), nil
}
