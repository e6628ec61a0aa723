package tilecover

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// ParseTile parses a "z/x/y" tile path.
func ParseTile(s string) (maptile.Tile, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return maptile.Tile{}, fmt.Errorf("%w: %q is not z/x/y", ErrInvalidTileList, s)
	}

	var vals [3]uint64
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return maptile.Tile{}, fmt.Errorf("%w: %q: %w", ErrInvalidTileList, s, err)
		}
		vals[i] = v
	}

	z, err := ValidateZoom(int(vals[0]))
	if err != nil {
		return maptile.Tile{}, err
	}

	n := uint64(1) << uint(z)
	if vals[1] >= n || vals[2] >= n {
		return maptile.Tile{}, fmt.Errorf("%w: %q is outside the z%d grid", ErrInvalidTileList, s, z)
	}

	return maptile.New(uint32(vals[1]), uint32(vals[2]), z), nil
}

// ReadTileList parses a tile list as written by WriteTileList. Blank lines
// are ignored.
func ReadTileList(r io.Reader) (*TileSet, error) {
	set := NewTileSet()

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		t, err := ParseTile(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		set.tiles[t] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return set, nil
}
