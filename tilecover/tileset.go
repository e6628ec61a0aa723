package tilecover

import (
	"sort"

	"github.com/paulmach/orb/maptile"
)

// TileSet is a deduplicated collection of tiles. A TileSet returned by Burn or
// ReadTileList is never modified afterwards; Union returns a new set.
type TileSet struct {
	tiles map[maptile.Tile]struct{}
}

// NewTileSet builds a set from the given tiles.
func NewTileSet(tiles ...maptile.Tile) *TileSet {
	s := &TileSet{tiles: make(map[maptile.Tile]struct{}, len(tiles))}
	for _, t := range tiles {
		s.tiles[t] = struct{}{}
	}
	return s
}

func (s *TileSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tiles)
}

func (s *TileSet) Contains(t maptile.Tile) bool {
	if s == nil {
		return false
	}
	_, ok := s.tiles[t]
	return ok
}

// Tiles returns the members sorted ascending by (z, x, y).
func (s *TileSet) Tiles() []maptile.Tile {
	out := make([]maptile.Tile, 0, s.Len())
	if s != nil {
		for t := range s.tiles {
			out = append(out, t)
		}
	}
	SortTiles(out)
	return out
}

// Union returns a new set holding the members of s and every other set.
func (s *TileSet) Union(others ...*TileSet) *TileSet {
	size := s.Len()
	for _, o := range others {
		size += o.Len()
	}

	u := &TileSet{tiles: make(map[maptile.Tile]struct{}, size)}
	u.merge(s)
	for _, o := range others {
		u.merge(o)
	}
	return u
}

// IsSuperset reports whether every member of o is also in s.
func (s *TileSet) IsSuperset(o *TileSet) bool {
	if o == nil {
		return true
	}
	for t := range o.tiles {
		if !s.Contains(t) {
			return false
		}
	}
	return true
}

func (s *TileSet) Equal(o *TileSet) bool {
	return s.Len() == o.Len() && s.IsSuperset(o)
}

func (s *TileSet) merge(o *TileSet) {
	if o == nil {
		return
	}
	for t := range o.tiles {
		s.tiles[t] = struct{}{}
	}
}

// SortTiles orders tiles ascending by zoom, then column, then row.
func SortTiles(tiles []maptile.Tile) {
	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
}
