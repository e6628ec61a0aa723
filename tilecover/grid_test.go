package tilecover

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounds(t *testing.T) {
	tests := []struct {
		name string
		tile maptile.Tile
		want TileBounds
	}{
		{"z0 global", maptile.New(0, 0, 0), TileBounds{-180.0, -webMercatorLatLimit, 180.0, webMercatorLatLimit}},
		{"z1 north west", maptile.New(0, 0, 1), TileBounds{-180.0, 0, 0, webMercatorLatLimit}},
		{"z1 south east", maptile.New(1, 1, 1), TileBounds{0, -webMercatorLatLimit, 180.0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bounds(tt.tile)
			assert.InDelta(t, tt.want.West, got.West, 1e-9)
			assert.InDelta(t, tt.want.South, got.South, 1e-9)
			assert.InDelta(t, tt.want.East, got.East, 1e-9)
			assert.InDelta(t, tt.want.North, got.North, 1e-9)
		})
	}
}

func TestBounds_Adjacency(t *testing.T) {
	z := maptile.Zoom(5)
	b := Bounds(maptile.New(7, 11, z))
	east := Bounds(maptile.New(8, 11, z))
	south := Bounds(maptile.New(7, 12, z))

	assert.Equal(t, b.East, east.West)
	assert.Equal(t, b.North, east.North)
	assert.Equal(t, b.South, south.North)
	assert.Equal(t, b.West, south.West)
	assert.Less(t, south.South, b.South)
}

func TestFractionalTile(t *testing.T) {
	f := FractionalTile(orb.Point{0, 0}, 2)
	assert.Equal(t, orb.Point{2, 2}, f)

	f = FractionalTile(orb.Point{-180, 90}, 3)
	assert.Equal(t, orb.Point{0, 0}, f, "latitude is clamped to the mercator limit")

	f = FractionalTile(orb.Point{180, -90}, 3)
	assert.Equal(t, orb.Point{8, 8}, f)
}

func TestTileAt_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		p := orb.Point{r.Float64()*360 - 180, r.Float64()*178 - 89}
		z := maptile.Zoom(r.Intn(MaxZoom + 1))

		tile := TileAt(p, z)
		n := uint32(1) << uint(z)
		require.Less(t, tile.X, n)
		require.Less(t, tile.Y, n)

		clamped := orb.Point{p.Lon(), clampLat(p.Lat())}
		b := Bounds(tile)
		require.Truef(t, b.Contains(clamped, 1e-9), "%v at z%d not inside %v (%+v)", p, z, tile, b)
	}
}

func TestTileAt_Edges(t *testing.T) {
	assert.Equal(t, maptile.New(3, 0, 2), TileAt(orb.Point{180, 90}, 2))
	assert.Equal(t, maptile.New(0, 3, 2), TileAt(orb.Point{-180, -90}, 2))
	assert.Equal(t, maptile.New(2, 2, 2), TileAt(orb.Point{0, 0}, 2))
}

func TestTileAt_CornerMapsBack(t *testing.T) {
	tile := maptile.New(5, 9, 4)
	b := Bounds(tile)

	f := FractionalTile(orb.Point{b.West, b.North}, tile.Z)
	assert.Equal(t, float64(tile.X), f.X())
	assert.Equal(t, float64(tile.Y), f.Y())
	assert.Equal(t, tile, TileAt(orb.Point{b.West, b.North}, tile.Z))
}

func TestValidateZoom(t *testing.T) {
	for _, z := range []int{0, 1, 12, MaxZoom} {
		got, err := ValidateZoom(z)
		require.NoError(t, err)
		assert.Equal(t, maptile.Zoom(z), got)
	}

	for _, z := range []int{-1, MaxZoom + 1, math.MaxInt32} {
		_, err := ValidateZoom(z)
		assert.True(t, errors.Is(err, ErrInvalidZoom), "zoom %d", z)
	}
}

func TestTileBounds_Ring(t *testing.T) {
	ring := Bounds(maptile.New(0, 0, 1)).Ring()
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
	assert.Equal(t, orb.Point{-180, 0}, ring[0])
	assert.Equal(t, orb.Point{0, 0}, ring[1])
}
