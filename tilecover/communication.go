package tilecover

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type burnJob struct {
	Index    int
	Geometry orb.Geometry
}

// burnResult is one worker's share of a Burn call: the tiles it produced and
// the outcome of every geometry it handled.
type burnResult struct {
	Tiles map[maptile.Tile]struct{}
	Stats BurnStats
}

func newBurnResult() *burnResult {
	return &burnResult{
		Tiles: make(map[maptile.Tile]struct{}),
		Stats: BurnStats{Skipped: make(map[SkipReason]int)},
	}
}
