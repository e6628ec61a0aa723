package tilecover

import (
	"math"

	"github.com/paulmach/orb"
)

type walkMode int

const (
	// walkConnected visits a 4-connected path of cells from the cell holding
	// the first endpoint to the cell holding the second. Used for lines.
	walkConnected walkMode = iota

	// walkInterior visits only cells whose open interior the segment passes
	// through. Used for polygon edges, whose interior side is filled separately.
	walkInterior
)

// walkSegment calls visit for each grid cell crossed by the segment a-b, in
// order of travel. Coordinates are fractional tile coordinates; x may lie
// outside the grid when longitudes have been unwrapped.
func walkSegment(a, b orb.Point, mode walkMode, visit func(x, y int64)) {
	dx := b.X() - a.X()
	dy := b.Y() - a.Y()

	if mode == walkInterior && (onGridLine(a.X(), dx) || onGridLine(a.Y(), dy)) {
		return
	}

	x, ex := startCell(a.X(), dx, mode), endCell(b.X(), dx, mode)
	y, ey := startCell(a.Y(), dy, mode), endCell(b.Y(), dy, mode)

	stepX, tMaxX, tDeltaX := stepParams(a.X(), dx, x)
	stepY, tMaxY, tDeltaY := stepParams(a.Y(), dy, y)

	visit(x, y)

	for x != ex || y != ey {
		moveX, moveY := false, false

		switch {
		case x == ex:
			moveY = true
		case y == ey:
			moveX = true
		case tMaxX == tMaxY:
			// exact pass through a grid corner
			moveX = true
			moveY = mode == walkInterior
		case tMaxX < tMaxY:
			moveX = true
		default:
			moveY = true
		}

		if moveX {
			x += stepX
			tMaxX += tDeltaX
		}
		if moveY {
			y += stepY
			tMaxY += tDeltaY
		}

		visit(x, y)
	}
}

// onGridLine reports whether a segment with no extent along this axis sits
// exactly on a grid line, where it borders cells without entering them.
func onGridLine(v float64, d float64) bool {
	return d == 0 && v == math.Floor(v)
}

func floorInt(v float64) int64 {
	return int64(math.Floor(v))
}

func startCell(v float64, d float64, mode walkMode) int64 {
	c := math.Floor(v)
	if mode == walkInterior && d < 0 && v == c {
		c--
	}
	return int64(c)
}

func endCell(v float64, d float64, mode walkMode) int64 {
	c := math.Floor(v)
	if mode == walkInterior && d > 0 && v == c {
		c--
	}
	return int64(c)
}

// stepParams returns the step direction, the parametric distance to the first
// grid line crossed and the parametric distance between grid lines.
func stepParams(v float64, d float64, cell int64) (int64, float64, float64) {
	switch {
	case d > 0:
		return 1, (float64(cell+1) - v) / d, 1 / d
	case d < 0:
		return -1, (v - float64(cell)) / -d, -1 / d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}
