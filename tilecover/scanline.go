package tilecover

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// fillRings marks every cell whose centre row line passes through the area
// enclosed by rings, using the even-odd rule across all rings together.
// Rings are in fractional tile coordinates and are treated as closed.
func fillRings(rings [][]orb.Point, n int64, mark func(x, y int64)) {
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, ring := range rings {
		for _, p := range ring {
			minY = math.Min(minY, p.Y())
			maxY = math.Max(maxY, p.Y())
		}
	}
	if minY >= maxY {
		return
	}

	// rows whose centre line y+0.5 falls inside [minY, maxY)
	firstRow := max(int64(math.Ceil(minY-0.5)), 0)
	lastRow := min(int64(math.Ceil(maxY-0.5))-1, n-1)
	if firstRow > lastRow {
		return
	}

	crossings := make([][]float64, lastRow-firstRow+1)

	for _, ring := range rings {
		for i := range ring {
			a, b := ring[i], ring[(i+1)%len(ring)]
			if a.Y() == b.Y() {
				continue
			}

			lo, hi := math.Min(a.Y(), b.Y()), math.Max(a.Y(), b.Y())
			r0 := max(int64(math.Ceil(lo-0.5)), firstRow)
			r1 := min(int64(math.Ceil(hi-0.5))-1, lastRow)

			for r := r0; r <= r1; r++ {
				yc := float64(r) + 0.5
				x := a.X() + (yc-a.Y())*(b.X()-a.X())/(b.Y()-a.Y())
				crossings[r-firstRow] = append(crossings[r-firstRow], x)
			}
		}
	}

	for i, xs := range crossings {
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)

		y := firstRow + int64(i)
		for j := 0; j+1 < len(xs); j += 2 {
			x0 := int64(math.Floor(xs[j]))
			x1 := int64(math.Ceil(xs[j+1])) - 1
			for x := x0; x <= x1; x++ {
				mark(x, y)
			}
		}
	}
}
