package tilecover

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// BurnOptions tunes a Burn call. The zero value is usable.
type BurnOptions struct {
	// Workers is the number of goroutines rasterizing geometries. Defaults to
	// runtime.NumCPU().
	Workers int

	// PolygonTouch selects how tiles touched only by a polygon's boundary are
	// treated. Defaults to TouchInterior.
	PolygonTouch TouchPolicy

	// DisableWrap turns off antimeridian unwrapping, so every segment is taken
	// literally in longitude.
	DisableWrap bool

	// OnGeometry, if set, is called once per processed geometry from worker
	// goroutines. It must be safe for concurrent use.
	OnGeometry func()

	Logger  *slog.Logger
	Metrics *Metrics
}

// BurnStats summarises the outcome of a Burn call.
type BurnStats struct {
	Geometries int
	Burned     int
	Skipped    map[SkipReason]int
}

func (s *BurnStats) SkippedTotal() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

func (s *BurnStats) add(o BurnStats) {
	s.Geometries += o.Geometries
	s.Burned += o.Burned
	for reason, n := range o.Skipped {
		s.Skipped[reason] += n
	}
}

// Burn returns the set of tiles at zoom z intersected by any of the
// geometries. Geometries that cannot be rasterized are skipped and counted in
// the returned stats; only an invalid zoom or a cancelled context fail the call.
func Burn(ctx context.Context, geometries []orb.Geometry, z int, opts *BurnOptions) (*TileSet, *BurnStats, error) {
	if opts == nil {
		opts = &BurnOptions{}
	}

	zoom, err := ValidateZoom(z)
	if err != nil {
		return nil, nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, len(geometries)))

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan burnJob, workers*4)
	results := make([]*burnResult, workers)

	g.Go(func() error {
		defer close(jobs)
		for i, geom := range geometries {
			select {
			case jobs <- burnJob{Index: i, Geometry: geom}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		result := newBurnResult()
		results[w] = result

		g.Go(func() error {
			r := newRasterizer(zoom, !opts.DisableWrap, opts.PolygonTouch, result.Tiles)

			for job := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}

				result.Stats.Geometries++
				if reason := r.burn(job.Geometry); reason != "" {
					result.Stats.Skipped[reason]++
					logger.Debug("Skipping geometry", "index", job.Index, "reason", reason)
				} else {
					result.Stats.Burned++
				}

				if opts.OnGeometry != nil {
					opts.OnGeometry()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	set := &TileSet{tiles: results[0].Tiles}
	stats := &BurnStats{Skipped: make(map[SkipReason]int)}
	for i, result := range results {
		if i > 0 {
			set.merge(&TileSet{tiles: result.Tiles})
		}
		stats.add(result.Stats)
	}

	elapsed := time.Since(start)

	if skipped := stats.SkippedTotal(); skipped > 0 {
		logger.Warn("Skipped degenerate geometries", "skipped", skipped, "reasons", stats.Skipped)
	}
	logger.Info("Burned geometries", "zoom", z, "geometries", stats.Geometries, "tiles", set.Len(), "workers", workers, "elapsed", elapsed)

	opts.Metrics.observe(stats, set.Len(), elapsed)

	return set, stats, nil
}
