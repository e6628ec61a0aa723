package tilecover

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records Burn outcomes. A nil *Metrics records nothing.
type Metrics struct {
	geometries *prometheus.CounterVec
	tiles      prometheus.Gauge
	duration   prometheus.Histogram
}

// NewMetrics creates the burn metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		geometries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tilecover_geometries_total",
				Help: "Geometries processed, by outcome and skip reason.",
			},
			[]string{"outcome", "reason"},
		),
		tiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tilecover_tiles",
			Help: "Tiles in the most recent coverage.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tilecover_burn_duration_seconds",
			Help:    "Duration of Burn calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}

	for _, c := range []prometheus.Collector{m.geometries, m.tiles, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(stats *BurnStats, tiles int, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.geometries.WithLabelValues("burned", "").Add(float64(stats.Burned))
	for reason, n := range stats.Skipped {
		m.geometries.WithLabelValues("skipped", string(reason)).Add(float64(n))
	}
	m.tiles.Set(float64(tiles))
	m.duration.Observe(elapsed.Seconds())
}
