package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"

	"github.com/tilezen/go-tilecover/internal/config"
	"github.com/tilezen/go-tilecover/source"
	"github.com/tilezen/go-tilecover/tilecover"
)

const (
	modeDisk    = "disk"
	modeMbtiles = "mbtiles"
	modePmtiles = "pmtiles"
	modeS3      = "s3"
	modeBlob    = "blob"
)

var validModes = []string{modeDisk, modeMbtiles, modePmtiles, modeS3, modeBlob}

type options struct {
	input           string
	zoom            int
	outputModes     []string
	dsn             string
	bucket          string
	prefix          string
	blobURL         string
	acl             string
	requesterPays   bool
	listName        string
	geojsonName     string
	workers         int
	inclusive       bool
	noWrap          bool
	timeout         time.Duration
	progress        bool
	metricsTextfile string
	logLevel        string
	cpuProfile      string
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	var outputModes string

	fs.StringVar(&o.input, "input", config.Getenv(config.Env("input"), ""), "Path to the GeoJSON (.geojson, .json) or shapefile (.shp) to cover.")
	fs.IntVar(&o.zoom, "zoom", config.GetInt(config.Env("zoom"), 12), "Zoom level to compute the tile coverage at.")
	fs.StringVar(&outputModes, "output-mode", config.Getenv(config.Env("output-mode"), modeDisk), "Comma-separated outputs. Valid modes are: disk, mbtiles, pmtiles, s3, blob.")
	fs.StringVar(&o.dsn, "dsn", config.Getenv(config.Env("dsn"), "."), "Directory for disk, mbtiles and pmtiles outputs.")
	fs.StringVar(&o.bucket, "bucket", config.Getenv(config.Env("bucket"), ""), "(For s3 output) The name of the S3 bucket to upload to.")
	fs.StringVar(&o.prefix, "prefix", config.Getenv(config.Env("prefix"), "tile_coverage"), "(For s3, blob outputs) Key prefix to upload under.")
	fs.StringVar(&o.blobURL, "blob-url", config.Getenv(config.Env("blob-url"), ""), "(For blob output) Bucket URL, e.g. gs://bucket, azblob://container or file:///dir.")
	fs.StringVar(&o.acl, "acl", config.Getenv(config.Env("acl"), ""), "(For s3 output) Canned ACL for uploaded objects, e.g. public-read.")
	fs.BoolVar(&o.requesterPays, "requester-pays", config.GetBool(config.Env("requester-pays"), false), "(For s3 output) Set the requester-pays header on uploads.")
	fs.StringVar(&o.listName, "list-name", config.Getenv(config.Env("list-name"), ""), "Override the tile list artifact name.")
	fs.StringVar(&o.geojsonName, "geojson-name", config.Getenv(config.Env("geojson-name"), ""), "Override the GeoJSON artifact name.")
	fs.IntVar(&o.workers, "workers", config.GetInt(config.Env("workers"), 0), "Number of rasterizing workers. Defaults to the number of CPUs.")
	fs.BoolVar(&o.inclusive, "inclusive", config.GetBool(config.Env("inclusive"), false), "Also cover tiles that polygons only touch along an edge or corner.")
	fs.BoolVar(&o.noWrap, "no-wrap", config.GetBool(config.Env("no-wrap"), false), "Disable antimeridian unwrapping.")
	fs.DurationVar(&o.timeout, "timeout", config.GetDuration(config.Env("timeout"), 0), "Abort the whole run after this long. Zero means no limit.")
	fs.BoolVar(&o.progress, "progress", config.GetBool(config.Env("progress"), false), "Show a progress bar while rasterizing.")
	fs.StringVar(&o.metricsTextfile, "metrics-textfile", config.Getenv(config.Env("metrics-textfile"), ""), "Write run metrics in Prometheus text format to this path.")
	fs.StringVar(&o.logLevel, "log-level", config.Getenv(config.Env("log-level"), "info"), "Log level: debug, info, warn or error.")
	fs.StringVar(&o.cpuProfile, "cpuprofile", config.Getenv(config.Env("cpuprofile"), ""), "Enables CPU profiling. Saves the dump to the given path.")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o.outputModes = config.SplitList(outputModes)
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *options) validate() error {
	if o.input == "" {
		return errors.New("input path (-input) is required")
	}

	if _, err := tilecover.ValidateZoom(o.zoom); err != nil {
		return err
	}

	if len(o.outputModes) == 0 {
		return errors.New("at least one output mode (-output-mode) is required")
	}

	seen := map[string]bool{}
	for _, m := range o.outputModes {
		if !slices.Contains(validModes, m) {
			return fmt.Errorf("unknown output mode %q", m)
		}
		if seen[m] {
			return fmt.Errorf("output mode %q given twice", m)
		}
		seen[m] = true
	}

	if seen[modeS3] && o.bucket == "" {
		return errors.New("bucket name (-bucket) is required for s3 output")
	}
	if seen[modeBlob] && o.blobURL == "" {
		return errors.New("bucket URL (-blob-url) is required for blob output")
	}
	if seen[modeDisk] || seen[modeMbtiles] || seen[modePmtiles] {
		if o.dsn == "" {
			return errors.New("output directory (-dsn) is required")
		}
	}
	return nil
}

func (o *options) artifactNames(defaults tilecover.ArtifactNames) tilecover.ArtifactNames {
	if o.listName != "" {
		defaults.TileList = o.listName
	}
	if o.geojsonName != "" {
		defaults.GeoJSON = o.geojsonName
	}
	return defaults
}

func datasetName(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// replaceFile lets write produce a sibling temp file and moves it over path
// once write succeeded.
func replaceFile(path string, write func(tmp string) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// coverage is a burned tile set together with its serialized forms, which
// every output shares.
type coverage struct {
	set               *tilecover.TileSet
	tileList          []byte
	featureCollection []byte
}

func newCoverage(set *tilecover.TileSet) (*coverage, error) {
	list, fc, err := tilecover.Serialize(set)
	if err != nil {
		return nil, err
	}
	return &coverage{set: set, tileList: list, featureCollection: fc}, nil
}

// output is one destination for the coverage.
type output struct {
	mode string
	save func(ctx context.Context, c *coverage) error
}

func publishOutput(mode string, p tilecover.ArtifactPublisher, names tilecover.ArtifactNames) output {
	return output{
		mode: mode,
		save: func(ctx context.Context, c *coverage) error {
			return p.Publish(ctx, tilecover.NewArtifacts(names, c.tileList, c.featureCollection))
		},
	}
}

// buildOutputs creates the destinations in the order given, local ones first
// so that remote uploads only happen after every local write succeeded.
func buildOutputs(ctx context.Context, o *options, logger *slog.Logger) ([]output, func() error, error) {
	var outputs, remote []output
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	for _, mode := range o.outputModes {
		switch mode {
		case modeDisk:
			p, err := tilecover.NewDiskPublisher(o.dsn)
			if err != nil {
				return nil, closeAll, err
			}
			outputs = append(outputs, publishOutput(mode, p, o.artifactNames(tilecover.LocalArtifactNames(o.zoom))))

		case modeMbtiles:
			path := filepath.Join(o.dsn, fmt.Sprintf("tiles_z%d.mbtiles", o.zoom))
			outputs = append(outputs, output{
				mode: mode,
				save: func(ctx context.Context, c *coverage) error {
					return replaceFile(path, func(tmp string) error {
						metadata := tilecover.NewMbtilesMetadata(map[string]string{"name": datasetName(o.input)})
						out, err := tilecover.NewMbtilesOutputter(tmp, metadata)
						if err != nil {
							return err
						}
						return tilecover.SaveCoverage(ctx, out, c.set, logger)
					})
				},
			})

		case modePmtiles:
			path := filepath.Join(o.dsn, fmt.Sprintf("tiles_z%d.pmtiles", o.zoom))
			outputs = append(outputs, output{
				mode: mode,
				save: func(ctx context.Context, c *coverage) error {
					return replaceFile(path, func(tmp string) error {
						out, err := tilecover.NewPmtilesOutputter(tmp, datasetName(o.input), logger)
						if err != nil {
							return err
						}
						return tilecover.SaveCoverage(ctx, out, c.set, logger)
					})
				},
			})

		case modeS3:
			p, err := tilecover.NewS3Publisher(o.bucket, o.prefix, &tilecover.S3PublisherOptions{
				ACL:           o.acl,
				RequesterPays: o.requesterPays,
				Logger:        logger,
			})
			if err != nil {
				return nil, closeAll, fmt.Errorf("couldn't create s3 output: %w", err)
			}
			remote = append(remote, publishOutput(mode, p, o.artifactNames(tilecover.RemoteArtifactNames())))

		case modeBlob:
			p, err := tilecover.OpenBlobPublisher(ctx, o.blobURL, o.prefix, logger)
			if err != nil {
				return nil, closeAll, fmt.Errorf("couldn't create blob output: %w", err)
			}
			closers = append(closers, p.Close)
			remote = append(remote, publishOutput(mode, p, o.artifactNames(tilecover.RemoteArtifactNames())))
		}
	}

	return append(outputs, remote...), closeAll, nil
}

func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Burning geometries"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

func run(ctx context.Context, o *options, logger *slog.Logger, reg *prometheus.Registry) error {
	src, err := source.Open(ctx, o.input)
	if err != nil {
		return err
	}
	logger.Info("Read source", "path", src.Path, "records", src.Stats.Records, "geometries", len(src.Geometries), "dropped", src.Stats.Dropped)

	metrics, err := tilecover.NewMetrics(reg)
	if err != nil {
		return err
	}

	burnOpts := &tilecover.BurnOptions{
		Workers:     o.workers,
		DisableWrap: o.noWrap,
		Logger:      logger,
		Metrics:     metrics,
	}
	if o.inclusive {
		burnOpts.PolygonTouch = tilecover.TouchInclusive
	}

	if o.progress {
		bar := newProgressBar(len(src.Geometries), os.Stderr)
		burnOpts.OnGeometry = func() { bar.Add(1) }
		defer bar.Finish()
	}

	set, _, err := tilecover.Burn(ctx, src.Geometries, o.zoom, burnOpts)
	if err != nil {
		return fmt.Errorf("burn: %w", err)
	}

	cov, err := newCoverage(set)
	if err != nil {
		return err
	}

	outputs, closeOutputs, err := buildOutputs(ctx, o, logger)
	if err != nil {
		return errors.Join(err, closeOutputs())
	}

	for _, out := range outputs {
		start := time.Now()
		if err := out.save(ctx, cov); err != nil {
			return errors.Join(fmt.Errorf("%s output: %w", out.mode, err), closeOutputs())
		}
		logger.Info("Wrote coverage", "output", out.mode, "tiles", set.Len(), "elapsed", time.Since(start))
	}

	return closeOutputs()
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	logger, err := config.NewLogger(os.Stderr, opts.logLevel)
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}
	slog.SetDefault(logger)

	if opts.cpuProfile != "" {
		f, err := os.Create(opts.cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	runErr := run(ctx, opts, logger, reg)

	if opts.metricsTextfile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsTextfile, reg); err != nil {
			logger.Error("Couldn't write metrics", "path", opts.metricsTextfile, "error", err)
		}
	}

	if runErr != nil {
		logger.Error("Tile coverage failed", "error", runErr)
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}
