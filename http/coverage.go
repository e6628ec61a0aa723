package http

import (
	"fmt"
	"log/slog"
	gohttp "net/http"
	"regexp"
	"strconv"

	"github.com/paulmach/orb/maptile"

	"github.com/tilezen/go-tilecover/tilecover"
)

var (
	coverageRegex = regexp.MustCompile(`/coverage/(\d+)/(\d+)/(\d+)\.geojson$`)
)

// CoverageHandler serves the stored outline feature of covered tiles at
// /coverage/{z}/{x}/{y}.geojson. Tiles outside the coverage are 404s.
func CoverageHandler(reader tilecover.MbtilesReader, logger *slog.Logger) gohttp.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(w gohttp.ResponseWriter, r *gohttp.Request) {
		if r.Method != gohttp.MethodGet && r.Method != gohttp.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			gohttp.Error(w, gohttp.StatusText(gohttp.StatusMethodNotAllowed), gohttp.StatusMethodNotAllowed)
			return
		}

		requestedTile, err := parseTileFromPath(r.URL.Path)
		if err != nil {
			gohttp.NotFound(w, r)
			return
		}

		result, err := reader.GetTile(requestedTile)
		if err != nil {
			logger.Error("Error getting tile", "tile", requestedTile, "error", err)
			gohttp.Error(w, gohttp.StatusText(gohttp.StatusInternalServerError), gohttp.StatusInternalServerError)
			return
		}

		if result.Data == nil {
			gohttp.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", tilecover.GeoJSONContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(*result.Data)))
		w.Write(*result.Data)
	}
}

func parseTileFromPath(url string) (maptile.Tile, error) {
	match := coverageRegex.FindStringSubmatch(url)
	if match == nil {
		return maptile.Tile{}, fmt.Errorf("invalid tile path")
	}

	return tilecover.ParseTile(fmt.Sprintf("%s/%s/%s", match[1], match[2], match[3]))
}
