package main

import (
	"context"
	"io"
	"log/slog"
	gohttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilezen/go-tilecover/tilecover"
)

func TestRouter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.mbtiles")
	out, err := tilecover.NewMbtilesOutputter(path, nil)
	require.NoError(t, err)
	require.NoError(t, tilecover.SaveCoverage(context.Background(), out, tilecover.NewTileSet(maptile.New(5, 9, 4)), nil))

	reader, err := tilecover.NewMbtilesReader(path)
	require.NoError(t, err)
	defer reader.Close()

	server := httptest.NewServer(newRouter(reader, slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer server.Close()

	resp, err := gohttp.Get(server.URL + "/coverage/4/5/9.geojson")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, gohttp.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := geojson.UnmarshalFeature(body)
	require.NoError(t, err)
	assert.Equal(t, 4.0, f.Properties.MustFloat64("z"))

	for _, p := range []string{"/coverage/4/5/10.geojson", "/elsewhere"} {
		resp, err := gohttp.Get(server.URL + p)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, gohttp.StatusNotFound, resp.StatusCode, p)
	}
}
