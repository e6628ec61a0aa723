package http

import (
	"errors"
	gohttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilezen/go-tilecover/tilecover"
)

type fakeReader struct {
	tilecover.MbtilesReader
	tiles map[maptile.Tile][]byte
	err   error
}

func (r *fakeReader) GetTile(tile maptile.Tile) (*tilecover.TileData, error) {
	if r.err != nil {
		return nil, r.err
	}
	data, ok := r.tiles[tile]
	if !ok {
		return &tilecover.TileData{Tile: tile}, nil
	}
	return &tilecover.TileData{Tile: tile, Data: &data}, nil
}

func TestCoverageHandler(t *testing.T) {
	reader := &fakeReader{tiles: map[maptile.Tile][]byte{
		maptile.New(3, 1, 2): []byte(`{"type":"Feature"}`),
	}}
	handler := CoverageHandler(reader, nil)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"covered tile", gohttp.MethodGet, "/coverage/2/3/1.geojson", gohttp.StatusOK},
		{"uncovered tile", gohttp.MethodGet, "/coverage/2/0/0.geojson", gohttp.StatusNotFound},
		{"outside grid", gohttp.MethodGet, "/coverage/2/9/0.geojson", gohttp.StatusNotFound},
		{"bad path", gohttp.MethodGet, "/coverage/2/3.geojson", gohttp.StatusNotFound},
		{"wrong method", gohttp.MethodPost, "/coverage/2/3/1.geojson", gohttp.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(gohttp.MethodGet, "/coverage/2/3/1.geojson", nil))
	assert.Equal(t, tilecover.GeoJSONContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"type":"Feature"}`, rec.Body.String())
}

func TestCoverageHandler_ReaderError(t *testing.T) {
	handler := CoverageHandler(&fakeReader{err: errors.New("database is locked")}, nil)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(gohttp.MethodGet, "/coverage/0/0/0.geojson", nil))
	assert.Equal(t, gohttp.StatusInternalServerError, rec.Code)
}

func TestParseTileFromPath(t *testing.T) {
	tile, err := parseTileFromPath("/prefix/coverage/12/654/1583.geojson")
	require.NoError(t, err)
	assert.Equal(t, maptile.New(654, 1583, 12), tile)

	_, err = parseTileFromPath("/coverage/12/654/1583.mvt")
	assert.Error(t, err)
}
