package tilecover

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MbtilesMetadata is the name/value table of an MBTiles database.
type MbtilesMetadata struct {
	metadata map[string]string
}

func NewMbtilesMetadata(metadata map[string]string) *MbtilesMetadata {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &MbtilesMetadata{metadata: metadata}
}

func (m *MbtilesMetadata) Get(k string) (string, bool) {
	v, exists := m.metadata[k]
	return v, exists
}

// Keys returns the metadata names in sorted order.
func (m *MbtilesMetadata) Keys() []string {
	keys := make([]string, 0, len(m.metadata))
	for k := range m.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MbtilesMetadata) Set(key string, value string) {
	m.metadata[key] = value
}

// SetSpatial fills bounds, center, minzoom and maxzoom. The center sits in the
// middle of bound at minZoom.
func (m *MbtilesMetadata) SetSpatial(bound orb.Bound, minZoom, maxZoom maptile.Zoom) {
	center := bound.Center()
	m.Set("bounds", formatFloats(bound.Left(), bound.Bottom(), bound.Right(), bound.Top()))
	m.Set("center", formatFloats(center.Lon(), center.Lat())+","+strconv.Itoa(int(minZoom)))
	m.Set("minzoom", strconv.Itoa(int(minZoom)))
	m.Set("maxzoom", strconv.Itoa(int(maxZoom)))
}

func formatFloats(vals ...float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func parseFloats(s string, want int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d comma-separated values, got %d", want, len(parts))
	}

	vals := make([]float64, want)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse value %d, %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}

func (m *MbtilesMetadata) Bounds() (orb.Bound, error) {
	str, exists := m.Get("bounds")
	if !exists {
		return orb.Bound{}, fmt.Errorf("metadata is missing bounds")
	}

	vals, err := parseFloats(str, 4)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("invalid bounds metadata: %w", err)
	}

	return orb.Bound{
		Min: orb.Point{vals[0], vals[1]},
		Max: orb.Point{vals[2], vals[3]},
	}, nil
}

// Center parses a "lon,lat,zoom" center value.
func (m *MbtilesMetadata) Center() (orb.Point, maptile.Zoom, error) {
	str, exists := m.Get("center")
	if !exists {
		return orb.Point{}, 0, fmt.Errorf("metadata is missing center")
	}

	vals, err := parseFloats(str, 3)
	if err != nil {
		return orb.Point{}, 0, fmt.Errorf("invalid center metadata: %w", err)
	}

	return orb.Point{vals[0], vals[1]}, maptile.Zoom(vals[2]), nil
}

func (m *MbtilesMetadata) zoom(key string) (maptile.Zoom, error) {
	str, exists := m.Get(key)
	if !exists {
		return 0, fmt.Errorf("metadata is missing %s", key)
	}

	i, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s value, %w", key, err)
	}

	return ValidateZoom(i)
}

func (m *MbtilesMetadata) MinZoom() (maptile.Zoom, error) {
	return m.zoom("minzoom")
}

func (m *MbtilesMetadata) MaxZoom() (maptile.Zoom, error) {
	return m.zoom("maxzoom")
}

func (m *MbtilesMetadata) Format() string {
	return m.metadata["format"]
}

func (m *MbtilesMetadata) Name() string {
	return m.metadata["name"]
}
