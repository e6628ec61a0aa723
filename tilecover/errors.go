package tilecover

import "errors"

var (
	// ErrInvalidZoom is returned when a zoom level is negative or deeper than MaxZoom.
	ErrInvalidZoom = errors.New("invalid zoom level")

	// ErrSerialization is returned when coverage artifacts cannot be encoded.
	ErrSerialization = errors.New("coverage serialization failed")

	// ErrInvalidTileList is returned when a tile list line cannot be parsed.
	ErrInvalidTileList = errors.New("invalid tile list")
)

// SkipReason explains why a geometry contributed no tiles.
type SkipReason string

const (
	SkipEmpty          SkipReason = "empty"
	SkipTooFewVertices SkipReason = "too_few_vertices"
	SkipNonFinite      SkipReason = "non_finite_coordinate"
	SkipUnsupported    SkipReason = "unsupported_type"
)
