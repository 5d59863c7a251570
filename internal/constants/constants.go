// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Grouping defaults
const (
	// DefaultModel is the embedding model used for grouping when none is requested
	DefaultModel = "resnet50"

	// DefaultThreshold is the default minimum cosine similarity for an edge
	DefaultThreshold = 0.8

	// DefaultMinSize is the default minimum number of photos in an emitted group
	DefaultMinSize = 2

	// DefaultMode is the default grouping mode
	DefaultMode = "connected"

	// SimpleMode is the mode used by the recommended-defaults endpoint
	SimpleMode = "clique"
)

// Similar-photo query defaults
const (
	// DefaultTopK is the default number of neighbours returned by a similar query
	DefaultTopK = 10

	// MaxTopK caps the number of neighbours a single query may ask for
	MaxTopK = 100

	// DefaultPairsMinScore is the default lower bound for pair listings
	DefaultPairsMinScore = 0.0
)

// Backfill defaults
const (
	// DefaultBackfillConcurrency keeps the backfill strictly serial
	DefaultBackfillConcurrency = 1

	// MaxBackfillConcurrency caps the backfill worker pool
	MaxBackfillConcurrency = 16

	// MaxUploadSide is the longest image side sent to a remote embedding server
	MaxUploadSide = 1920

	// MaxImageBytes is the largest image body the resolver will read (100MB)
	MaxImageBytes = 100 << 20
)
