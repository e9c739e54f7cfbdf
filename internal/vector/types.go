// Package vector provides the in-memory similarity index over embedded chunks.
//
// The exhaustive scan in Index.Search is the reference algorithm. An optional
// HNSW graph (Options.Approximate) only proposes candidates; every returned
// score is recomputed exactly, and ordering rules are identical. Indexes
// ranked by MetricDot always scan.
package vector

import (
	"fmt"
	"strings"
)

// Identity names the provider and model that produced an index's vectors.
// Vectors from different identities are not comparable.
type Identity struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.Provider == "" && id.Model == ""
}

func (id Identity) String() string {
	return id.Provider + "/" + id.Model
}

// Meta is the per-record metadata copied into every Hit.
type Meta struct {
	DocumentID  string `json:"document_id"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	ContentHash string `json:"content_hash"`
}

// Record is the unit stored in an Index, keyed by chunk ID.
type Record struct {
	ID     string
	Vector []float32
	Meta   Meta
}

// Hit is one search result. Hits never alias index storage.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Meta  Meta    `json:"meta"`
}

// Metric selects the similarity function.
type Metric int

const (
	// MetricCosine ranks by dot(a,b)/(|a||b|), in [-1, 1].
	MetricCosine Metric = iota
	// MetricDot ranks by the raw inner product.
	MetricDot
	// MetricL2 ranks by negative Euclidean distance.
	MetricL2
)

func (m Metric) String() string {
	switch m {
	case MetricDot:
		return "dot"
	case MetricL2:
		return "l2"
	default:
		return "cosine"
	}
}

// ParseMetric converts a metric name. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(s) {
	case "", "cosine", "cos":
		return MetricCosine, nil
	case "dot", "ip":
		return MetricDot, nil
	case "l2", "euclidean":
		return MetricL2, nil
	default:
		return MetricCosine, fmt.Errorf("unknown metric %q", s)
	}
}

// HNSWParams tunes the approximate accelerator.
type HNSWParams struct {
	M        int
	EfSearch int
	// Oversample multiplies k when asking the graph for candidates.
	Oversample int
	// ExactBelow keeps the exhaustive scan for indexes smaller than this.
	ExactBelow int
}

// DefaultHNSWParams returns conservative accelerator settings.
func DefaultHNSWParams() HNSWParams {
	return HNSWParams{M: 16, EfSearch: 100, Oversample: 4, ExactBelow: 2048}
}

// Options configures a new Index.
type Options struct {
	Identity Identity
	// Dimension fixes the vector length. Zero lets the first record decide.
	Dimension   int
	Metric      Metric
	Approximate bool
	HNSW        HNSWParams
}
