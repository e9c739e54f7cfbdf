// Package chunk splits extracted document text into overlapping, stably
// identified chunks for embedding.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

// Defaults for plain-text documents.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
	DefaultMinChunk  = 20
)

// Chunk is a contiguous span of a document. Start and End are byte offsets
// into the source text, half-open, always on UTF-8 rune boundaries.
type Chunk struct {
	ID         string // <documentID>#<seq>, seq zero-padded
	DocumentID string
	Seq        int
	Start      int
	End        int
	Text       string
	Hash       string // hex SHA-256 of Text
}

// Len returns the chunk length in bytes.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Params controls chunk sizing.
type Params struct {
	ChunkSize int // upper bound on chunk length
	Overlap   int // bytes shared by adjacent chunks, < ChunkSize
	MinChunk  int // chunks shorter than this after trimming are dropped
}

// DefaultParams returns the plain-text defaults.
func DefaultParams() Params {
	return Params{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap, MinChunk: DefaultMinChunk}
}

// Validate checks the parameter invariants.
func (p Params) Validate() error {
	if p.ChunkSize <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("chunk size must be positive, got %d", p.ChunkSize), nil)
	}
	if p.Overlap < 0 || p.Overlap >= p.ChunkSize {
		return apperrors.ConfigError(fmt.Sprintf("overlap must be in [0, %d), got %d", p.ChunkSize, p.Overlap), nil)
	}
	if p.MinChunk < 0 {
		return apperrors.ConfigError(fmt.Sprintf("min chunk must be non-negative, got %d", p.MinChunk), nil)
	}
	return nil
}

// ID builds the chunk id for a document sequence number.
func ID(documentID string, seq int) string {
	return fmt.Sprintf("%s#%010d", documentID, seq)
}

// Hash returns the content hash used for skip-if-unchanged.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
