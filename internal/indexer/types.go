// Package indexer drives the chunk, embed and store pipeline for a document.
package indexer

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/docindex/internal/chunk"
	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

// Status is the outcome of an indexing run.
type Status int

const (
	// StatusCompleted means every chunk of the document is in the index.
	StatusCompleted Status = iota
	// StatusCancelled means the run stopped at a batch boundary on request.
	StatusCancelled
	// StatusFailed means a batch failed and the remaining batches were abandoned.
	StatusFailed
	// StatusStaged means the run stopped after Params.StageLimit chunks.
	// Running again continues where it left off.
	StatusStaged
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	case StatusStaged:
		return "staged"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Params controls chunking and batch scheduling.
type Params struct {
	ChunkSize   int
	Overlap     int
	MinChunk    int
	Concurrency int

	// StageLimit caps the chunks embedded in one run. 0 means unbounded.
	StageLimit int

	// PauseBetweenBatches delays each dispatch after the first.
	PauseBetweenBatches time.Duration
}

// DefaultParams returns the stock settings.
func DefaultParams() Params {
	c := chunk.DefaultParams()
	return Params{
		ChunkSize:   c.ChunkSize,
		Overlap:     c.Overlap,
		MinChunk:    c.MinChunk,
		Concurrency: 4,
	}
}

func (p Params) chunkParams() chunk.Params {
	return chunk.Params{ChunkSize: p.ChunkSize, Overlap: p.Overlap, MinChunk: p.MinChunk}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if err := p.chunkParams().Validate(); err != nil {
		return err
	}
	if p.Concurrency < 1 {
		return apperrors.ConfigError(fmt.Sprintf("concurrency must be at least 1, got %d", p.Concurrency), nil)
	}
	if p.StageLimit < 0 {
		return apperrors.ConfigError("stage limit must not be negative", nil)
	}
	if p.PauseBetweenBatches < 0 {
		return apperrors.ConfigError("pause between batches must not be negative", nil)
	}
	return nil
}

// ProgressFunc receives (chunks done, chunks total). Calls arrive on a
// dedicated goroutine, in order, with done never decreasing.
type ProgressFunc func(done, total int)

// Result describes one run.
type Result struct {
	Status     Status
	DocumentID string

	// ChunksTotal counts the chunks the document splits into.
	ChunksTotal int
	// ChunksDone counts chunks present in the index, skipped ones included.
	ChunksDone int
	Embedded   int
	Skipped    int
	// Removed counts records of the document that no longer match a chunk.
	Removed int

	// Err is set for StatusFailed.
	Err error
	// Partial reports that some chunks of a failed run are in the index.
	Partial bool

	Duration time.Duration
}

// Summary renders the result for users.
func (r Result) Summary() string {
	switch r.Status {
	case StatusCompleted:
		return fmt.Sprintf("indexed %d chunks (%d embedded, %d unchanged)", r.ChunksTotal, r.Embedded, r.Skipped)
	case StatusFailed:
		if r.Partial {
			return fmt.Sprintf("index partially built, %d of %d chunks indexed", r.ChunksDone, r.ChunksTotal)
		}
		return "indexing failed, no chunks indexed"
	default:
		return fmt.Sprintf("indexing %s, %d of %d chunks indexed", r.Status, r.ChunksDone, r.ChunksTotal)
	}
}
