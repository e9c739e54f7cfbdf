// Package async runs indexing in the background and exposes its progress to
// concurrent readers such as the MCP index_status tool.
package async

import (
	"sync"
	"time"
)

// IndexingStatus represents the overall indexing state.
type IndexingStatus string

const (
	StatusIdle      IndexingStatus = "idle"
	StatusIndexing  IndexingStatus = "indexing"
	StatusReady     IndexingStatus = "ready"
	StatusCancelled IndexingStatus = "cancelled"
	StatusError     IndexingStatus = "error"
)

// IndexingStage is the current step of a run.
type IndexingStage string

const (
	StageChunking  IndexingStage = "chunking"
	StageEmbedding IndexingStage = "embedding"
	StageSaving    IndexingStage = "saving"
)

// IndexProgressSnapshot is an immutable copy of IndexProgress.
type IndexProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	Document       string  `json:"document,omitempty"`
	DocsTotal      int     `json:"docs_total"`
	DocsDone       int     `json:"docs_done"`
	ChunksTotal    int     `json:"chunks_total"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IndexProgress is safe for one writer and many readers.
type IndexProgress struct {
	mu sync.RWMutex

	status        IndexingStatus
	stage         IndexingStage
	document      string
	docsTotal     int
	docsDone      int
	chunksTotal   int
	chunksIndexed int
	startTime     time.Time
	endTime       time.Time
	errorMessage  string
}

// NewIndexProgress returns an idle tracker.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{status: StatusIdle}
}

// Begin starts a run over docs documents.
func (p *IndexProgress) Begin(docs int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIndexing
	p.stage = StageChunking
	p.document = ""
	p.docsTotal = docs
	p.docsDone = 0
	p.chunksTotal = 0
	p.chunksIndexed = 0
	p.startTime = time.Now()
	p.endTime = time.Time{}
	p.errorMessage = ""
}

// StartDocument records that doc is being indexed.
func (p *IndexProgress) StartDocument(doc string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.document = doc
	p.stage = StageChunking
	p.chunksTotal = 0
	p.chunksIndexed = 0
}

// UpdateChunks records chunk progress for the current document.
func (p *IndexProgress) UpdateChunks(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = StageEmbedding
	p.chunksIndexed = done
	p.chunksTotal = total
}

// SetStage sets the current stage.
func (p *IndexProgress) SetStage(stage IndexingStage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
}

// DocumentDone counts one finished document.
func (p *IndexProgress) DocumentDone() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.docsDone++
}

// SetError ends the run as failed.
func (p *IndexProgress) SetError(message string) {
	p.finish(StatusError, message)
}

// SetCancelled ends the run as cancelled.
func (p *IndexProgress) SetCancelled() {
	p.finish(StatusCancelled, "")
}

// SetReady ends the run successfully.
func (p *IndexProgress) SetReady() {
	p.finish(StatusReady, "")
}

func (p *IndexProgress) finish(status IndexingStatus, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = status
	p.errorMessage = message
	p.stage = ""
	p.endTime = time.Now()
}

// IsIndexing reports whether a run is in progress.
func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns a copy of the current state.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Documents weigh equally; the current one contributes its chunk fraction.
	var pct float64
	if p.docsTotal > 0 {
		done := float64(p.docsDone)
		if p.chunksTotal > 0 && p.docsDone < p.docsTotal {
			done += float64(p.chunksIndexed) / float64(p.chunksTotal)
		}
		pct = done / float64(p.docsTotal) * 100
	}

	var elapsed time.Duration
	switch {
	case p.startTime.IsZero():
	case p.endTime.IsZero():
		elapsed = time.Since(p.startTime)
	default:
		elapsed = p.endTime.Sub(p.startTime)
	}

	return IndexProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		Document:       p.document,
		DocsTotal:      p.docsTotal,
		DocsDone:       p.docsDone,
		ChunksTotal:    p.chunksTotal,
		ChunksIndexed:  p.chunksIndexed,
		ProgressPct:    pct,
		ElapsedSeconds: int(elapsed.Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
