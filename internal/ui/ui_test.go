package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	buf := &bytes.Buffer{}

	r := NewRenderer(NewConfig(buf))

	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)

	_, err := NewTUIRenderer(NewConfig(buf))
	assert.Error(t, err)
}

func TestPlainRenderer_ThrottlesToPercentChanges(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: reporting many small steps of a 1000 chunk document
	for i := 1; i <= 1000; i++ {
		r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: i, Total: 1000, Document: "a.txt"})
	}

	// Then: at most one line per percent, and the final line is always shown
	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.LessOrEqual(t, lines, 101)
	assert.Contains(t, buf.String(), "[EMBED] 1000/1000 (100%) a.txt")
}

func TestPlainRenderer_ErrorsAndCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageSaving, Message: "writing index.didx"})
	r.AddError(ErrorEvent{Document: "b.txt", Err: errors.New("provider unreachable")})
	r.AddError(ErrorEvent{Err: errors.New("slow backend"), IsWarn: true})
	r.Complete(CompletionStats{
		Documents: 2, Chunks: 40, Embedded: 30, Skipped: 10, Duration: 1500 * time.Millisecond,
		Errors: 1, Warnings: 1, Outcome: "index partially built, 30 of 40 chunks indexed",
		Embedder: EmbedderInfo{Provider: "ollama", Model: "nomic-embed-text", Dimensions: 768},
	})

	out := buf.String()
	assert.Contains(t, out, "[SAVE] writing index.didx")
	assert.Contains(t, out, "ERROR: b.txt: provider unreachable")
	assert.Contains(t, out, "WARN: slow backend")
	assert.Contains(t, out, "Complete: 2 documents, 40 chunks (30 embedded, 10 unchanged) in 1.5s (1 errors, 1 warnings)")
	assert.Contains(t, out, "index partially built, 30 of 40 chunks indexed")
	assert.Contains(t, out, "Embedder: ollama (nomic-embed-text, 768 dims)")
}

func TestProgressTracker_SpeedAndETA(t *testing.T) {
	// Given: a tracker fed 100 chunks per second
	p := NewProgressTracker()
	t0 := time.Now()
	p.applyAt(ProgressEvent{Stage: StageEmbedding, Current: 0, Total: 500, Document: "d"}, t0)
	p.applyAt(ProgressEvent{Stage: StageEmbedding, Current: 100, Total: 500, Document: "d"}, t0.Add(time.Second))

	// When: taking a snapshot
	s := p.Stats()

	// Then: speed and ETA follow the observed rate
	assert.InDelta(t, 100.0, s.Speed, 0.01)
	assert.InDelta(t, 0.2, s.Progress, 1e-9)
	assert.InDelta(t, 4*time.Second, s.ETA, float64(10*time.Millisecond))
}

func TestProgressTracker_NewDocumentResetsSpeed(t *testing.T) {
	p := NewProgressTracker()
	t0 := time.Now()
	p.applyAt(ProgressEvent{Stage: StageEmbedding, Current: 0, Total: 10, Document: "a"}, t0)
	p.applyAt(ProgressEvent{Stage: StageEmbedding, Current: 10, Total: 10, Document: "a"}, t0.Add(time.Second))

	p.applyAt(ProgressEvent{Stage: StageEmbedding, Current: 0, Total: 50, Document: "b"}, t0.Add(2*time.Second))

	s := p.Stats()
	assert.Equal(t, "b", s.Document)
	assert.Equal(t, 0.0, s.Speed)
	assert.Equal(t, 50, s.Total)
}

func TestRunModel_View(t *testing.T) {
	// Given: a model halfway through embedding
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{Stage: StageEmbedding, Current: 50, Total: 100, Document: "/docs/manual.txt"})
	tracker.AddError(ErrorEvent{Err: errors.New("retrying batch"), IsWarn: true})
	m := newRunModel(tracker, "docindex", make(chan struct{}))
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: stages, document, counts and warnings appear
	assert.Contains(t, view, "Chunk")
	assert.Contains(t, view, "Embed")
	assert.Contains(t, view, "Save")
	assert.Contains(t, view, "/docs/manual.txt")
	assert.Contains(t, view, "50 / 100 chunks")
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "1 warnings")
}

func TestRunModel_QuitClosesInterrupted(t *testing.T) {
	interrupted := make(chan struct{})
	m := newRunModel(NewProgressTracker(), "docindex", interrupted)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	// A second key press must not close the channel twice.
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	require.NotNil(t, cmd)
	select {
	case <-interrupted:
	default:
		t.Fatal("interrupted not closed")
	}
	assert.Contains(t, m.View(), "Stopping")
}

func TestRunModel_CompleteView(t *testing.T) {
	m := newRunModel(NewProgressTracker(), "docindex", make(chan struct{}))
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg(CompletionStats{Documents: 3, Chunks: 12, Embedded: 12, Duration: 65 * time.Second}))

	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Indexing finished")
	assert.Contains(t, view, "1m 5s")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...ual.txt", truncate("/very/long/path/manual.txt", 10))
}
