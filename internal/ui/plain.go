package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per update.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer

	// lastPct throttles embedding lines to whole-percent changes per document.
	lastPct map[string]int
}

var _ Renderer = (*PlainRenderer)(nil)

// NewPlainRenderer creates a plain renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, lastPct: make(map[string]int)}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := ev.Message
	if msg == "" {
		msg = ev.Document
	}
	if ev.Total <= 0 {
		if msg != "" {
			_, _ = fmt.Fprintf(r.out, "[%s] %s\n", ev.Stage.Tag(), msg)
		}
		return
	}

	pct := ev.Current * 100 / ev.Total
	key := ev.Stage.Tag() + "\x00" + ev.Document
	if last, ok := r.lastPct[key]; ok && pct == last && ev.Current != ev.Total {
		return
	}
	r.lastPct[key] = pct
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d (%d%%) %s\n", ev.Stage.Tag(), ev.Current, ev.Total, pct, msg)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(ev ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if ev.IsWarn {
		prefix = "WARN"
	}
	if ev.Document != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, ev.Document, ev.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, ev.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d documents, %d chunks (%d embedded, %d unchanged) in %s",
		s.Documents, s.Chunks, s.Embedded, s.Skipped, s.Duration.Round(100*time.Millisecond))
	if s.Errors > 0 || s.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", s.Errors, s.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)
	if s.Outcome != "" {
		_, _ = fmt.Fprintln(r.out, s.Outcome)
	}
	if s.Embedder.Provider != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%s, %d dims)\n", s.Embedder.Provider, s.Embedder.Model, s.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }
