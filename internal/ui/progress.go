package ui

import (
	"sync"
	"time"
)

// speedWindow is the minimum interval between throughput samples.
const speedWindow = 500 * time.Millisecond

// ProgressTracker holds the state shown by the TUI. Safe for concurrent use.
type ProgressTracker struct {
	mu sync.RWMutex

	stage    Stage
	current  int
	total    int
	document string
	started  time.Time

	errors   int
	warnings int
	lastErr  string

	lastCurrent int
	lastSample  time.Time
	speed       float64
	avgSpeed    float64
	samples     int
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage    Stage
	Current  int
	Total    int
	Progress float64
	Document string
	Speed    float64
	AvgSpeed float64
	ETA      time.Duration
	Errors   int
	Warnings int
	LastErr  string
	Elapsed  time.Duration
}

// NewProgressTracker creates a tracker at the chunking stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{started: now, lastSample: now}
}

// Apply records a progress event. Moving to another stage or document
// resets the throughput samples.
func (p *ProgressTracker) Apply(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyAt(ev, time.Now())
}

func (p *ProgressTracker) applyAt(ev ProgressEvent, now time.Time) {
	if ev.Stage != p.stage || ev.Document != p.document {
		p.stage = ev.Stage
		p.document = ev.Document
		p.lastCurrent = ev.Current
		p.lastSample = now
		p.speed = 0
	}
	p.current = ev.Current
	p.total = ev.Total

	elapsed := now.Sub(p.lastSample)
	if elapsed < speedWindow {
		return
	}
	if delta := ev.Current - p.lastCurrent; delta > 0 {
		p.speed = float64(delta) / elapsed.Seconds()
		p.samples++
		if p.samples == 1 {
			p.avgSpeed = p.speed
		} else {
			p.avgSpeed = 0.2*p.speed + 0.8*p.avgSpeed
		}
	}
	p.lastCurrent = ev.Current
	p.lastSample = now
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(ev ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
	if ev.Err != nil {
		p.lastErr = ev.Err.Error()
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := ProgressStats{
		Stage:    p.stage,
		Current:  p.current,
		Total:    p.total,
		Document: p.document,
		Speed:    p.speed,
		AvgSpeed: p.avgSpeed,
		Errors:   p.errors,
		Warnings: p.warnings,
		LastErr:  p.lastErr,
		Elapsed:  time.Since(p.started),
	}
	if p.total > 0 {
		s.Progress = min(1, float64(p.current)/float64(p.total))
	}
	if rate := p.avgSpeed; rate > 0 && p.total > p.current {
		s.ETA = time.Duration(float64(p.total-p.current) / rate * float64(time.Second))
	}
	return s
}
