package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// TUIRenderer draws a live panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *runModel
	tracker *ProgressTracker
	done    chan struct{}

	// interrupted is closed when the user quits from the keyboard.
	interrupted chan struct{}
}

var _ Renderer = (*TUIRenderer)(nil)

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a terminal")
	}
	tracker := NewProgressTracker()
	interrupted := make(chan struct{})
	model := newRunModel(tracker, cfg.Title, interrupted)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{
		cfg:         cfg,
		tracker:     tracker,
		model:       model,
		done:        make(chan struct{}),
		interrupted: interrupted,
	}, nil
}

// Interrupted is closed when the user presses q or ctrl+c.
func (r *TUIRenderer) Interrupted() <-chan struct{} { return r.interrupted }

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(ev ProgressEvent) {
	r.tracker.Apply(ev)
	r.send(refreshMsg{})
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(ev ErrorEvent) {
	r.tracker.AddError(ev)
	r.send(refreshMsg{})
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.send(completeMsg(stats))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	select {
	case <-r.done:
	case <-time.After(500 * time.Millisecond):
		p.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

type refreshMsg struct{}
type completeMsg CompletionStats
type tickMsg time.Time

// runModel is the bubbletea model of an indexing run.
type runModel struct {
	tracker     *ProgressTracker
	title       string
	width       int
	spinner     spinner.Model
	bar         progress.Model
	styles      Styles
	complete    *CompletionStats
	quitting    bool
	interrupted chan struct{}
	once        sync.Once
}

func newRunModel(tracker *ProgressTracker, title string, interrupted chan struct{}) *runModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	return &runModel{
		tracker:     tracker,
		title:       title,
		width:       80,
		spinner:     s,
		bar:         progress.New(progress.WithSolidFill(ColorAccent), progress.WithWidth(48), progress.WithoutPercentage()),
		styles:      DefaultStyles(),
		interrupted: interrupted,
	}
}

// Init implements tea.Model.
func (m *runModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.once.Do(func() { close(m.interrupted) })
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, msg.Width-24)
	case completeMsg:
		stats := CompletionStats(msg)
		m.complete = &stats
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *runModel) View() string {
	if m.complete != nil {
		return m.viewComplete(*m.complete)
	}
	if m.quitting {
		return "Stopping after the current batch...\n"
	}

	s := m.tracker.Stats()
	lines := []string{m.viewStages(s.Stage)}
	if s.Document != "" {
		lines = append(lines, m.styles.Label.Render(truncate(s.Document, m.width-8)))
	}
	if s.Total > 0 {
		lines = append(lines,
			fmt.Sprintf("%s  %s", m.bar.ViewAs(s.Progress), m.styles.Active.Render(fmt.Sprintf("%3.0f%%", s.Progress*100))),
			m.styles.Label.Render(fmt.Sprintf("%d / %d chunks", s.Current, s.Total)))
	} else {
		lines = append(lines, m.spinner.View()+" "+s.Stage.String()+"...")
	}

	speed := fmt.Sprintf("%.1f chunks/s", s.Speed)
	if s.ETA > 0 {
		speed += "  •  ETA " + formatDuration(s.ETA)
	}
	lines = append(lines, m.styles.Label.Render(speed))

	if s.Errors > 0 || s.Warnings > 0 {
		status := m.styles.Error.Render(fmt.Sprintf("%d errors", s.Errors)) + "  " +
			m.styles.Warning.Render(fmt.Sprintf("%d warnings", s.Warnings))
		lines = append(lines, status)
		if s.LastErr != "" {
			lines = append(lines, m.styles.Error.Render(truncate(s.LastErr, m.width-8)))
		}
	}

	panel := m.styles.Panel.Width(max(40, m.width-4)).Render(strings.Join(lines, "\n"))
	return m.styles.Title.Render(m.title) + "\n" + panel + "\n" + m.styles.Pending.Render("q to stop") + "\n"
}

func (m *runModel) viewStages(current Stage) string {
	var parts []string
	for _, st := range []Stage{StageChunking, StageEmbedding, StageSaving} {
		switch {
		case st < current:
			parts = append(parts, m.styles.Done.Render("● "+st.String()))
		case st == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+st.String()))
		default:
			parts = append(parts, m.styles.Pending.Render("○ "+st.String()))
		}
	}
	return strings.Join(parts, m.styles.Pending.Render(" → "))
}

func (m *runModel) viewComplete(s CompletionStats) string {
	lines := []string{
		m.styles.Done.Render("✓ Indexing finished"),
		"",
		fmt.Sprintf("%s %d", m.styles.Label.Render("Documents:"), s.Documents),
		fmt.Sprintf("%s    %d (%d embedded, %d unchanged)", m.styles.Label.Render("Chunks:"), s.Chunks, s.Embedded, s.Skipped),
		fmt.Sprintf("%s  %s", m.styles.Label.Render("Duration:"), formatDuration(s.Duration)),
	}
	if s.Outcome != "" {
		lines = append(lines, "", s.Outcome)
	}
	if s.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", s.Errors)))
	}
	return m.styles.Panel.Width(max(40, m.width-4)).Render(strings.Join(lines, "\n")) + "\n"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncate shortens s from the left so the tail (usually a file name) stays.
func truncate(s string, n int) string {
	r := []rune(s)
	if n < 4 || len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n+3:])
}
