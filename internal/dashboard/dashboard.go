// Package dashboard renders a live terminal view of a running load test.
package dashboard

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ra56/loadgen/internal/metrics"
	"github.com/ra56/loadgen/internal/runner"
)

const refreshInterval = 500 * time.Millisecond

// TestConfig holds load test parameters for display.
type TestConfig struct {
	TargetURL    string
	Method       string
	Concurrency  int
	Duration     time.Duration
	Rate         int
	Timeout      time.Duration
	ArrivalModel string
	ConfigFile   string
}

// ProgressSource exposes live run counters. *runner.Runner satisfies it.
type ProgressSource interface {
	Progress() runner.Progress
}

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorGood    = lipgloss.Color("#04B575")
	colorBad     = lipgloss.Color("#FF5F87")
	colorSubtle  = lipgloss.Color("#767676")
	colorBorder  = lipgloss.Color("#3C3C3C")

	titleStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	subtleStyle = lipgloss.NewStyle().Foreground(colorSubtle)
	valueStyle  = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(colorBad).Bold(true)
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Margin(0, 1).
			Width(18).
			Align(lipgloss.Center)
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// model is the bubbletea model behind the dashboard.
type model struct {
	source       ProgressSource
	collector    *metrics.Collector
	cfg          TestConfig
	shutdownFunc func()
	start        time.Time
	now          func() time.Time
	bar          progress.Model
	snapshot     runner.Progress
	stats        metrics.Stats
	elapsed      time.Duration
	stopping     bool
	width        int
}

func newModel(source ProgressSource, collector *metrics.Collector, cfg TestConfig, shutdownFunc func()) model {
	return model{
		source:       source,
		collector:    collector,
		cfg:          cfg,
		shutdownFunc: shutdownFunc,
		start:        time.Now(),
		now:          time.Now,
		bar: progress.New(
			progress.WithGradient(string(colorPrimary), string(colorGood)),
			progress.WithWidth(60),
		),
	}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, tea.Batch(m.bar.SetPercent(m.fraction()), tick())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.stopping && m.shutdownFunc != nil {
				m.shutdownFunc()
			}
			m.stopping = true
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-8, 10)
		return m, nil

	case progress.FrameMsg:
		updated, cmd := m.bar.Update(msg)
		if bar, ok := updated.(progress.Model); ok {
			m.bar = bar
		}
		return m, cmd
	}
	return m, nil
}

func (m *model) refresh() {
	m.elapsed = m.now().Sub(m.start)
	m.snapshot = m.source.Progress()
	if m.collector != nil {
		m.stats = m.collector.Stats(m.elapsed)
	}
}

// fraction is the share of planned slots already emitted.
func (m model) fraction() float64 {
	if m.snapshot.Planned <= 0 {
		return 1
	}
	f := float64(m.snapshot.Emitted) / float64(m.snapshot.Planned)
	return min(f, 1)
}

func (m model) View() string {
	var b strings.Builder

	status := "running"
	if m.stopping {
		status = "stopping"
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("loadgen"),
		subtleStyle.MarginLeft(2).Render(fmt.Sprintf("%s / %s", m.elapsed.Round(time.Second), m.cfg.Duration)),
		subtleStyle.MarginLeft(2).Render("["+status+"]"),
	))
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render(formatTestParams(m.cfg)))
	b.WriteString("\n\n")

	b.WriteString(m.bar.ViewAs(m.fraction()))
	b.WriteString(subtleStyle.Render(fmt.Sprintf("  %d/%d slots", m.snapshot.Emitted, m.snapshot.Planned)))
	b.WriteString("\n\n")

	s := m.snapshot.Stats
	rps := 0.0
	if m.elapsed > 0 {
		rps = float64(s.Total) / m.elapsed.Seconds()
	}
	errs := valueStyle
	if s.Failed > 0 {
		errs = errorStyle
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		card("Requests", valueStyle.Render(fmt.Sprintf("%d", s.Total))),
		card("OK", valueStyle.Render(fmt.Sprintf("%d", s.Succeeded))),
		card("Errors", errs.Render(fmt.Sprintf("%d", s.Failed))),
		card("Backlog", valueStyle.Render(fmt.Sprintf("%d", m.snapshot.Backlog))),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		card("RPS", valueStyle.Render(fmt.Sprintf("%.1f / %d", rps, m.cfg.Rate))),
		card("P50", valueStyle.Render(fmt.Sprintf("%.1f ms", m.stats.P50LatencyMs))),
		card("P95", valueStyle.Render(fmt.Sprintf("%.1f ms", m.stats.P95LatencyMs))),
		card("P99", valueStyle.Render(fmt.Sprintf("%.1f ms", m.stats.P99LatencyMs))),
	))
	b.WriteString("\n")

	if line := summarizeErrors(m.stats.Errors, 3); line != "" {
		b.WriteString(errorStyle.Render("Errors: " + line))
		b.WriteString("\n")
	}
	b.WriteString(subtleStyle.Render("press q to stop emitting"))
	b.WriteString("\n")
	return b.String()
}

func card(title, value string) string {
	return cardStyle.Render(subtleStyle.Render(title) + "\n" + value)
}

func formatTestParams(cfg TestConfig) string {
	parts := []string{fmt.Sprintf("%s %s", cfg.Method, cfg.TargetURL)}
	parts = append(parts, fmt.Sprintf("workers=%d", cfg.Concurrency))
	if cfg.ArrivalModel != "" {
		parts = append(parts, "arrival="+cfg.ArrivalModel)
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("timeout=%s", cfg.Timeout))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, "config="+cfg.ConfigFile)
	}
	return strings.Join(parts, "  ")
}

// summarizeErrors renders the most frequent error kinds on one line.
func summarizeErrors(errs map[string]int, limit int) string {
	if len(errs) == 0 {
		return ""
	}
	rows := metrics.SortStatusBuckets(errs)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, fmt.Sprintf("%s=%d", row.Code, row.Count))
	}
	return strings.Join(parts, ", ")
}

// Dashboard runs the live view in the background for the length of a run.
type Dashboard struct {
	program *tea.Program
	done    chan struct{}
	started atomic.Bool
	once    sync.Once
	err     error
}

// Option adjusts the underlying bubbletea program.
type Option = tea.ProgramOption

// WithOutput sends rendering to w instead of the terminal.
func WithOutput(w io.Writer) Option {
	return tea.WithOutput(w)
}

// WithoutInput disables keyboard handling.
func WithoutInput() Option {
	return tea.WithInput(nil)
}

// New creates a dashboard. shutdownFunc is called once when the user asks to
// stop; it should cancel the run.
func New(source ProgressSource, collector *metrics.Collector, cfg TestConfig, shutdownFunc func(), opts ...Option) *Dashboard {
	m := newModel(source, collector, cfg, shutdownFunc)
	return &Dashboard{
		program: tea.NewProgram(m, opts...),
		done:    make(chan struct{}),
	}
}

// Start begins rendering in a background goroutine.
func (d *Dashboard) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(d.done)
		_, d.err = d.program.Run()
	}()
}

// Stop quits the program and restores the terminal. It returns the error the
// program exited with, if any.
func (d *Dashboard) Stop() error {
	if !d.started.Load() {
		return nil
	}
	d.once.Do(func() {
		d.program.Quit()
		<-d.done
	})
	return d.err
}
