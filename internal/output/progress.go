package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ra56/loadgen/internal/metrics"
	"github.com/ra56/loadgen/internal/runner"
)

// ProgressSource exposes live run counters. *runner.Runner satisfies it.
type ProgressSource interface {
	Progress() runner.Progress
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source    ProgressSource
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. collector may be nil, in which case no latency is shown.
func NewProgressReporter(source ProgressSource, collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:    source,
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and terminates the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	prog := p.source.Progress()
	rps := 0.0
	if elapsed > 0 {
		rps = float64(prog.Stats.Total) / elapsed.Seconds()
	}
	line := fmt.Sprintf("Requests: %d/%d | OK: %d | Errors: %d | RPS: %.1f | Backlog: %d",
		prog.Stats.Total, prog.Planned, prog.Stats.Succeeded, prog.Stats.Failed, rps, prog.Backlog)
	if p.collector != nil {
		if stats := p.collector.Stats(elapsed); stats.Total > 0 {
			line += fmt.Sprintf(" | P99: %.1fms", stats.P99LatencyMs)
		}
	}
	return line
}
