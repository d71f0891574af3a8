package session

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const DefaultInterval = 20 * time.Second

// Heartbeat posts to the heartbeat endpoint immediately and then on every
// interval until stopped.
type Heartbeat struct {
	client   *http.Client
	url      string
	auth     Authorizer
	interval time.Duration
	logger   *zap.Logger

	cancel   context.CancelFunc
	finished chan struct{}
	active   int32
	beats    atomic.Int64
	failures atomic.Int64
}

func NewHeartbeat(client *http.Client, url string, auth Authorizer, interval time.Duration, logger *zap.Logger) *Heartbeat {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Heartbeat{
		client:   client,
		url:      url,
		auth:     auth,
		interval: interval,
		logger:   logger,
		finished: make(chan struct{}),
	}
}

// Start begins beating in a background goroutine.
func (h *Heartbeat) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&h.active, 0, 1) {
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	go h.run(ctx)
}

// Stop halts the loop, aborting an in-flight beat, and waits at most timeout
// for it to exit. It reports whether the loop exited in time.
func (h *Heartbeat) Stop(timeout time.Duration) bool {
	if !atomic.CompareAndSwapInt32(&h.active, 1, 2) {
		return true
	}
	h.cancel()
	select {
	case <-h.finished:
		return true
	case <-time.After(timeout):
		h.logger.Warn("heartbeat did not stop in time", zap.Duration("timeout", timeout))
		return false
	}
}

// Beats returns how many heartbeats were attempted.
func (h *Heartbeat) Beats() int64 { return h.beats.Load() }

// Failures returns how many heartbeats did not get a 2xx answer.
func (h *Heartbeat) Failures() int64 { return h.failures.Load() }

func (h *Heartbeat) run(ctx context.Context) {
	defer close(h.finished)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.beat(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	out := post(ctx, h.client, h.url, h.auth)
	if ctx.Err() != nil && out.Err != nil {
		// Aborted by Stop; not a server-side failure.
		return
	}
	h.beats.Add(1)
	if !out.OK() {
		h.failures.Add(1)
	}
	h.logger.Debug("heartbeat",
		zap.Bool("ok", out.OK()),
		zap.Int("status", out.StatusCode),
		zap.Duration("latency", out.Latency),
		zap.Error(out.Err),
	)
}
