package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Result captures execution summary. Stats is frozen: it is taken after the
// queue drained.
type Result struct {
	Planned      int
	Emitted      int
	Skipped      int64
	Stats        StatsSnapshot
	Duration     time.Duration
	JoinTimedOut bool
}

// Progress is a live view of a running load test.
type Progress struct {
	Planned int
	Emitted int64
	Skipped int64
	Backlog int
	Stats   StatsSnapshot
}

// Runner coordinates the scheduler, the bounded queue and the worker pool.
type Runner struct {
	opt     Options
	planned int
	stats   RunStats
	emitted atomic.Int64
	skipped atomic.Int64
	queue   atomic.Pointer[workQueue]
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:     opt,
		planned: SlotCount(opt.Duration, opt.RatePerSecond),
	}
}

// Planned returns the number of slots the run will emit if not cancelled.
func (r *Runner) Planned() int {
	return r.planned
}

// Progress returns counters observed so far.
func (r *Runner) Progress() Progress {
	p := Progress{
		Planned: r.planned,
		Emitted: r.emitted.Load(),
		Skipped: r.skipped.Load(),
		Stats:   r.stats.Snapshot(),
	}
	if q := r.queue.Load(); q != nil {
		p.Backlog = q.Len()
	}
	return p
}

// Run emits the planned slots, waits for the queue to drain and joins the
// workers. Cancelling ctx stops emission; tokens already queued are acked
// without issuing a request.
func (r *Runner) Run(ctx context.Context) Result {
	log := r.opt.Logger
	start := time.Now()

	q := newWorkQueue(r.opt.QueueCapacity)
	r.queue.Store(q)

	// Workers stop only after the drain, independent of ctx.
	stopCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// In-flight requests are not aborted on cancellation; the client
	// timeout bounds them.
	reqCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(r.opt.Concurrency)
	for i := 0; i < r.opt.Concurrency; i++ {
		go func() {
			defer wg.Done()
			r.work(ctx, reqCtx, stopCtx, q)
		}()
	}

	log.Debug("scheduler started",
		zap.Int("slots", r.planned),
		zap.Int("rate", r.opt.RatePerSecond),
		zap.Int("workers", r.opt.Concurrency),
		zap.Int("queue_capacity", q.Cap()),
		zap.String("arrival", string(r.opt.ArrivalModel)),
	)
	sched := newScheduler(r.opt, start)
	emitted := sched.run(ctx, q, func() { r.emitted.Add(1) })
	if emitted < r.planned {
		log.Info("scheduler stopped early", zap.Int("emitted", emitted), zap.Int("planned", r.planned))
	}

	drainCtx, cancelDrain := drainContext(ctx, r.opt.JoinTimeout)
	drained := q.DrainWait(drainCtx) == nil
	cancelDrain()
	elapsed := time.Since(start)

	stop()
	joined := drained && waitTimeout(&wg, r.opt.JoinTimeout)
	if !drained {
		log.Warn("in-flight requests outlived the grace period after cancellation",
			zap.Duration("grace", r.opt.JoinTimeout),
			zap.Int("backlog", q.Len()),
		)
	} else if !joined {
		log.Warn("workers did not exit before join timeout", zap.Duration("timeout", r.opt.JoinTimeout))
	}

	return Result{
		Planned:      r.planned,
		Emitted:      emitted,
		Skipped:      r.skipped.Load(),
		Stats:        r.stats.Snapshot(),
		Duration:     elapsed,
		JoinTimedOut: !joined,
	}
}

func (r *Runner) work(runCtx, reqCtx, stopCtx context.Context, q *workQueue) {
	for {
		if _, ok := q.Pop(stopCtx, r.opt.PopTimeout); !ok {
			if stopCtx.Err() != nil {
				return
			}
			continue
		}
		r.handle(runCtx, reqCtx, q)
	}
}

func (r *Runner) handle(runCtx, reqCtx context.Context, q *workQueue) {
	defer q.Ack()
	if runCtx.Err() != nil {
		r.skipped.Add(1)
		return
	}
	r.stats.Record(r.execute(reqCtx))
}

func (r *Runner) execute(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("requester panic: %v", p)
		}
	}()
	return r.opt.Requester.Do(ctx)
}

// drainContext never expires while ctx is live, so a normal run waits for
// every request. Once ctx is done the drain gets grace more time.
func drainContext(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	drainCtx, cancel := context.WithCancel(context.Background())
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	stopWatch := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		timer = time.AfterFunc(grace, cancel)
	})
	return drainCtx, func() {
		stopWatch()
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		cancel()
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
