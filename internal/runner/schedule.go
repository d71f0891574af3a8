package runner

import (
	"context"
	"math"
	"math/bits"
	"time"

	"golang.org/x/time/rate"
)

// tokenSink receives scheduled tokens. workQueue is the production sink.
type tokenSink interface {
	Push(ctx context.Context) error
}

// pacer blocks until the given slot is due.
type pacer interface {
	Wait(ctx context.Context, slot int) error
}

// scheduler emits one token per slot at the pacer's cadence.
type scheduler struct {
	slots int
	pace  pacer
}

func newScheduler(opt Options, start time.Time) *scheduler {
	slots := SlotCount(opt.Duration, opt.RatePerSecond)
	return &scheduler{slots: slots, pace: newPacer(opt, start)}
}

func newPacer(opt Options, start time.Time) pacer {
	switch opt.ArrivalModel {
	case ArrivalModelPoisson:
		return &poissonPacer{start: start, rps: float64(opt.RatePerSecond), sample: opt.PoissonSampler}
	case ArrivalModelTokenBucket:
		return &limiterPacer{limiter: opt.LimiterFactory(opt.RatePerSecond)}
	default:
		return &slotPacer{start: start, rps: int64(opt.RatePerSecond)}
	}
}

// run emits tokens into sink and returns how many were pushed. It stops
// without pushing further tokens once ctx is done.
func (s *scheduler) run(ctx context.Context, sink tokenSink, onEmit func()) int {
	emitted := 0
	for i := 0; i < s.slots; i++ {
		if ctx.Err() != nil {
			return emitted
		}
		if err := s.pace.Wait(ctx, i); err != nil {
			return emitted
		}
		if err := sink.Push(ctx); err != nil {
			return emitted
		}
		emitted++
		if onEmit != nil {
			onEmit()
		}
	}
	return emitted
}

// slotPacer targets start + i/rps for slot i. Each target is derived from
// the fixed start, so oversleeping one slot does not shift the next.
type slotPacer struct {
	start time.Time
	rps   int64
}

func (p *slotPacer) Wait(ctx context.Context, slot int) error {
	if p.rps <= 0 {
		return nil
	}
	return sleepUntil(ctx, p.start.Add(slotOffset(int64(slot), p.rps)))
}

// slotOffset returns slot/rps seconds. Whole seconds are split off first so
// the product never overflows for slots SlotCount can produce.
func slotOffset(slot, rps int64) time.Duration {
	whole := time.Duration(slot/rps) * time.Second
	hi, lo := bits.Mul64(uint64(slot%rps), uint64(time.Second))
	frac, _ := bits.Div64(hi, lo, uint64(rps))
	return whole + time.Duration(frac)
}

// poissonPacer spaces slots with exponential gaps, accumulated from start.
type poissonPacer struct {
	start  time.Time
	rps    float64
	sample func() float64
	offset time.Duration
}

func (p *poissonPacer) Wait(ctx context.Context, slot int) error {
	if p.rps <= 0 || p.sample == nil {
		return nil
	}
	if slot > 0 {
		p.offset += p.nextGap()
	}
	return sleepUntil(ctx, p.start.Add(p.offset))
}

func (p *poissonPacer) nextGap() time.Duration {
	gap := float64(time.Second) * p.sample() / p.rps
	if gap > math.MaxInt64 {
		gap = math.MaxInt64
	}
	return time.Duration(gap)
}

// limiterPacer delegates pacing to a token bucket.
type limiterPacer struct {
	limiter *rate.Limiter
}

func (p *limiterPacer) Wait(ctx context.Context, _ int) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// sleepUntil suspends until deadline, returning early with ctx's error.
func sleepUntil(ctx context.Context, deadline time.Time) error {
	delay := time.Until(deadline)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
