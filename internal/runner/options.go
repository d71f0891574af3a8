package runner

import (
	"context"
	"math"
	"math/bits"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultPopTimeout  = 500 * time.Millisecond
	defaultJoinTimeout = 5 * time.Second
	minQueueCapacity   = 1000
	queueRateMultiple  = 4
)

// Requester abstracts executing a single request operation.
// Implementations should return an error for failed requests.
type Requester interface {
	Do(ctx context.Context) error
}

// ArrivalModel selects how slot times are laid out across the run.
type ArrivalModel string

const (
	ArrivalModelUniform     ArrivalModel = "uniform"
	ArrivalModelPoisson     ArrivalModel = "poisson"
	ArrivalModelTokenBucket ArrivalModel = "token-bucket"
)

// Options configure the Runner.
type Options struct {
	Concurrency    int           // number of worker goroutines
	Duration       time.Duration // length of the emission window
	RatePerSecond  int           // target slots per second
	QueueCapacity  int           // bounded queue size (0 derives it from the rate)
	PopTimeout     time.Duration // max wait for a token before re-checking the stop signal
	JoinTimeout    time.Duration // max wait for workers after the drain, and for in-flight requests after cancellation
	Requester      Requester     // request executor; nil is a dry run where every slot succeeds
	ArrivalModel   ArrivalModel
	RandomSeed     int64
	PoissonSampler func() float64               // optional override, returns Exp(1) samples
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	Logger         *zap.Logger
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = defaultQueueCapacity(o.RatePerSecond)
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = defaultPopTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = defaultJoinTimeout
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.PoissonSampler == nil {
		o.PoissonSampler = rand.New(rand.NewSource(o.RandomSeed)).ExpFloat64
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one keeps the bucket from front-loading a second's worth of slots.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	if o.Requester == nil {
		o.Requester = dryRun{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// dryRun exercises the schedule, queue and workers without any I/O.
type dryRun struct{}

func (dryRun) Do(context.Context) error { return nil }

// defaultQueueCapacity sizes the queue at a few seconds of backlog with a floor.
func defaultQueueCapacity(rps int) int {
	capacity := rps * queueRateMultiple
	if capacity < minQueueCapacity {
		capacity = minQueueCapacity
	}
	return capacity
}

// SlotCount returns how many tokens a run of the given duration and rate
// emits: floor(duration × rps), saturating at math.MaxInt.
func SlotCount(duration time.Duration, rps int) int {
	if duration <= 0 || rps <= 0 {
		return 0
	}
	// Whole seconds and the sub-second remainder are scaled separately so
	// long runs at high rates do not overflow.
	secs := uint64(duration / time.Second)
	rem := uint64(duration % time.Second)
	r := uint64(rps)

	hi, whole := bits.Mul64(secs, r)
	// rem < 1s, so the high word stays below the divisor.
	fracHi, fracLo := bits.Mul64(rem, r)
	frac, _ := bits.Div64(fracHi, fracLo, uint64(time.Second))

	total, carry := bits.Add64(whole, frac, 0)
	if hi != 0 || carry != 0 || total > math.MaxInt {
		return math.MaxInt
	}
	return int(total)
}
