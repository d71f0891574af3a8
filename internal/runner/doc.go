// Package runner provides the core load test execution engine for loadgen.
//
// A run has three parts:
//   - a scheduler that emits one token per slot, duration × rate slots in total
//   - a bounded queue that buffers tokens and pushes back on the scheduler when full
//   - a fixed pool of workers that each turn one token into one request
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		Concurrency:   64,
//		Duration:      20 * time.Second,
//		RatePerSecond: 200,
//		Requester:     myRequester,
//	})
//	result := r.Run(ctx)
//
// # Requester Interface
//
// The [Requester] interface defines what a worker executes for each token:
//
//	type Requester interface {
//		Do(ctx context.Context) error
//	}
//
// A nil error counts as a success, anything else as a failure. Workers never
// retry.
//
// # Arrival Models
//
// Slot times are laid out by the selected [ArrivalModel]:
//   - [ArrivalModelUniform]: slot i is due at start + i/rate
//   - [ArrivalModelPoisson]: exponential gaps accumulated from start
//   - [ArrivalModelTokenBucket]: pacing by a golang.org/x/time/rate limiter
//
// In every model each slot is derived from the run's start time, so
// late wake-ups do not push later slots back.
//
// # Shutdown
//
// After the last slot the runner waits until every queued token has been
// acked, then signals the workers to stop and joins them with
// [Options.JoinTimeout]. Cancelling the context passed to [Runner.Run] stops
// emission; queued tokens are acked without issuing requests and counted in
// [Result.Skipped]. Requests already in flight get JoinTimeout to finish;
// past that Run returns with [Result.JoinTimedOut] set and their outcomes
// are left out of the snapshot.
package runner
