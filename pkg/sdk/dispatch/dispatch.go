// Package dispatch runs fire-and-forget sends without letting a burst of
// captured events spawn unbounded goroutines.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Dispatcher runs jobs on goroutines, at most MaxInFlight at a time. Jobs
// submitted while the limit is reached are dropped, not queued.
type Dispatcher struct {
	slots chan struct{}
	wg    sync.WaitGroup

	dropped atomic.Uint64
	closed  atomic.Bool
}

// New creates a dispatcher allowing maxInFlight concurrent jobs.
func New(maxInFlight int) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Dispatcher{slots: make(chan struct{}, maxInFlight)}
}

// Go runs job asynchronously. It reports false when the job was dropped
// because the dispatcher is full or closed.
func (d *Dispatcher) Go(job func()) bool {
	if d.closed.Load() {
		d.dropped.Add(1)
		return false
	}

	select {
	case d.slots <- struct{}{}:
	default:
		d.dropped.Add(1)
		return false
	}

	d.wg.Add(1)
	go func() {
		defer func() {
			<-d.slots
			d.wg.Done()
		}()
		job()
	}()
	return true
}

// Dropped returns the number of jobs dropped so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Wait blocks until all running jobs finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for running ones.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closed.Store(true)
	return d.Wait(ctx)
}
