// Package worker implements the fixed-size task pool that replaces the
// original's raw thread-per-request model: an HTTP handler opens the audit
// scope, hands the row-processing off to the pool, and returns the batch key
// to the caller immediately. A job that panics is recovered and logged and
// its worker keeps draining the queue; jobs are never retried or replayed.
package worker

import (
	"context"
	"log"
)

// Job is one unit of batch work. It receives a background context since the
// HTTP request that enqueued it may have already returned.
type Job func(ctx context.Context)

// Pool drains a fixed number of jobs concurrently from a bounded queue.
type Pool struct {
	jobs chan Job
}

// NewPool starts size workers draining a queue of the given capacity.
func NewPool(size, queueCapacity int) *Pool {
	p := &Pool{jobs: make(chan Job, queueCapacity)}
	for i := 0; i < size; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	for job := range p.jobs {
		runJob(job)
	}
}

// runJob isolates a panicking job so one bad batch cannot take down the
// worker goroutine.
func runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[worker] job panicked: %v", r)
		}
	}()
	job(context.Background())
}

// Submit enqueues job, returning false if the queue is full (the caller
// reports this as a dispatch failure rather than blocking the request).
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}
