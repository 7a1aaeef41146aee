// Package worker runs the fuzz and replay loops (spec.md §4.5, §4.6) as
// long-lived goroutines submitted to an ants.Pool, the same way the teacher
// project's internal/requester.WorkerPool wraps ants.Pool for its HTTP
// request workers — here each submitted task is not a short request but a
// worker's entire run-to-completion loop, so the pool only ever needs
// exactly `cores` capacity.
package worker

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pool runs up to n worker loops concurrently and lets the caller wait for
// all of them to finish.
type Pool struct {
	pool *ants.Pool
	wg   sync.WaitGroup
}

// NewPool returns a Pool sized for exactly n concurrent long-lived workers.
func NewPool(n int) (*Pool, error) {
	p, err := ants.NewPool(n, ants.WithPreAlloc(true))
	if err != nil {
		return nil, fmt.Errorf("worker: create pool: %w", err)
	}
	return &Pool{pool: p}, nil
}

// Go submits task to run on the pool. It is fire-and-forget; call Wait to
// block until every submitted task has returned.
func (p *Pool) Go(task func()) error {
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		task()
	})
	if err != nil {
		p.wg.Done()
		return fmt.Errorf("worker: submit: %w", err)
	}
	return nil
}

// Wait blocks until every task submitted via Go has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Release returns the pool's goroutines. Call after Wait.
func (p *Pool) Release() {
	p.pool.Release()
}
