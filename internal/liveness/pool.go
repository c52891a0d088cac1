package liveness

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool runs probes on worker goroutines, at most size at a time, and waits
// for them with the caller's context. A hung probe keeps its slot until it
// returns but never blocks the caller past its deadline.
type Pool struct {
	prober Prober
	sem    *semaphore.Weighted
}

func NewPool(prober Prober, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		prober: prober,
		sem:    semaphore.NewWeighted(int64(size)),
	}
}

type probeResult struct {
	live bool
	err  error
}

func (p *Pool) Probe(ctx context.Context, username string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, &ProbeError{Username: username, Err: err}
	}

	done := make(chan probeResult, 1)
	go func() {
		defer p.sem.Release(1)
		live, err := p.prober.Probe(ctx, username)
		done <- probeResult{live: live, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, &ProbeError{Username: username, Err: ctx.Err()}
	case res := <-done:
		return res.live, res.err
	}
}
