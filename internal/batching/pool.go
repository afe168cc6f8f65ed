package batching

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool spreads traffic over several independent Batchers. Parallelism is
// added by adding rings, each with its own dispatcher, rather than by adding
// dispatchers to one ring.
type Pool struct {
	rings   []*Batcher
	next    atomic.Uint64
	started time.Time
}

// NewPool starts n Batchers built from cfg. Ring names get a "-<i>" suffix.
func NewPool(n int, cfg Config) (*Pool, error) {
	if n <= 0 {
		n = 1
	}
	base := cfg.Name
	if base == "" {
		base = "ring"
	}
	p := &Pool{rings: make([]*Batcher, 0, n), started: time.Now()}
	for i := 0; i < n; i++ {
		c := cfg
		c.Name = fmt.Sprintf("%s-%d", base, i)
		bt, err := New(c)
		if err != nil {
			_ = p.Close(context.Background())
			return nil, err
		}
		p.rings = append(p.rings, bt)
	}
	return p, nil
}

// Rings returns the pool's batchers.
func (p *Pool) Rings() []*Batcher { return p.rings }

// InputShape is the per-sample input shape shared by all rings.
func (p *Pool) InputShape() Shape { return p.rings[0].InputShape() }

// OutputShape is the per-sample output shape shared by all rings.
func (p *Pool) OutputShape() Shape { return p.rings[0].OutputShape() }

// Enqueue picks rings round-robin; a rejected submission spills over to the
// next ring, trying each ring at most once.
func (p *Pool) Enqueue(ctx context.Context, input []byte) (*Handle, error) {
	start := p.next.Add(1)
	var err error
	for i := range p.rings {
		bt := p.rings[(start+uint64(i))%uint64(len(p.rings))]
		var h *Handle
		h, err = bt.Enqueue(ctx, input)
		if err == nil || !IsRejected(err) {
			return h, err
		}
	}
	return nil, err
}

// Submit enqueues input on some ring and waits for its result.
func (p *Pool) Submit(ctx context.Context, input []byte) (Result, error) {
	h, err := p.Enqueue(ctx, input)
	if err != nil {
		return Result{}, err
	}
	return h.Wait(ctx)
}

// Closed reports whether the pool has started shutting down.
func (p *Pool) Closed() bool {
	for _, bt := range p.rings {
		if bt.Closed() {
			return true
		}
	}
	return false
}

// Close drains every ring concurrently.
func (p *Pool) Close(ctx context.Context) error {
	var g errgroup.Group
	for _, bt := range p.rings {
		bt := bt
		g.Go(func() error { return bt.Close(ctx) })
	}
	return g.Wait()
}

// Snapshot returns one snapshot per ring.
func (p *Pool) Snapshot() []RingSnapshot {
	out := make([]RingSnapshot, len(p.rings))
	for i, bt := range p.rings {
		out[i] = bt.Snapshot()
	}
	return out
}
