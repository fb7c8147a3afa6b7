// Package pool provides a bounded pool of reusable linear-memory regions.
//
// At most Max regions are leased at once. Acquire blocks while the pool is at
// capacity and wakes when a lease is released or destroyed; waiters are not
// served in any particular order. Released regions are zeroed lazily, on
// their next acquisition, and freed slot ids are reused most recent first.
//
// Every Acquire must be paired with exactly one Release or Destroy. A leaked
// handle permanently reduces the pool's capacity.
package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	wrapruntime "github.com/wippyai/wrap-runtime"
	"github.com/wippyai/wrap-runtime/errors"
)

// Region is a linear-memory region managed by the pool.
type Region interface {
	wrapruntime.Memory
	wrapruntime.Zeroer
	Close(ctx context.Context) error
}

// Factory creates a new region.
type Factory func(ctx context.Context) (Region, error)

// Config holds pool sizing.
type Config struct {
	// Max is the number of regions that may be leased at once.
	// Values below 1 are clamped to 1.
	Max int

	// Min regions are created up front. Clamped to [0, Max].
	Min int

	// MaxWait bounds how long Acquire waits for capacity.
	// 0 waits until the caller's context is done.
	MaxWait time.Duration
}

func (c Config) normalized() Config {
	if c.Max < 1 {
		c.Max = 1
	}
	if c.Min < 0 {
		c.Min = 0
	}
	if c.Min > c.Max {
		c.Min = c.Max
	}
	return c
}

// Handle is a lease on one region.
type Handle struct {
	region Region
	id     int
	gen    uint64
}

// ID returns the slot id of the lease.
func (h Handle) ID() int { return h.id }

// Region returns the leased region.
func (h Handle) Region() Region { return h.region }

type slot struct {
	region Region
	dirty  bool
	leased bool
	gen    uint64
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Live  int // leased regions
	Idle  int // released regions awaiting reuse
	Total int // Live + Idle
	Max   int
}

// Pool is a bounded pool of memory regions. Safe for concurrent use.
type Pool struct {
	factory Factory
	sem     *semaphore.Weighted
	slots   map[int]*slot
	free    []int
	cfg     Config
	nextID  int
	live    int
	mu      sync.Mutex
	closed  bool
}

// New creates a pool and warms it with cfg.Min regions.
func New(ctx context.Context, cfg Config, factory Factory) (*Pool, error) {
	cfg = cfg.normalized()
	p := &Pool{
		cfg:     cfg,
		factory: factory,
		sem:     semaphore.NewWeighted(int64(cfg.Max)),
		slots:   make(map[int]*slot),
		nextID:  1,
	}

	warm := make([]Handle, 0, cfg.Min)
	for i := 0; i < cfg.Min; i++ {
		h, err := p.Acquire(ctx)
		if err != nil {
			_ = p.Flush(ctx)
			return nil, err
		}
		warm = append(warm, h)
	}
	for _, h := range warm {
		p.Release(h)
	}
	return p, nil
}

// Config returns the normalized pool configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Acquire leases a region, waiting for capacity if every region is leased.
// A reused region reads as all zeros.
func (p *Pool) Acquire(ctx context.Context) (Handle, error) {
	waitCtx := ctx
	if p.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.MaxWait)
		defer cancel()
	}

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return Handle{}, ctx.Err()
		}
		return Handle{}, errors.PoolTimeout(p.cfg.Max, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return Handle{}, errors.New(errors.PhasePool, errors.KindClosed).Detail("pool is closed").Build()
	}

	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		s := p.slots[id]
		s.leased = true
		s.gen++
		gen := s.gen
		dirty := s.dirty
		s.dirty = false
		p.live++
		p.mu.Unlock()

		if dirty {
			if err := s.region.Zero(); err != nil {
				_ = p.Destroy(ctx, Handle{id: id, region: s.region, gen: gen})
				return Handle{}, errors.New(errors.PhasePool, errors.KindInvalidData).
					Cause(err).
					Detail("zero region %d", id).
					Build()
			}
		}
		return Handle{id: id, region: s.region, gen: gen}, nil
	}

	id := p.nextID
	p.nextID++
	p.live++
	p.mu.Unlock()

	region, err := p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		p.sem.Release(1)
		return Handle{}, errors.New(errors.PhasePool, errors.KindInstantiation).
			Cause(err).
			Detail("create region").
			Build()
	}

	p.mu.Lock()
	p.slots[id] = &slot{region: region, leased: true, gen: 1}
	p.mu.Unlock()

	Logger().Debug("pool region created", zap.Int("id", id), zap.Uint32("size", region.Size()))
	return Handle{id: id, region: region, gen: 1}, nil
}

// Release returns a leased region to the pool. Releasing a handle that no
// longer holds its lease is a no-op, even after the slot was leased again.
func (p *Pool) Release(h Handle) {
	p.mu.Lock()
	s, ok := p.slots[h.id]
	if !ok || !s.leased || s.gen != h.gen {
		p.mu.Unlock()
		return
	}
	s.leased = false
	s.dirty = true
	p.free = append(p.free, h.id)
	p.live--
	p.mu.Unlock()

	p.sem.Release(1)
}

// Destroy permanently removes a slot and closes its region. The slot may be
// leased or idle, but h must come from its latest lease; destroying an
// unknown, destroyed or superseded handle is a no-op.
func (p *Pool) Destroy(ctx context.Context, h Handle) error {
	p.mu.Lock()
	s, ok := p.slots[h.id]
	if !ok || s.gen != h.gen {
		p.mu.Unlock()
		return nil
	}
	delete(p.slots, h.id)
	leased := s.leased
	if leased {
		p.live--
	} else {
		p.removeFree(h.id)
	}
	p.mu.Unlock()

	if leased {
		p.sem.Release(1)
	}
	Logger().Debug("pool region destroyed", zap.Int("id", h.id))
	return s.region.Close(ctx)
}

func (p *Pool) removeFree(id int) {
	for i, f := range p.free {
		if f == id {
			p.free = append(p.free[:i], p.free[i+1:]...)
			return
		}
	}
}

// Flush destroys every slot, leased or idle. Outstanding handles become
// unknown to the pool, so releasing them afterwards is a no-op.
func (p *Pool) Flush(ctx context.Context) error {
	p.mu.Lock()
	slots := p.slots
	leased := 0
	for _, s := range slots {
		if s.leased {
			leased++
		}
	}
	p.slots = make(map[int]*slot)
	p.free = nil
	p.live -= leased
	p.mu.Unlock()

	if leased > 0 {
		p.sem.Release(int64(leased))
	}

	var errs error
	for _, s := range slots {
		errs = errors.Append(errs, s.region.Close(ctx))
	}
	return errs
}

// Close flushes the pool and rejects further acquisitions.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Flush(ctx)
}

// Stats reports the current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Live:  p.live,
		Idle:  len(p.free),
		Total: len(p.slots),
		Max:   p.cfg.Max,
	}
}
