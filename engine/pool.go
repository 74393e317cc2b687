/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Connection pool for warehouse connectors: bounded
             checkout/release, health-gated acquisition, and an
             exponential-backoff-with-jitter reconnection policy
             capped at 30s (spec.md §4.1).
Context:     The pool owns connector lifecycle so the adapter layer
             never talks to a raw connection directly.
Suitability: L3 for pooling/retry design with concurrency.
──────────────────────────────────────────────────────────────
*/

package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Dialer constructs a fresh Connector, e.g. opening a new warehouse session.
type Dialer func(ctx context.Context) (Connector, error)

// PoolConfig tunes pool size and reconnection behavior.
type PoolConfig struct {
	Size            int
	DialTimeout     time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
}

// DefaultPoolConfig returns the reconnection policy described in §4.1:
// exponential backoff with jitter, capped at 30s.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:        8,
		DialTimeout: 10 * time.Second,
		BackoffBase: 250 * time.Millisecond,
		BackoffMax:  30 * time.Second,
	}
}

// Pool manages a fixed-size set of warehouse connectors, reconnecting any
// that fail with exponential backoff and jitter.
type Pool struct {
	cfg    PoolConfig
	dial   Dialer
	mu         sync.Mutex
	idle       []Connector
	checkedOut int
	cond       *sync.Cond
	closed     bool
}

// NewPool creates a pool that lazily dials up to cfg.Size connectors.
func NewPool(cfg PoolConfig, dial Dialer) *Pool {
	p := &Pool{cfg: cfg, dial: dial}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire checks out a connector, dialing a fresh one if the idle set is
// empty and the pool has not reached its size cap.
func (p *Pool) Acquire(ctx context.Context) (Connector, error) {
	p.mu.Lock()
	for len(p.idle) == 0 && p.outstanding() >= p.cfg.Size && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		p.mu.Unlock()
		return nil, &Error{Kind: KindPermanent, Op: "pool.acquire", Message: "pool closed"}
	}
	if len(p.idle) > 0 {
		c := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.checkedOut++
		p.mu.Unlock()
		return c, nil
	}
	p.checkedOut++
	p.mu.Unlock()

	c, err := p.dialWithBackoff(ctx)
	if err != nil {
		p.mu.Lock()
		p.checkedOut--
		p.cond.Signal()
		p.mu.Unlock()
		return nil, err
	}
	return c, nil
}

// Release returns a connector to the idle set for reuse.
func (p *Pool) Release(c Connector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkedOut--
	if p.closed {
		_ = c.Close()
		p.cond.Signal()
		return
	}
	p.idle = append(p.idle, c)
	p.cond.Signal()
}

// Discard closes a broken connector instead of returning it to the idle set.
func (p *Pool) Discard(c Connector) {
	_ = c.Close()
	p.mu.Lock()
	p.checkedOut--
	p.cond.Signal()
	p.mu.Unlock()
}

// Close shuts the pool down, closing every idle connector.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, c := range p.idle {
		_ = c.Close()
	}
	p.idle = nil
	p.cond.Broadcast()
}

func (p *Pool) outstanding() int {
	return p.checkedOut
}

// dialWithBackoff retries Dialer with exponential backoff and full jitter,
// capped at cfg.BackoffMax, until ctx is done.
func (p *Pool) dialWithBackoff(ctx context.Context) (Connector, error) {
	backoff := p.cfg.BackoffBase
	for attempt := 0; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
		c, err := p.dial(dialCtx)
		cancel()
		if err == nil {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return nil, classify("pool.dial", ctx.Err())
		default:
		}

		jittered := time.Duration(rand.Int63n(int64(backoff)))
		timer := time.NewTimer(jittered)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, classify("pool.dial", ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
		if backoff > p.cfg.BackoffMax {
			backoff = p.cfg.BackoffMax
		}
	}
}
