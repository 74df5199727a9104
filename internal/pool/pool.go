// Package pool implements a fixed-capacity, FIFO-fair connection
// pool: acquisition, release, idle eviction, lifetime recycling, and
// failure isolation (a failed factory call never consumes capacity).
package pool

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Acquire when acquire_timeout elapses
// before a connection becomes available.
var ErrTimeout = errors.New("pool: acquire timed out")

// ErrClosed is returned by Acquire once the pool has been closed (and
// delivered to every waiter queued at Close). Release has no return
// value; after Close it destroys the connection it is given.
var ErrClosed = errors.New("pool: closed")

// Connection is the opaque handle the pool manages. Callers supply a
// Factory that produces one; the pool never inspects it beyond Close.
type Connection interface {
	Close() error
}

// Factory constructs a new Connection. A factory error during acquire
// must not consume pool capacity.
type Factory func(ctx context.Context) (Connection, error)

// Config carries the attach-time pool options.
type Config struct {
	Size           int
	AcquireTimeout time.Duration
	MaxLifetime    time.Duration
	IdleTimeout    time.Duration
}

// Conn is a checked-out connection, carrying the bookkeeping Release needs.
type Conn struct {
	Raw       Connection
	createdAt time.Time
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Idle    int
	InUse   int
	Waiters int
	Live    int
}

type entry struct {
	conn      Connection
	createdAt time.Time
	idleSince time.Time
}

type acquireResult struct {
	entry *entry
	err   error
}

type waiter struct {
	ch chan acquireResult
}

// Pool multiplexes up to Config.Size connections across concurrent callers.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	factory Factory

	idle    []*entry
	waiters *list.List
	live    int
	inUse   int
	closed  bool
}

// New constructs a pool. cfg.Size must be >= 1; the caller (Config.Validate
// in the root package) is responsible for rejecting smaller values.
func New(cfg Config, factory Factory) *Pool {
	return &Pool{cfg: cfg, factory: factory, waiters: list.New()}
}

// Acquire returns an idle connection, creates a fresh one if capacity
// allows, or waits FIFO for a release. ctx cancellation and
// AcquireTimeout both remove the caller from the wait queue without
// leaking a turn to anyone behind it.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	e, toClose := p.takeIdleLocked()
	if e != nil {
		p.inUse++
	}
	p.mu.Unlock()
	for _, c := range toClose {
		c.Close()
	}
	if e != nil {
		return &Conn{Raw: e.conn, createdAt: e.createdAt}, nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.live < p.cfg.Size {
		p.live++
		p.mu.Unlock()
		return p.create(ctx)
	}

	w := &waiter{ch: make(chan acquireResult, 1)}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	var timeoutCh <-chan time.Time
	if p.cfg.AcquireTimeout > 0 {
		timer := time.NewTimer(p.cfg.AcquireTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-w.ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.entry != nil {
			p.mu.Lock()
			p.inUse++
			p.mu.Unlock()
			return &Conn{Raw: res.entry.conn, createdAt: res.entry.createdAt}, nil
		}
		// Capacity was freed by a destroyed connection; build our own.
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		p.live++
		p.mu.Unlock()
		return p.create(ctx)
	case <-ctx.Done():
		p.cancelWaiter(elem)
		return nil, ctx.Err()
	case <-timeoutCh:
		p.cancelWaiter(elem)
		return nil, ErrTimeout
	}
}

// create calls factory having already reserved one unit of capacity
// (p.live was incremented by the caller); it gives that unit back on
// failure so a transient error never consumes capacity.
func (p *Pool) create(ctx context.Context) (*Conn, error) {
	conn, err := p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()
	return &Conn{Raw: conn, createdAt: time.Now()}, nil
}

// Release returns a connection to the idle set, or destroys it if it
// was used after an error or has exceeded max_lifetime. A waiting
// caller, if any, is served before the connection is ever placed back
// in the idle set.
func (p *Pool) Release(c *Conn, dirty bool) {
	p.mu.Lock()
	if p.closed {
		p.live--
		p.inUse--
		p.mu.Unlock()
		c.Raw.Close()
		return
	}
	p.inUse--

	destroy := dirty
	if !destroy && p.cfg.MaxLifetime > 0 && time.Since(c.createdAt) > p.cfg.MaxLifetime {
		destroy = true
	}

	if destroy {
		p.live--
		front := p.waiters.Front()
		if front != nil {
			p.waiters.Remove(front)
		}
		p.mu.Unlock()
		if front != nil {
			front.Value.(*waiter).ch <- acquireResult{}
		}
		c.Raw.Close()
		return
	}

	front := p.waiters.Front()
	if front != nil {
		p.waiters.Remove(front)
		p.mu.Unlock()
		front.Value.(*waiter).ch <- acquireResult{entry: &entry{conn: c.Raw, createdAt: c.createdAt}}
		return
	}

	p.idle = append(p.idle, &entry{conn: c.Raw, createdAt: c.createdAt, idleSince: time.Now()})
	p.mu.Unlock()
}

// Close blocks new acquisitions, fails every queued waiter with
// ErrClosed, and destroys idle connections. In-use connections are
// destroyed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.live -= len(idle)

	var waiters []*waiter
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		waiters = append(waiters, e.Value.(*waiter))
	}
	p.waiters.Init()
	p.mu.Unlock()

	for _, w := range waiters {
		w.ch <- acquireResult{err: ErrClosed}
	}
	for _, e := range idle {
		e.conn.Close()
	}
	return nil
}

// Stats returns a point-in-time occupancy snapshot.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Idle: len(p.idle), InUse: p.inUse, Waiters: p.waiters.Len(), Live: p.live}
}

// takeIdleLocked pops idle-timed-out and lifetime-expired entries,
// returning the first still-valid one (if any) and the connections
// that must be closed by the caller once the lock is released.
func (p *Pool) takeIdleLocked() (*entry, []Connection) {
	var toClose []Connection
	for len(p.idle) > 0 {
		e := p.idle[0]
		p.idle = p.idle[1:]
		now := time.Now()
		if p.cfg.IdleTimeout > 0 && now.Sub(e.idleSince) > p.cfg.IdleTimeout {
			p.live--
			toClose = append(toClose, e.conn)
			continue
		}
		if p.cfg.MaxLifetime > 0 && now.Sub(e.createdAt) > p.cfg.MaxLifetime {
			p.live--
			toClose = append(toClose, e.conn)
			continue
		}
		return e, toClose
	}
	return nil, toClose
}

// cancelWaiter removes elem from the wait queue. If a release already
// popped it and handed it a result, the result is recovered from the
// waiter's buffered channel and passed on so neither the connection
// nor the freed capacity it represents is lost.
func (p *Pool) cancelWaiter(elem *list.Element) {
	p.mu.Lock()
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		if e == elem {
			p.waiters.Remove(e)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	res := <-elem.Value.(*waiter).ch
	if res.entry != nil {
		p.requeue(res.entry)
	} else if res.err == nil {
		p.wakeNext()
	}
}

// requeue hands a recovered connection to the next waiter, or parks it
// in the idle set.
func (p *Pool) requeue(e *entry) {
	p.mu.Lock()
	if p.closed {
		p.live--
		p.mu.Unlock()
		e.conn.Close()
		return
	}
	front := p.waiters.Front()
	if front != nil {
		p.waiters.Remove(front)
		p.mu.Unlock()
		front.Value.(*waiter).ch <- acquireResult{entry: e}
		return
	}
	e.idleSince = time.Now()
	p.idle = append(p.idle, e)
	p.mu.Unlock()
}

// wakeNext passes a freed unit of capacity to the next waiter, if any.
func (p *Pool) wakeNext() {
	p.mu.Lock()
	front := p.waiters.Front()
	if front != nil {
		p.waiters.Remove(front)
	}
	p.mu.Unlock()
	if front != nil {
		front.Value.(*waiter).ch <- acquireResult{}
	}
}
