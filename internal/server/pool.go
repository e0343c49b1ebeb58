package server

import (
	"net"
	"sync"

	"github.com/eapache/queue"

	"github.com/conneroisu/scriptserv/internal/errors"
)

// pool runs a fixed number of workers over a FIFO of accepted
// connections. With limit 0 the FIFO is unbounded; otherwise Submit fails
// with ErrBacklogFull once limit connections are waiting.
type pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue
	limit   int
	closed  bool
	active  int

	handle func(net.Conn)
	wg     sync.WaitGroup
}

func newPool(workers, limit int, handle func(net.Conn)) *pool {
	p := &pool{
		pending: queue.New(),
		limit:   limit,
		handle:  handle,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Submit queues c for a worker. It never blocks on request processing.
func (p *pool) Submit(c net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.NewInternalError("worker pool closed", nil)
	}
	if p.limit > 0 && p.pending.Length() >= p.limit {
		return errors.ErrBacklogFull
	}
	p.pending.Add(c)
	p.cond.Signal()
	return nil
}

func (p *pool) work() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.pending.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.pending.Length() == 0 {
			p.mu.Unlock()
			return
		}
		c := p.pending.Remove().(net.Conn)
		p.active++
		p.mu.Unlock()

		p.handle(c)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

// Close stops accepting work and waits until queued and in-flight
// connections are done.
func (p *pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Queued returns the number of connections waiting for a worker.
func (p *pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Length()
}

// Active returns the number of connections being handled.
func (p *pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
