// Package parallel runs software kernel invocations on a pool of host
// goroutines.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines that executes kernel work-groups.
//
// Every worker owns a queue. A worker whose queue is empty steals groups
// from the other queues, which keeps the pool busy when some work-groups
// take longer than others (the Mandelbrot set interior, for example).
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool

	// dispatched counts work-groups executed since creation.
	dispatched atomic.Uint64
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Range invokes fn once for every index in [0, n), split into contiguous
// chunks of at most chunk indices. It blocks until every chunk has run.
//
// A panic inside fn is recovered and returned as an error; the remaining
// chunks still run. When the pool is closed Range runs the chunks on the
// calling goroutine.
func (p *WorkerPool) Range(n, chunk int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}
	if chunk <= 0 {
		chunk = 1
	}

	var (
		wg       sync.WaitGroup
		panicMu  sync.Mutex
		panicErr error
	)
	run := func(lo, hi int) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				panicMu.Lock()
				if panicErr == nil {
					panicErr = fmt.Errorf("parallel: kernel panic at index %d..%d: %v", lo, hi-1, r)
				}
				panicMu.Unlock()
			}
		}()
		for i := lo; i < hi; i++ {
			fn(i)
		}
	}

	groups := (n + chunk - 1) / chunk
	wg.Add(groups)
	for g := range groups {
		lo := g * chunk
		hi := min(lo+chunk, n)
		work := func() { run(lo, hi) }

		if !p.running.Load() {
			work()
			continue
		}
		select {
		case p.workQueues[g%p.workers] <- work:
		case <-p.done:
			work()
		}
	}
	wg.Wait()

	p.dispatched.Add(uint64(groups)) //nolint:gosec // groups is positive
	return panicErr
}

// Close stops the workers after draining queued work.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// Dispatched returns the number of chunks executed through Range.
func (p *WorkerPool) Dispatched() uint64 {
	return p.dispatched.Load()
}
