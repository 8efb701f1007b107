package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when work is submitted to a closed pool.
var ErrPoolClosed = errors.New("parallel: pool closed")

// WorkerPool is a pool of goroutines executing work groups.
//
// Each worker has its own queue. Workers steal from other queues when their
// own is empty, which balances load when some groups are slower than others.
// A call to Run or ExecuteAll returns only after every item it queued has
// finished, so consecutive calls are separated by a full barrier.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	// workQueues holds per-worker work queues.
	workQueues []chan func()

	// done signals workers to stop.
	done chan struct{}

	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
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

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(own)
			return

		case work := <-own:
			work()

		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

// drainQueue executes all remaining work in a queue.
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

// steal attempts to take work from another worker's queue.
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

// batch tracks completion and the first failure of one Run call.
type batch struct {
	wg   sync.WaitGroup
	once sync.Once
	err  error
}

func (b *batch) fail(err error) {
	b.once.Do(func() { b.err = err })
}

// wrap runs fn, converting a panic into the batch error.
func (b *batch) wrap(fn func()) func() {
	return func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.fail(fmt.Errorf("parallel: work item panicked: %v", r))
			}
		}()
		fn()
	}
}

// Run executes kernel once for every group in [0, groups) and waits for all
// of them. Groups are chunked across workers so that each queued item covers
// a contiguous range.
//
// Cancellation is checked before each chunk starts; chunks already running
// complete. The first panic or the context error is returned.
func (p *WorkerPool) Run(ctx context.Context, groups int, kernel func(group int)) error {
	if groups <= 0 {
		return nil
	}
	if !p.running.Load() {
		return ErrPoolClosed
	}

	chunks := min(groups, p.workers*4)
	size := (groups + chunks - 1) / chunks

	work := make([]func(), 0, chunks)
	for lo := 0; lo < groups; lo += size {
		hi := min(lo+size, groups)
		work = append(work, func() {
			if ctx.Err() != nil {
				return
			}
			for g := lo; g < hi; g++ {
				kernel(g)
			}
		})
	}

	if err := p.ExecuteAll(work); err != nil {
		return err
	}
	return ctx.Err()
}

// ExecuteAll distributes work across workers and waits for all to complete.
// A panicking item does not stop the others; the first panic is returned as
// an error after every item has finished.
func (p *WorkerPool) ExecuteAll(work []func()) error {
	if len(work) == 0 {
		return nil
	}
	if !p.running.Load() {
		return ErrPoolClosed
	}

	b := &batch{}
	b.wg.Add(len(work))

	for i, fn := range work {
		wrapped := b.wrap(fn)
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			// Closing: the queue may no longer be drained.
			b.fail(ErrPoolClosed)
			b.wg.Add(-(len(work) - i))
			b.wg.Wait()
			return b.err
		}
	}

	b.wg.Wait()
	return b.err
}

// Close gracefully shuts down the pool.
// It stops accepting new work, waits for all queued work to complete,
// and then stops all workers.
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
