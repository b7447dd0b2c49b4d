/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package workerpool implements a bounded FIFO task queue with an
// elastic worker count between a core and a max size, the way request
// handlers are kept off the reactor's event-loop goroutines.
package workerpool

import (
	"errors"
	"sync"
	"sync/atomic"

	liblog "github.com/nabbar/chatreactor/logger"
)

// ErrStopped is returned by Post when the pool is shutting down and
// the task was dropped instead of run.
var ErrStopped = errors.New("workerpool: pool is stopped")

// Task is a unit of work dispatched to a worker goroutine.
type Task func()

// Pool is a bounded task queue backed by core..max worker goroutines.
// Workers spawned beyond core stay alive until Stop; the pool does not
// shrink back to core when load drops.
type Pool struct {
	log liblog.Logger

	core int
	max  int

	mu       sync.Mutex
	queue    []Task
	capacity int
	current  int32 // currentThreadCount
	active   int32 // activeThreadCount
	rejected int64 // rejectedCount
	stopping bool

	notEmpty *sync.Cond
	notFull  *sync.Cond
	wg       sync.WaitGroup
}

// New constructs a pool with `core` always-running workers, able to
// grow up to `max` under load, backed by a FIFO queue of `capacity`
// pending tasks.
func New(log liblog.Logger, core, max, capacity int) *Pool {
	if core < 1 {
		core = 1
	}
	if max < core {
		max = core
	}
	if capacity < 1 {
		capacity = 1
	}

	p := &Pool{
		log:      log,
		core:     core,
		max:      max,
		capacity: capacity,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)

	for i := 0; i < core; i++ {
		p.spawnWorker()
	}

	return p
}

// Post enqueues task, blocking until the queue has room or the pool is
// stopping, in which case the task is dropped and ErrStopped is
// returned. If the queue is under load (more queued tasks than
// current workers) and current < max, a new worker is spawned before
// the task is enqueued.
func (p *Pool) Post(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) >= p.capacity && !p.stopping {
		p.notFull.Wait()
	}
	if p.stopping {
		return ErrStopped
	}

	if len(p.queue) > int(atomic.LoadInt32(&p.current)) && int(atomic.LoadInt32(&p.current)) < p.max {
		p.spawnWorkerLocked()
	}

	p.queue = append(p.queue, task)
	p.notEmpty.Signal()
	return nil
}

// TryPost enqueues task only if the queue is not full, returning false
// (and incrementing the rejected counter) otherwise.
func (p *Pool) TryPost(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping || len(p.queue) >= p.capacity {
		atomic.AddInt64(&p.rejected, 1)
		return false
	}

	if len(p.queue) > int(atomic.LoadInt32(&p.current)) && int(atomic.LoadInt32(&p.current)) < p.max {
		p.spawnWorkerLocked()
	}

	p.queue = append(p.queue, task)
	p.notEmpty.Signal()
	return true
}

// spawnWorker starts a new worker goroutine, taking the lock itself.
func (p *Pool) spawnWorker() {
	p.mu.Lock()
	p.spawnWorkerLocked()
	p.mu.Unlock()
}

// spawnWorkerLocked starts a new worker goroutine; caller holds p.mu.
func (p *Pool) spawnWorkerLocked() {
	atomic.AddInt32(&p.current, 1)
	p.wg.Add(1)
	go p.workerLoop()
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	defer atomic.AddInt32(&p.current, -1)

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopping {
			p.notEmpty.Wait()
		}
		if len(p.queue) == 0 && p.stopping {
			p.mu.Unlock()
			return
		}

		task := p.queue[0]
		p.queue = p.queue[1:]
		p.notFull.Signal()
		p.mu.Unlock()

		atomic.AddInt32(&p.active, 1)
		p.runTask(task)
		atomic.AddInt32(&p.active, -1)
	}
}

func (p *Pool) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil && p.log != nil {
			p.log.Error("workerpool task panicked", r)
		}
	}()
	task()
}

// QueueSize returns the number of tasks currently queued.
func (p *Pool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// CurrentThreadCount returns the number of live worker goroutines.
func (p *Pool) CurrentThreadCount() int {
	return int(atomic.LoadInt32(&p.current))
}

// ActiveThreadCount returns the number of workers currently executing
// a task.
func (p *Pool) ActiveThreadCount() int {
	return int(atomic.LoadInt32(&p.active))
}

// RejectedCount returns the number of tasks dropped by TryPost because
// the queue was full.
func (p *Pool) RejectedCount() int64 {
	return atomic.LoadInt64(&p.rejected)
}

// Stop signals every worker to exit once the queue drains, then
// blocks until all worker goroutines have returned.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopping = true
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}
