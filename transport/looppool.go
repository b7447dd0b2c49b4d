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

package transport

import (
	"sync"
	"sync/atomic"

	liblog "github.com/nabbar/chatreactor/logger"
	"github.com/nabbar/chatreactor/reactor"
)

// LoopPool owns a fixed set of worker EventLoops, each run on its own
// goroutine, and hands connections out round-robin so load spreads
// evenly across them.
type LoopPool struct {
	log   liblog.Logger
	loops []*reactor.EventLoop
	wg    sync.WaitGroup
	next  uint64
}

// NewLoopPool constructs n worker loops; n below 1 is raised to 1. The
// pool's loops are separate from the main loop that runs the acceptor,
// so a pool of 1 runs every connection on one worker loop.
func NewLoopPool(log liblog.Logger, n int) (*LoopPool, error) {
	if n < 1 {
		n = 1
	}

	p := &LoopPool{log: log}
	for i := 0; i < n; i++ {
		l, err := reactor.NewEventLoop(log)
		if err != nil {
			p.Stop()
			return nil, err
		}
		p.loops = append(p.loops, l)
	}
	return p, nil
}

// Start launches each worker loop on its own goroutine.
func (p *LoopPool) Start() {
	for _, l := range p.loops {
		p.wg.Add(1)
		loop := l
		go func() {
			defer p.wg.Done()
			if err := loop.Run(); err != nil && p.log != nil {
				p.log.Error("worker loop exited", err)
			}
		}()
	}
}

// Next returns the next worker loop, round-robin.
func (p *LoopPool) Next() *reactor.EventLoop {
	n := atomic.AddUint64(&p.next, 1)
	return p.loops[int(n-1)%len(p.loops)]
}

// Loops returns the pool's worker loops.
func (p *LoopPool) Loops() []*reactor.EventLoop {
	return p.loops
}

// Stop signals every worker loop to stop and waits for its goroutine
// to return.
func (p *LoopPool) Stop() {
	for _, l := range p.loops {
		l.Stop()
	}
	p.wg.Wait()
}
