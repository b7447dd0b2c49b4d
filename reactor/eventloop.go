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

// Package reactor implements a single-threaded, channel-based event
// loop over the poller package: one goroutine per loop, one poller
// per loop, every channel and timer mutated exclusively from that
// goroutine. Cross-goroutine callers reach the loop only through
// RunInLoop/QueueInLoop, mirroring the one-thread-one-reactor design
// a TcpServer's LoopPool is built from.
package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	liblog "github.com/nabbar/chatreactor/logger"
	"github.com/nabbar/chatreactor/poller"
)

// pollCeiling bounds how long a single poll() call may block even when
// no timer is pending, so a loop notices Stop() within a bounded time.
const pollCeiling = 10 * time.Second

// EventLoop is a single-threaded reactor: poll, dispatch ready
// channels, then run pending tasks queued from other goroutines.
type EventLoop struct {
	log liblog.Logger
	pol poller.Poller

	channels map[int]*Channel
	timers   *TimerQueue

	mu      sync.Mutex
	pending []func()
	running bool // callingPendingFunctors: true while draining pending tasks

	started int32
	stopped int32

	wakep *wakePipe
}

// NewEventLoop constructs a loop bound to its own poller instance. The
// loop is not running until Run is called; Run must be invoked exactly
// once, normally as the body of a dedicated goroutine, mirroring the
// "construction asserts thread-local uniqueness" invariant: a second
// Run call on the same loop returns an error instead of racing the
// first.
func NewEventLoop(log liblog.Logger) (*EventLoop, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}

	wp, err := newWakePipe()
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	l := &EventLoop{
		log:      log,
		pol:      p,
		channels: make(map[int]*Channel),
		timers:   NewTimerQueue(),
		wakep:    wp,
	}

	wakeCh := NewChannel(wp.readFd())
	wakeCh.OnRead(func() { wp.drain() })
	l.addChannelLocked(wakeCh, true, false)

	return l, nil
}

// Run blocks, iterating poll/dispatch/run-pending-tasks until Stop is
// called. It MUST be run on the goroutine that will be considered this
// loop's "thread" for the lifetime of the loop: AddChannel, timers, and
// channel interest mutations are only safe from inside callbacks
// dispatched by this call.
func (l *EventLoop) Run() error {
	if !atomic.CompareAndSwapInt32(&l.started, 0, 1) {
		return fmt.Errorf("reactor: EventLoop.Run called more than once")
	}

	for atomic.LoadInt32(&l.stopped) == 0 {
		timeoutMs := l.nextTimeoutMs()

		events, now, err := l.pol.Poll(timeoutMs)
		if err != nil {
			if l.log != nil {
				l.log.Error("poller wait failed", err)
			}
			continue
		}

		for _, ev := range events {
			if ch, ok := l.channels[ev.Fd]; ok {
				ch.dispatch(ev)
			}
		}

		l.timers.Expire(now)
		l.runPendingTasks()
	}

	return l.pol.Close()
}

// Stop requests loop termination; the loop notices within at most
// pollCeiling and the next Run iteration returns.
func (l *EventLoop) Stop() {
	atomic.StoreInt32(&l.stopped, 1)
	l.wake()
}

// nextTimeoutMs returns the earliest of (next timer deadline, the
// 10s ceiling), in milliseconds.
func (l *EventLoop) nextTimeoutMs() int {
	when, ok := l.timers.NextDeadline()
	if !ok {
		return int(pollCeiling / time.Millisecond)
	}

	d := time.Until(when)
	if d <= 0 {
		return 0
	}
	if d > pollCeiling {
		d = pollCeiling
	}
	return int(d / time.Millisecond)
}

// RunInLoop schedules fn on this loop's goroutine through QueueInLoop.
// The caller's goroutine is not compared with the loop's, so fn never
// runs inline, even when RunInLoop is called from a callback the loop
// is dispatching; it runs in a later pending-task pass.
func (l *EventLoop) RunInLoop(fn func()) {
	l.QueueInLoop(fn)
}

// QueueInLoop always appends fn to the pending-task queue and wakes
// the loop, so a loop blocked in poll, or one currently running its
// pending tasks, picks fn up on its next iteration.
func (l *EventLoop) QueueInLoop(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	l.wake()
}

// runPendingTasks drains the pending queue under the lock into a local
// slice, then runs it lock-free so tasks queued during execution run
// on the next iteration rather than this one.
func (l *EventLoop) runPendingTasks() {
	l.mu.Lock()
	l.running = true
	tasks := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// RunAt schedules cb to fire once at when.
func (l *EventLoop) RunAt(when time.Time, cb func()) TimerID {
	return l.timers.Add(when, 0, cb)
}

// RunAfter schedules cb to fire once after d.
func (l *EventLoop) RunAfter(d time.Duration, cb func()) TimerID {
	return l.timers.Add(time.Now().Add(d), 0, cb)
}

// RunEvery schedules cb to fire every d, starting after the first d.
func (l *EventLoop) RunEvery(d time.Duration, cb func()) TimerID {
	return l.timers.Add(time.Now().Add(d), d, cb)
}

// CancelTimer cancels a timer previously returned by RunAt/RunAfter/RunEvery.
func (l *EventLoop) CancelTimer(id TimerID) {
	l.timers.Cancel(id)
}

// AddChannel registers ch with this loop's poller for the interests
// currently armed on it. Must be called from the loop's own goroutine.
func (l *EventLoop) AddChannel(ch *Channel) error {
	return l.addChannelLocked(ch, ch.readable, ch.writable)
}

func (l *EventLoop) addChannelLocked(ch *Channel, readable, writable bool) error {
	l.channels[ch.Fd()] = ch
	return l.pol.AddOrUpdate(poller.Interest{Fd: ch.Fd(), Readable: readable, Writable: writable})
}

// UpdateChannel re-applies ch's current interests to the poller. Must
// be called from the loop's own goroutine after EnableReading /
// DisableWriting / etc.
func (l *EventLoop) UpdateChannel(ch *Channel) error {
	return l.pol.AddOrUpdate(ch.interest())
}

// RemoveChannel stops watching ch and forgets it. Must be called from
// the loop's own goroutine.
func (l *EventLoop) RemoveChannel(ch *Channel) error {
	delete(l.channels, ch.Fd())
	return l.pol.Remove(ch.Fd())
}

// wake writes one byte to the internal wake-up pipe; its readable
// callback drains it on the loop's goroutine.
func (l *EventLoop) wake() {
	l.wakep.wake()
}
