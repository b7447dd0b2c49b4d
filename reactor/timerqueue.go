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

package reactor

import (
	"container/heap"
	"time"
)

// timerEntry is one scheduled callback. Entries are ordered by when,
// ties broken by a strictly increasing sequence number so insertion
// order decides among simultaneous timers.
type timerEntry struct {
	when     time.Time
	interval time.Duration
	seq      uint64
	cb       func()
	index    int
	canceled bool
}

// timerHeap is a container/heap.Interface over *timerEntry, ordered by
// (when, seq).
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerID identifies a scheduled timer so it can be canceled.
type TimerID uint64

// TimerQueue is a monotonic priority queue of timers. It is not safe
// for concurrent use; it is only ever touched from the owning
// EventLoop's goroutine, which serializes access through runInLoop.
type TimerQueue struct {
	h       timerHeap
	nextSeq uint64
	byID    map[TimerID]*timerEntry
}

// NewTimerQueue returns an empty TimerQueue.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{byID: make(map[TimerID]*timerEntry)}
}

// Add schedules cb to fire at when, and (if interval > 0) every
// interval thereafter. It returns an identity usable with Cancel.
func (q *TimerQueue) Add(when time.Time, interval time.Duration, cb func()) TimerID {
	q.nextSeq++
	e := &timerEntry{when: when, interval: interval, seq: q.nextSeq, cb: cb}
	heap.Push(&q.h, e)
	q.byID[TimerID(e.seq)] = e
	return TimerID(e.seq)
}

// Cancel marks a scheduled timer as canceled. A canceled timer is
// skipped when it is popped rather than removed immediately, avoiding
// an O(n) heap search.
func (q *TimerQueue) Cancel(id TimerID) {
	if e, ok := q.byID[id]; ok {
		e.canceled = true
		delete(q.byID, id)
	}
}

// NextDeadline returns the when of the earliest live timer and true,
// or the zero time and false if the queue is empty.
func (q *TimerQueue) NextDeadline() (time.Time, bool) {
	for len(q.h) > 0 {
		if q.h[0].canceled {
			heap.Pop(&q.h)
			continue
		}
		return q.h[0].when, true
	}
	return time.Time{}, false
}

// Expire fires every live timer whose when is not after now, reinserts
// repeating ones at now+interval, and returns how many callbacks ran.
func (q *TimerQueue) Expire(now time.Time) int {
	fired := 0

	for len(q.h) > 0 {
		top := q.h[0]
		if top.canceled {
			heap.Pop(&q.h)
			continue
		}
		if top.when.After(now) {
			break
		}

		heap.Pop(&q.h)
		delete(q.byID, TimerID(top.seq))

		top.cb()
		fired++

		if top.interval > 0 {
			q.nextSeq++
			next := &timerEntry{
				when:     now.Add(top.interval),
				interval: top.interval,
				seq:      q.nextSeq,
				cb:       top.cb,
			}
			heap.Push(&q.h, next)
			q.byID[TimerID(next.seq)] = next
		}
	}

	return fired
}
