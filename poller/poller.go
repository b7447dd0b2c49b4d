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

// Package poller wraps the OS readiness notifier behind a small
// capability interface: addOrUpdate/remove/poll. The Linux
// implementation is edge-triggered epoll; other platforms fall back to
// a level-triggered poll(2) loop. Either way, callers MUST drain a
// ready fd until the underlying read/write returns would-block, since
// the edge-triggered path will not report the same transition twice.
package poller

import "time"

// Interest describes which readiness events a file descriptor should
// be watched for.
type Interest struct {
	Fd       int
	Readable bool
	Writable bool
}

// Event reports the readiness state observed for one file descriptor
// during a Poll call.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Error    bool
}

// Poller is the capability a reactor EventLoop needs from the OS: add
// or update the interest set for a descriptor, remove it, and block
// for the next batch of readiness events.
type Poller interface {
	// AddOrUpdate registers fd for the given interests, or updates an
	// already-registered fd's interests.
	AddOrUpdate(it Interest) error

	// Remove stops watching fd. It is not an error to remove an fd that
	// was never added.
	Remove(fd int) error

	// Poll blocks up to timeoutMs milliseconds (0 = return immediately,
	// negative = block indefinitely) and returns the descriptors that
	// became ready, plus the monotonic wake-up timestamp.
	Poll(timeoutMs int) ([]Event, time.Time, error)

	// Close releases the poller's own file descriptor.
	Close() error
}

// New returns the platform's default Poller implementation.
func New() (Poller, error) {
	return newPlatformPoller()
}
