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

import "github.com/nabbar/chatreactor/poller"

// Channel binds one fd to a single owning EventLoop. It does not own
// the fd (the caller closes it) and carries the four dispatch
// callbacks the loop invokes when the poller reports an event. A
// Channel is only ever mutated on its owning loop's goroutine.
type Channel struct {
	fd int

	readable bool
	writable bool

	onRead  func()
	onWrite func()
	onClose func()
	onError func()

	// owner is a strong reference kept alive for the duration of a
	// dispatched callback so the connection cannot be finalized while
	// its handler is still running.
	owner interface{}
}

// NewChannel returns a Channel for fd with no interests and no
// callbacks registered. Use the setters below before adding it to an
// EventLoop.
func NewChannel(fd int) *Channel {
	return &Channel{fd: fd}
}

// Fd returns the channel's file descriptor.
func (c *Channel) Fd() int { return c.fd }

// SetOwner attaches the shared object (typically a TcpConnection) this
// channel's lifetime is tied to.
func (c *Channel) SetOwner(owner interface{}) { c.owner = owner }

// Owner returns the object set by SetOwner, or nil.
func (c *Channel) Owner() interface{} { return c.owner }

// OnRead registers the callback invoked when the fd becomes readable.
func (c *Channel) OnRead(fn func()) *Channel { c.onRead = fn; return c }

// OnWrite registers the callback invoked when the fd becomes writable.
func (c *Channel) OnWrite(fn func()) *Channel { c.onWrite = fn; return c }

// OnClose registers the callback invoked when the poller reports the
// fd's peer closed or hung up.
func (c *Channel) OnClose(fn func()) *Channel { c.onClose = fn; return c }

// OnError registers the callback invoked when the poller reports an
// error condition on the fd.
func (c *Channel) OnError(fn func()) *Channel { c.onError = fn; return c }

// EnableReading arms the readable interest.
func (c *Channel) EnableReading() { c.readable = true }

// DisableReading clears the readable interest.
func (c *Channel) DisableReading() { c.readable = false }

// EnableWriting arms the writable interest.
func (c *Channel) EnableWriting() { c.writable = true }

// DisableWriting clears the writable interest.
func (c *Channel) DisableWriting() { c.writable = false }

// IsWriting reports whether the writable interest is currently armed.
func (c *Channel) IsWriting() bool { return c.writable }

// HandleClose invokes the close callback. The poller itself only
// reports readable/writable/error; "close" is a connection-layer
// decision (EOF on read, or a peer hang-up folded into an error
// event) so the owning connection calls this explicitly rather than
// dispatch inferring it from a raw poller.Event.
func (c *Channel) HandleClose() {
	if c.onClose != nil {
		c.onClose()
	}
}

// interest returns the poller.Interest this channel currently wants.
func (c *Channel) interest() poller.Interest {
	return poller.Interest{Fd: c.fd, Readable: c.readable, Writable: c.writable}
}

// dispatch invokes the callbacks matching ev, close/error taking
// priority over a stale read/write report on the same transition.
func (c *Channel) dispatch(ev poller.Event) {
	if ev.Error {
		if c.onError != nil {
			c.onError()
		}
		return
	}
	if ev.Readable {
		if c.onRead != nil {
			c.onRead()
		}
	}
	if ev.Writable {
		if c.onWrite != nil {
			c.onWrite()
		}
	}
}
