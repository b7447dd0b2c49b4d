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
	"sync/atomic"
	"time"

	"github.com/nabbar/chatreactor/buffer"
	liblog "github.com/nabbar/chatreactor/logger"
	"github.com/nabbar/chatreactor/reactor"
	"golang.org/x/sys/unix"
)

// State is a TcpConnection's lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

// defaultHighWaterMark is the output-buffer size above which
// HighWaterMarkCallback fires, matching a conservative per-connection
// backpressure threshold.
const defaultHighWaterMark = 64 * 1024 * 1024

// TcpConnection is a single accepted socket bound to one EventLoop,
// with buffered, backpressure-aware reads and writes.
type TcpConnection struct {
	name   string
	fd     int
	loop   *reactor.EventLoop
	ch     *reactor.Channel
	log    liblog.Logger
	state  int32
	remote string

	input  *buffer.Buffer
	output *buffer.Buffer

	highWaterMark int

	context interface{} // opaque protocol-layer state (current codec, parsed session, ...)

	onMessage         func(conn *TcpConnection, in *buffer.Buffer, now time.Time)
	onWriteComplete   func(conn *TcpConnection)
	onHighWaterMark   func(conn *TcpConnection, outputLen int)
	onClose           func(conn *TcpConnection)
}

// NewTcpConnection wraps an already-accepted, non-blocking fd.
func NewTcpConnection(name string, fd int, remote string, loop *reactor.EventLoop, log liblog.Logger) *TcpConnection {
	c := &TcpConnection{
		name:          name,
		fd:            fd,
		loop:          loop,
		log:           log,
		remote:        remote,
		state:         int32(StateConnecting),
		input:         buffer.New(4096),
		output:        buffer.New(4096),
		highWaterMark: defaultHighWaterMark,
	}
	return c
}

// Name returns the connection's unique "serverName-ipPort#seq" identity.
func (c *TcpConnection) Name() string { return c.name }

// RemoteAddr returns the peer's "ip:port" string.
func (c *TcpConnection) RemoteAddr() string { return c.remote }

// Fd returns the underlying file descriptor.
func (c *TcpConnection) Fd() int { return c.fd }

// Context returns the opaque protocol-layer state attached to this
// connection (typically the active codec/router state).
func (c *TcpConnection) Context() interface{} { return c.context }

// SetContext attaches opaque protocol-layer state to this connection.
func (c *TcpConnection) SetContext(ctx interface{}) { c.context = ctx }

// State returns the connection's current lifecycle state. Safe to call
// from any goroutine.
func (c *TcpConnection) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// Connected reports whether the connection is in the Connected state.
// Safe to call from any goroutine.
func (c *TcpConnection) Connected() bool {
	return c.State() == StateConnected
}

// OnMessage registers the callback invoked after a successful read
// with data appended to the input buffer.
func (c *TcpConnection) OnMessage(fn func(conn *TcpConnection, in *buffer.Buffer, now time.Time)) {
	c.onMessage = fn
}

// OnWriteComplete registers the callback invoked once the output
// buffer fully drains.
func (c *TcpConnection) OnWriteComplete(fn func(conn *TcpConnection)) { c.onWriteComplete = fn }

// OnHighWaterMark registers the callback invoked when the output
// buffer crosses HighWaterMark upward.
func (c *TcpConnection) OnHighWaterMark(fn func(conn *TcpConnection, outputLen int)) {
	c.onHighWaterMark = fn
}

// OnClose registers the callback invoked once the connection finishes
// closing, after which the owner may forget it.
func (c *TcpConnection) OnClose(fn func(conn *TcpConnection)) { c.onClose = fn }

// SetHighWaterMark overrides the default output-buffer backpressure
// threshold.
func (c *TcpConnection) SetHighWaterMark(n int) { c.highWaterMark = n }

// establishConnection wires the channel into loop and marks the
// connection Connected. Must run on loop's goroutine.
func (c *TcpConnection) establishConnection() error {
	c.ch = reactor.NewChannel(c.fd)
	c.ch.SetOwner(c)
	c.ch.OnRead(c.handleRead)
	c.ch.OnWrite(c.handleWrite)
	c.ch.OnClose(c.handleClose)
	c.ch.OnError(c.handleError)
	c.ch.EnableReading()

	atomic.StoreInt32(&c.state, int32(StateConnected))
	return c.loop.AddChannel(c.ch)
}

// Send queues bytes for writing. Safe to call from any goroutine: if
// called off the owning loop, the bytes are copied and the send is
// reposted onto the loop.
func (c *TcpConnection) Send(data []byte) {
	if len(data) == 0 {
		return
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	c.loop.QueueInLoop(func() { c.sendInLoop(cp) })
}

func (c *TcpConnection) sendInLoop(data []byte) {
	if c.State() == StateDisconnected {
		return
	}

	if c.output.Len() == 0 && !c.ch.IsWriting() {
		n, err := unix.Write(c.fd, data)
		if err != nil {
			if err != unix.EAGAIN {
				c.handleError()
				return
			}
			n = 0
		}
		if n < len(data) {
			c.output.Append(data[n:])
			c.ch.EnableWriting()
			_ = c.loop.UpdateChannel(c.ch)
			c.checkHighWaterMark()
		} else if c.onWriteComplete != nil {
			c.onWriteComplete(c)
		}
		return
	}

	c.output.Append(data)
	c.checkHighWaterMark()
}

func (c *TcpConnection) checkHighWaterMark() {
	if c.output.Len() >= c.highWaterMark && c.onHighWaterMark != nil {
		c.onHighWaterMark(c, c.output.Len())
	}
}

func (c *TcpConnection) handleRead() {
	for c.State() != StateDisconnected {
		n, err := c.input.ReadFromFD(c.fd)
		switch {
		case err == unix.EAGAIN:
			return
		case err != nil:
			if c.log != nil {
				c.log.Error("connection read failed", err)
			}
			c.handleClose()
			return
		case n > 0:
			if c.onMessage != nil {
				c.onMessage(c, c.input, time.Now())
			}
		default:
			c.handleClose()
			return
		}
	}
}

func (c *TcpConnection) handleWrite() {
	if !c.ch.IsWriting() {
		return
	}

	remaining := c.output.Peek()
	if len(remaining) == 0 {
		c.ch.DisableWriting()
		_ = c.loop.UpdateChannel(c.ch)
		return
	}

	n, err := unix.Write(c.fd, remaining)
	if err != nil {
		if err != unix.EAGAIN {
			c.handleError()
		}
		return
	}
	c.output.Consume(n)

	if c.output.Len() == 0 {
		c.ch.DisableWriting()
		_ = c.loop.UpdateChannel(c.ch)
		if c.onWriteComplete != nil {
			c.onWriteComplete(c)
		}
		if c.State() == StateDisconnecting {
			_ = unix.Shutdown(c.fd, unix.SHUT_WR)
		}
	}
}

func (c *TcpConnection) handleError() {
	c.handleClose()
}

func (c *TcpConnection) handleClose() {
	prev := State(atomic.SwapInt32(&c.state, int32(StateDisconnected)))
	if prev == StateDisconnected {
		return
	}

	if c.ch != nil {
		_ = c.loop.RemoveChannel(c.ch)
		c.ch.HandleClose()
	}
	_ = unix.Close(c.fd)

	if c.onClose != nil {
		c.onClose(c)
	}
}

// Shutdown requests a graceful half-close: once the output buffer
// drains, SHUT_WR is issued. If the output buffer is already empty,
// the half-close happens immediately.
func (c *TcpConnection) Shutdown() {
	c.loop.QueueInLoop(func() {
		if c.State() != StateConnected {
			return
		}
		atomic.StoreInt32(&c.state, int32(StateDisconnecting))
		if c.output.Len() == 0 {
			_ = unix.Shutdown(c.fd, unix.SHUT_WR)
		}
	})
}

// ForceClose immediately tears down the connection from any state
// other than Disconnected.
func (c *TcpConnection) ForceClose() {
	c.loop.QueueInLoop(func() {
		if c.State() == StateDisconnected {
			return
		}
		c.handleClose()
	})
}
