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

// Package transport implements the TCP acceptor, per-connection
// buffered I/O, and the worker-loop pool a chat server's reactor is
// built from, on top of the reactor and poller packages.
package transport

import (
	"fmt"
	"os"

	liblog "github.com/nabbar/chatreactor/logger"
	"github.com/nabbar/chatreactor/reactor"
	"golang.org/x/sys/unix"
)

// Acceptor owns the listening socket and the spare fd used to survive
// per-process fd exhaustion.
type Acceptor struct {
	log liblog.Logger

	listenFd int
	channel  *reactor.Channel
	spare    *os.File

	onAccept func(fd int, remoteIP string)
}

// NewAcceptor binds and listens on addr:port. reusePort additionally
// sets SO_REUSEPORT so multiple processes may share the listening
// socket; this is opt-in since not every kernel supports it.
func NewAcceptor(log liblog.Logger, addr string, port int, reusePort bool) (*Acceptor, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: SO_REUSEADDR: %w", err)
	}
	if reusePort {
		if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("transport: SO_REUSEPORT: %w", err)
		}
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: set nonblock: %w", err)
	}

	sa, err := sockaddrFromHostPort(addr, port)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: bind: %w", err)
	}
	if err = unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: listen: %w", err)
	}

	spare, err := os.Open(os.DevNull)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: open spare fd: %w", err)
	}

	return &Acceptor{log: log, listenFd: fd, spare: spare}, nil
}

// listenBacklog is the pending-connection queue length passed to listen(2).
const listenBacklog = 1024

// OnAccept registers the callback invoked with each newly accepted,
// non-blocking, close-on-exec connection fd.
func (a *Acceptor) OnAccept(fn func(fd int, remoteIP string)) {
	a.onAccept = fn
}

// Attach registers the acceptor's readable channel with loop. Must be
// called from loop's own goroutine.
func (a *Acceptor) Attach(loop *reactor.EventLoop) error {
	a.channel = reactor.NewChannel(a.listenFd)
	a.channel.OnRead(a.handleRead)
	a.channel.EnableReading()
	return loop.AddChannel(a.channel)
}

func (a *Acceptor) handleRead() {
	for {
		fd, sa, err := unix.Accept4(a.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EMFILE, unix.ENFILE:
				a.recoverFromFdExhaustion()
				return
			default:
				if a.log != nil {
					a.log.Error("accept failed", err)
				}
				return
			}
		}

		ip := remoteIPFromSockaddr(sa)
		if a.onAccept != nil {
			a.onAccept(fd, ip)
		}
	}
}

// recoverFromFdExhaustion follows spec: close the idle spare fd to
// free one descriptor, accept once to drain the backlog entry that
// triggered EMFILE, close that connection immediately, then reopen
// the spare so the next exhaustion can be handled the same way.
func (a *Acceptor) recoverFromFdExhaustion() {
	if a.spare != nil {
		_ = a.spare.Close()
		a.spare = nil
	}

	fd, _, err := unix.Accept4(a.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err == nil {
		_ = unix.Close(fd)
	}

	if spare, err := os.Open(os.DevNull); err == nil {
		a.spare = spare
	} else if a.log != nil {
		a.log.Error("failed to reopen spare fd after fd exhaustion", err)
	}
}

// Close releases the listening socket and the spare fd.
func (a *Acceptor) Close() error {
	if a.spare != nil {
		_ = a.spare.Close()
	}
	return unix.Close(a.listenFd)
}
