//go:build !linux

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

package poller

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is the non-Linux fallback: poll(2) is level-triggered, so
// it reports a ready fd on every call until the consumer actually
// drains it, unlike the edge-triggered epoll path. Correct but less
// efficient under high fan-out; acceptable for non-Linux development
// targets.
type pollPoller struct {
	m    sync.Mutex
	want map[int]Interest
}

func newPlatformPoller() (Poller, error) {
	return &pollPoller{want: make(map[int]Interest)}, nil
}

func (p *pollPoller) AddOrUpdate(it Interest) error {
	p.m.Lock()
	defer p.m.Unlock()
	p.want[it.Fd] = it
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	p.m.Lock()
	defer p.m.Unlock()
	delete(p.want, fd)
	return nil
}

func (p *pollPoller) Poll(timeoutMs int) ([]Event, time.Time, error) {
	p.m.Lock()
	fds := make([]unix.PollFd, 0, len(p.want))
	for fd, it := range p.want {
		var ev int16
		if it.Readable {
			ev |= unix.POLLIN
		}
		if it.Writable {
			ev |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
	}
	p.m.Unlock()

	n, err := unix.Poll(fds, timeoutMs)
	now := time.Now()

	if err != nil {
		if err == unix.EINTR {
			return nil, now, nil
		}
		return nil, now, err
	}

	if n == 0 {
		return nil, now, nil
	}

	out := make([]Event, 0, n)
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		out = append(out, Event{
			Fd:       int(pfd.Fd),
			Readable: pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Error:    pfd.Revents&(unix.POLLERR|unix.POLLHUP) != 0,
		})
	}

	return out, now, nil
}

func (p *pollPoller) Close() error {
	return nil
}
