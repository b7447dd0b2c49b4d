//go:build linux

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

const initialEventCap = 128

type epollPoller struct {
	fd     int
	m      sync.Mutex
	events []unix.EpollEvent
}

func newPlatformPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &epollPoller{
		fd:     fd,
		events: make([]unix.EpollEvent, initialEventCap),
	}, nil
}

func (p *epollPoller) AddOrUpdate(it Interest) error {
	ev := unix.EpollEvent{
		Fd:     int32(it.Fd),
		Events: unix.EPOLLET,
	}
	if it.Readable {
		ev.Events |= unix.EPOLLIN
	}
	if it.Writable {
		ev.Events |= unix.EPOLLOUT
	}

	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, it.Fd, &ev); err != nil {
		return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, it.Fd, &ev)
	}

	return nil
}

func (p *epollPoller) Remove(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

func (p *epollPoller) Poll(timeoutMs int) ([]Event, time.Time, error) {
	p.m.Lock()
	buf := p.events
	p.m.Unlock()

	n, err := unix.EpollWait(p.fd, buf, timeoutMs)
	now := time.Now()

	if err != nil {
		if err == unix.EINTR {
			return nil, now, nil
		}
		return nil, now, err
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := buf[i]
		out = append(out, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Error:    e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}

	if n == len(buf) {
		p.m.Lock()
		p.events = make([]unix.EpollEvent, len(buf)*2)
		p.m.Unlock()
	}

	return out, now, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
