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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nabbar/chatreactor/buffer"
	liblog "github.com/nabbar/chatreactor/logger"
	"github.com/nabbar/chatreactor/reactor"
)

// TcpServer owns the Acceptor, the worker LoopPool, and the live
// connection table, and fans user callbacks out to each connection.
type TcpServer struct {
	log        liblog.Logger
	name       string
	mainLoop   *reactor.EventLoop
	acceptor   *Acceptor
	pool       *LoopPool
	seq        uint64
	connsMu    sync.Mutex
	conns      map[string]*TcpConnection

	onConnection    func(conn *TcpConnection)
	onMessage       func(conn *TcpConnection, in *buffer.Buffer, now time.Time)
	onWriteComplete func(conn *TcpConnection)
}

// NewTcpServer constructs a server bound to addr:port, with workerLoops
// worker loops (plus the caller-supplied mainLoop, which owns the
// acceptor and the connection table).
func NewTcpServer(log liblog.Logger, name string, mainLoop *reactor.EventLoop, addr string, port, workerLoops int, reusePort bool) (*TcpServer, error) {
	acc, err := NewAcceptor(log, addr, port, reusePort)
	if err != nil {
		return nil, err
	}

	pool, err := NewLoopPool(log, workerLoops)
	if err != nil {
		_ = acc.Close()
		return nil, err
	}

	s := &TcpServer{
		log:      log,
		name:     name,
		mainLoop: mainLoop,
		acceptor: acc,
		pool:     pool,
		conns:    make(map[string]*TcpConnection),
	}

	acc.OnAccept(s.handleAccept)

	return s, nil
}

// OnConnection registers the callback fired once per new connection,
// right after it is established on its worker loop.
func (s *TcpServer) OnConnection(fn func(conn *TcpConnection)) { s.onConnection = fn }

// OnMessage registers the callback fired whenever a connection reads
// new bytes.
func (s *TcpServer) OnMessage(fn func(conn *TcpConnection, in *buffer.Buffer, now time.Time)) {
	s.onMessage = fn
}

// OnWriteComplete registers the callback fired whenever a connection's
// output buffer fully drains.
func (s *TcpServer) OnWriteComplete(fn func(conn *TcpConnection)) { s.onWriteComplete = fn }

// Start attaches the acceptor to the main loop and launches the worker
// pool. Must be called before the main loop's Run.
func (s *TcpServer) Start() error {
	s.pool.Start()
	return s.acceptor.Attach(s.mainLoop)
}

func (s *TcpServer) handleAccept(fd int, remoteIP string) {
	seq := atomic.AddUint64(&s.seq, 1)
	name := fmt.Sprintf("%s-%s#%d", s.name, remoteIP, seq)

	loop := s.pool.Next()
	conn := NewTcpConnection(name, fd, remoteIP, loop, s.log)
	conn.OnMessage(s.onMessage)
	conn.OnWriteComplete(s.onWriteComplete)
	conn.OnClose(s.handleConnectionClosed)

	s.connsMu.Lock()
	s.conns[name] = conn
	s.connsMu.Unlock()

	loop.QueueInLoop(func() {
		if err := conn.establishConnection(); err != nil {
			if s.log != nil {
				s.log.Error("failed to establish connection", err)
			}
			return
		}
		if s.onConnection != nil {
			s.onConnection(conn)
		}
	})
}

// handleConnectionClosed runs on the connection's own worker loop;
// the actual map mutation is posted to the main loop, matching the
// spec's "erase the entry from the main loop" ownership rule.
func (s *TcpServer) handleConnectionClosed(conn *TcpConnection) {
	s.mainLoop.QueueInLoop(func() {
		s.connsMu.Lock()
		delete(s.conns, conn.Name())
		s.connsMu.Unlock()
	})
}

// ConnectionCount returns the number of live connections.
func (s *TcpServer) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// Broadcast sends data to every currently tracked connection.
func (s *TcpServer) Broadcast(data []byte) {
	s.connsMu.Lock()
	conns := make([]*TcpConnection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	for _, c := range conns {
		c.Send(data)
	}
}

// Stop stops every worker loop and closes the acceptor. The caller is
// responsible for stopping the main loop separately.
func (s *TcpServer) Stop() error {
	s.pool.Stop()
	return s.acceptor.Close()
}
