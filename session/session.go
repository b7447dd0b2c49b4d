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

// Package session implements the chat server's session table: a
// mutex-guarded map of connection_id to Session, with username
// uniqueness enforced at login and heartbeat-driven expiry swept by
// the reactor's timer facility rather than a separate sleep loop.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one logged-in connection's server-side record.
type Session struct {
	Username      string
	ConnectionID  string
	ClientVersion string
	LoginTime     time.Time
	LastHeartbeat time.Time
}

// Manager is the session table. Safe for concurrent use; every
// operation is serialized behind a single mutex.
type Manager struct {
	mu       sync.Mutex
	byConn   map[string]*Session
	byUser   map[string]string // username -> connection_id, for uniqueness checks
	counter  uint64
	nowFn    func() time.Time
}

// New returns an empty session table.
func New() *Manager {
	return &Manager{
		byConn: make(map[string]*Session),
		byUser: make(map[string]string),
		nowFn:  time.Now,
	}
}

// nextConnectionID returns a fresh "conn-<unix_millis>-<counter>" id.
func (m *Manager) nextConnectionID() string {
	n := atomic.AddUint64(&m.counter, 1)
	return fmt.Sprintf("conn-%d-%d", m.nowFn().UnixMilli(), n)
}

// Login registers username as live and returns a fresh connection_id.
// It fails if username is already live.
func (m *Manager) Login(username string) (success bool, connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byUser[username]; taken {
		return false, ""
	}

	id := m.nextConnectionID()
	now := m.nowFn()

	m.byConn[id] = &Session{
		Username:      username,
		ConnectionID:  id,
		LoginTime:     now,
		LastHeartbeat: now,
	}
	m.byUser[username] = id

	return true, id
}

// UpdateHeartbeat refreshes last_heartbeat and client_version for
// connectionID. Returns false if connectionID is unknown (a no-op
// that the caller still reports as success at the HTTP layer, per
// spec's "heartbeat for unknown connection_id is a no-op returning
// success").
func (m *Manager) UpdateHeartbeat(connectionID, clientVersion string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byConn[connectionID]
	if !ok {
		return false
	}

	s.LastHeartbeat = m.nowFn()
	if clientVersion != "" {
		s.ClientVersion = clientVersion
	}
	return true
}

// LookupUsername returns the username tied to connectionID, or "" if
// unknown.
func (m *Manager) LookupUsername(connectionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byConn[connectionID]; ok {
		return s.Username
	}
	return ""
}

// SnapshotAll returns a copy of every live session, safe to read
// without further locking.
func (m *Manager) SnapshotAll() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.byConn))
	for _, s := range m.byConn {
		out = append(out, *s)
	}
	return out
}

// ExpireOlderThan removes every session whose last_heartbeat is older
// than timeout, as of now. It returns the connection_ids removed, so
// the caller can notify collaborators (e.g. drop pending sends).
// Intended to be invoked from an EventLoop timer (RunEvery), not a
// separate sleep loop.
func (m *Manager) ExpireOlderThan(now time.Time, timeout time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, s := range m.byConn {
		if now.Sub(s.LastHeartbeat) > timeout {
			delete(m.byConn, id)
			delete(m.byUser, s.Username)
			removed = append(removed, id)
		}
	}
	return removed
}
