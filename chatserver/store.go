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

package chatserver

import (
	"sync"
	"time"
)

// Message is one delivered chat message. Exactly one of TargetUser or
// RoomID is set for a directed/room message; both empty means a
// broadcast, mirroring the C++ chat_service's room/target/broadcast
// distinction.
type Message struct {
	ID         uint64    `json:"id"`
	Username   string    `json:"username"`
	Content    string    `json:"content"`
	TargetUser string    `json:"target_user,omitempty"`
	RoomID     string    `json:"room_id,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// MessageStore is the narrow persistence interface spec.md leaves as
// a collaborator concern. This package ships an in-memory reference
// implementation; swapping it for a durable store never touches the
// handlers.
type MessageStore interface {
	Append(msg Message) Message
	Since(id uint64, username string) (msgs []Message, nextSince uint64)
}

// memoryStore is the in-memory MessageStore reference implementation:
// an append-only log with a monotonically increasing ID, the
// "/messages?since=" semantics resolved as ID-based per SPEC_FULL.md's
// Open Questions decision.
type memoryStore struct {
	mu      sync.Mutex
	nextID  uint64
	entries []Message
}

// NewMemoryStore returns an empty in-memory MessageStore.
func NewMemoryStore() MessageStore {
	return &memoryStore{}
}

func (s *memoryStore) Append(msg Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg.ID = s.nextID
	s.entries = append(s.entries, msg)
	return msg
}

// Since returns every message with ID > id that is visible to
// username: broadcasts, messages targeted at username, and messages
// username itself sent. Room-scoped delivery is left to the
// room_id a caller supplies as its own filter via a future handler;
// this reference implementation treats a room message as visible to
// everyone, matching the teacher's "ship a pass-through reference,
// caller narrows policy" pattern.
func (s *memoryStore) Since(id uint64, username string) (msgs []Message, nextSince uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextSince = id
	for _, m := range s.entries {
		if m.ID <= id {
			continue
		}
		if m.TargetUser != "" && m.TargetUser != username && m.Username != username {
			continue
		}
		msgs = append(msgs, m)
		if m.ID > nextSince {
			nextSince = m.ID
		}
	}
	return msgs, nextSince
}

// UserSummary is one row of the /users listing.
type UserSummary struct {
	Username      string `json:"username"`
	IdleSeconds   int64  `json:"idle_seconds"`
	OnlineSeconds int64  `json:"online_seconds"`
}
