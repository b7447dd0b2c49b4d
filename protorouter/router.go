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

// Package protorouter implements the per-connection protocol state
// machine: it classifies the first bytes of a connection into one of
// HTTP, WebSocket, RTSP, SIP, or FTP, and owns exactly one codec at a
// time, including the HTTP-to-WebSocket upgrade transition.
package protorouter

import (
	"strings"

	"github.com/nabbar/chatreactor/buffer"
	"github.com/nabbar/chatreactor/codec/ftp"
	"github.com/nabbar/chatreactor/codec/httpwire"
	"github.com/nabbar/chatreactor/codec/rtspsip"
	"github.com/nabbar/chatreactor/codec/websocket"
)

// Protocol is the wire protocol a connection's router has classified
// (or switched) into.
type Protocol int

const (
	Initial Protocol = iota
	HTTP
	WebSocket
	RTSP
	SIP
	FTP
	Closed
)

var httpVerbs = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "HEAD": true, "OPTIONS": true,
}

var rtspVerbs = map[string]bool{
	"OPTIONS": true, "DESCRIBE": true, "SETUP": true, "PLAY": true, "PAUSE": true, "TEARDOWN": true,
}

var sipVerbs = map[string]bool{
	"REGISTER": true, "INVITE": true, "ACK": true, "BYE": true, "CANCEL": true, "OPTIONS": true,
}

// Message is one fully framed application message handed to the
// caller by Feed, tagged with the protocol it came from.
type Message struct {
	Protocol    Protocol
	HTTP        *httpwire.Request
	WS          *websocket.Frame
	RtspSip     *rtspsip.Request
	FTP         *ftp.Command
	UpgradeResp []byte // non-nil when Feed performed an HTTP->WebSocket upgrade
}

// Router is the per-connection protocol state machine. It is not safe
// for concurrent use; it is only ever touched from the connection's
// owning EventLoop goroutine.
type Router struct {
	state Protocol
}

// New returns a Router in the Initial state.
func New() *Router {
	return &Router{state: Initial}
}

// State returns the router's current protocol.
func (r *Router) State() Protocol { return r.state }

// Feed drains as many complete messages as the buffer currently
// contains, classifying the connection's protocol on the first
// message if still Initial, and performing the HTTP->WebSocket
// upgrade transition when applicable. It returns ok=false once a
// message is malformed (the caller should force-close the
// connection after sending any error response already queued).
func (r *Router) Feed(b *buffer.Buffer) (msgs []Message, ok bool) {
	for {
		if r.state == Initial {
			r.classify(b)
		}

		switch r.state {
		case HTTP:
			complete, bad, req, consumed := httpwire.Parse(b)
			if bad {
				r.state = Closed
				return msgs, false
			}
			if !complete {
				return msgs, true
			}
			b.Consume(consumed)

			msg := Message{Protocol: HTTP, HTTP: &req}
			if isWebSocketUpgrade(req) {
				key := req.Headers["Sec-WebSocket-Key"]
				msg.UpgradeResp = websocket.BuildHandshakeResponse(key)
				r.state = WebSocket
			}
			msgs = append(msgs, msg)

		case WebSocket:
			frame, consumed := websocket.Parse(b.Peek())
			if consumed == -1 {
				r.state = Closed
				return msgs, false
			}
			if consumed == 0 {
				return msgs, true
			}
			b.Consume(consumed)
			msgs = append(msgs, Message{Protocol: WebSocket, WS: &frame})
			if frame.Opcode == websocket.OpClose {
				r.state = Closed
				return msgs, true
			}

		case RTSP, SIP:
			complete, bad, req, consumed := rtspsip.Parse(b)
			if bad {
				r.state = Closed
				return msgs, false
			}
			if !complete {
				return msgs, true
			}
			b.Consume(consumed)
			msgs = append(msgs, Message{Protocol: r.state, RtspSip: &req})

		case FTP:
			complete, cmd, consumed := ftp.Parse(b)
			if !complete {
				return msgs, true
			}
			b.Consume(consumed)
			msgs = append(msgs, Message{Protocol: FTP, FTP: &cmd})

		case Closed:
			return msgs, true

		default:
			return msgs, true
		}
	}
}

// classify inspects the buffered bytes' request line (without
// consuming anything) to decide the connection's protocol, defaulting
// to HTTP ("legacy behavior") when a complete first line matches
// nothing more specific. Until a CRLF has arrived the state stays
// Initial, except that a "USER " prefix selects FTP at once.
func (r *Router) classify(b *buffer.Buffer) {
	idx := b.FindCRLF()
	if idx < 0 {
		if strings.HasPrefix(b.PeekString(b.Len()), "USER ") {
			r.state = FTP
			return
		}
		return
	}

	line := b.PeekString(idx)
	parts := strings.SplitN(line, " ", 3)

	if strings.HasPrefix(line, "USER ") {
		r.state = FTP
		return
	}
	if len(parts) == 3 {
		switch {
		case httpVerbs[parts[0]] && parts[2] == "HTTP/1.1":
			r.state = HTTP
			return
		case rtspVerbs[parts[0]] && parts[2] == "RTSP/1.0":
			r.state = RTSP
			return
		case sipVerbs[parts[0]] && parts[2] == "SIP/2.0":
			r.state = SIP
			return
		}
	}

	r.state = HTTP
}

func isWebSocketUpgrade(req httpwire.Request) bool {
	upgrade := strings.ToLower(req.Headers["Upgrade"])
	_, hasKey := req.Headers["Sec-WebSocket-Key"]
	return upgrade == "websocket" && hasKey
}
