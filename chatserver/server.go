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

// Package chatserver implements the HTTP handler surface external
// collaborators talk to (spec.md §6): /login, /send, /messages,
// /users, /heartbeat, /metrics. Per spec.md's own open-questions
// decision ("two coexisting HTTP implementations... specify only the
// reactor design"), this surface is dispatched from the reactor's own
// httpwire codec -- HandleHTTP takes a parsed httpwire.Request and
// returns an httpwire.Response, to be written back through the
// connection that owns the request, not a second net/http listener.
package chatserver

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	libval "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/nabbar/chatreactor/codec/ftp"
	"github.com/nabbar/chatreactor/codec/httpwire"
	"github.com/nabbar/chatreactor/codec/rtspsip"
	"github.com/nabbar/chatreactor/config"
	liberr "github.com/nabbar/chatreactor/errors"
	"github.com/nabbar/chatreactor/logger"
	"github.com/nabbar/chatreactor/session"
	"github.com/nabbar/chatreactor/workerpool"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary
var validate = libval.New()

// Server is the façade: session table, message store, worker pool
// dispatch, rate limiter and metrics behind the spec.md §6 route
// table.
type Server struct {
	log     logger.Logger
	cfg     config.ReactorConfig
	sess    *session.Manager
	store   MessageStore
	limiter *RateLimiter
	metrics *Metrics
	pool    *workerpool.Pool
}

// New wires a Server. pool is used to offload store writes off the
// I/O loop, per spec.md §5's "long work MUST be posted to the
// WorkerPool" rule generalized to this façade's own handlers.
func New(log logger.Logger, cfg config.ReactorConfig, sess *session.Manager, store MessageStore, pool *workerpool.Pool) *Server {
	return &Server{
		log:     log,
		cfg:     cfg,
		sess:    sess,
		store:   store,
		limiter: NewRateLimiter(cfg.RateLimit),
		metrics: NewMetrics(),
		pool:    pool,
	}
}

// Metrics returns the counter set, so collaborators (the acceptor,
// the worker pool) can feed it observations.
func (s *Server) Metrics() *Metrics { return s.metrics }

// HandleHTTP dispatches one fully framed HTTP request to the façade's
// JSON route table. The caller is expected to run this from a worker
// pool task, then ship the response back to the owning connection's
// loop via runInLoop before writing it.
func (s *Server) HandleHTTP(remoteIP string, req httpwire.Request) httpwire.Response {
	if !s.limiter.Allow(remoteIP) {
		return s.errorResponse(CodeRateLimited)
	}

	path := req.Path
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}

	switch {
	case req.Method == "POST" && path == "/login":
		return s.handleLogin(req)
	case req.Method == "POST" && path == "/send":
		return s.handleSend(req)
	case req.Method == "GET" && path == "/messages":
		return s.handleMessages(req)
	case req.Method == "GET" && path == "/users":
		return s.handleUsers()
	case req.Method == "POST" && path == "/heartbeat":
		return s.handleHeartbeat(req)
	case req.Method == "GET" && path == "/metrics":
		return httpwire.Response{
			Status:  200,
			Text:    "OK",
			Headers: map[string]string{"Content-Type": "text/plain; version=0.0.4"},
			Body:    []byte(s.metrics.Render()),
		}
	default:
		return s.errorResponse(CodeInvalidRequest)
	}
}

// HandleFTP answers one FTP control-channel command with a
// collaborator-shaped placeholder reply, per SPEC_FULL.md's Open
// Questions decision (framing + codec correctness only).
func (s *Server) HandleFTP(cmd ftp.Command) []byte {
	switch cmd.Verb {
	case "USER":
		return ftp.BuildReply(331, "User name okay, need password.")
	case "PASS":
		return ftp.BuildReply(230, "User logged in, proceed.")
	case "QUIT":
		return ftp.BuildReply(221, "Goodbye.")
	case "SYST":
		return ftp.BuildReply(215, "UNIX Type: L8")
	case "PWD":
		return ftp.BuildReply(257, `"/" is the current directory`)
	default:
		return ftp.BuildReply(502, "Command not implemented.")
	}
}

// HandleRtspSip answers one RTSP or SIP request with a
// collaborator-shaped echo/forward-by-To placeholder, per
// SPEC_FULL.md's Open Questions decision.
func (s *Server) HandleRtspSip(req rtspsip.Request) rtspsip.Response {
	headers := map[string]string{}
	if req.HasCSeq {
		headers["CSeq"] = strconv.Itoa(req.CSeq)
	}
	for _, k := range []string{"Via", "From", "To", "Call-ID"} {
		if v, ok := req.Headers[k]; ok {
			headers[k] = v
		}
	}

	return rtspsip.Response{
		Version: req.Version,
		Status:  200,
		Text:    "OK",
		Headers: headers,
	}
}

func (s *Server) errorResponse(code liberr.CodeError) httpwire.Response {
	body, _ := jsonAPI.Marshal(map[string]interface{}{
		"success":    false,
		"error_code": WireCode(code),
		"error":      MessageFor(code),
	})
	return httpwire.Response{
		Status:  StatusFor(code),
		Text:    http.StatusText(StatusFor(code)),
		Body:    body,
		Headers: map[string]string{"X-Request-Id": uuid.NewString()},
	}
}

func (s *Server) jsonResponse(payload interface{}) httpwire.Response {
	body, err := jsonAPI.Marshal(payload)
	if err != nil {
		return s.errorResponse(CodeSerializationFailure)
	}
	return httpwire.Response{
		Status:  200,
		Text:    "OK",
		Body:    body,
		Headers: map[string]string{"X-Request-Id": uuid.NewString()},
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
}

func (s *Server) handleLogin(req httpwire.Request) httpwire.Response {
	var body loginRequest
	if err := jsonAPI.Unmarshal(req.Body, &body); err != nil || validate.Struct(&body) != nil {
		return s.errorResponse(CodeInvalidRequest)
	}
	if len(body.Username) > s.cfg.MaxUsernameLength {
		return s.errorResponse(CodeInvalidUsername)
	}

	ok, connID := s.sess.Login(body.Username)
	if !ok {
		return s.errorResponse(CodeUsernameTaken)
	}

	s.metrics.SetSessionsActive(int64(len(s.sess.SnapshotAll())))
	return s.jsonResponse(map[string]interface{}{
		"success":       true,
		"connection_id": connID,
		"username":      body.Username,
	})
}

type sendRequest struct {
	Username     string `json:"username,omitempty"`
	Content      string `json:"content" validate:"required"`
	ConnectionID string `json:"connection_id,omitempty"`
	TargetUser   string `json:"target_user,omitempty"`
	RoomID       string `json:"room_id,omitempty"`
}

func (s *Server) handleSend(req httpwire.Request) httpwire.Response {
	var body sendRequest
	if err := jsonAPI.Unmarshal(req.Body, &body); err != nil || validate.Struct(&body) != nil {
		return s.errorResponse(CodeInvalidRequest)
	}

	// username is optional when connection_id resolves to a live
	// session, per spec.md §6.
	if body.Username == "" && body.ConnectionID != "" {
		body.Username = s.sess.LookupUsername(body.ConnectionID)
	}
	if body.Username == "" {
		return s.errorResponse(CodeInvalidRequest)
	}

	if len(body.Content) > s.cfg.MaxMessageLength {
		return s.errorResponse(CodeInvalidMessage)
	}

	msg := Message{
		Username:   body.Username,
		Content:    body.Content,
		TargetUser: body.TargetUser,
		RoomID:     body.RoomID,
		SentAt:     time.Now(),
	}

	posted := s.pool.TryPost(func() {
		s.store.Append(msg)
	})
	if !posted {
		s.metrics.IncTasksRejected()
		return s.errorResponse(CodeServerBusy)
	}

	return s.jsonResponse(map[string]interface{}{"success": true})
}

func (s *Server) handleMessages(req httpwire.Request) httpwire.Response {
	query := queryValues(req.Path)
	since := parseUintQuery(query.Get("since"))
	username := query.Get("username")

	msgs, nextSince := s.store.Since(since, username)
	if msgs == nil {
		msgs = []Message{}
	}

	return s.jsonResponse(map[string]interface{}{
		"success":    true,
		"messages":   msgs,
		"next_since": nextSince,
	})
}

func (s *Server) handleUsers() httpwire.Response {
	now := time.Now()
	sessions := s.sess.SnapshotAll()
	users := make([]UserSummary, 0, len(sessions))
	for _, sn := range sessions {
		users = append(users, UserSummary{
			Username:      sn.Username,
			IdleSeconds:   int64(now.Sub(sn.LastHeartbeat).Seconds()),
			OnlineSeconds: int64(now.Sub(sn.LoginTime).Seconds()),
		})
	}

	return s.jsonResponse(map[string]interface{}{"success": true, "users": users})
}

type heartbeatRequest struct {
	Username      string `json:"username"`
	ClientVersion string `json:"client_version"`
	ConnectionID  string `json:"connection_id" validate:"required"`
}

func (s *Server) handleHeartbeat(req httpwire.Request) httpwire.Response {
	var body heartbeatRequest
	if err := jsonAPI.Unmarshal(req.Body, &body); err != nil || validate.Struct(&body) != nil {
		return s.errorResponse(CodeInvalidRequest)
	}

	// Heartbeat for an unknown connection_id is a no-op success, per
	// spec.md §7.
	s.sess.UpdateHeartbeat(body.ConnectionID, body.ClientVersion)

	return s.jsonResponse(map[string]interface{}{
		"success":   true,
		"timestamp": time.Now().Unix(),
	})
}

func parseUintQuery(v string) uint64 {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func queryValues(path string) url.Values {
	idx := strings.IndexByte(path, '?')
	if idx < 0 {
		return url.Values{}
	}
	v, err := url.ParseQuery(path[idx+1:])
	if err != nil {
		return url.Values{}
	}
	return v
}
