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
	"net/http"

	liberr "github.com/nabbar/chatreactor/errors"
)

// Error codes for the HTTP facade's {success:false, error_code, error}
// envelope. The six named by spec.md §6/§7 come first; the rest extend
// the table the way server_error.h's richer enumeration does for the
// internal failure modes the distilled spec only gestures at.
//
// These are internal liberr.CodeError values (package-ranged off
// liberr.MinPkgChatServer), not the numbers spec.md puts on the wire --
// see wireCode/WireCode below for the envelope's actual error_code.
const (
	CodeInvalidRequest liberr.CodeError = liberr.MinPkgChatServer + iota
	CodeInvalidUsername
	CodeInvalidMessage
	CodePayloadTooLarge
	CodeRateLimited
	CodeUsernameTaken
	CodeInternal
	CodeServerBusy
	CodeSerializationFailure
	CodeStoreUnavailable
)

var httpStatus = map[liberr.CodeError]int{
	CodeInvalidRequest:      http.StatusBadRequest,
	CodeInvalidUsername:     http.StatusBadRequest,
	CodeInvalidMessage:      http.StatusBadRequest,
	CodePayloadTooLarge:     http.StatusRequestEntityTooLarge,
	CodeUsernameTaken:       http.StatusConflict,
	CodeRateLimited:         http.StatusTooManyRequests,
	CodeInternal:            http.StatusInternalServerError,
	CodeServerBusy:          http.StatusServiceUnavailable,
	CodeSerializationFailure: http.StatusInternalServerError,
	CodeStoreUnavailable:    http.StatusServiceUnavailable,
}

// wireCode maps each internal liberr.CodeError to the literal error_code
// spec.md puts on the wire (§6/§8: 1004 rate-limited, 1005 username
// taken, E2E scenarios 1 and 6). Internal codes stay package-ranged off
// liberr.MinPkgChatServer for liberr's own matching/logging; the wire
// envelope never leaks that range to a client.
var wireCode = map[liberr.CodeError]int{
	CodeInvalidRequest:       1000,
	CodeInvalidUsername:      1001,
	CodeInvalidMessage:       1002,
	CodePayloadTooLarge:      1003,
	CodeRateLimited:          1004,
	CodeUsernameTaken:        1005,
	CodeInternal:             1006,
	CodeServerBusy:           1007,
	CodeSerializationFailure: 1008,
	CodeStoreUnavailable:     1009,
}

var codeMessage = map[liberr.CodeError]string{
	CodeInvalidRequest:      "invalid request",
	CodeInvalidUsername:     "invalid username",
	CodeInvalidMessage:      "invalid message",
	CodePayloadTooLarge:     "payload too large",
	CodeUsernameTaken:       "username taken",
	CodeRateLimited:         "rate limited",
	CodeInternal:            "internal error",
	CodeServerBusy:          "server busy",
	CodeSerializationFailure: "serialization failure",
	CodeStoreUnavailable:    "store unavailable",
}

// StatusFor returns the HTTP status to serve for a given error code,
// defaulting to 500 for an unregistered code.
func StatusFor(code liberr.CodeError) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// MessageFor returns the fixed human-readable text for a given error
// code, defaulting to "internal error" for an unregistered code.
func MessageFor(code liberr.CodeError) string {
	if m, ok := codeMessage[code]; ok {
		return m
	}
	return codeMessage[CodeInternal]
}

// WireCode returns the spec.md error_code this internal code serializes
// as on the wire, defaulting to CodeInternal's for an unregistered code.
func WireCode(code liberr.CodeError) int {
	if c, ok := wireCode[code]; ok {
		return c
	}
	return wireCode[CodeInternal]
}
