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

// Package httpwire implements HTTP/1.1 request parsing and response
// building against a buffer.Buffer, without delegating to net/http's
// own wire codec: the reactor feeds raw bytes in, the codec hands
// complete requests back out.
package httpwire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/nabbar/chatreactor/buffer"
)

// Request is a fully parsed HTTP/1.1 request.
type Request struct {
	Method      string
	Path        string
	Version     string
	Headers     map[string]string
	ContentType string
	Body        []byte
	RemoteIP    string
}

const headerTerminator = "\r\n\r\n"

// maxHeaderScan bounds how much of the buffer Parse will scan looking
// for the header terminator, matching the 10 MiB oversized-input
// ceiling from the error-handling design.
const maxHeaderScan = 10 * 1024 * 1024

// Parse attempts to read one complete HTTP/1.1 request out of b's
// readable region. It returns complete=false, bad=false, consumed=0 if
// more bytes are needed; bad=true if the bytes seen so far cannot form
// a valid request; otherwise complete=true with consumed set to the
// number of bytes the caller must Consume from b.
func Parse(b *buffer.Buffer) (complete bool, bad bool, req Request, consumed int) {
	data := b.Peek()

	headerEnd := bytes.Index(data, []byte(headerTerminator))
	if headerEnd < 0 {
		if len(data) > maxHeaderScan {
			return false, true, Request{}, 0
		}
		return false, false, Request{}, 0
	}

	headerBlock := string(data[:headerEnd])
	lines := strings.Split(headerBlock, "\r\n")
	if len(lines) == 0 {
		return false, true, Request{}, 0
	}

	method, path, version, ok := parseRequestLine(lines[0])
	if !ok {
		return false, true, Request{}, 0
	}

	headers := make(map[string]string, len(lines)-1)
	contentLength := 0
	contentType := ""

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return false, true, Request{}, 0
		}
		headers[name] = value

		switch strings.ToLower(name) {
		case "content-length":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return false, true, Request{}, 0
			}
			contentLength = n
		case "content-type":
			contentType = value
		}
	}

	bodyStart := headerEnd + len(headerTerminator)
	need := bodyStart + contentLength
	if len(data) < need {
		return false, false, Request{}, 0
	}

	body := make([]byte, contentLength)
	copy(body, data[bodyStart:need])

	return true, false, Request{
		Method:      method,
		Path:        path,
		Version:     version,
		Headers:     headers,
		ContentType: contentType,
		Body:        body,
	}, need
}

func parseRequestLine(line string) (method, path, version string, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], strings.TrimSpace(line[idx+1:]), true
}

// Response is what BuildResponse serializes onto the wire.
type Response struct {
	Status  int
	Text    string
	Headers map[string]string
	Body    []byte
}

// BuildResponse serializes resp as an HTTP/1.1 response: status line,
// Content-Type, Content-Length (filled in from len(Body) if the
// caller didn't set one), any extra headers, the fixed keep-alive and
// CORS headers, a blank line, then the body.
func BuildResponse(resp Response) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", resp.Status, resp.Text)

	if ct, ok := resp.Headers["Content-Type"]; ok {
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", ct)
	} else {
		buf.WriteString("Content-Type: application/json\r\n")
	}

	if _, ok := resp.Headers["Content-Length"]; !ok {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(resp.Body))
	}

	for name, value := range resp.Headers {
		if name == "Content-Type" || name == "Content-Length" {
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
	}

	buf.WriteString("Connection: keep-alive\r\n")
	buf.WriteString("Access-Control-Allow-Origin: *\r\n")
	buf.WriteString("\r\n")
	buf.Write(resp.Body)

	return buf.Bytes()
}
