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

// Package rtspsip frames RTSP/1.0 and SIP/2.0 requests and responses,
// which share the same CRLF request-line/headers/blank-line/body
// shape as HTTP but are tracked separately (CSeq for RTSP; Via/From/
// To/Call-ID/CSeq echo for SIP).
package rtspsip

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/nabbar/chatreactor/buffer"
)

// Request is a parsed RTSP or SIP request line plus headers and body.
type Request struct {
	Method  string
	URL     string
	Version string
	Headers map[string]string
	Body    []byte
	CSeq    int
	HasCSeq bool
}

const headerTerminator = "\r\n\r\n"

// Parse reads one complete request out of b's readable region,
// mirroring httpwire.Parse's (complete, bad, request, consumed)
// contract.
func Parse(b *buffer.Buffer) (complete bool, bad bool, req Request, consumed int) {
	data := b.Peek()

	headerEnd := bytes.Index(data, []byte(headerTerminator))
	if headerEnd < 0 {
		return false, false, Request{}, 0
	}

	lines := strings.Split(string(data[:headerEnd]), "\r\n")
	if len(lines) == 0 {
		return false, true, Request{}, 0
	}

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return false, true, Request{}, 0
	}

	headers := make(map[string]string, len(lines)-1)
	contentLength := 0
	cseq := 0
	hasCSeq := false

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return false, true, Request{}, 0
		}
		name := line[:idx]
		value := strings.TrimSpace(line[idx+1:])
		headers[name] = value

		switch strings.ToLower(name) {
		case "content-length":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return false, true, Request{}, 0
			}
			contentLength = n
		case "cseq":
			n, err := strconv.Atoi(value)
			if err != nil {
				return false, true, Request{}, 0
			}
			cseq = n
			hasCSeq = true
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
		Method:  parts[0],
		URL:     parts[1],
		Version: parts[2],
		Headers: headers,
		Body:    body,
		CSeq:    cseq,
		HasCSeq: hasCSeq,
	}, need
}

// Response is what BuildResponse serializes.
type Response struct {
	Version string
	Status  int
	Text    string
	Headers map[string]string
	Body    []byte
}

// BuildResponse serializes resp as a CRLF status-line + headers +
// blank line + body response. Callers populate CSeq (RTSP) or
// Via/From/To/Call-ID/CSeq (SIP) into Headers themselves, copying them
// from the originating request when available, per spec.
func BuildResponse(resp Response) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s %d %s\r\n", resp.Version, resp.Status, resp.Text)

	if _, ok := resp.Headers["Content-Length"]; !ok {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(resp.Body))
	}
	for name, value := range resp.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
	}

	buf.WriteString("\r\n")
	buf.Write(resp.Body)

	return buf.Bytes()
}
