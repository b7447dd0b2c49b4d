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

// Package websocket implements RFC 6455 framing by hand: the
// handshake accept-key derivation, frame parsing with masking, and
// frame building, without delegating to a third-party websocket
// library, since the wire format here must be bit-exact.
package websocket

import (
	"crypto/sha1"
	"encoding/base64"
)

// magicGUID is the RFC 6455 handshake GUID, concatenated onto the
// client's Sec-WebSocket-Key before hashing.
const magicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey derives the Sec-WebSocket-Accept value for a client's
// Sec-WebSocket-Key, per RFC 6455 section 1.3.
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(magicGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// BuildHandshakeResponse serializes the 101 Switching Protocols
// response for a successful upgrade.
func BuildHandshakeResponse(clientKey string) []byte {
	accept := AcceptKey(clientKey)
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n")
}

// Opcode is a WebSocket frame's opcode field.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// Frame is one parsed WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	Payload []byte
}

// Parse reads one frame from data. It returns consumed == 0 when more
// bytes are needed and the number of bytes consumed otherwise. It does
// not validate RSV bits, opcodes or whether the frame is masked, so it
// never returns consumed == -1, the value protorouter treats as a
// protocol error. The payload, if masked, is
// unmasked in place within a copy owned by the returned Frame (data is
// never mutated).
func Parse(data []byte) (frame Frame, consumed int) {
	if len(data) < 2 {
		return Frame{}, 0
	}

	b0 := data[0]
	b1 := data[1]

	fin := b0&0x80 != 0
	opcode := Opcode(b0 & 0x0F)
	masked := b1&0x80 != 0
	len7 := int(b1 & 0x7F)

	idx := 2
	var payloadLen uint64

	switch {
	case len7 <= 125:
		payloadLen = uint64(len7)
	case len7 == 126:
		if len(data) < idx+2 {
			return Frame{}, 0
		}
		payloadLen = uint64(data[idx])<<8 | uint64(data[idx+1])
		idx += 2
	default: // 127
		if len(data) < idx+8 {
			return Frame{}, 0
		}
		payloadLen = 0
		for i := 0; i < 8; i++ {
			payloadLen = payloadLen<<8 | uint64(data[idx+i])
		}
		idx += 8
	}

	var mask [4]byte
	if masked {
		if len(data) < idx+4 {
			return Frame{}, 0
		}
		copy(mask[:], data[idx:idx+4])
		idx += 4
	}

	if payloadLen > uint64(len(data)-idx) {
		return Frame{}, 0
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[idx:idx+int(payloadLen)])
	idx += int(payloadLen)

	if masked {
		for i := range payload {
			payload[i] ^= mask[i%4]
		}
	}

	return Frame{Fin: fin, Opcode: opcode, Masked: masked, Payload: payload}, idx
}

// Build serializes an unmasked server-to-client frame: FIN and the
// opcode in byte 0, length encoded as the 7/7+16/7+64-bit form per
// RFC 6455, never masked (server frames are unmasked by convention).
func Build(opcode Opcode, fin bool, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+10)

	b0 := byte(opcode)
	if fin {
		b0 |= 0x80
	}
	out = append(out, b0)

	n := len(payload)
	switch {
	case n <= 125:
		out = append(out, byte(n))
	case n <= 0xFFFF:
		out = append(out, 126, byte(n>>8), byte(n))
	default:
		out = append(out, 127,
			byte(uint64(n)>>56), byte(uint64(n)>>48), byte(uint64(n)>>40), byte(uint64(n)>>32),
			byte(uint64(n)>>24), byte(uint64(n)>>16), byte(uint64(n)>>8), byte(uint64(n)))
	}

	return append(out, payload...)
}
