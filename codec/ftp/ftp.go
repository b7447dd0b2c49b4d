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

// Package ftp frames the FTP control channel: line-oriented commands
// terminated by CRLF. It only frames lines; USER/PASS/QUIT/PWD/SYST/
// FEAT semantics belong to the handler collaborator, per spec.
package ftp

import (
	"strconv"
	"strings"

	"github.com/nabbar/chatreactor/buffer"
)

// Command is one parsed control-channel line: verb plus the remainder
// of the line as a single argument string.
type Command struct {
	Verb string
	Arg  string
	Line string
}

// Parse reads one complete CRLF-terminated line out of b's readable
// region. consumed is 0 if no full line is buffered yet.
func Parse(b *buffer.Buffer) (complete bool, cmd Command, consumed int) {
	idx := b.FindCRLF()
	if idx < 0 {
		return false, Command{}, 0
	}

	line := b.PeekString(idx)
	verb, arg := splitVerb(line)

	return true, Command{Verb: verb, Arg: arg, Line: line}, idx + 2
}

func splitVerb(line string) (verb, arg string) {
	line = strings.TrimRight(line, " ")
	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return strings.ToUpper(line), ""
	}
	return strings.ToUpper(line[:sp]), strings.TrimSpace(line[sp+1:])
}

// BuildReply serializes a numeric FTP reply line: "<code> <text>\r\n".
func BuildReply(code int, text string) []byte {
	return []byte(strconv.Itoa(code) + " " + text + "\r\n")
}
