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

// Package buffer implements a growable byte buffer with reader/writer
// cursors and a scatter-read helper, the way a reactor connection's
// input/output side needs: a small prependable prefix, in-place
// compaction before growth, and a single syscall per readiness event.
package buffer

import "golang.org/x/sys/unix"

// prependSize is the minimum reserved prefix before the readable region,
// kept free so framing code can back-patch a length or header in place.
const prependSize = 8

// scratchSize is the size of the stack scratch buffer used by ReadFromFD
// so one readiness event can drain more than the buffer's writable region
// without an extra syscall to discover the pending size.
const scratchSize = 64 * 1024

// Buffer is a contiguous byte region split into a prependable prefix, a
// readable region [r, w) and a writable region [w, cap). It is not
// safe for concurrent use; callers holding a pointer returned by Peek
// must not call Append before consuming it.
type Buffer struct {
	buf []byte
	r   int
	w   int
}

// New returns an empty Buffer with the given initial capacity (plus the
// fixed prepend prefix).
func New(initialCap int) *Buffer {
	if initialCap < 0 {
		initialCap = 0
	}

	b := &Buffer{
		buf: make([]byte, prependSize+initialCap),
	}
	b.r = prependSize
	b.w = prependSize

	return b
}

// Len returns the number of readable bytes.
func (b *Buffer) Len() int {
	return b.w - b.r
}

// Writable returns the number of bytes available in the writable region
// without growing or compacting.
func (b *Buffer) Writable() int {
	return len(b.buf) - b.w
}

// Prependable returns the number of unused bytes before the readable
// region.
func (b *Buffer) Prependable() int {
	return b.r
}

// Peek returns the readable region without consuming it. The returned
// slice aliases the buffer's storage and is invalidated by the next
// Append.
func (b *Buffer) Peek() []byte {
	return b.buf[b.r:b.w]
}

// PeekString returns up to n readable bytes as a string, without
// consuming them. If fewer than n bytes are readable, it returns what
// is available.
func (b *Buffer) PeekString(n int) string {
	if n > b.Len() {
		n = b.Len()
	}
	return string(b.buf[b.r : b.r+n])
}

// Consume advances the read cursor by n bytes, or to the write cursor if
// n exceeds the readable length. Once r == w, both cursors are reset to
// the prepend offset so the readable region stays compact.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= b.Len() {
		b.r = b.w
	} else {
		b.r += n
	}

	if b.r == b.w {
		b.r = prependSize
		b.w = prependSize
	}
}

// Reset discards all readable and writable content, keeping the
// allocated storage.
func (b *Buffer) Reset() {
	b.r = prependSize
	b.w = prependSize
}

// FindCRLF returns the index (relative to the readable region) of the
// first "\r\n" occurrence, or -1 if none is present yet.
func (b *Buffer) FindCRLF() int {
	data := b.Peek()

	for i := 0; i+1 < len(data); i++ {
		if data[i] == '\r' && data[i+1] == '\n' {
			return i
		}
	}

	return -1
}

// Append writes data into the writable region, compacting in place when
// the prepend and writable regions together suffice, growing the
// backing array only when they do not.
func (b *Buffer) Append(data []byte) {
	need := len(data)
	if need == 0 {
		return
	}

	if b.Writable() < need {
		if b.Prependable()-prependSize+b.Writable() >= need {
			b.compact()
		} else {
			b.grow(need)
		}
	}

	copy(b.buf[b.w:], data)
	b.w += need
}

// compact shifts the readable region down to the fixed prepend offset,
// reclaiming the consumed prefix without allocating.
func (b *Buffer) compact() {
	n := copy(b.buf[prependSize:], b.buf[b.r:b.w])
	b.r = prependSize
	b.w = prependSize + n
}

// grow reallocates the backing array so at least `need` bytes become
// writable, preserving the prepend offset and the readable region.
func (b *Buffer) grow(need int) {
	readable := b.Len()
	newCap := prependSize + readable + need

	// amortize future growth
	if newCap < 2*len(b.buf) {
		newCap = 2 * len(b.buf)
	}

	nb := make([]byte, newCap)
	n := copy(nb[prependSize:], b.buf[b.r:b.w])
	b.buf = nb
	b.r = prependSize
	b.w = prependSize + n
}

// ReadFromFD performs a scatter read into the buffer's writable region
// plus a 64 KiB stack scratch area, appending any bytes landed in the
// scratch area afterwards, so one readiness event can drain more than
// the buffer's current capacity without a FIONREAD probe. It returns
// the total bytes read (0 on EOF) or an error (including
// unix.EAGAIN/unix.EWOULDBLOCK on would-block).
func (b *Buffer) ReadFromFD(fd int) (int, error) {
	if b.Writable() < scratchSize/4 {
		b.grow(scratchSize / 4)
	}

	var scratch [scratchSize]byte
	writable := b.buf[b.w:]

	n, err := unix.Readv(fd, [][]byte{writable, scratch[:]})
	if err != nil {
		return 0, err
	}

	if n <= 0 {
		return n, nil
	}

	if n <= len(writable) {
		b.w += n
		return n, nil
	}

	b.w += len(writable)
	extra := n - len(writable)
	b.Append(scratch[:extra])

	return n, nil
}
