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

package reactor

import "os"

// wakePipe is the classic self-pipe trick: QueueInLoop/Stop write one
// byte from any goroutine; the loop's poller reports the read end
// readable and drains it on its own goroutine, forcing poll() to
// return promptly instead of riding out the full timeout.
type wakePipe struct {
	r *os.File
	w *os.File
}

func newWakePipe() (*wakePipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &wakePipe{r: r, w: w}, nil
}

func (p *wakePipe) readFd() int {
	return int(p.r.Fd())
}

func (p *wakePipe) wake() {
	_, _ = p.w.Write([]byte{0})
}

func (p *wakePipe) drain() {
	var buf [64]byte
	for {
		n, err := p.r.Read(buf[:])
		if n < len(buf) || err != nil {
			return
		}
	}
}
