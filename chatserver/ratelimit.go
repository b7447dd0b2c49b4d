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

	"github.com/nabbar/chatreactor/config"
)

// RateLimiter is a fixed-window per-IP request counter. It implements
// the window_seconds/max_requests *mechanism*; what counts as abuse
// and what to do beyond a 429 is a policy non-goal.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     config.RateLimitConfig
	buckets map[string]*window
	nowFn   func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter builds a limiter from the tuning surface's
// rate_limit.* keys.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*window),
		nowFn:   time.Now,
	}
}

// Allow reports whether a request from ip may proceed, advancing the
// bucket's window as needed. Always true when rate limiting is
// disabled.
func (r *RateLimiter) Allow(ip string) bool {
	if !r.cfg.Enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()
	w, ok := r.buckets[ip]
	windowLen := r.cfg.Window.Time()

	if !ok || now.Sub(w.start) >= windowLen {
		r.buckets[ip] = &window{start: now, count: 1}
		return true
	}

	if w.count >= r.cfg.MaxRequests {
		return false
	}

	w.count++
	return true
}
