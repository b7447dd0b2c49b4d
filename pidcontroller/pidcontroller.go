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

// Package pidcontroller implements a small PID-style step generator used to
// space out a numeric range (e.g. reconnect backoff, heartbeat grace windows)
// instead of a flat linear split.
package pidcontroller

import "context"

// maxSteps bounds the walk so a degenerate rate set (all zero, or one that
// never converges) cannot loop forever.
const maxSteps = 64

// Controller walks from one float64 value to another, using proportional,
// integral and derivative terms on the remaining error to decide each step
// size. Small rateD values smooth out overshoot near the target; rateI
// accumulates a bias so a controller with a tiny rateP still converges.
type Controller struct {
	rateP float64
	rateI float64
	rateD float64
}

// New returns a Controller configured with the given proportional, integral
// and derivative rates.
func New(rateP, rateI, rateD float64) *Controller {
	return &Controller{rateP: rateP, rateI: rateI, rateD: rateD}
}

// RangeCtx walks from `from` to `to`, returning the sequence of intermediate
// values produced by the PID step update. The first element is always `from`.
// The walk stops early once it reaches `to`, once a step collapses to zero,
// after maxSteps iterations, or as soon as ctx is done.
func (c *Controller) RangeCtx(ctx context.Context, from, to float64) []float64 {
	var (
		out       = make([]float64, 0, maxSteps)
		current   = from
		integral  float64
		prevError = to - from
	)

	out = append(out, current)

	if to == from {
		return out
	}

	for i := 0; i < maxSteps; i++ {
		select {
		case <-ctx.Done():
			return out
		default:
		}

		err := to - current
		if err == 0 {
			break
		}

		integral += err
		derivative := err - prevError
		prevError = err

		step := c.rateP*err + c.rateI*integral + c.rateD*derivative
		if step == 0 {
			break
		}

		// never overshoot past the target
		if (err > 0 && step > err) || (err < 0 && step < err) {
			step = err
		}

		current += step
		out = append(out, current)

		if current == to {
			break
		}
	}

	return out
}
