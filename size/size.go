/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package size models byte quantities used across buffer sizing, tuning
// surfaces and config decoding.
package size

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size uint64

const (
	SizeNul  Size = 0
	SizeUnit Size = 1
	SizeKilo      = SizeUnit << 10
	SizeMega      = SizeKilo << 10
	SizeGiga      = SizeMega << 10
	SizeTera      = SizeGiga << 10
	SizePeta      = SizeTera << 10
	SizeExa       = SizePeta << 10
)

// Common aliases used by the reactor's tuning surface (buffer defaults, frame caps).
const (
	KiB = SizeKilo
	MiB = SizeMega
	GiB = SizeGiga
)

func (s Size) Int() int {
	if s > math.MaxInt {
		return math.MaxInt
	}
	return int(s)
}

func (s Size) Int64() int64 {
	if s > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(s)
}

func (s Size) Uint64() uint64 {
	return uint64(s)
}

func (s Size) Float64() float64 {
	return float64(s)
}

func (s *Size) Add(n uint64) {
	*s = Size(uint64(*s) + n)
}

func (s *Size) Sub(n uint64) {
	if n > uint64(*s) {
		*s = 0
		return
	}
	*s = Size(uint64(*s) - n)
}

// ParseInt64 returns the absolute value of v as a Size.
func ParseInt64(v int64) Size {
	if v < 0 {
		if v == math.MinInt64 {
			return Size(math.MaxUint64)
		}
		v = -v
	}
	return Size(v)
}

// SizeFromInt64 is an alias of ParseInt64.
func SizeFromInt64(v int64) Size {
	return ParseInt64(v)
}

func ParseUint64(v uint64) Size {
	return Size(v)
}

// ParseFloat64 floors v, returns its absolute value as a Size, capping at
// math.MaxUint64 for overflowing magnitudes.
func ParseFloat64(v float64) Size {
	if v < 0 {
		v = -v
	}
	if v > math.MaxUint64 {
		return Size(math.MaxUint64)
	}
	return Size(math.Floor(v))
}

// SizeFromFloat64 is an alias of ParseFloat64.
func SizeFromFloat64(v float64) Size {
	return ParseFloat64(v)
}

var unitScale = []struct {
	suffix string
	scale  Size
}{
	{"EB", SizeExa},
	{"E", SizeExa},
	{"PB", SizePeta},
	{"P", SizePeta},
	{"TB", SizeTera},
	{"T", SizeTera},
	{"GB", SizeGiga},
	{"G", SizeGiga},
	{"MB", SizeMega},
	{"M", SizeMega},
	{"KB", SizeKilo},
	{"K", SizeKilo},
	{"B", SizeUnit},
}

// Parse decodes a human string ("100MB", "1.5G", "512") into a Size.
// Unit suffixes are matched case-insensitively; a bare number is bytes.
func Parse(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("size: empty value")
	}

	up := strings.ToUpper(s)

	for _, u := range unitScale {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			if num == "" {
				return 0, fmt.Errorf("size: missing numeric value in %q", s)
			}

			f, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("size: invalid numeric value in %q: %w", s, err)
			}

			return ParseFloat64(f * float64(u.scale)), nil
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("size: cannot parse %q: %w", s, err)
	}

	return ParseFloat64(f), nil
}

// String renders the size in the largest unit that keeps the mantissa >= 1.
func (s Size) String() string {
	return s.Format(2)
}

// Format renders the size with the given decimal precision.
func (s Size) Format(decimals int) string {
	v := float64(s)

	units := []struct {
		suffix string
		scale  float64
	}{
		{"EB", float64(SizeExa)},
		{"PB", float64(SizePeta)},
		{"TB", float64(SizeTera)},
		{"GB", float64(SizeGiga)},
		{"MB", float64(SizeMega)},
		{"KB", float64(SizeKilo)},
	}

	for _, u := range units {
		if v >= u.scale {
			return strconv.FormatFloat(v/u.scale, 'f', decimals, 64) + u.suffix
		}
	}

	return strconv.FormatFloat(v, 'f', 0, 64) + "B"
}
