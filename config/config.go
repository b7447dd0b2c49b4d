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

// Package config holds the reactor's tuning surface. Loading a config
// file (viper, env binding) stays a collaborator concern, as in the
// teacher's config/components/* packages; this package only describes
// the shape and its defaults, decoded with the same mapstructure tags
// the teacher's component registry decodes its own settings with.
package config

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/nabbar/chatreactor/duration"
)

// ThreadPoolConfig sizes the worker pool and the number of I/O loops.
type ThreadPoolConfig struct {
	Core          int `mapstructure:"core" yaml:"core"`
	Max           int `mapstructure:"max" yaml:"max"`
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	IOThreads     int `mapstructure:"io_threads" yaml:"io_threads"`
}

// RateLimitConfig tunes the per-IP limiter. Policy (what counts as an
// offense, ban duration, ...) is a collaborator concern; this is only
// the fixed-window mechanism's knobs.
type RateLimitConfig struct {
	Enabled     bool             `mapstructure:"enabled" yaml:"enabled"`
	Window      duration.Duration `mapstructure:"window_seconds" yaml:"window_seconds"`
	MaxRequests int              `mapstructure:"max_requests" yaml:"max_requests"`
}

// ReactorConfig is the tuning surface described by spec.md's
// "Tuning surface (configuration keys)" table. The timeout/interval/
// window keys accept either a bare number of seconds or a
// duration.Duration string ("90s", "2m") -- see durationHook below.
type ReactorConfig struct {
	Port                   int               `mapstructure:"port" yaml:"port"`
	ThreadPool             ThreadPoolConfig  `mapstructure:"thread_pool" yaml:"thread_pool"`
	HeartbeatTimeout       duration.Duration `mapstructure:"heartbeat_timeout_seconds" yaml:"heartbeat_timeout_seconds"`
	SessionCleanupInterval duration.Duration `mapstructure:"session_cleanup_interval_seconds" yaml:"session_cleanup_interval_seconds"`
	MaxMessageLength       int               `mapstructure:"max_message_length" yaml:"max_message_length"`
	MaxUsernameLength      int               `mapstructure:"max_username_length" yaml:"max_username_length"`
	RateLimit              RateLimitConfig   `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// Default returns the reference tuning values used when no config
// file collaborator overrides them.
func Default() ReactorConfig {
	return ReactorConfig{
		Port: 8080,
		ThreadPool: ThreadPoolConfig{
			Core:          4,
			Max:           16,
			QueueCapacity: 1024,
			IOThreads:     4,
		},
		HeartbeatTimeout:       duration.Seconds(60),
		SessionCleanupInterval: duration.Seconds(15),
		MaxMessageLength:       4096,
		MaxUsernameLength:      64,
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      duration.Seconds(1),
			MaxRequests: 20,
		},
	}
}

// durationHook lets the *_seconds tuning keys arrive either as a bare
// number (seconds) or as a duration.Duration string, the way a
// viper-sourced settings map commonly carries one or the other
// depending on whether the file is yaml/json/toml or env-bound.
func durationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(duration.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType {
			return data, nil
		}

		switch v := data.(type) {
		case duration.Duration:
			return v, nil
		case string:
			return duration.Parse(v)
		case int:
			return duration.Seconds(int64(v)), nil
		case int32:
			return duration.Seconds(int64(v)), nil
		case int64:
			return duration.Seconds(v), nil
		case float32:
			return duration.Seconds(int64(v)), nil
		case float64:
			return duration.Seconds(int64(v)), nil
		default:
			return data, nil
		}
	}
}

// Decode maps a generic settings map (as loaded by a collaborator's
// viper/yaml/toml reader) onto a ReactorConfig, starting from Default()
// so unspecified keys keep their reference values.
func Decode(raw map[string]interface{}) (ReactorConfig, error) {
	cfg := Default()

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       durationHook(),
	})
	if err != nil {
		return cfg, err
	}

	if err = dec.Decode(raw); err != nil {
		return cfg, err
	}

	return cfg, nil
}
