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

// Metrics is a hand-rolled Prometheus text exporter. client_golang had
// no source in the retrieval pack (see DESIGN.md), so the counters set
// mirrors metrics_collector.h/.cpp directly against the wire format
// instead of going through the client library's registry.
package chatserver

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics holds the counters the /metrics route exposes.
type Metrics struct {
	connectionsAccepted int64
	bytesIn             int64
	bytesOut            int64
	workerQueueDepth    int64
	tasksRejected       int64
	sessionsActive      int64
}

// NewMetrics returns a zeroed counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConnectionsAccepted() { atomic.AddInt64(&m.connectionsAccepted, 1) }
func (m *Metrics) AddBytesIn(n int64)      { atomic.AddInt64(&m.bytesIn, n) }
func (m *Metrics) AddBytesOut(n int64)     { atomic.AddInt64(&m.bytesOut, n) }
func (m *Metrics) IncTasksRejected()       { atomic.AddInt64(&m.tasksRejected, 1) }
func (m *Metrics) SetWorkerQueueDepth(n int64) { atomic.StoreInt64(&m.workerQueueDepth, n) }
func (m *Metrics) SetSessionsActive(n int64)   { atomic.StoreInt64(&m.sessionsActive, n) }

// Render writes the current counters as Prometheus text-exposition
// format (the subset this exporter needs: HELP/TYPE preamble plus one
// gauge/counter sample per metric, no labels).
func (m *Metrics) Render() string {
	var b strings.Builder

	writeMetric(&b, "chatreactor_connections_accepted_total", "counter",
		"Total TCP connections accepted by the reactor.", atomic.LoadInt64(&m.connectionsAccepted))
	writeMetric(&b, "chatreactor_bytes_in_total", "counter",
		"Total bytes read from client connections.", atomic.LoadInt64(&m.bytesIn))
	writeMetric(&b, "chatreactor_bytes_out_total", "counter",
		"Total bytes written to client connections.", atomic.LoadInt64(&m.bytesOut))
	writeMetric(&b, "chatreactor_worker_queue_depth", "gauge",
		"Current depth of the bounded worker pool's task queue.", atomic.LoadInt64(&m.workerQueueDepth))
	writeMetric(&b, "chatreactor_tasks_rejected_total", "counter",
		"Total tasks rejected by a full worker pool.", atomic.LoadInt64(&m.tasksRejected))
	writeMetric(&b, "chatreactor_sessions_active", "gauge",
		"Current number of live sessions.", atomic.LoadInt64(&m.sessionsActive))

	return b.String()
}

func writeMetric(b *strings.Builder, name, typ, help string, value int64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	fmt.Fprintf(b, "%s %d\n", name, value)
}
