// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"fmt"
	"strings"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects counters and latency histograms for one DB instance
// (spec.md §3's Ambient Stack metrics section). Counters are exported to
// any process-wide Prometheus registry passed to NewMetricsWithRegistry;
// latencies additionally feed a per-operation HdrHistogram so
// Metrics.String can print percentiles without scraping Prometheus.
type Metrics struct {
	flushes      prometheus.Counter
	compactions  prometheus.Counter
	bytesWritten prometheus.Counter
	bytesRead    prometheus.Counter

	getLatency   *hdrhistogram.Histogram
	writeLatency *hdrhistogram.Histogram
}

// NewMetrics returns a Metrics registered against a private Prometheus
// registry, suitable for a single DB not sharing a process-wide registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry returns a Metrics whose counters are registered
// against reg, letting multiple DB instances in one process share an
// /metrics endpoint.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		flushes:      prometheus.NewCounter(prometheus.CounterOpts{Name: "lsmdb_flushes_total", Help: "Memtable flushes performed."}),
		compactions:  prometheus.NewCounter(prometheus.CounterOpts{Name: "lsmdb_compactions_total", Help: "Compactions performed."}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{Name: "lsmdb_bytes_written_total", Help: "Bytes written to SSTs and the WAL."}),
		bytesRead:    prometheus.NewCounter(prometheus.CounterOpts{Name: "lsmdb_bytes_read_total", Help: "Bytes read from SSTs."}),
		// Track microsecond latencies from 1us to 10s with 3 significant digits.
		getLatency:   hdrhistogram.New(1, 10_000_000, 3),
		writeLatency: hdrhistogram.New(1, 10_000_000, 3),
	}
	reg.MustRegister(m.flushes, m.compactions, m.bytesWritten, m.bytesRead)
	return m
}

func (m *Metrics) recordFlush()              { m.flushes.Inc() }
func (m *Metrics) recordCompaction()         { m.compactions.Inc() }
func (m *Metrics) recordBytesWritten(n int64) { m.bytesWritten.Add(float64(n)) }
func (m *Metrics) recordBytesRead(n int64)    { m.bytesRead.Add(float64(n)) }

func (m *Metrics) recordGetLatency(micros int64) {
	_ = m.getLatency.RecordValue(micros)
}

func (m *Metrics) recordWriteLatency(micros int64) {
	_ = m.writeLatency.RecordValue(micros)
}

// String renders a pebble-style human-readable metrics summary.
func (m *Metrics) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "get p50=%dus p99=%dus\n",
		m.getLatency.ValueAtQuantile(50), m.getLatency.ValueAtQuantile(99))
	fmt.Fprintf(&buf, "write p50=%dus p99=%dus\n",
		m.writeLatency.ValueAtQuantile(50), m.writeLatency.ValueAtQuantile(99))
	return buf.String()
}
