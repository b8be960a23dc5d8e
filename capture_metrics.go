// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package serhex

import "github.com/prometheus/client_golang/prometheus"

// CaptureMetrics counts captured activity. A single CaptureMetrics may be
// shared by any number of sessions.
type CaptureMetrics struct {
	Reads     prometheus.Counter
	ReadBytes prometheus.Counter
	Seeks     prometheus.Counter
	Spans     prometheus.Counter
	Traces    prometheus.Counter
}

// NewCaptureMetrics creates capture metrics and registers them with reg, if
// non-nil.
func NewCaptureMetrics(reg prometheus.Registerer) *CaptureMetrics {
	m := &CaptureMetrics{
		Reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serhex",
			Subsystem: "capture",
			Name:      "reads_total",
			Help:      "Number of reads recorded by capture sessions.",
		}),
		ReadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serhex",
			Subsystem: "capture",
			Name:      "read_bytes_total",
			Help:      "Number of bytes appended to capture buffers.",
		}),
		Seeks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serhex",
			Subsystem: "capture",
			Name:      "seeks_total",
			Help:      "Number of seeks recorded by capture sessions.",
		}),
		Spans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serhex",
			Subsystem: "capture",
			Name:      "spans_total",
			Help:      "Number of spans entered, including session roots.",
		}),
		Traces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serhex",
			Subsystem: "capture",
			Name:      "traces_total",
			Help:      "Number of capture sessions finalized.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Reads, m.ReadBytes, m.Seeks, m.Spans, m.Traces)
	}
	return m
}

func (m *CaptureMetrics) recordRead(n int) {
	if m == nil {
		return
	}
	m.Reads.Inc()
	m.ReadBytes.Add(float64(n))
}

func (m *CaptureMetrics) recordSeek() {
	if m == nil {
		return
	}
	m.Seeks.Inc()
}

func (m *CaptureMetrics) recordSpan() {
	if m == nil {
		return
	}
	m.Spans.Inc()
}

func (m *CaptureMetrics) recordTrace() {
	if m == nil {
		return
	}
	m.Traces.Inc()
}
