// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedded

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "ferretdb"
	subsystem = "embedded"
)

// Metrics represents native call metrics.
//
// It implements [prometheus.Collector] and may be shared by several Libraries opened one after another.
type Metrics struct {
	Calls          *prometheus.CounterVec
	Handles        *prometheus.GaugeVec
	InvokeDuration prometheus.Histogram
	LogRecords     *prometheus.CounterVec
}

// NewMetrics creates new metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "calls_total",
				Help:      "Total number of fallible native calls.",
			},
			[]string{"op", "result"},
		),
		Handles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "handles",
				Help:      "The current number of open native handles.",
			},
			[]string{"kind"},
		),
		InvokeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "invoke_duration_seconds",
				Help:      "Native client invoke duration.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		LogRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "log_records_total",
				Help:      "Total number of log records received from the native library.",
			},
			[]string{"severity"},
		),
	}
}

// observeCall records the result of a native call.
func (m *Metrics) observeCall(op string, err error) {
	result := "ok"

	if err != nil {
		result = "error"

		var ne *NativeError
		if errors.As(err, &ne) {
			result = ne.Code.String()
		}
	}

	m.Calls.WithLabelValues(op, result).Inc()
}

// observeInvoke records the duration of a native invoke.
func (m *Metrics) observeInvoke(start time.Time) {
	m.InvokeDuration.Observe(time.Since(start).Seconds())
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Calls.Describe(ch)
	m.Handles.Describe(ch)
	m.InvokeDuration.Describe(ch)
	m.LogRecords.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Calls.Collect(ch)
	m.Handles.Collect(ch)
	m.InvokeDuration.Collect(ch)
	m.LogRecords.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Metrics)(nil)
)
