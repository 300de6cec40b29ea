// Copyright 2025 Tom Barlow
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

// Package metrics counts run outcomes, transfers and poll attempts.
//
// Metrics live in their own registry so a single CLI invocation can write
// them out with WriteTextfile (for the node exporter's textfile collector).
// All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds galaxyrun's collectors.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	downloads     *prometheus.CounterVec
	pollAttempts  *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
}

// New registers the collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galaxyrun_runs_total",
				Help: "Workflow runs by result (success, failure, error)",
			},
			[]string{"result"},
		),
		uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galaxyrun_uploads_total",
				Help: "Input dataset uploads by outcome",
			},
			[]string{"status"},
		),
		downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galaxyrun_downloads_total",
				Help: "Output dataset downloads by outcome",
			},
			[]string{"status"},
		),
		pollAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galaxyrun_poll_attempts_total",
				Help: "History state queries by run phase",
			},
			[]string{"phase"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "galaxyrun_phase_duration_seconds",
				Help:    "Time spent in each run phase",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"phase"},
		),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RunFinished counts a run by result.
func (m *Metrics) RunFinished(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}

// Upload counts an upload by outcome.
func (m *Metrics) Upload(status string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(status).Inc()
}

// Download counts a download by outcome.
func (m *Metrics) Download(status string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(status).Inc()
}

// PollAttempts counts n history state queries made during phase.
func (m *Metrics) PollAttempts(phase string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pollAttempts.WithLabelValues(phase).Add(float64(n))
}

// ObservePhase records how long a phase took.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// WriteTextfile writes the current values in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
