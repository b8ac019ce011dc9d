// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

// Package metrics collects run metrics of the batch tools and
// writes them in the Prometheus text format for the node exporter
// textfile collector.
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/csaf-poc/csaf_harvester/util"
)

// Run holds the metrics of a single tool run.
// A nil Run discards all observations.
type Run struct {
	registry    *prometheus.Registry
	items       *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	duration    prometheus.Gauge
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewRun creates the metrics of a run. namespace prefixes all
// metric names, e.g. "csaf_harvester".
func NewRun(namespace string) *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Number of processed advisories by result",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Number of notification deliveries by channel and status",
		}, []string{"channel", "status"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last run without errors",
		}),
	}
	r.registry.MustRegister(
		r.items, r.deliveries,
		r.duration, r.lastRun, r.lastSuccess,
	)
	return r
}

// Count adds n items with the given result.
func (r *Run) Count(result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.items.WithLabelValues(result).Add(float64(n))
}

// Delivery records a delivery attempt to channel.
func (r *Run) Delivery(channel string, ok bool) {
	if r == nil {
		return
	}
	status := "failed"
	if ok {
		status = "ok"
	}
	r.deliveries.WithLabelValues(channel, status).Inc()
}

// Finish records the duration of a run started at start
// and ended at end.
func (r *Run) Finish(start, end time.Time, success bool) {
	if r == nil {
		return
	}
	r.duration.Set(end.Sub(start).Seconds())
	r.lastRun.Set(float64(end.Unix()))
	if success {
		r.lastSuccess.Set(float64(end.Unix()))
	}
}

// Registry returns the registry of the run metrics.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// WriteToTextfile writes the metrics to fname. Missing parent
// directories are created.
func (r *Run) WriteToTextfile(fname string) error {
	if r == nil {
		return nil
	}
	if err := util.EnsureDir(filepath.Dir(fname)); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(fname, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %q failed: %w", fname, err)
	}
	return nil
}
