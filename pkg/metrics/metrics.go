// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package metrics provides Prometheus metrics for working-copy operations.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scanner metrics
	hashComputationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sylos_scan_hash_computations_total",
			Help: "Total content hashes computed by the scanner",
		},
	)

	hashCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sylos_scan_hash_cache_hits_total",
			Help: "Total content hashes taken from the timestamp cache",
		},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sylos_scan_duration_seconds",
			Help:    "Time to reconcile the tree with the filesystem",
			Buckets: prometheus.DefBuckets,
		},
	)

	portabilityWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sylos_portability_warnings_total",
			Help: "Total name-safety warnings raised",
		},
		[]string{"flag"},
	)

	// Reconciler metrics
	planActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sylos_plan_actions_total",
			Help: "Total plan actions applied to the working copy",
		},
		[]string{"kind", "status"},
	)

	parkedEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sylos_parked_entries_total",
			Help: "Total entries staged in the parking lot",
		},
	)

	// Operation metrics
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sylos_operations_total",
			Help: "Total working-copy operations",
		},
		[]string{"operation", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sylos_operation_duration_seconds",
			Help:    "Working-copy operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RecordHashComputation records one freshly computed content hash.
func RecordHashComputation() {
	hashComputationsTotal.Inc()
}

// RecordHashCacheHit records one hash served by the timestamp cache.
func RecordHashCacheHit() {
	hashCacheHitsTotal.Inc()
}

// RecordScan records the duration of a scan.
func RecordScan(duration time.Duration) {
	scanDuration.Observe(duration.Seconds())
}

// RecordPortabilityWarning records a warning per raised flag name.
func RecordPortabilityWarning(flags []string) {
	for _, f := range flags {
		portabilityWarningsTotal.WithLabelValues(f).Inc()
	}
}

// RecordPlanAction records an applied plan action.
func RecordPlanAction(kind string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	planActionsTotal.WithLabelValues(kind, status).Inc()
}

// RecordParked records an entry moved into the parking lot.
func RecordParked() {
	parkedEntriesTotal.Inc()
}

// RecordOperation records a finished working-copy operation.
func RecordOperation(operation string, duration time.Duration, err error) {
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	operationsTotal.WithLabelValues(operation, status).Inc()
}

// WriteTextfile dumps the default registry in the node-exporter textfile
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
