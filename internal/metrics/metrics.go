// Package metrics defines the Prometheus metrics for the transfer and consistency check.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsRead counts records produced by the source loader.
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_rows_read_total",
			Help: "Total number of source rows coerced into records",
		},
		[]string{"table"},
	)

	// RowsDropped counts source rows rejected during coercion.
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_rows_dropped_total",
			Help: "Total number of source rows dropped because they could not be coerced",
		},
		[]string{"table"},
	)

	// RowsWritten counts records sent to the destination.
	// Labels:
	//   - outcome: "inserted", "conflicted", "failed"
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_rows_written_total",
			Help: "Total number of records written to the destination by outcome",
		},
		[]string{"table", "outcome"},
	)

	// BatchFailures counts abandoned sub-batches by failure class.
	BatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_batch_failures_total",
			Help: "Total number of sub-batches rolled back",
		},
		[]string{"table", "class"},
	)

	// BatchDuration measures one sub-batch insert including commit.
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etl_batch_duration_seconds",
			Help:    "Duration of a sub-batch insert transaction in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"table"},
	)

	// TableDuration measures a whole table transfer.
	TableDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etl_table_duration_seconds",
			Help:    "Duration of a table transfer in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~200s
		},
		[]string{"table"},
	)

	// ConsistencyProblems counts problems found by the consistency check.
	// Labels:
	//   - kind: "count", "missing", "mismatched"
	ConsistencyProblems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_consistency_problems_total",
			Help: "Total number of consistency problems found",
		},
		[]string{"table", "kind"},
	)

	// RunsTotal counts finished runs by command and outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_runs_total",
			Help: "Total number of finished runs",
		},
		[]string{"command", "outcome"},
	)
)

// RecordRead records one source batch.
func RecordRead(table string, records, dropped int) {
	RowsRead.WithLabelValues(table).Add(float64(records))
	if dropped > 0 {
		RowsDropped.WithLabelValues(table).Add(float64(dropped))
	}
}

// RecordWrite records the outcome of one Save call.
func RecordWrite(table string, inserted, conflicted, failed int) {
	RowsWritten.WithLabelValues(table, "inserted").Add(float64(inserted))
	RowsWritten.WithLabelValues(table, "conflicted").Add(float64(conflicted))
	if failed > 0 {
		RowsWritten.WithLabelValues(table, "failed").Add(float64(failed))
	}
}

// RecordBatchFailure records a rolled back sub-batch.
func RecordBatchFailure(table, class string) {
	BatchFailures.WithLabelValues(table, class).Inc()
}

// ObserveBatch records the duration of a sub-batch transaction.
func ObserveBatch(table string, d time.Duration) {
	BatchDuration.WithLabelValues(table).Observe(d.Seconds())
}

// ObserveTable records the duration of a table transfer.
func ObserveTable(table string, d time.Duration) {
	TableDuration.WithLabelValues(table).Observe(d.Seconds())
}

// RecordConsistency records the problems found for one table.
func RecordConsistency(table string, countMismatch bool, missing, mismatched int) {
	if countMismatch {
		ConsistencyProblems.WithLabelValues(table, "count").Inc()
	}
	if missing > 0 {
		ConsistencyProblems.WithLabelValues(table, "missing").Add(float64(missing))
	}
	if mismatched > 0 {
		ConsistencyProblems.WithLabelValues(table, "mismatched").Add(float64(mismatched))
	}
}

// RecordRun records a finished run.
func RecordRun(command string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	RunsTotal.WithLabelValues(command, outcome).Inc()
}
