package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Prometheus metrics are global, so tests compare before/after values.

func TestRecordRead(t *testing.T) {
	beforeRead := testutil.ToFloat64(RowsRead.WithLabelValues("genre"))
	beforeDropped := testutil.ToFloat64(RowsDropped.WithLabelValues("genre"))

	RecordRead("genre", 99, 1)

	if got := testutil.ToFloat64(RowsRead.WithLabelValues("genre")) - beforeRead; got != 99 {
		t.Errorf("rows read delta = %v, want 99", got)
	}
	if got := testutil.ToFloat64(RowsDropped.WithLabelValues("genre")) - beforeDropped; got != 1 {
		t.Errorf("rows dropped delta = %v, want 1", got)
	}
}

func TestRecordWrite(t *testing.T) {
	before := map[string]float64{}
	for _, outcome := range []string{"inserted", "conflicted", "failed"} {
		before[outcome] = testutil.ToFloat64(RowsWritten.WithLabelValues("person", outcome))
	}

	RecordWrite("person", 7, 3, 0)

	want := map[string]float64{"inserted": 7, "conflicted": 3, "failed": 0}
	for outcome, w := range want {
		got := testutil.ToFloat64(RowsWritten.WithLabelValues("person", outcome)) - before[outcome]
		if got != w {
			t.Errorf("%s delta = %v, want %v", outcome, got, w)
		}
	}
}

func TestRecordBatchFailure(t *testing.T) {
	before := testutil.ToFloat64(BatchFailures.WithLabelValues("film_work", "deadlock"))
	RecordBatchFailure("film_work", "deadlock")
	if after := testutil.ToFloat64(BatchFailures.WithLabelValues("film_work", "deadlock")); after != before+1 {
		t.Errorf("batch failures = %v, want %v", after, before+1)
	}
}

func TestObserve(t *testing.T) {
	before := testutil.CollectAndCount(BatchDuration)
	ObserveBatch("observe_test", 20*time.Millisecond)
	if after := testutil.CollectAndCount(BatchDuration); after != before+1 {
		t.Errorf("batch duration series = %d, want %d", after, before+1)
	}

	ObserveTable("observe_test", time.Second)
	if testutil.CollectAndCount(TableDuration) == 0 {
		t.Error("table duration not collected")
	}
}

func TestRecordConsistency(t *testing.T) {
	beforeCount := testutil.ToFloat64(ConsistencyProblems.WithLabelValues("genre_film_work", "count"))
	beforeMissing := testutil.ToFloat64(ConsistencyProblems.WithLabelValues("genre_film_work", "missing"))

	RecordConsistency("genre_film_work", true, 2, 0)

	if got := testutil.ToFloat64(ConsistencyProblems.WithLabelValues("genre_film_work", "count")) - beforeCount; got != 1 {
		t.Errorf("count problems delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ConsistencyProblems.WithLabelValues("genre_film_work", "missing")) - beforeMissing; got != 2 {
		t.Errorf("missing delta = %v, want 2", got)
	}
}

func TestRecordRun(t *testing.T) {
	beforeOK := testutil.ToFloat64(RunsTotal.WithLabelValues("transfer", "success"))
	beforeFail := testutil.ToFloat64(RunsTotal.WithLabelValues("transfer", "failure"))

	RecordRun("transfer", nil)
	RecordRun("transfer", errors.New("boom"))

	if testutil.ToFloat64(RunsTotal.WithLabelValues("transfer", "success")) != beforeOK+1 {
		t.Error("expected success counter to increment")
	}
	if testutil.ToFloat64(RunsTotal.WithLabelValues("transfer", "failure")) != beforeFail+1 {
		t.Error("expected failure counter to increment")
	}
}
