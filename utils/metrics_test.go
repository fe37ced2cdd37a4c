package utils

import (
	"errors"
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordImport(5, 4, 0, 1)
	m.RecordImport(5, 0, 5, 0)
	m.RecordImportFailure(errors.New("bad file"))
	m.RecordRecompute(3, nil)
	m.RecordRecompute(0, errors.New("db down"))
	m.RecordRequest(10*time.Millisecond, false)
	m.RecordRequest(30*time.Millisecond, true)

	s := m.GetMetricsSnapshot()
	checks := map[string]int64{
		"import_runs":        2,
		"rows_total":         10,
		"rows_inserted":      4,
		"rows_duplicated":    5,
		"rows_failed":        1,
		"import_stream_errs": 1,
		"recomputes":         2,
		"recompute_failures": 1,
		"snapshots_written":  3,
		"total_requests":     2,
		"failed_requests":    1,
		"average_latency_ms": 20,
		"error_count":        2,
	}
	for key, want := range checks {
		if got := s[key].(int64); got != want {
			t.Errorf("%s: got %d want %d", key, got, want)
		}
	}
	if types := s["error_types"].(map[string]int64); types["import"] != 1 || types["recompute"] != 1 {
		t.Errorf("unexpected error types: %v", types)
	}

	m.ResetMetrics()
	if m.GetMetricsSnapshot()["rows_total"].(int64) != 0 {
		t.Error("reset must clear counters")
	}
}
