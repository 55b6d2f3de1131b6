package logstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/oriys/fncore/internal/db"
	"github.com/oriys/fncore/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	s, err := Open(context.Background(), conn)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAppendAndSettleExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := domain.ExecutionRecord{ID: uuid.NewString(), FunctionID: "F1", StartTime: 1000}
	if err := s.AppendExecution(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.EndTime = 1200
	rec.DurationMs = 200
	rec.Success = true
	rec.ConsoleOutput = []domain.ConsoleEntry{{Level: domain.ConsoleLog, Message: "hi", Timestamp: 1100}}
	rec.Metrics = &domain.ExecutionMetrics{DurationMs: 200, MemoryUsedBytes: 1024}
	if err := s.SettleExecution(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetExecution(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Success || got.DurationMs != 200 {
		t.Fatalf("settle did not persist: %+v", got)
	}
	if len(got.ConsoleOutput) != 1 || got.ConsoleOutput[0].Message != "hi" {
		t.Fatalf("console output not round-tripped: %+v", got.ConsoleOutput)
	}
	if got.Metrics == nil || got.Metrics.MemoryUsedBytes != 1024 {
		t.Fatalf("metrics not round-tripped: %+v", got.Metrics)
	}
}

func TestAggregateMetricsOnlyCountsSettledRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, success := range []bool{true, true, false} {
		rec := domain.ExecutionRecord{ID: uuid.NewString(), FunctionID: "F2", StartTime: int64(i)}
		if err := s.AppendExecution(ctx, rec); err != nil {
			t.Fatal(err)
		}
		rec.EndTime = int64(i) + 100
		rec.DurationMs = int64(100 * (i + 1))
		rec.Success = success
		if err := s.SettleExecution(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	// one row that never settles must be excluded
	if err := s.AppendExecution(ctx, domain.ExecutionRecord{ID: uuid.NewString(), FunctionID: "F2", StartTime: 999}); err != nil {
		t.Fatal(err)
	}

	agg, err := s.AggregateMetrics(ctx, "F2")
	if err != nil {
		t.Fatal(err)
	}
	if agg.Total != 3 || agg.Successful != 2 || agg.Failed != 1 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
}

func TestDeleteExecutionsOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := domain.ExecutionRecord{ID: uuid.NewString(), FunctionID: "F3", StartTime: 100}
	recent := domain.ExecutionRecord{ID: uuid.NewString(), FunctionID: "F3", StartTime: 100000}
	if err := s.AppendExecution(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendExecution(ctx, recent); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteExecutionsOlderThan(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted row, got %d", n)
	}
	rows, err := s.QueryExecutionsByFunction(ctx, "F3")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != recent.ID {
		t.Fatalf("expected only the recent row to survive: %+v", rows)
	}
}

// TestLogRoundTripWithPagination mirrors spec scenario S6: append 25
// entries with monotonic timestamps, page with limit=10 following
// cursors, and confirm the full set round-trips exactly once in
// descending order with the final page reporting hasMore=false.
func TestLogRoundTripWithPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted := make(map[string]bool, 25)
	for i := 0; i < 25; i++ {
		e, err := s.AppendLog(ctx, domain.LogEntry{
			FunctionID: "P",
			Timestamp:  int64(1000 + i),
			Level:      domain.ConsoleInfo,
			Message:    "entry",
		})
		if err != nil {
			t.Fatal(err)
		}
		inserted[e.ID] = true
	}

	seen := map[string]bool{}
	var lastTS int64 = 1 << 62
	cursorToken := ""
	for {
		page, err := s.QueryLogs(ctx, "P", 10, cursorToken)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range page.Entries {
			if e.Timestamp > lastTS {
				t.Fatalf("entries not descending: %d after %d", e.Timestamp, lastTS)
			}
			lastTS = e.Timestamp
			if seen[e.ID] {
				t.Fatalf("entry %s returned twice", e.ID)
			}
			seen[e.ID] = true
		}
		if !page.HasMore {
			if page.Cursor != "" {
				t.Fatal("expected empty cursor on final page")
			}
			break
		}
		cursorToken = page.Cursor
	}

	if len(seen) != 25 {
		t.Fatalf("expected 25 entries collected, got %d", len(seen))
	}
	for id := range inserted {
		if !seen[id] {
			t.Fatalf("entry %s never returned", id)
		}
	}

	// a single call with limit >= total must report hasMore=false, cursor=""
	page, err := s.QueryLogs(ctx, "P", 25, "")
	if err != nil {
		t.Fatal(err)
	}
	if page.HasMore || page.Cursor != "" {
		t.Fatalf("expected terminal page for limit>=total, got hasMore=%v cursor=%q", page.HasMore, page.Cursor)
	}
}

func TestLogMetricsErrorRate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	levels := []domain.ConsoleLevel{domain.ConsoleInfo, domain.ConsoleError, domain.ConsoleFatal, domain.ConsoleInfo}
	for i, lvl := range levels {
		if _, err := s.AppendLog(ctx, domain.LogEntry{FunctionID: "M", Timestamp: int64(i + 1), Level: lvl, Message: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	metrics, err := s.LogMetrics(ctx, "M")
	if err != nil {
		t.Fatal(err)
	}
	if metrics.Total != 4 {
		t.Fatalf("expected total 4, got %d", metrics.Total)
	}
	if metrics.ErrorRate != 0.5 {
		t.Fatalf("expected error rate 0.5 (1 error + 1 fatal / 4), got %f", metrics.ErrorRate)
	}
}

func TestLogMetricsEmptyIsZero(t *testing.T) {
	s := newTestStore(t)
	metrics, err := s.LogMetrics(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if metrics.Total != 0 || metrics.ErrorRate != 0 {
		t.Fatalf("expected zero metrics for empty function, got %+v", metrics)
	}
}

func TestDeleteForFunctionIsScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendLog(ctx, domain.LogEntry{FunctionID: "A", Timestamp: 1, Level: domain.ConsoleInfo, Message: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendLog(ctx, domain.LogEntry{FunctionID: "B", Timestamp: 1, Level: domain.ConsoleInfo, Message: "b"}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteForFunction(ctx, "A"); err != nil {
		t.Fatal(err)
	}

	pageA, err := s.QueryLogs(ctx, "A", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(pageA.Entries) != 0 {
		t.Fatalf("expected A's rows deleted, got %d", len(pageA.Entries))
	}
	pageB, err := s.QueryLogs(ctx, "B", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(pageB.Entries) != 1 {
		t.Fatalf("expected B's rows untouched, got %d", len(pageB.Entries))
	}

	// deleting again is a no-op
	if err := s.DeleteForFunction(ctx, "A"); err != nil {
		t.Fatal(err)
	}
}

func TestPercentilePolicy(t *testing.T) {
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty sample should be 0, got %f", got)
	}

	small := []float64{10, 20, 30, 40}
	if got := percentile(small, 50); got < 20 || got > 30 {
		t.Fatalf("expected interpolated p50 between 20 and 30, got %f", got)
	}

	large := make([]float64, 100)
	for i := range large {
		large[i] = float64(i + 1)
	}
	if got := percentile(large, 99); got != 99 {
		t.Fatalf("expected nearest-rank p99 of 99, got %f", got)
	}
}
