package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oriys/fncore/internal/domain"
)

// AppendExecution inserts the opening row for a new invocation (spec
// §4.E step 3: startTime set, success=false, console empty). The record
// is later finalized by SettleExecution.
func (s *Store) AppendExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	console, err := json.Marshal(rec.ConsoleOutput)
	if err != nil {
		return fmt.Errorf("logstore: marshal console: %w", err)
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO executions (id, function_id, start_time, end_time, has_ended, duration_ms, success, error, console_output, metrics)
		VALUES (?, ?, ?, 0, FALSE, 0, FALSE, '', ?, NULL)`,
		rec.ID, rec.FunctionID, rec.StartTime, string(console))
	return err
}

// SettleExecution writes the terminal fields of a row exactly once (spec
// §3 invariant: endTime/duration/success/error/metrics transition from
// null to final value exactly once).
func (s *Store) SettleExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	console, err := json.Marshal(rec.ConsoleOutput)
	if err != nil {
		return fmt.Errorf("logstore: marshal console: %w", err)
	}
	var metricsJSON sql.NullString
	if rec.Metrics != nil {
		raw, err := json.Marshal(rec.Metrics)
		if err != nil {
			return fmt.Errorf("logstore: marshal metrics: %w", err)
		}
		metricsJSON = sql.NullString{String: string(raw), Valid: true}
	}
	_, err = s.conn.Exec(ctx, `
		UPDATE executions
		SET end_time = ?, has_ended = TRUE, duration_ms = ?, success = ?, error = ?, console_output = ?, metrics = ?
		WHERE id = ?`,
		rec.EndTime, rec.DurationMs, rec.Success, rec.Error, string(console), metricsJSON, rec.ID)
	return err
}

// GetExecution returns the row for executionID, or nil if none exists.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, function_id, start_time, end_time, has_ended, duration_ms, success, error, console_output, metrics
		FROM executions WHERE id = ?`, executionID)
	rec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// QueryExecutionsByFunction returns every row for functionID, newest
// first (spec §4.E "getExecutionLogs(functionId) (timestamp-descending)").
func (s *Store) QueryExecutionsByFunction(ctx context.Context, functionID string) ([]domain.ExecutionRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, function_id, start_time, end_time, has_ended, duration_ms, success, error, console_output, metrics
		FROM executions WHERE function_id = ? ORDER BY start_time DESC`, functionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeleteExecutionsOlderThan trims rows with startTime < cutoffMillis
// (spec §4.E step 6, retention sweep).
func (s *Store) DeleteExecutionsOlderThan(ctx context.Context, cutoffMillis int64) (int64, error) {
	res, err := s.conn.Exec(ctx, `DELETE FROM executions WHERE start_time < ?`, cutoffMillis)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// AggregateMetrics computes the per-function rollup over every ended
// execution for functionID (spec §4.E getAggregateMetrics / §4.F metrics).
func (s *Store) AggregateMetrics(ctx context.Context, functionID string) (*domain.AggregateMetrics, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT success, duration_ms, metrics FROM executions
		WHERE function_id = ? AND has_ended = TRUE`, functionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var durations []float64
	var memBytes []float64
	var total, successful, failed int64
	var totalMemory int64

	for rows.Next() {
		var success bool
		var durationMs int64
		var metricsJSON sql.NullString
		if err := rows.Scan(&success, &durationMs, &metricsJSON); err != nil {
			return nil, err
		}
		total++
		if success {
			successful++
		} else {
			failed++
		}
		durations = append(durations, float64(durationMs))

		if metricsJSON.Valid {
			var m domain.ExecutionMetrics
			if err := json.Unmarshal([]byte(metricsJSON.String), &m); err == nil {
				memBytes = append(memBytes, float64(m.MemoryUsedBytes))
				totalMemory += m.MemoryUsedBytes
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	min, max := minMax(durations)
	return &domain.AggregateMetrics{
		Total:            total,
		Successful:       successful,
		Failed:           failed,
		AvgDurationMs:    mean(durations),
		MinDurationMs:    min,
		MaxDurationMs:    max,
		P50DurationMs:    percentile(durations, 50),
		P95DurationMs:    percentile(durations, 95),
		P99DurationMs:    percentile(durations, 99),
		AvgMemoryBytes:   mean(memBytes),
		TotalMemoryBytes: totalMemory,
	}, nil
}

// scannable is satisfied by both db.Row and db.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanExecution(row scannable) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var console string
	var metricsJSON sql.NullString
	if err := row.Scan(&rec.ID, &rec.FunctionID, &rec.StartTime, &rec.EndTime, &rec.HasEnded,
		&rec.DurationMs, &rec.Success, &rec.Error, &console, &metricsJSON); err != nil {
		return nil, err
	}
	if console != "" {
		if err := json.Unmarshal([]byte(console), &rec.ConsoleOutput); err != nil {
			return nil, fmt.Errorf("logstore: unmarshal console: %w", err)
		}
	}
	if metricsJSON.Valid {
		var m domain.ExecutionMetrics
		if err := json.Unmarshal([]byte(metricsJSON.String), &m); err != nil {
			return nil, fmt.Errorf("logstore: unmarshal metrics: %w", err)
		}
		rec.Metrics = &m
	}
	return &rec, nil
}
