package logstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/fncore/internal/domain"
)

// AppendLog allocates a UUID and stamps the timestamp if unset (spec
// §4.F append contract).
func (s *Store) AppendLog(ctx context.Context, entry domain.LogEntry) (domain.LogEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	var metadataJSON sql.NullString
	if entry.Metadata != nil {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return domain.LogEntry{}, fmt.Errorf("logstore: marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(raw), Valid: true}
	}
	var durationMs sql.NullInt64
	if entry.DurationMs != nil {
		durationMs = sql.NullInt64{Int64: *entry.DurationMs, Valid: true}
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO log_entries (id, function_id, timestamp, level, message, metadata, request_id, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.FunctionID, entry.Timestamp, string(entry.Level), entry.Message,
		metadataJSON, entry.RequestID, durationMs)
	if err != nil {
		return domain.LogEntry{}, err
	}
	return entry, nil
}

// cursor encodes the (timestamp, id) position of the last row returned,
// so pagination can resume strictly after it in descending order.
type cursor struct {
	timestamp int64
	id        string
}

func encodeCursor(c cursor) string {
	raw := fmt.Sprintf("%d:%s", c.timestamp, c.id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, fmt.Errorf("logstore: invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return cursor{}, fmt.Errorf("logstore: malformed cursor")
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return cursor{}, fmt.Errorf("logstore: malformed cursor timestamp: %w", err)
	}
	return cursor{timestamp: ts, id: parts[1]}, nil
}

// QueryLogs returns up to limit rows for functionID in timestamp-descending
// order, resuming after the position named by cursorToken if non-empty
// (spec §4.F query contract; spec S6 round-trip invariant).
func (s *Store) QueryLogs(ctx context.Context, functionID string, limit int, cursorToken string) (domain.LogQueryPage, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows interface {
		Next() bool
		Scan(dest ...any) error
		Err() error
		Close()
	}
	var err error

	if cursorToken == "" {
		rows, err = s.conn.Query(ctx, `
			SELECT id, function_id, timestamp, level, message, metadata, request_id, duration_ms
			FROM log_entries WHERE function_id = ?
			ORDER BY timestamp DESC, id DESC LIMIT ?`, functionID, limit+1)
	} else {
		c, decErr := decodeCursor(cursorToken)
		if decErr != nil {
			return domain.LogQueryPage{}, decErr
		}
		rows, err = s.conn.Query(ctx, `
			SELECT id, function_id, timestamp, level, message, metadata, request_id, duration_ms
			FROM log_entries
			WHERE function_id = ? AND (timestamp < ? OR (timestamp = ? AND id < ?))
			ORDER BY timestamp DESC, id DESC LIMIT ?`,
			functionID, c.timestamp, c.timestamp, c.id, limit+1)
	}
	if err != nil {
		return domain.LogQueryPage{}, err
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return domain.LogQueryPage{}, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return domain.LogQueryPage{}, err
	}

	page := domain.LogQueryPage{HasMore: len(entries) > limit}
	if page.HasMore {
		entries = entries[:limit]
	}
	page.Entries = entries
	if page.HasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		page.Cursor = encodeCursor(cursor{timestamp: last.Timestamp, id: last.ID})
	}
	return page, nil
}

// DeleteForFunction removes every row for functionID (spec §4.F
// deleteForFunction). A no-op when nothing matches.
func (s *Store) DeleteForFunction(ctx context.Context, functionID string) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM log_entries WHERE function_id = ?`, functionID)
	return err
}

// DeleteLogsOlderThan sweeps log rows past retention (spec §4.E step 6).
func (s *Store) DeleteLogsOlderThan(ctx context.Context, cutoffMillis int64) (int64, error) {
	res, err := s.conn.Exec(ctx, `DELETE FROM log_entries WHERE timestamp < ?`, cutoffMillis)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// LogMetrics computes the rollup described in spec §4.F over every row
// for functionID.
func (s *Store) LogMetrics(ctx context.Context, functionID string) (domain.LogMetrics, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT level, timestamp, duration_ms FROM log_entries WHERE function_id = ?`, functionID)
	if err != nil {
		return domain.LogMetrics{}, err
	}
	defer rows.Close()

	countByLevel := map[string]int64{}
	var total int64
	var errorCount, fatalCount int64
	var minTS, maxTS int64
	var durations []float64

	for rows.Next() {
		var level string
		var ts int64
		var durationMs sql.NullInt64
		if err := rows.Scan(&level, &ts, &durationMs); err != nil {
			return domain.LogMetrics{}, err
		}
		total++
		countByLevel[level]++
		if level == string(domain.ConsoleError) {
			errorCount++
		}
		if level == string(domain.ConsoleFatal) {
			fatalCount++
		}
		if total == 1 || ts < minTS {
			minTS = ts
		}
		if ts > maxTS {
			maxTS = ts
		}
		if durationMs.Valid {
			durations = append(durations, float64(durationMs.Int64))
		}
	}
	if err := rows.Err(); err != nil {
		return domain.LogMetrics{}, err
	}

	m := domain.LogMetrics{Total: total, CountByLevel: countByLevel}
	if total == 0 {
		return m, nil
	}
	m.ErrorRate = float64(errorCount+fatalCount) / float64(total)
	spanMinutes := float64(maxTS-minTS) / 60000
	if spanMinutes > 0 {
		m.LogsPerMinute = float64(total) / spanMinutes
	} else {
		m.LogsPerMinute = float64(total)
	}
	last := maxTS
	m.LastLogTimestamp = &last

	if len(durations) > 0 {
		avg := mean(durations)
		p50 := percentile(durations, 50)
		p95 := percentile(durations, 95)
		p99 := percentile(durations, 99)
		m.AvgDurationMs = &avg
		m.P50DurationMs = &p50
		m.P95DurationMs = &p95
		m.P99DurationMs = &p99
	}
	return m, nil
}

func scanLogEntry(row scannable) (*domain.LogEntry, error) {
	var e domain.LogEntry
	var level string
	var metadataJSON sql.NullString
	var durationMs sql.NullInt64
	if err := row.Scan(&e.ID, &e.FunctionID, &e.Timestamp, &level, &e.Message, &metadataJSON, &e.RequestID, &durationMs); err != nil {
		return nil, err
	}
	e.Level = domain.ConsoleLevel(level)
	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("logstore: unmarshal metadata: %w", err)
		}
	}
	if durationMs.Valid {
		d := durationMs.Int64
		e.DurationMs = &d
	}
	return &e, nil
}
