package storage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const selectCallEvents = "SELECT call_id, timestamp, namespace, model, operation, tool_name, " +
	"outcome, error_kind, error, latency_ms FROM call_events"

// Reader queries the call_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	conn, err := openClickHouse(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{conn: conn, logger: logger}, nil
}

func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventFilter selects call events. Zero fields match everything.
type EventFilter struct {
	Namespace string
	Model     string
	Operation string
	ToolName  string
	Outcome   string
	ErrorKind string
	Since     time.Time
	Until     time.Time
	Page      int // 1-based
	PageSize  int
}

const defaultPageSize = 50

// where builds the WHERE clause and its named parameters.
func (f EventFilter) where() (string, []any) {
	var conditions []string
	var args []any
	add := func(column, name string, v any) {
		conditions = append(conditions, fmt.Sprintf("%s = @%s", column, name))
		args = append(args, clickhouse.Named(name, v))
	}

	if f.Namespace != "" {
		add("namespace", "namespace", f.Namespace)
	}
	if f.Model != "" {
		add("model", "model", f.Model)
	}
	if f.Operation != "" {
		add("operation", "operation", f.Operation)
	}
	if f.ToolName != "" {
		add("tool_name", "tool_name", f.ToolName)
	}
	if f.Outcome != "" {
		add("outcome", "outcome", f.Outcome)
	}
	if f.ErrorKind != "" {
		add("error_kind", "error_kind", f.ErrorKind)
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "timestamp >= @since")
		args = append(args, clickhouse.Named("since", f.Since))
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "timestamp <= @until")
		args = append(args, clickhouse.Named("until", f.Until))
	}

	if len(conditions) == 0 {
		return "1 = 1", args
	}
	return strings.Join(conditions, " AND "), args
}

func (f EventFilter) limits() (limit, offset int) {
	limit = f.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// ListEvents returns one page of matching events, newest first, and the
// total match count.
func (r *Reader) ListEvents(ctx context.Context, f EventFilter) ([]CallEvent, int, error) {
	where, args := f.where()

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM call_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	limit, offset := f.limits()
	dataQuery := fmt.Sprintf("%s WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset", selectCallEvents, where)
	args = append(args,
		clickhouse.Named("limit", uint32(limit)),
		clickhouse.Named("offset", uint32(offset)),
	)

	r.logger.Debug("listing call events",
		zap.String("where", where),
		zap.Uint64("total", total),
		zap.Int("limit", limit),
		zap.Int("offset", offset),
	)
	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []CallEvent{}
	for rows.Next() {
		var e CallEvent
		if err := rows.Scan(
			&e.CallID, &e.Timestamp, &e.Namespace, &e.Model, &e.Operation, &e.ToolName,
			&e.Outcome, &e.ErrorKind, &e.Error, &e.LatencyMs,
		); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}
	return events, int(total), rows.Err()
}

// GetEvent returns the event with callID, or nil if there is none.
func (r *Reader) GetEvent(ctx context.Context, callID string) (*CallEvent, error) {
	rows, err := r.conn.Query(ctx, selectCallEvents+" WHERE call_id = @call_id LIMIT 1",
		clickhouse.Named("call_id", callID),
	)
	if err != nil {
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var e CallEvent
	if err := rows.Scan(
		&e.CallID, &e.Timestamp, &e.Namespace, &e.Model, &e.Operation, &e.ToolName,
		&e.Outcome, &e.ErrorKind, &e.Error, &e.LatencyMs,
	); err != nil {
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	return &e, nil
}

// ToolStats aggregates the calls of one tool.
type ToolStats struct {
	ToolName string  `json:"tool_name"`
	Calls    int     `json:"calls"`
	Errors   int     `json:"errors"`
	P50      float64 `json:"p50_ms"`
	P95      float64 `json:"p95_ms"`
	P99      float64 `json:"p99_ms"`
}

// KindCount counts failures of one error kind.
type KindCount struct {
	ErrorKind string `json:"error_kind"`
	Count     int    `json:"count"`
}

// Stats summarizes the calls matched by a filter.
type Stats struct {
	Calls  int         `json:"calls"`
	Errors int         `json:"errors"`
	Tools  []ToolStats `json:"tools"`
	Kinds  []KindCount `json:"error_kinds"`
}

// Stats aggregates matching events per tool and per error kind. Paging
// fields of f are ignored.
func (r *Reader) Stats(ctx context.Context, f EventFilter) (*Stats, error) {
	where, args := f.where()
	out := &Stats{Tools: []ToolStats{}, Kinds: []KindCount{}}

	toolRows, err := r.conn.Query(ctx,
		"SELECT tool_name, count() AS calls, countIf(outcome = 'error') AS errors, "+
			"quantile(0.5)(latency_ms), quantile(0.95)(latency_ms), quantile(0.99)(latency_ms) "+
			"FROM call_events WHERE "+where+" GROUP BY tool_name ORDER BY calls DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("Stats tools: %w", err)
	}
	defer func() { _ = toolRows.Close() }()
	for toolRows.Next() {
		var (
			ts            ToolStats
			calls, errs   uint64
			p50, p95, p99 float64
		)
		if err := toolRows.Scan(&ts.ToolName, &calls, &errs, &p50, &p95, &p99); err != nil {
			return nil, fmt.Errorf("Stats tools scan: %w", err)
		}
		ts.Calls, ts.Errors = int(calls), int(errs)
		ts.P50, ts.P95, ts.P99 = safeFloat(p50), safeFloat(p95), safeFloat(p99)
		out.Tools = append(out.Tools, ts)
		out.Calls += ts.Calls
		out.Errors += ts.Errors
	}
	if err := toolRows.Err(); err != nil {
		return nil, fmt.Errorf("Stats tools: %w", err)
	}

	kindRows, err := r.conn.Query(ctx,
		"SELECT error_kind, count() AS count FROM call_events WHERE "+where+
			" AND outcome = 'error' GROUP BY error_kind ORDER BY count DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("Stats kinds: %w", err)
	}
	defer func() { _ = kindRows.Close() }()
	for kindRows.Next() {
		var kc KindCount
		var count uint64
		if err := kindRows.Scan(&kc.ErrorKind, &count); err != nil {
			return nil, fmt.Errorf("Stats kinds scan: %w", err)
		}
		kc.Count = int(count)
		out.Kinds = append(out.Kinds, kc)
	}
	return out, kindRows.Err()
}

// safeFloat replaces NaN/Inf with 0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
