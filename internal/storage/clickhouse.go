package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
	insertTimeout = 5 * time.Second
)

const insertCallEvents = `
	INSERT INTO call_events (
		call_id, timestamp, namespace, model, operation, tool_name,
		outcome, error_kind, error, latency_ms
	)
`

// insertFunc persists one batch.
type insertFunc func(ctx context.Context, events []*CallEvent) error

// BatchWriter buffers call events and inserts them in batches from a
// background goroutine.
type BatchWriter struct {
	insert  insertFunc
	buffer  chan *CallEvent
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

func newBatchWriter(insert insertFunc, capacity int, logger *zap.Logger) *BatchWriter {
	w := &BatchWriter{
		insert:  insert,
		buffer:  make(chan *CallEvent, capacity),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

// NewClickHouseWriter connects to ClickHouse and starts the flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*BatchWriter, error) {
	conn, err := openClickHouse(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}
	return newBatchWriter(clickHouseInsert(conn, logger), bufferSize, logger), nil
}

// openClickHouse opens and pings a connection. TLS is on unless the DSN
// configures it.
func openClickHouse(dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Write queues an event. Drops it if the buffer is full.
func (w *BatchWriter) Write(event *CallEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("call event buffer full, dropping event",
			zap.String("call_id", event.CallID),
		)
	}
}

// Close drains buffered events and waits for the final flush.
func (w *BatchWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *BatchWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*CallEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *BatchWriter) flush(events []*CallEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := w.insert(ctx, events); err != nil {
		w.logger.Error("call event batch insert failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

func clickHouseInsert(conn driver.Conn, logger *zap.Logger) insertFunc {
	return func(ctx context.Context, events []*CallEvent) error {
		batch, err := conn.PrepareBatch(ctx, insertCallEvents)
		if err != nil {
			return err
		}

		for _, e := range events {
			if err := batch.Append(
				e.CallID,
				e.Timestamp,
				e.Namespace,
				e.Model,
				e.Operation,
				e.ToolName,
				e.Outcome,
				e.ErrorKind,
				e.Error,
				e.LatencyMs,
			); err != nil {
				logger.Error("clickhouse append event failed",
					zap.String("call_id", e.CallID),
					zap.Error(err),
				)
			}
		}

		return batch.Send()
	}
}

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *CallEvent) {
	w.logger.Info("call_event",
		zap.String("call_id", event.CallID),
		zap.String("tool_name", event.ToolName),
		zap.String("operation", event.Operation),
		zap.String("model", event.Namespace+"/"+event.Model),
		zap.String("outcome", event.Outcome),
		zap.String("error_kind", event.ErrorKind),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
