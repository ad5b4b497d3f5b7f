package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultCacheTTL = 60 * time.Second

// DDL creates the tool_definitions table used by the registry.
const DDL = `
CREATE TABLE IF NOT EXISTS tool_definitions (
	tool_name     TEXT PRIMARY KEY,
	namespace     TEXT NOT NULL,
	model         TEXT NOT NULL,
	operation     TEXT NOT NULL,
	description   TEXT,
	input_schema  JSONB NOT NULL,
	output_schema JSONB,
	schema_hash   TEXT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tool_definitions_namespace_idx ON tool_definitions (namespace);
`

// ToolStore abstracts DB queries for testability.
type ToolStore interface {
	LookupTool(ctx context.Context, toolName string) (*toolRow, error)
	ListTools(ctx context.Context, namespace string) ([]*toolRow, error)
	// UpsertTools writes rows whose hash differs from the stored one and
	// returns the names of the rows it changed.
	UpsertTools(ctx context.Context, rows []*toolRow) ([]string, error)
}

type toolRow struct {
	ToolName     string
	Namespace    string
	Model        string
	Operation    string
	Description  sql.NullString
	InputSchema  string // JSONB as string
	OutputSchema sql.NullString
	SchemaHash   string
	UpdatedAt    time.Time
}

const selectColumns = `
	SELECT tool_name, namespace, model, operation, description,
	       input_schema, output_schema, schema_hash, updated_at
	FROM tool_definitions`

// sqlToolStore is the real implementation using *sql.DB.
type sqlToolStore struct {
	db *sql.DB
}

func scanRow(s interface{ Scan(...any) error }) (*toolRow, error) {
	var r toolRow
	if err := s.Scan(
		&r.ToolName, &r.Namespace, &r.Model, &r.Operation, &r.Description,
		&r.InputSchema, &r.OutputSchema, &r.SchemaHash, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqlToolStore) LookupTool(ctx context.Context, toolName string) (*toolRow, error) {
	return scanRow(s.db.QueryRowContext(ctx, selectColumns+` WHERE tool_name = $1`, toolName))
}

func (s *sqlToolStore) ListTools(ctx context.Context, namespace string) ([]*toolRow, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE $1 = '' OR namespace = $1 ORDER BY tool_name`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*toolRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlToolStore) UpsertTools(ctx context.Context, rows []*toolRow) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	var changed []string
	for _, r := range rows {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO tool_definitions (
				tool_name, namespace, model, operation, description,
				input_schema, output_schema, schema_hash, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (tool_name) DO UPDATE SET
				namespace = EXCLUDED.namespace,
				model = EXCLUDED.model,
				operation = EXCLUDED.operation,
				description = EXCLUDED.description,
				input_schema = EXCLUDED.input_schema,
				output_schema = EXCLUDED.output_schema,
				schema_hash = EXCLUDED.schema_hash,
				updated_at = now()
			WHERE tool_definitions.schema_hash <> EXCLUDED.schema_hash
		`, r.ToolName, r.Namespace, r.Model, r.Operation, r.Description,
			r.InputSchema, r.OutputSchema, r.SchemaHash)
		if err != nil {
			return nil, fmt.Errorf("upsert %s: %w", r.ToolName, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			changed = append(changed, r.ToolName)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return changed, nil
}

// PostgresToolRegistry publishes and serves tool definitions from the
// tool_definitions table.
type PostgresToolRegistry struct {
	store  ToolStore
	cache  *ToolCache
	logger *zap.Logger
}

// PostgresToolRegistryConfig configures the PostgresToolRegistry.
type PostgresToolRegistryConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

func NewPostgresToolRegistry(cfg PostgresToolRegistryConfig) *PostgresToolRegistry {
	return newPostgresToolRegistryWithStore(&sqlToolStore{db: cfg.DB}, cfg.CacheTTL, cfg.Logger)
}

// newPostgresToolRegistryWithStore creates a registry with a custom store (for testing).
func newPostgresToolRegistryWithStore(store ToolStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresToolRegistry {
	if cacheTTL == 0 {
		cacheTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresToolRegistry{
		store:  store,
		cache:  NewToolCache(cacheTTL),
		logger: logger,
	}
}

// EnsureSchema creates the registry table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, DDL); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

func (r *PostgresToolRegistry) GetTool(ctx context.Context, toolName string) (*ToolDefinition, error) {
	cacheResult := r.cache.Get(toolName)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go r.refreshInBackground(toolName)
		}
		return cacheResult.Tool, nil
	}

	// Cache miss
	td, err := r.fetchFromDB(ctx, toolName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.cache.Set(toolName, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("GetTool: %w", err)
	}

	r.cache.Set(toolName, td)
	return td, nil
}

// ListTools always reads through to the database.
func (r *PostgresToolRegistry) ListTools(ctx context.Context, namespace string) ([]*ToolDefinition, error) {
	rows, err := r.store.ListTools(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("ListTools: %w", err)
	}
	out := make([]*ToolDefinition, 0, len(rows))
	for _, row := range rows {
		td, err := parseToolRow(row)
		if err != nil {
			return nil, fmt.Errorf("ListTools: %w", err)
		}
		out = append(out, td)
	}
	return out, nil
}

func (r *PostgresToolRegistry) Publish(ctx context.Context, defs []*ToolDefinition) (int, error) {
	rows := make([]*toolRow, 0, len(defs))
	for _, d := range defs {
		row, err := toRow(d)
		if err != nil {
			return 0, fmt.Errorf("Publish: %w", err)
		}
		rows = append(rows, row)
	}

	changed, err := r.store.UpsertTools(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("Publish: %w", err)
	}
	for _, name := range changed {
		r.cache.Delete(name)
	}
	r.logger.Info("tool definitions published",
		zap.Int("total", len(defs)),
		zap.Int("changed", len(changed)),
	)
	return len(changed), nil
}

func (r *PostgresToolRegistry) fetchFromDB(ctx context.Context, toolName string) (*ToolDefinition, error) {
	row, err := r.store.LookupTool(ctx, toolName)
	if err != nil {
		return nil, err
	}
	return parseToolRow(row)
}

func (r *PostgresToolRegistry) refreshInBackground(toolName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	td, err := r.fetchFromDB(ctx, toolName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.cache.Set(toolName, nil)
			return
		}
		r.logger.Warn("background tool registry refresh failed",
			zap.String("tool_name", toolName),
			zap.Error(err),
		)
		return
	}
	r.cache.Set(toolName, td)
}

func toRow(d *ToolDefinition) (*toolRow, error) {
	in, err := json.Marshal(d.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("%s input_schema: %w", d.ToolName, err)
	}
	row := &toolRow{
		ToolName:    d.ToolName,
		Namespace:   d.Namespace,
		Model:       d.Model,
		Operation:   d.Operation,
		Description: sql.NullString{String: d.Description, Valid: d.Description != ""},
		InputSchema: string(in),
		SchemaHash:  d.SchemaHash,
	}
	if d.OutputSchema != nil {
		out, err := json.Marshal(d.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("%s output_schema: %w", d.ToolName, err)
		}
		row.OutputSchema = sql.NullString{String: string(out), Valid: true}
	}
	return row, nil
}

func parseToolRow(row *toolRow) (*ToolDefinition, error) {
	td := &ToolDefinition{
		ToolName:   row.ToolName,
		Namespace:  row.Namespace,
		Model:      row.Model,
		Operation:  row.Operation,
		SchemaHash: row.SchemaHash,
		UpdatedAt:  row.UpdatedAt,
	}

	if row.Description.Valid {
		td.Description = row.Description.String
	}

	if err := json.Unmarshal([]byte(row.InputSchema), &td.InputSchema); err != nil {
		return nil, fmt.Errorf("parseToolRow: input_schema: %w", err)
	}

	if row.OutputSchema.Valid && row.OutputSchema.String != "" {
		if err := json.Unmarshal([]byte(row.OutputSchema.String), &td.OutputSchema); err != nil {
			return nil, fmt.Errorf("parseToolRow: output_schema: %w", err)
		}
	}

	return td, nil
}
