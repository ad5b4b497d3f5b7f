package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/triage-ai/mcpstore/internal/registry"
)

func newToolsCmd(flags *globalFlags) *cobra.Command {
	var (
		namespace string
		publish   bool
		dsn       string
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool descriptors compiled from the model catalog",
		Long: `Tools compiles every model in the catalog into its six tool descriptors and
prints them as JSON. With --publish the descriptors are also upserted into the
Postgres tool_definitions table; rows whose content hash is unchanged are left
alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := flags.config()
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}
			all, err := registry.DefinitionsForCatalog(catalog, nil)
			if err != nil {
				return err
			}
			var defs []*registry.ToolDefinition
			for _, d := range all {
				if namespace == "" || d.Namespace == namespace {
					defs = append(defs, d)
				}
			}

			if publish {
				if dsn == "" {
					dsn = cfg.PostgresDSN
				}
				if dsn == "" {
					return errors.New("--publish needs --postgres-dsn or POSTGRES_DSN")
				}
				changed, err := publishDefinitions(cmd.Context(), dsn, defs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "published %d tools, %d changed\n", len(defs), changed)
				return nil
			}

			out := make([]map[string]any, 0, len(defs))
			for _, d := range defs {
				tool := map[string]any{
					"name":        d.ToolName,
					"description": d.Description,
					"inputSchema": d.InputSchema,
				}
				if d.OutputSchema != nil {
					tool["outputSchema"] = d.OutputSchema
				}
				out = append(out, tool)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "only models in this namespace")
	cmd.Flags().BoolVar(&publish, "publish", false, "upsert the descriptors into Postgres")
	cmd.Flags().StringVar(&dsn, "postgres-dsn", "", "Postgres DSN (POSTGRES_DSN)")
	return cmd
}

func publishDefinitions(ctx context.Context, dsn string, defs []*registry.ToolDefinition) (int, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, fmt.Errorf("open postgres: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := registry.EnsureSchema(ctx, db); err != nil {
		return 0, err
	}
	reg := registry.NewPostgresToolRegistry(registry.PostgresToolRegistryConfig{DB: db})
	return reg.Publish(ctx, defs)
}
