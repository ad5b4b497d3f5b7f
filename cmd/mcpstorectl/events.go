package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/triage-ai/mcpstore/internal/storage"
)

type eventFlags struct {
	dsn       string
	namespace string
	model     string
	operation string
	tool      string
	outcome   string
	kind      string
	since     time.Duration
	page      int
	pageSize  int
}

func (f *eventFlags) filter(now time.Time) storage.EventFilter {
	ef := storage.EventFilter{
		Namespace: f.namespace,
		Model:     f.model,
		Operation: f.operation,
		ToolName:  f.tool,
		Outcome:   f.outcome,
		ErrorKind: f.kind,
		Page:      f.page,
		PageSize:  f.pageSize,
	}
	if f.since > 0 {
		ef.Since = now.Add(-f.since)
	}
	return ef
}

func (f *eventFlags) reader(flags *globalFlags) (*storage.Reader, error) {
	dsn := f.dsn
	if dsn == "" {
		dsn = flags.config().ClickHouseDSN
	}
	if dsn == "" {
		return nil, errors.New("needs --clickhouse-dsn or CLICKHOUSE_DSN")
	}
	return storage.NewReader(dsn, nil)
}

func newEventsCmd(flags *globalFlags) *cobra.Command {
	ef := &eventFlags{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect recorded tool calls",
		Long: `Events reads the call_events table the gateway writes to ClickHouse.
Filters apply to list and stats.`,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&ef.dsn, "clickhouse-dsn", "", "ClickHouse DSN (CLICKHOUSE_DSN)")
	pf.StringVar(&ef.namespace, "namespace", "", "filter by model namespace")
	pf.StringVar(&ef.model, "model", "", "filter by model plural name")
	pf.StringVar(&ef.operation, "operation", "", "filter by operation")
	pf.StringVar(&ef.tool, "tool", "", "filter by tool name")
	pf.StringVar(&ef.outcome, "outcome", "", "ok or error")
	pf.StringVar(&ef.kind, "kind", "", "filter by error kind")
	pf.DurationVar(&ef.since, "since", 24*time.Hour, "only calls newer than this (0 for all)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List calls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := ef.reader(flags)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			events, total, err := r.ListEvents(cmd.Context(), ef.filter(time.Now().UTC()))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"events": events,
				"total":  total,
			})
		},
	}
	list.Flags().IntVar(&ef.page, "page", 1, "page number")
	list.Flags().IntVar(&ef.pageSize, "page-size", 50, "events per page")

	get := &cobra.Command{
		Use:   "get CALL_ID",
		Short: "Show one call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := ef.reader(flags)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			e, err := r.GetEvent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("call %s not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), e)
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Call counts, error kinds and latency percentiles per tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := ef.reader(flags)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			s, err := r.Stats(cmd.Context(), ef.filter(time.Now().UTC()))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}

	cmd.AddCommand(list, get, stats)
	return cmd
}
