package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/triage-ai/mcpstore/internal/model"
	"github.com/triage-ai/mcpstore/internal/query"
	"github.com/triage-ai/mcpstore/internal/schema"
)

// readJSON decodes arg, or stdin when arg is "-".
func readJSON(cmd *cobra.Command, arg string, v any) error {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// checkInput validates args against the compiled input schema of op.
func checkInput(m model.Descriptor, op schema.Operation, args any) error {
	td, err := schema.CompileToolDescriptor(m, op, nil)
	if err != nil {
		return err
	}
	return schema.Validate(td.InputSchema, args)
}

func newSaveCmd(flags *globalFlags) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "save NAMESPACE MODEL JSON",
		Short: "Create or update a record",
		Long: `Save sends one record to the model's save tool and prints the stored record.
Pass - as JSON to read the record from stdin.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var values map[string]any
			if err := readJSON(cmd, args[2], &values); err != nil {
				return err
			}
			return flags.withModel(cmd, args, func(ctx context.Context, rt *remote, m model.Descriptor) (any, error) {
				if check {
					if err := checkInput(m, schema.OpSave, values); err != nil {
						return nil, err
					}
				}
				return rt.dispatcher.Save(ctx, model.NewRecord(m, values))
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "validate the record against the compiled schema before sending")
	return cmd
}

func newRetrieveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve NAMESPACE MODEL ID",
		Short: "Fetch a record by id",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withModel(cmd, args, func(ctx context.Context, rt *remote, m model.Descriptor) (any, error) {
				inst, err := rt.dispatcher.Retrieve(ctx, m, args[2])
				if err != nil {
					return nil, err
				}
				if inst == nil {
					// Print an explicit null rather than nothing.
					return json.RawMessage("null"), nil
				}
				return inst, nil
			})
		},
	}
}

func newDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAMESPACE MODEL ID",
		Short: "Delete a record by id",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withModel(cmd, args, func(ctx context.Context, rt *remote, m model.Descriptor) (any, error) {
				return nil, rt.dispatcher.Delete(ctx, m, args[2])
			})
		},
	}
}

type searchFlags struct {
	take      int
	where     []string
	anyOf     bool
	after     []string
	before    []string
	inclusive bool
	sort      string
}

func (f *searchFlags) filtered() bool {
	return len(f.where) > 0 || len(f.after) > 0 || len(f.before) > 0 || f.sort != ""
}

// request builds a search request from the filter flags.
func (f *searchFlags) request() (*query.Request, error) {
	var tokens []query.Token
	for _, expr := range f.where {
		tok, err := query.ParseCondition(expr)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	for _, d := range []struct {
		exprs []string
		mk    func(string, time.Time, bool) query.DateToken
	}{{f.after, query.DatesAfter}, {f.before, query.DatesBefore}} {
		for _, expr := range d.exprs {
			tok, err := query.ParseDate(expr, f.inclusive, d.mk)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		}
	}

	var req *query.Request
	switch {
	case len(tokens) == 0:
		req = query.New()
	case f.anyOf:
		req = query.New(query.Any(tokens...)...)
	default:
		req = query.New(query.All(tokens...)...)
	}
	if f.sort != "" {
		s, err := query.ParseSort(f.sort)
		if err != nil {
			return nil, err
		}
		req.SortBy(s.Key, s.Order)
	}
	return req.WithTake(f.take), nil
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	sf := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search NAMESPACE MODEL [REQUEST]",
		Short: "Search records",
		Long: `Search sends a search request to the model's search tool.

Filters are built from flags and joined with AND (OR with --any):

  mcpstorectl search acct Widgets --where name=Foo --where 'size>=3' --sort name:dsc
  mcpstorectl search acct Widgets --after created=2024-01-01T00:00:00Z --inclusive

REQUEST may instead be a JSON object with "query" (a token list), and
optional "take", "sort" and "page". Either way the request is checked
against the search grammar before sending. With neither every record
matches.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var request any
			if len(args) == 3 {
				if sf.filtered() {
					return errors.New("pass REQUEST or filter flags, not both")
				}
				raw := map[string]any{}
				if err := readJSON(cmd, args[2], &raw); err != nil {
					return err
				}
				if sf.take > 0 {
					raw["take"] = sf.take
				}
				if err := schema.Validate(schema.SearchInputSchema(), raw); err != nil {
					return err
				}
				request = raw
			} else {
				req, err := sf.request()
				if err != nil {
					return err
				}
				if err := req.Validate(); err != nil {
					return err
				}
				request = req
			}
			return flags.withModel(cmd, args, func(ctx context.Context, rt *remote, m model.Descriptor) (any, error) {
				return rt.dispatcher.Search(ctx, m, request)
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&sf.take, "take", 0, "maximum number of records to return")
	f.StringArrayVar(&sf.where, "where", nil, "property condition key<op>value, op one of = < <= > >= (repeatable)")
	f.BoolVar(&sf.anyOf, "any", false, "join filters with OR instead of AND")
	f.StringArrayVar(&sf.after, "after", nil, "date filter key=RFC3339 (repeatable)")
	f.StringArrayVar(&sf.before, "before", nil, "date filter key=RFC3339 (repeatable)")
	f.BoolVar(&sf.inclusive, "inclusive", false, "make --after and --before include the boundary")
	f.StringVar(&sf.sort, "sort", "", "sort key, optionally :asc or :dsc")
	return cmd
}

func newBulkInsertCmd(flags *globalFlags) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "bulk-insert NAMESPACE MODEL JSON_ARRAY",
		Short: "Insert many records in one call",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []map[string]any
			if err := readJSON(cmd, args[2], &items); err != nil {
				return err
			}
			return flags.withModel(cmd, args, func(ctx context.Context, rt *remote, m model.Descriptor) (any, error) {
				if check {
					if err := checkInput(m, schema.OpBulkInsert, map[string]any{"items": items}); err != nil {
						return nil, err
					}
				}
				instances := make([]model.Instance, 0, len(items))
				for _, item := range items {
					instances = append(instances, model.NewRecord(m, item))
				}
				return nil, rt.dispatcher.BulkInsert(ctx, m, instances)
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "validate the records against the compiled schema before sending")
	return cmd
}

func newBulkDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bulk-delete NAMESPACE MODEL ID...",
		Short: "Delete many records in one call",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withModel(cmd, args, func(ctx context.Context, rt *remote, m model.Descriptor) (any, error) {
				return nil, rt.dispatcher.BulkDelete(ctx, m, args[2:])
			})
		},
	}
}
