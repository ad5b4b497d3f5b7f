package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triage-ai/mcpstore/internal/config"
	"github.com/triage-ai/mcpstore/internal/datastore"
	"github.com/triage-ai/mcpstore/internal/logging"
	"github.com/triage-ai/mcpstore/internal/model"
	"github.com/triage-ai/mcpstore/internal/session"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalFlags override the corresponding environment variables when set.
type globalFlags struct {
	models    string
	url       string
	transport string
	token     string
	apiKey    string
	logLevel  string
}

func (f *globalFlags) config() config.Config {
	cfg := config.Load()
	override(&cfg.ModelsPath, f.models)
	override(&cfg.URL, f.url)
	override(&cfg.Transport, f.transport)
	override(&cfg.DirectToken, f.token)
	override(&cfg.APIKey, f.apiKey)
	override(&cfg.LogLevel, f.logLevel)
	return cfg
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// remote is what every remote command needs.
type remote struct {
	catalog    *model.Catalog
	sessions   *session.Manager
	dispatcher *datastore.Dispatcher
	logger     *zap.Logger
}

func (r *remote) Close() {
	_ = r.sessions.Close()
	_ = r.logger.Sync()
}

func (r *remote) model(namespace, pluralName string) (model.Descriptor, error) {
	return r.catalog.Get(namespace, pluralName)
}

func (f *globalFlags) connect() (*remote, error) {
	cfg := f.config()
	logger, err := logging.Build(cfg.LogLevel, "stderr")
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	sc, err := cfg.SessionConfig(nil)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(sc, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	d, err := datastore.NewDispatcher(datastore.Config{Sessions: sessions, Logger: logger})
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}
	return &remote{catalog: catalog, sessions: sessions, dispatcher: d, logger: logger}, nil
}

// withModel resolves the first two args as namespace and model and runs fn
// with a connected remote.
func (f *globalFlags) withModel(cmd *cobra.Command, args []string, fn func(ctx context.Context, rt *remote, m model.Descriptor) (any, error)) error {
	rt, err := f.connect()
	if err != nil {
		return err
	}
	defer rt.Close()

	m, err := rt.model(args[0], args[1])
	if err != nil {
		return err
	}
	out, err := fn(cmd.Context(), rt, m)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "mcpstorectl",
		Short: "Store and query model records through a remote MCP tool endpoint",
		Long: `mcpstorectl compiles the models in a catalog file into MCP tool descriptors
and runs datastore operations against a remote tool endpoint.

Connection settings come from MCPSTORE_* environment variables; the flags
below override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.models, "models", "", "model catalog file (MCPSTORE_MODELS)")
	pf.StringVar(&flags.url, "url", "", "tool endpoint URL (MCPSTORE_URL)")
	pf.StringVar(&flags.transport, "transport", "", "http or sse (MCPSTORE_TRANSPORT)")
	pf.StringVar(&flags.token, "token", "", "bearer token (MCPSTORE_OAUTH_TOKEN)")
	pf.StringVar(&flags.apiKey, "api-key", "", "API key (MCPSTORE_API_KEY)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (MCPSTORE_LOG_LEVEL)")

	root.AddCommand(
		newToolsCmd(flags),
		newSaveCmd(flags),
		newRetrieveCmd(flags),
		newDeleteCmd(flags),
		newSearchCmd(flags),
		newBulkInsertCmd(flags),
		newBulkDeleteCmd(flags),
		newEventsCmd(flags),
		newKeygenCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mcpstorectl %s\n", version)
			return err
		},
	}
}
