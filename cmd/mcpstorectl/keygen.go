package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/triage-ai/mcpstore/internal/auth"
)

func newKeygenCmd(flags *globalFlags) *cobra.Command {
	var (
		register string
		dsn      string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a gateway API key",
		Long: `Keygen prints a new msk_ API key and the bcrypt hash to add to
MCPSTORE_GATEWAY_API_KEY_HASHES. Only the hash belongs in gateway config.

With --register NAME the hash is stored in the Postgres gateway_keys table
instead and only the key is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if register != "" {
				if dsn == "" {
					dsn = flags.config().PostgresDSN
				}
				if dsn == "" {
					return errors.New("--register needs --postgres-dsn or POSTGRES_DSN")
				}
				key, err := registerKey(cmd.Context(), dsn, register)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\n", key)
				return err
			}

			key, hash, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\nhash: %s\n", key, hash)
			return err
		},
	}
	cmd.Flags().StringVar(&register, "register", "", "store the key hash in Postgres under this name")
	cmd.Flags().StringVar(&dsn, "postgres-dsn", "", "Postgres DSN (POSTGRES_DSN)")
	return cmd
}

func registerKey(ctx context.Context, dsn, name string) (string, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return "", fmt.Errorf("open postgres: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := auth.EnsureKeysSchema(ctx, db); err != nil {
		return "", err
	}
	return auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{DB: db}).Register(ctx, name)
}
