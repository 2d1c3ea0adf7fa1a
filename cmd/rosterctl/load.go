package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rosterlink/internal/platform/config"
	"rosterlink/internal/platform/logger"
	"rosterlink/internal/platform/postgres"
	"rosterlink/internal/roster"
	auditpostgres "rosterlink/pkg/platform/audit/store/postgres"
	"rosterlink/pkg/requestcontext"
)

type loadOptions struct {
	csv         string
	table       string
	schema      string
	databaseURL string
	replace     bool
}

func loadCmd() *cobra.Command {
	var opts loadOptions
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Bulk-load a license usage export into PostgreSQL",
		Long: `Reads the export, keeps the analyst-function columns, coerces every cell
to its column type and copies all rows in one transaction. The table is
created when absent. Any unparseable cell aborts the load and names its row.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.csv, "csv", "", "Export file to load")
	cmd.Flags().StringVar(&opts.table, "table", roster.DefaultTable, "Target table")
	cmd.Flags().StringVar(&opts.schema, "schema", "", "Target schema (defaults to DATABASE_SCHEMA)")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL)")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "Empty the table before loading")
	_ = cmd.MarkFlagRequired("csv")

	return cmd
}

func runLoad(cmd *cobra.Command, opts loadOptions) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if opts.databaseURL != "" {
		cfg.Database.URL = opts.databaseURL
	}
	if opts.schema != "" {
		cfg.Database.Schema = opts.schema
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("a database is required: set DATABASE_URL or --database-url")
	}

	level, _ := cmd.Flags().GetString("log-level")
	log := logger.NewWithWriter(cmd.ErrOrStderr(), level, "text")

	data, err := os.ReadFile(opts.csv)
	if err != nil {
		return err
	}

	ctx := requestcontext.WithRequester(cmd.Context(), os.Getenv("USER"))
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	auditStore := auditpostgres.New(pool, cfg.Database.Schema)
	if err := auditStore.EnsureSchema(ctx); err != nil {
		return err
	}

	loader, err := roster.NewLoader(pool,
		roster.WithSchema(cfg.Database.Schema),
		roster.WithTable(opts.table),
		roster.WithReplace(opts.replace),
		roster.WithAudit(auditStore),
		roster.WithLogger(log),
	)
	if err != nil {
		return err
	}

	n, err := loader.Load(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Loaded %d rows into %s.%s\n", n, cfg.Database.Schema, opts.table)
	return nil
}
