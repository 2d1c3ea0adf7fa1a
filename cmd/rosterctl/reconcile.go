package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"rosterlink/internal/app"
	"rosterlink/internal/enrichment"
	"rosterlink/internal/identity"
	"rosterlink/internal/platform/config"
	"rosterlink/internal/platform/logger"
	"rosterlink/internal/provider/csvfile"
	"rosterlink/pkg/requestcontext"
)

type reconcileOptions struct {
	plan        string
	dataDir     string
	databaseURL string
	schema      string
	policy      string
	format      string
	out         string
}

func reconcileCmd() *cobra.Command {
	var opts reconcileOptions
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the resolution plan once and write the enriched roster",
		Long: `Loads the subject table and every directory the plan names, resolves
them and writes the enriched roster. Per-pass counts go to stderr.

With --data-dir every source is read from <dir>/<dataset>.csv instead of
the database the plan names.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.plan, "plan", "plan.yaml", "Resolution plan file")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Read sources from CSV exports in this directory")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL)")
	cmd.Flags().StringVar(&opts.schema, "schema", "", "Default schema for datasets (defaults to DATABASE_SCHEMA)")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "Override the plan policy (retain-all, match-or-drop)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "csv", "Output format (csv, json)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file (defaults to stdout)")
	cmd.MarkFlagsMutuallyExclusive("data-dir", "database-url")

	return cmd
}

func runReconcile(cmd *cobra.Command, opts reconcileOptions) error {
	if opts.format != "csv" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	var policy identity.Policy
	if opts.policy != "" {
		p, err := identity.ParsePolicy(opts.policy)
		if err != nil {
			return err
		}
		policy = p
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	cfg.Plan.Path = opts.plan
	if opts.dataDir != "" {
		cfg.Plan.DataDir = opts.dataDir
		cfg.Plan.Provider = csvfile.DefaultID
		cfg.Database.URL = ""
	}
	if opts.databaseURL != "" {
		cfg.Database.URL = opts.databaseURL
	}
	if opts.schema != "" {
		cfg.Database.Schema = opts.schema
	}
	if cfg.Audit.Sink == "" {
		cfg.Audit.Sink = "memory"
	}
	cfg.Redis.URL = ""

	level, _ := cmd.Flags().GetString("log-level")
	log := logger.NewWithWriter(cmd.ErrOrStderr(), level, "text")

	ctx := requestcontext.WithRequester(cmd.Context(), os.Getenv("USER"))
	a, err := app.New(ctx, cfg, log, app.WithoutCache(), app.WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	report, err := a.Enrichment.Run(ctx, policy)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch opts.format {
	case "json":
		err = writeJSON(w, report)
	default:
		err = writeCSV(w, report.Columns, report.Users)
	}
	if err != nil {
		return fmt.Errorf("write roster: %w", err)
	}

	printSummary(cmd.ErrOrStderr(), report)
	return nil
}

func printSummary(w io.Writer, report *enrichment.Report) {
	fmt.Fprintf(w, "Subjects: %d\n", report.Stats.Total)
	for _, pc := range report.Stats.Passes {
		fmt.Fprintf(w, "Matched on %s: %d\n", pc.Pass, pc.Matched)
	}
	if report.Policy == identity.PolicyMatchOrDrop {
		fmt.Fprintf(w, "Dropped: %d\n", report.Stats.Dropped)
	} else {
		fmt.Fprintf(w, "Unresolved: %d\n", report.Stats.Terminal)
	}
	if report.Ambiguities > 0 {
		fmt.Fprintf(w, "Ambiguous directory keys: %d\n", report.Ambiguities)
	}
	fmt.Fprintf(w, "Run: %s\n", report.RunID)
}
