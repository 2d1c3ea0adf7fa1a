package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"rosterlink/internal/platform/config"
	platformkafka "rosterlink/internal/platform/kafka"
	"rosterlink/internal/platform/kafka/consumer"
	"rosterlink/internal/platform/logger"
	"rosterlink/internal/platform/postgres"
	audit "rosterlink/pkg/platform/audit"
	auditconsumer "rosterlink/pkg/platform/audit/consumer"
	kafkastore "rosterlink/pkg/platform/audit/store/kafka"
	auditpostgres "rosterlink/pkg/platform/audit/store/postgres"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and materialize resolution audit events",
	}
	cmd.AddCommand(auditConsumeCmd())
	cmd.AddCommand(auditListCmd())
	return cmd
}

// openAuditStore connects to the database holding materialized events.
func openAuditStore(ctx context.Context, cfg config.Config) (*auditpostgres.Store, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("a database is required: set DATABASE_URL")
	}
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	store := auditpostgres.New(pool, cfg.Database.Schema)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func auditConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Copy audit events from Kafka into PostgreSQL until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			level, _ := cmd.Flags().GetString("log-level")
			log := logger.NewWithWriter(cmd.ErrOrStderr(), level, "text")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openAuditStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			client, err := platformkafka.NewClient(cfg.Kafka,
				kgo.ConsumerGroup(cfg.Kafka.ConsumerGroup),
				kgo.ConsumeTopics(cfg.Kafka.AuditTopic),
				kgo.DisableAutoCommit(),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			materializer := auditconsumer.NewMaterializer(store, log)
			router := auditconsumer.NewRouter(kafkastore.CategoryHeader, log, materializer)
			router.Register(string(audit.CategoryDataQuality), materializer)
			router.Register(string(audit.CategoryOperations), materializer)

			log.Info("consuming audit events",
				"topic", cfg.Kafka.AuditTopic,
				"group", cfg.Kafka.ConsumerGroup,
			)
			err = consumer.New(client, router, log).Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func auditListCmd() *cobra.Command {
	var runID string
	var recent int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print materialized audit events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" && recent <= 0 {
				return fmt.Errorf("one of --run or --recent is required")
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			store, closeStore, err := openAuditStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var events []audit.Event
			if runID != "" {
				events, err = store.ListByRun(cmd.Context(), runID)
			} else {
				events, err = store.ListRecent(cmd.Context(), recent)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range events {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Resolution run ID")
	cmd.Flags().IntVar(&recent, "recent", 0, "Show the N most recent events instead")
	cmd.MarkFlagsMutuallyExclusive("run", "recent")
	return cmd
}
