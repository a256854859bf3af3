package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/specsync/pkg/api"
	"github.com/ethpandaops/specsync/pkg/auth"
	"github.com/ethpandaops/specsync/pkg/coderag"
	"github.com/ethpandaops/specsync/pkg/config"
	"github.com/ethpandaops/specsync/pkg/fetcher"
	"github.com/ethpandaops/specsync/pkg/github"
	"github.com/ethpandaops/specsync/pkg/lock"
	"github.com/ethpandaops/specsync/pkg/metrics"
	"github.com/ethpandaops/specsync/pkg/pipeline"
	"github.com/ethpandaops/specsync/pkg/publish"
	"github.com/ethpandaops/specsync/pkg/queue"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServerCmd(log *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the specsync server",
		Long:  `Start the HTTP API server and the documentation pipeline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), log, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to configuration file")

	return cmd
}

func runServer(ctx context.Context, log *logrus.Logger, configPath string) error {
	// Load configuration.
	log.WithField("path", configPath).Info("Loading configuration")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Info("Configuration loaded:\n" + cfg.String())

	// Create store.
	st, err := newStore(log, cfg)
	if err != nil {
		return err
	}

	if err := st.Start(ctx); err != nil {
		return err
	}

	defer st.Stop()

	// Run migrations.
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// Create metrics.
	m := metrics.New()
	m.SetBuildInfo(Version, GitCommit, BuildDate)

	// Create queue service.
	queueSvc := queue.NewService(log, cfg, st, m)

	if err := queueSvc.Start(ctx); err != nil {
		return err
	}

	defer queueSvc.Stop()

	locker, err := newLocker(log, cfg)
	if err != nil {
		return err
	}

	authSvc := auth.NewService(log, st, cfg.Security.SecretKey)

	ragClient := coderag.NewClient(log, coderag.Options{
		URL:           cfg.CodeRAG.URL,
		APIKey:        cfg.CodeRAG.APIKey,
		SetupTimeout:  cfg.CodeRAG.SetupTimeout,
		StatusTimeout: cfg.CodeRAG.StatusTimeout,
		QueryTimeout:  cfg.CodeRAG.QueryTimeout,
	})

	// Create publishers.
	publishers, stopPublishers, err := newPublishers(ctx, log, cfg, m)
	if err != nil {
		return err
	}

	defer stopPublishers()

	// Create and start the pipeline.
	pl := pipeline.NewService(log, cfg, pipeline.Dependencies{
		Store:  st,
		Queue:  queueSvc,
		Locker: locker,
		Fetcher: fetcher.New(log, fetcher.Options{
			Timeout:  cfg.Pipeline.FetchTimeout,
			MaxBytes: cfg.Pipeline.MaxSpecBytes,
			Validate: cfg.Pipeline.ValidateSpec,
		}),
		Indexer:    ragClient,
		Annotator:  ragClient,
		Secrets:    authSvc,
		Publishers: publishers,
		Metrics:    m,
	})

	if err := pl.Start(ctx); err != nil {
		return err
	}

	defer pl.Stop()

	// Create and start API server.
	srv := api.NewServer(log, cfg, st, pl, queueSvc, authSvc, m)

	if err := srv.Start(ctx); err != nil {
		return err
	}

	defer srv.Stop()

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("Received shutdown signal")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	log.Info("Shutting down...")

	return nil
}

func newLocker(log logrus.FieldLogger, cfg *config.Config) (lock.Locker, error) {
	switch cfg.Lock.Driver {
	case "memory":
		return lock.NewMemoryLocker(), nil
	case "file":
		return lock.NewFileLocker(log, cfg.Lock.Dir)
	default:
		return nil, fmt.Errorf("unsupported lock driver: %s", cfg.Lock.Driver)
	}
}

// newPublishers starts the enabled sinks. The returned func stops them.
func newPublishers(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg *config.Config,
	m *metrics.Metrics,
) ([]pipeline.Publisher, func(), error) {
	var (
		publishers []pipeline.Publisher
		stops      []func() error
	)

	stopAll := func() {
		for _, stop := range stops {
			if err := stop(); err != nil {
				log.WithError(err).Warn("Failed to stop publisher")
			}
		}
	}

	if cfg.Publish.GitHub.Enabled {
		ghClient := github.NewClient(log, github.Options{Token: cfg.Publish.GitHub.Token}, m)

		if err := ghClient.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("starting github client: %w", err)
		}

		stops = append(stops, ghClient.Stop)
		publishers = append(publishers, publish.NewGitHubPublisher(log, ghClient, cfg.Publish.GitHub))
	}

	if cfg.Publish.S3.Enabled {
		s3, err := publish.NewS3Publisher(log, cfg.Publish.S3)
		if err != nil {
			stopAll()

			return nil, nil, err
		}

		if err := s3.Start(ctx); err != nil {
			stopAll()

			return nil, nil, err
		}

		publishers = append(publishers, s3)
	}

	return publishers, stopAll, nil
}
