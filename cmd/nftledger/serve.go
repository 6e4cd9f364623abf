package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"nftledger/config"
	"nftledger/core"
	"nftledger/core/eventlog"
	"nftledger/indexer"
	"nftledger/observability/otel"
	"nftledger/rpc"
	"nftledger/storage"
)

func indexDSN(cfg *config.Config) string {
	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		return dsn
	}
	return filepath.Join(cfg.DataDir, "index.db")
}

func openIndex(cfg *config.Config) (*gorm.DB, error) {
	db, err := indexer.Open(cfg.Indexer.Driver, indexDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	return db, nil
}

func serveRun(ctx context.Context, noIndex bool) error {
	cfg, logger := current.cfg, current.logger

	shutdown, err := otel.Init(ctx, otel.Config{
		ServiceName:    programName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        cfg.Telemetry.Headers,
		Traces:         cfg.Telemetry.Traces,
		Metrics:        cfg.Telemetry.Metrics,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening ledger store: %w", err)
	}
	defer db.Close()

	exec, err := core.NewExecutor(db, cfg.NetworkName, core.WithLogger(logger))
	if err != nil {
		return err
	}

	opts := []rpc.Option{rpc.WithLogger(logger), rpc.WithAllowedOrigin(cfg.AllowedOrigin)}
	if cfg.RateLimit.Enabled() {
		opts = append(opts, rpc.WithRateLimit(rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
			TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		}))
	}

	group, ctx := errgroup.WithContext(ctx)
	if !noIndex {
		indexDB, err := openIndex(cfg)
		if err != nil {
			return err
		}
		ix := indexer.New(indexDB, exec.Log(), cfg.Indexer.BatchSize, logger)
		opts = append(opts, rpc.WithIndexer(ix))
		group.Go(func() error {
			return ix.Run(ctx, cfg.Indexer.Interval())
		})
	}

	server := rpc.NewServer(exec, opts...)
	group.Go(func() error {
		return server.ListenAndServe(ctx, cfg.ListenAddress)
	})

	logger.Info("ledger serving",
		"component", programName,
		"network", cfg.NetworkName,
		"address", cfg.ListenAddress,
		"indexer", !noIndex,
	)
	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveCommand() *cobra.Command {
	var noIndex bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger HTTP API and event indexer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveRun(ctx, noIndex)
		},
	}
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "serve without the query indexer")
	return cmd
}

func indexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Project the event log into the index database once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := current.cfg, current.logger
			db, err := storage.NewLevelDB(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("opening ledger store: %w", err)
			}
			defer db.Close()

			indexDB, err := openIndex(cfg)
			if err != nil {
				return err
			}
			n, err := indexer.New(indexDB, eventlog.New(db), cfg.Indexer.BatchSize, logger).CatchUp(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "projected %d events\n", n)
			return nil
		},
	}
}
