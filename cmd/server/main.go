package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tharu616/shopping-mall-platform/internal/adapter/storage"
	"github.com/tharu616/shopping-mall-platform/internal/config"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mall",
		Short:         "Order fulfillment and payment verification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg, logger)
		},
	})

	return root
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.Log), nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*storage.SQLAdapter, func() error, error) {
	dialect, err := storage.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}

	db, err := storage.Open(ctx, dialect, cfg.DSN, storage.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	return storage.NewSQLAdapter(db, dialect), db.Close, nil
}

func migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	adapter, closeDB, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := adapter.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema up to date", "driver", cfg.Database.Driver)
	return nil
}
