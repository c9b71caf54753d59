package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sikap/api/internal/app"
	"sikap/api/internal/config"
	"sikap/api/internal/logging"
	"sikap/api/internal/store"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	var path string

	cmd := &cobra.Command{
		Use:           "sikap",
		Short:         "SIKAP archive and link management API",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v, path)
		},
	}

	cmd.PersistentFlags().StringVar(&path, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("addr", "", "listen address, e.g. :8787")
	v.BindPFlag("LOG_LEVEL", cmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("API_ADDR", cmd.PersistentFlags().Lookup("addr"))

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), v, path)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), v, path)
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Seed roles and the default admin account and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSeed(cmd.Context(), v, path)
			},
		},
	)
	return cmd
}

func loadRuntime(v *viper.Viper, path string) (config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadWith(v, path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	return cfg, log, nil
}

// openStore returns the configured data store and a close func.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (app.DataStore, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	for _, version := range applied {
		log.Info().Str("version", version).Msg("applied migration")
	}
	return store.NewPostgresStore(db), func() { db.Close() }, nil
}

func runMigrate(ctx context.Context, v *viper.Viper, path string) error {
	cfg, log, err := loadRuntime(v, path)
	if err != nil {
		return err
	}
	if cfg.StoreDriver == "memory" {
		return fmt.Errorf("migrate needs the postgres store driver")
	}
	_, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	closeStore()
	log.Info().Msg("migrations up to date")
	return nil
}

func runSeed(ctx context.Context, v *viper.Viper, path string) error {
	cfg, log, err := loadRuntime(v, path)
	if err != nil {
		return err
	}
	dataStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	service := app.New(app.Deps{Config: cfg, Store: dataStore, Log: log})
	return service.Bootstrap(ctx)
}
