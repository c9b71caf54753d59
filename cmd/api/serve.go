package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"sikap/api/internal/app"
	"sikap/api/internal/config"
	"sikap/api/internal/email"
	"sikap/api/internal/export"
	"sikap/api/internal/notify"
	"sikap/api/internal/search"
	"sikap/api/internal/session"
	"sikap/api/internal/storage"
)

func openFiles(ctx context.Context, cfg config.Config) (storage.Storage, string, error) {
	switch cfg.StorageDriver {
	case "minio":
		files, err := storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("minio storage: %w", err)
		}
		return files, "", nil
	default:
		files, err := storage.NewLocal(cfg.UploadDir)
		if err != nil {
			return nil, "", fmt.Errorf("local storage: %w", err)
		}
		return files, cfg.UploadDir, nil
	}
}

func runServe(ctx context.Context, v *viper.Viper, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadRuntime(v, path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DevMode() {
		log.Warn().Msg("development mode: dev secrets allowed and reset tokens returned without SMTP")
	}

	dataStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := app.Deps{
		Config:  cfg,
		Store:   dataStore,
		Exports: export.NewService(dataStore),
		Log:     log,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info().Msg("using redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
		deps.Search = search.NewService(meili, dataStore, log)
	}

	files, uploadDir, err := openFiles(ctx, cfg)
	if err != nil {
		return err
	}
	deps.Files = files

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Warn().Msg("SMTP is not configured; password reset emails are disabled")
	}
	deps.Mailer = mailer

	dispatcher := notify.NewDispatcher(dataStore, log, notify.Options{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueue,
	})
	deps.Notifier = dispatcher

	service := app.New(deps)
	if err := service.Bootstrap(ctx); err != nil {
		log.Warn().Err(err).Msg("bootstrap error (will retry on next restart)")
	}
	if deps.Search != nil {
		go func() {
			reindexCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := service.ReindexSearch(reindexCtx); err != nil {
				log.Warn().Err(err).Msg("initial search reindex failed")
			}
		}()
	}

	httpServer := app.NewHTTPServer(service, app.HTTPOptions{
		CORSOrigin:    cfg.CORSOrigin,
		UploadDir:     uploadDir,
		Metrics:       true,
		SecureCookies: strings.HasPrefix(cfg.AppBaseURL, "https://"),
		Log:           log,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("SIKAP API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("notification queue not drained")
	}
	return nil
}
