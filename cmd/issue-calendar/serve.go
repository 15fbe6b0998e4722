package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsboard/issue-calendar/internal/clock"
	"github.com/opsboard/issue-calendar/internal/collab"
	"github.com/opsboard/issue-calendar/internal/db"
	"github.com/opsboard/issue-calendar/internal/logging"
	s3client "github.com/opsboard/issue-calendar/internal/s3"
	"github.com/opsboard/issue-calendar/internal/searchcache"
	"github.com/opsboard/issue-calendar/internal/server"
	"github.com/opsboard/issue-calendar/internal/session"
)

func newServeCmd(a *app) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("api-url", "", "issue API base URL")
	flags.String("s3-endpoint", "", "S3 endpoint URL (e.g. http://localhost:3900)")
	flags.String("s3-bucket", "", "S3 bucket for exported reports")
	flags.Duration("session-idle", 12*time.Hour, "drop sessions idle for longer than this")
	err := errors.Join(
		a.v.BindPFlag("addr", flags.Lookup("addr")),
		a.v.BindPFlag("api.url", flags.Lookup("api-url")),
		a.v.BindPFlag("s3.endpoint", flags.Lookup("s3-endpoint")),
		a.v.BindPFlag("s3.bucket", flags.Lookup("s3-bucket")),
		a.v.BindPFlag("session_idle", flags.Lookup("session-idle")),
	)
	if err != nil {
		return nil, fmt.Errorf("bind serve flags: %w", err)
	}
	return cmd, nil
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	database, err := db.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	clk := clock.Real()
	api := collab.New(collab.Config{
		BaseURL: cfg.API.URL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
	}, logger.With("component", "collab"))
	logger.Info("issue API", "url", api.BaseURL(), "token", logging.MaskSensitive(cfg.API.Token))

	sessions := session.NewRegistry(database,
		func(id string) searchcache.Storage { return database.SessionStorage(id) },
		api, clk, logger.With("component", "sessions"))

	var wg sync.WaitGroup

	srvCfg := server.Config{
		Addr:     cfg.Addr,
		DB:       database,
		Sessions: sessions,
		Filters:  api,
	}
	if cfg.S3.Bucket != "" {
		s3Log := logger.With("component", "s3")
		s3c, err := s3client.New(ctx, s3client.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}, s3Log)
		if err != nil {
			return fmt.Errorf("create s3 client: %w", err)
		}
		exporter := s3client.NewExporter(s3c, database, clk, s3Log)
		srvCfg.Exporter = exporter
		srvCfg.Reports = s3c
		logger.Info("report export enabled", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint, "interval", cfg.S3.SyncInterval)

		wg.Add(1)
		go func() {
			defer wg.Done()
			exporter.Run(ctx, cfg.S3.SyncInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions.RunExpiry(ctx, time.Minute, cfg.SessionIdle)
	}()

	srv := server.New(srvCfg, logger)
	err = srv.Run(ctx)

	wg.Wait()
	logger.Info("all background tasks stopped")
	return err
}
