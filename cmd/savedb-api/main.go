package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrgoonie/savedb/internal/api"
	"github.com/mrgoonie/savedb/internal/backup"
	"github.com/mrgoonie/savedb/internal/config"
	"github.com/mrgoonie/savedb/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger("savedb-api", cfg.LogLevel)

	orch := backup.NewOrchestrator(backup.Options{
		Dir:             cfg.BackupDir,
		RetainArtifacts: cfg.RetainArtifacts,
		PGDumpPath:      cfg.PGDumpPath,
	}, logger)

	srv := api.NewServer(logger, orch, cfg)

	httpServer := &http.Server{
		Addr:        cfg.HTTPListenAddr,
		Handler:     srv,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: backup event streams stay open for the whole
		// run, which can take the better part of an hour.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting savedb API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
