/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "github.com/gorbunovav/redmine-slack/internal/adapters/slack"
    "github.com/gorbunovav/redmine-slack/internal/config"
    "github.com/gorbunovav/redmine-slack/internal/engine"
    httpx "github.com/gorbunovav/redmine-slack/internal/http"
    "github.com/gorbunovav/redmine-slack/internal/jobs"
    "github.com/gorbunovav/redmine-slack/internal/logger"
    "github.com/gorbunovav/redmine-slack/internal/repo"
)

func main() {
    _ = godotenv.Load()
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()

    // Adapters
    store := repo.NewRepository(db, cfg, log)
    out := slack.NewClient(cfg, log)

    // Engine
    svc := engine.New(cfg, log, store, out)

    // HTTP server (Gin)
    router := httpx.NewRouter(cfg, log, svc)

    // Cron
    cron := jobs.NewCron(cfg, log, svc, store)
    cron.Start()
    defer cron.Stop()

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
