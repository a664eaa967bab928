/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/mkoursha/sprintlens/internal/adapters/jira"
    "github.com/mkoursha/sprintlens/internal/adapters/openai"
    "github.com/mkoursha/sprintlens/internal/adapters/telegram"
    "github.com/mkoursha/sprintlens/internal/config"
    httpx "github.com/mkoursha/sprintlens/internal/http"
    "github.com/mkoursha/sprintlens/internal/jobs"
    "github.com/mkoursha/sprintlens/internal/logger"
    "github.com/mkoursha/sprintlens/internal/repo"
    "github.com/mkoursha/sprintlens/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()

    // Adapters
    jc := jira.NewClient(cfg, log)
    llm := openai.NewClient(cfg, log)
    tg := telegram.NewClient(cfg, log)

    // Services
    repository := repo.NewRepository(db, log)
    svc, err := services.New(cfg, log, repository, jc, llm, tg)
    if err != nil { log.Fatal().Err(err).Msg("service setup failed") }

    // HTTP server (Gin)
    router := httpx.NewRouter(cfg, log, svc)

    // Cron
    cr := jobs.NewCron(cfg, log, svc, repository)
    cr.Start()
    defer cr.Stop()

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
