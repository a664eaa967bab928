/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/mkoursha/sprintlens/internal/config"
    "github.com/mkoursha/sprintlens/internal/repo"
    "github.com/mkoursha/sprintlens/internal/services"
)

type service interface {
    BuildReport(ctx context.Context) (*services.Report, error)
    RunScheduledReport(ctx context.Context) error
    GetLastRun(ctx context.Context) (*repo.LastRun, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ReportSummary runs the full pipeline and serves the snapshot. An upstream
// failure never yields a partial report, only a 502.
func (h *Handlers) ReportSummary(c *gin.Context) {
    rep, err := h.svc.BuildReport(c.Request.Context())
    if err != nil {
        h.log.Error().Err(err).Msg("report build failed")
        c.JSON(http.StatusBadGateway, gin.H{"error": "could not load"})
        return
    }
    c.JSON(http.StatusOK, rep)
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunNow(c *gin.Context) {
    // Run in background detached from the HTTP request to avoid context cancellation
    go func() { _ = h.svc.RunScheduledReport(context.Background()) }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
