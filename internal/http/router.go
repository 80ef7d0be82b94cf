/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"
    "github.com/gorbunovav/redmine-slack/internal/config"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc relay) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context) {
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    h := NewHandlers(cfg, log, svc)

    r.GET("/healthz", h.Healthz)
    // Support both header-authenticated and path-secret hook endpoints
    r.POST("/hooks/issue-created", h.IssueCreated)
    r.POST("/hooks/issue-created/:secret", h.IssueCreated)
    r.POST("/hooks/issue-updated", h.IssueUpdated)
    r.POST("/hooks/issue-updated/:secret", h.IssueUpdated)
    r.POST("/hooks/commit", h.Commit)
    r.POST("/hooks/commit/:secret", h.Commit)
    r.POST("/admin/test-message", h.TestMessage)

    return r
}
