/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "time"

    "github.com/gorbunovav/redmine-slack/internal/config"
    "github.com/gorbunovav/redmine-slack/internal/repo"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface { ReviewReminder(ctx context.Context) error }

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

// NewCron schedules the review reminder. An empty schedule disables it; the
// returned Cron is still safe to Start and Stop.
func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    if cfg.ReminderCron != "" {
        if _, err := c.AddFunc(cfg.ReminderCron, cr.remind); err != nil {
            log.Error().Err(err).Str("spec", cfg.ReminderCron).Msg("cron: bad reminder schedule")
        }
    }
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) remind() {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute); defer cancel()
    const lockKey int64 = 737373
    ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: already running elsewhere"); return }
    defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()
    cr.log.Info().Msg("cron: review reminder")
    if err := cr.svc.ReviewReminder(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: reminder failed") }
}
