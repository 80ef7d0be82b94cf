/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"

    "github.com/gorbunovav/redmine-slack/internal/domain"
)

// ReviewReminder posts the list of stories stuck in review to the globally
// configured channel. Nothing pending or no global route means no message.
func (e *Engine) ReviewReminder(ctx context.Context) error {
    if e.cfg.SlackURL == "" || e.cfg.SlackChannel == "" { return nil }
    refs, err := e.store.AwaitingReview(ctx)
    if err != nil { return err }
    if len(refs) == 0 { return nil }

    p := domain.Payload{
        Text:       "Stories waiting for review:\n" + e.refLines(refs),
        Channel:    e.cfg.SlackChannel,
        WebhookURL: e.cfg.SlackURL,
    }
    return e.out.Send(ctx, p.WebhookURL, p)
}
