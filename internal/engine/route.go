/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"
    "strings"

    "github.com/gorbunovav/redmine-slack/internal/domain"
)

// route resolves the webhook URL and channel for a project by walking its
// ancestor chain: the nearest configured override wins, global defaults are
// the final fallback, and URL and channel are resolved independently. A
// channel value must start with the routing prefix or it is treated as
// absent. When the actor belongs to the support group the nearest support
// channel override replaces the channel. Either value missing after fallback
// suppresses all dispatch for the edit.
func (e *Engine) route(ctx context.Context, projectID int64, actor *domain.User) (domain.ChannelRoute, bool) {
    var r domain.ChannelRoute
    r.URL = e.walkProjects(ctx, projectID, e.cfg.FieldSlackURL, e.cfg.SlackURL)
    r.Channel = e.checkChannel(e.walkProjects(ctx, projectID, e.cfg.FieldSlackChannel, e.cfg.SlackChannel))

    if actor != nil && e.cfg.SupportGroup != "" {
        if ok, err := e.store.UserInGroup(ctx, actor.ID, e.cfg.SupportGroup); err == nil && ok {
            if sup := e.checkChannel(e.walkProjects(ctx, projectID, e.cfg.FieldSlackSupport, e.cfg.SlackSupportChannel)); sup != "" {
                r.SupportChannel = sup
                r.Channel = sup
            }
        }
    }

    if r.URL == "" || r.Channel == "" {
        e.log.Debug().Int64("project", projectID).Msg("no route configured, dispatch suppressed")
        return r, false
    }
    return r, true
}

// walkProjects returns the first non-blank value of the custom field along
// project -> parent -> ... The visited set bounds a pathological cyclic
// project graph.
func (e *Engine) walkProjects(ctx context.Context, projectID int64, field, fallback string) string {
    visited := map[int64]struct{}{}
    for id := projectID; id != 0; {
        if _, ok := visited[id]; ok { break }
        visited[id] = struct{}{}
        if v, err := e.store.ProjectCustomValue(ctx, id, field); err == nil && strings.TrimSpace(v) != "" {
            return strings.TrimSpace(v)
        }
        p, err := e.store.ProjectByID(ctx, id)
        if err != nil || p == nil { break }
        id = p.ParentID
    }
    return strings.TrimSpace(fallback)
}

func (e *Engine) checkChannel(v string) string {
    if v == "" || !strings.HasPrefix(v, e.cfg.ChannelPrefix) { return "" }
    return v
}
