/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"
    "strconv"
    "strings"

    "github.com/gorbunovav/redmine-slack/internal/domain"
)

type RoleKind int

const (
    RoleExecutor RoleKind = iota
    RoleReviewer
    RoleTester
    RoleManager
)

// role resolves a project role for the issue, caching the result for the
// lifetime of the edit. Unset fields, dangling user ids and store errors all
// degrade to "no such role"; rules depending on the role simply do not fire.
func (e *Engine) role(ctx context.Context, ec *EditContext, issue *domain.Issue, kind RoleKind) *domain.User {
    if ec != nil && ec.resolved[kind] { return ec.roles[kind] }
    u := e.lookupRole(ctx, issue, kind)
    if ec != nil { ec.roles[kind] = u; ec.resolved[kind] = true }
    return u
}

func (e *Engine) lookupRole(ctx context.Context, issue *domain.Issue, kind RoleKind) *domain.User {
    var id int64
    switch kind {
    case RoleExecutor:
        id = e.customFieldUserID(ctx, issue.ID, e.cfg.FieldExecutor)
    case RoleReviewer:
        id = e.customFieldUserID(ctx, issue.ID, e.cfg.FieldReviewer)
    case RoleTester:
        id = e.cfg.TesterID
    case RoleManager:
        id = e.cfg.ManagerID
    }
    if id == 0 { return nil }
    u, err := e.store.UserByID(ctx, id)
    if err != nil || u == nil { return nil }
    return u
}

func (e *Engine) customFieldUserID(ctx context.Context, issueID int64, field string) int64 {
    v, err := e.store.IssueCustomValue(ctx, issueID, field)
    if err != nil { return 0 }
    v = strings.TrimSpace(v)
    if v == "" { return 0 }
    id, err := strconv.ParseInt(v, 10, 64)
    if err != nil { return 0 }
    return id
}

// returnsCount reads the monotonically increasing returns counter.
func (e *Engine) returnsCount(ctx context.Context, issueID int64) int {
    v, err := e.store.IssueCustomValue(ctx, issueID, e.cfg.FieldReturns)
    if err != nil { return 0 }
    n, err := strconv.Atoi(strings.TrimSpace(v))
    if err != nil || n < 0 { return 0 }
    return n
}
