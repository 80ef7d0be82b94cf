/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"
    "strconv"
    "strings"

    "github.com/gorbunovav/redmine-slack/internal/domain"
)

// karmaProgress builds the trailing karma clause for progress messages. Only
// an accepted story moves karma: the executor's bonus shrinks from 5 to 2
// once the story has ever been returned, the reviewer and tester get their
// flat share.
func (e *Engine) karmaProgress(ctx context.Context, ec *EditContext, issue *domain.Issue, users *UserMap) string {
    if ec.event != domain.StoryAccepted { return "" }
    executor := e.role(ctx, ec, issue, RoleExecutor)
    if executor == nil { return "" }

    bonus := 5
    if ec.prior != nil && ec.prior.Returns > 0 { bonus = 2 }
    tokens := []string{users.Mention(executor.Login) + " +" + strconv.Itoa(bonus)}
    if reviewer := e.role(ctx, ec, issue, RoleReviewer); reviewer != nil {
        tokens = append(tokens, users.Mention(reviewer.Login)+" +1")
    }
    if tester := e.role(ctx, ec, issue, RoleTester); tester != nil {
        tokens = append(tokens, users.Mention(tester.Login)+" +1")
    }
    return karmaLine(tokens)
}

// karmaReturn builds the clause for a Feedback-status return: the assignee is
// penalized by the accumulated returns count (a bare minus when the counter
// is still zero), and unless the manager made the return the tester and
// manager take a point each as well.
func (e *Engine) karmaReturn(ec *EditContext, issue *domain.Issue, actor *domain.User, actorIsManager bool, users *UserMap) string {
    assignee := issue.Assignee
    if assignee == nil { return "" }

    returns := 0
    if ec.prior != nil { returns = ec.prior.Returns }
    token := users.Mention(assignee.Login) + " -"
    if returns > 0 { token += strconv.Itoa(returns) }
    tokens := []string{token}

    if !actorIsManager {
        if tester := e.roleCached(ec, RoleTester); tester != nil && tester.ID != actor.ID {
            tokens = append(tokens, users.Mention(tester.Login)+" -1")
        }
        if manager := e.roleCached(ec, RoleManager); manager != nil {
            tokens = append(tokens, users.Mention(manager.Login)+" -1")
        }
    }
    return karmaLine(tokens)
}

// roleCached reads a role already resolved during this edit without another
// store round-trip; callers resolve first.
func (e *Engine) roleCached(ec *EditContext, kind RoleKind) *domain.User {
    if ec == nil || !ec.resolved[kind] { return nil }
    return ec.roles[kind]
}

func karmaLine(tokens []string) string {
    if len(tokens) == 0 { return "" }
    return "\nKarma: " + strings.Join(tokens, ", ")
}
