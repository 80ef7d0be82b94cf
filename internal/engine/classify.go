/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"

    "github.com/gorbunovav/redmine-slack/internal/domain"
)

// classify derives the progress event of this edit, or EventNone. The rules
// are mutually exclusive by status value, so only the story/non-story split
// needs ordering: non-stories can only ever close, stories walk the
// claim -> review -> testing -> feedback -> accepted ladder, with the
// executor/actor comparison deciding which side of the handoff fired.
func (e *Engine) classify(ctx context.Context, ec *EditContext, issue *domain.Issue, journal *domain.Journal) domain.ProgressEvent {
    if journal == nil || !journal.StatusChanged() { return domain.EventNone }

    if !e.cfg.IsStory(issue.TrackerID) {
        if issue.StatusID == e.cfg.StatusClosed { return domain.TaskClosed }
        return domain.EventNone
    }

    executor := e.role(ctx, ec, issue, RoleExecutor)
    if executor == nil || journal.Author == nil { return domain.EventNone }
    actorIsExecutor := executor.ID == journal.Author.ID

    switch {
    case actorIsExecutor && issue.StatusID == e.cfg.StatusAssigned:
        return domain.StoryClaimed
    case actorIsExecutor && issue.StatusID == e.cfg.StatusReview:
        return domain.StoryReadyForReview
    case !actorIsExecutor && issue.StatusID == e.cfg.StatusTesting:
        return domain.StoryPassedReview
    case !actorIsExecutor && issue.StatusID == e.cfg.StatusFeedback:
        return domain.StoryPassedTesting
    case !actorIsExecutor && issue.StatusID == e.cfg.StatusAccepted:
        return domain.StoryAccepted
    }
    return domain.EventNone
}
