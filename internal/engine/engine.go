/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"
    "errors"
    "strings"

    "github.com/gorbunovav/redmine-slack/internal/config"
    "github.com/gorbunovav/redmine-slack/internal/domain"
    "github.com/rs/zerolog"
)

// TrackerStore is the read boundary to the host tracker's records. The single
// write, ClearIssueCustomValue, consumes the one-shot return flag.
type TrackerStore interface {
    ActiveUsers(ctx context.Context) ([]domain.User, error)
    UserByID(ctx context.Context, id int64) (*domain.User, error)
    ProjectByID(ctx context.Context, id int64) (*domain.Project, error)
    ProjectCustomValue(ctx context.Context, projectID int64, field string) (string, error)
    IssueCustomValue(ctx context.Context, issueID int64, field string) (string, error)
    ClearIssueCustomValue(ctx context.Context, issueID int64, field string) error
    ReferenceName(ctx context.Context, kind string, id int64) (string, error)
    UserInGroup(ctx context.Context, userID int64, group string) (bool, error)
    AwaitingReview(ctx context.Context) ([]domain.IssueRef, error)
    AwaitingAssignment(ctx context.Context, limit int) ([]domain.IssueRef, error)
}

type Dispatcher interface {
    Send(ctx context.Context, url string, p domain.Payload) error
}

type Engine struct {
    cfg   config.Config
    log   zerolog.Logger
    store TrackerStore
    out   Dispatcher
}

func New(cfg config.Config, log zerolog.Logger, store TrackerStore, out Dispatcher) *Engine {
    return &Engine{cfg: cfg, log: log, store: store, out: out}
}

// EditContext carries everything scoped to a single edit request: the pre-save
// snapshot, the one-shot flags and the per-request caches. One EditContext is
// created per edit and never shared; concurrent edits never touch each other.
type EditContext struct {
    prior       *domain.PriorState
    isReturn    bool
    returnFired bool
    silent      bool
    event       domain.ProgressEvent
    users    *UserMap
    roles    map[RoleKind]*domain.User
    resolved map[RoleKind]bool
}

func NewEditContext() *EditContext {
    return &EditContext{roles: map[RoleKind]*domain.User{}, resolved: map[RoleKind]bool{}}
}

func (ec *EditContext) Prior() *domain.PriorState { return ec.prior }

// OnIssueBeforeSave captures the prior-state snapshot and consumes the
// one-shot markers: the is-return custom field (cleared in the tracker store)
// and the silent-comment prefix (stripped from the notes). It returns the
// notes the host should persist.
func (e *Engine) OnIssueBeforeSave(ctx context.Context, ec *EditContext, issue *domain.Issue, prior domain.PriorState, journal *domain.Journal) string {
    snap := prior
    snap.Returns = e.returnsCount(ctx, issue.ID)
    ec.prior = &snap

    if v, err := e.store.IssueCustomValue(ctx, issue.ID, e.cfg.FieldIsReturn); err == nil && isTruthy(v) {
        ec.isReturn = true
        if err := e.store.ClearIssueCustomValue(ctx, issue.ID, e.cfg.FieldIsReturn); err != nil {
            e.log.Error().Err(err).Int64("issue", issue.ID).Msg("clear return flag failed")
        }
    }

    if journal != nil && e.cfg.SilentMarker != "" && strings.HasPrefix(journal.Notes, e.cfg.SilentMarker) {
        ec.silent = true
        journal.Notes = strings.TrimSpace(strings.TrimPrefix(journal.Notes, e.cfg.SilentMarker))
    }
    if journal == nil { return "" }
    return journal.Notes
}

// OnIssueAfterSave classifies the edit, composes every triggered payload and
// dispatches them. The snapshot is consumed exactly once: a second call on the
// same EditContext is a no-op.
func (e *Engine) OnIssueAfterSave(ctx context.Context, ec *EditContext, issue *domain.Issue, journal *domain.Journal) {
    if !e.cfg.PostUpdates { return }
    if ec.prior == nil {
        e.log.Warn().Int64("issue", issue.ID).Msg("after-save without prior snapshot, skipping")
        return
    }
    if journal == nil || journal.Author == nil {
        e.log.Warn().Int64("issue", issue.ID).Msg("journal without author, skipping")
        ec.prior = nil
        return
    }
    route, ok := e.route(ctx, issue.ProjectID, journal.Author)
    if !ok {
        ec.prior = nil
        return
    }

    ec.event = e.classify(ctx, ec, issue, journal)
    payloads := e.compose(ctx, ec, issue, journal)
    if ec.event == domain.StoryReadyForReview {
        payloads = append(payloads, e.composeDigests(ctx, ec, issue)...)
    }
    for _, p := range payloads { e.dispatch(ctx, route, p) }
    ec.prior = nil
}

// OnIssueCreated notifies the whole channel about newly created high-priority
// issues only.
func (e *Engine) OnIssueCreated(ctx context.Context, issue *domain.Issue) {
    if !e.cfg.IsHighPriority(issue.PriorityID) { return }
    route, ok := e.route(ctx, issue.ProjectID, issue.Author)
    if !ok { return }
    users, err := e.userMap(ctx, nil)
    if err != nil { e.log.Error().Err(err).Msg("user map load failed"); return }
    project, err := e.store.ProjectByID(ctx, issue.ProjectID)
    if err != nil { e.log.Error().Err(err).Int64("project", issue.ProjectID).Msg("project lookup failed") }
    p := e.composeCreation(issue, project, users)
    e.dispatch(ctx, route, p)
}

// OnCommitLinked posts a single status-change note referencing the revision.
func (e *Engine) OnCommitLinked(ctx context.Context, issue *domain.Issue, journal *domain.Journal, cs *domain.Changeset) {
    route, ok := e.route(ctx, issue.ProjectID, journal.Author)
    if !ok { return }
    p := e.composeCommitNote(ctx, issue, journal, cs)
    e.dispatch(ctx, route, p)
}

// SendTest posts a plain message through the default route so an operator can
// verify the webhook configuration end to end, including the channel prefix
// check real dispatches go through.
func (e *Engine) SendTest(ctx context.Context, text, channel string) error {
    route, ok := e.route(ctx, 0, nil)
    if !ok { return errors.New("no default route configured") }
    if channel != "" { route.Channel = channel }
    return e.out.Send(ctx, route.URL, domain.Payload{Text: text, Channel: route.Channel, WebhookURL: route.URL})
}

func (e *Engine) dispatch(ctx context.Context, route domain.ChannelRoute, p domain.Payload) {
    p.WebhookURL = route.URL
    if p.Channel == "" { p.Channel = route.Channel }
    if p.ChannelOverride != "" { p.Channel = p.ChannelOverride }
    // Best effort only: a failed webhook call never reaches the host's save.
    if err := e.out.Send(ctx, p.WebhookURL, p); err != nil {
        e.log.Error().Err(err).Str("channel", p.Channel).Msg("dispatch failed")
    }
}

func (e *Engine) userMap(ctx context.Context, ec *EditContext) (*UserMap, error) {
    if ec != nil && ec.users != nil { return ec.users, nil }
    users, err := e.store.ActiveUsers(ctx)
    if err != nil { return nil, err }
    m := NewUserMap(users)
    if ec != nil { ec.users = m }
    return m, nil
}

func isTruthy(v string) bool {
    v = strings.ToLower(strings.TrimSpace(v))
    return v != "" && v != "0" && v != "false" && v != "no"
}
