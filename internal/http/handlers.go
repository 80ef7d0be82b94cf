/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/gorbunovav/redmine-slack/internal/config"
    "github.com/gorbunovav/redmine-slack/internal/domain"
    "github.com/gorbunovav/redmine-slack/internal/engine"
    "github.com/rs/zerolog"
)

type relay interface {
    OnIssueCreated(ctx context.Context, issue *domain.Issue)
    OnIssueBeforeSave(ctx context.Context, ec *engine.EditContext, issue *domain.Issue, prior domain.PriorState, journal *domain.Journal) string
    OnIssueAfterSave(ctx context.Context, ec *engine.EditContext, issue *domain.Issue, journal *domain.Journal)
    OnCommitLinked(ctx context.Context, issue *domain.Issue, journal *domain.Journal, cs *domain.Changeset)
    SendTest(ctx context.Context, text, channel string) error
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc relay
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc relay) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

// ---- wire DTOs ----

type userDTO struct {
    ID    int64  `json:"id"`
    Login string `json:"login"`
    Name  string `json:"name"`
    Mail  string `json:"mail"`
}

func (u *userDTO) toDomain() *domain.User {
    if u == nil { return nil }
    return &domain.User{ID: u.ID, Login: u.Login, Name: u.Name, Mail: u.Mail}
}

type detailDTO struct {
    Property string `json:"property"`
    PropKey  string `json:"prop_key"`
    OldValue string `json:"old_value"`
    Value    string `json:"value"`
}

type journalDTO struct {
    Author  *userDTO    `json:"author"`
    Notes   string      `json:"notes"`
    Details []detailDTO `json:"details"`
}

func (j *journalDTO) toDomain() *domain.Journal {
    if j == nil { return nil }
    out := &domain.Journal{Author: j.Author.toDomain(), Notes: j.Notes}
    for _, d := range j.Details {
        out.Details = append(out.Details, domain.JournalDetail{
            Property: d.Property, PropKey: d.PropKey, OldValue: d.OldValue, Value: d.Value,
        })
    }
    return out
}

type issueDTO struct {
    ID           int64    `json:"id"`
    ProjectID    int64    `json:"project_id"`
    TrackerID    int64    `json:"tracker_id"`
    StatusID     int64    `json:"status_id"`
    PriorityID   int64    `json:"priority_id"`
    StatusName   string   `json:"status_name"`
    PriorityName string   `json:"priority_name"`
    Subject      string   `json:"subject"`
    Description  string   `json:"description"`
    Assignee     *userDTO `json:"assignee"`
    Author       *userDTO `json:"author"`
    Watchers     []string `json:"watchers"`
}

func (i *issueDTO) toDomain() *domain.Issue {
    return &domain.Issue{
        ID: i.ID, ProjectID: i.ProjectID, TrackerID: i.TrackerID,
        StatusID: i.StatusID, PriorityID: i.PriorityID,
        StatusName: i.StatusName, PriorityName: i.PriorityName,
        Subject: i.Subject, Description: i.Description,
        Assignee: i.Assignee.toDomain(), Author: i.Author.toDomain(),
        Watchers: i.Watchers,
    }
}

type priorDTO struct {
    Assignee   *userDTO `json:"assignee"`
    StatusID   int64    `json:"status_id"`
    PriorityID int64    `json:"priority_id"`
}

func (p *priorDTO) toDomain() domain.PriorState {
    if p == nil { return domain.PriorState{} }
    return domain.PriorState{Assignee: p.Assignee.toDomain(), StatusID: p.StatusID, PriorityID: p.PriorityID}
}

// ---- handlers ----

func (h *Handlers) authorized(c *gin.Context) bool {
    headerSecret := c.GetHeader("X-Relay-Secret")
    pathSecret := c.Param("secret")
    if headerSecret == h.cfg.HookSecret || pathSecret == h.cfg.HookSecret { return true }
    c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
    return false
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) IssueCreated(c *gin.Context) {
    if !h.authorized(c) { return }
    var req struct {
        Issue issueDTO `json:"issue"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    issue := req.Issue.toDomain()
    // Detached from the request so a slow webhook never delays the host's save.
    go h.svc.OnIssueCreated(context.Background(), issue)
    c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

// IssueUpdated runs the full edit cycle in one call: snapshot and one-shot
// consumption first, then classification and dispatch. The response carries
// the notes with the silent marker stripped so the host can persist them.
func (h *Handlers) IssueUpdated(c *gin.Context) {
    if !h.authorized(c) { return }
    var req struct {
        Issue   issueDTO    `json:"issue"`
        Prior   *priorDTO   `json:"prior"`
        Journal *journalDTO `json:"journal"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if req.Journal == nil || req.Journal.Author == nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "journal with author is required"})
        return
    }
    issue := req.Issue.toDomain()
    journal := req.Journal.toDomain()

    ec := engine.NewEditContext()
    notes := h.svc.OnIssueBeforeSave(c.Request.Context(), ec, issue, req.Prior.toDomain(), journal)
    h.svc.OnIssueAfterSave(c.Request.Context(), ec, issue, journal)
    c.JSON(http.StatusOK, gin.H{"ok": true, "notes": notes})
}

func (h *Handlers) Commit(c *gin.Context) {
    if !h.authorized(c) { return }
    var req struct {
        Issue     issueDTO    `json:"issue"`
        Journal   *journalDTO `json:"journal"`
        Changeset struct {
            Revision string `json:"revision"`
            Comments string `json:"comments"`
            RepoID   string `json:"repo_id"`
        } `json:"changeset"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if req.Journal == nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "journal is required"})
        return
    }
    issue := req.Issue.toDomain()
    journal := req.Journal.toDomain()
    cs := &domain.Changeset{Revision: req.Changeset.Revision, Comments: req.Changeset.Comments, RepoID: req.Changeset.RepoID}
    go h.svc.OnCommitLinked(context.Background(), issue, journal, cs)
    c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

// TestMessage posts a plain message through the default route so an operator
// can verify connectivity without touching the tracker.
func (h *Handlers) TestMessage(c *gin.Context) {
    if !h.authorized(c) { return }
    var req struct {
        Text    string `json:"text"`
        Channel string `json:"channel"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if req.Text == "" { req.Text = "Test message" }
    if err := h.svc.SendTest(c.Request.Context(), req.Text, req.Channel); err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"ok": true})
}
