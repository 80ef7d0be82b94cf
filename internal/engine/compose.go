/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"
    "crypto/md5"
    "fmt"
    "strconv"
    "strings"

    "github.com/gorbunovav/redmine-slack/internal/domain"
)

// compose runs the independent message rules in fixed order and collects a
// payload from every rule whose precondition holds. Precedence lives entirely
// in this ordering and in the suppression flags the earlier rules set.
func (e *Engine) compose(ctx context.Context, ec *EditContext, issue *domain.Issue, journal *domain.Journal) []domain.Payload {
    users, err := e.userMap(ctx, ec)
    if err != nil {
        e.log.Error().Err(err).Msg("user map load failed")
        return nil
    }
    var out []domain.Payload
    out = append(out, e.progressMessage(ctx, ec, issue, journal, users)...)
    out = append(out, e.returnMessage(ctx, ec, issue, journal, users)...)
    out = append(out, e.assignedChangeMessage(ctx, ec, issue, journal, users)...)
    out = append(out, e.detailsChangeMessage(ctx, issue, journal)...)
    out = append(out, e.commentMessage(ctx, ec, issue, journal, users)...)
    out = append(out, e.escalationMessage(ec, issue)...)
    if len(out) > 0 { e.log.Debug().Str("event", ec.event.String()).Int("payloads", len(out)).Msg("edit composed") }
    return out
}

func (e *Engine) progressMessage(ctx context.Context, ec *EditContext, issue *domain.Issue, journal *domain.Journal, users *UserMap) []domain.Payload {
    if ec.event == domain.EventNone { return nil }
    actor := journal.Author
    executor := e.role(ctx, ec, issue, RoleExecutor)
    execMention := ""
    if executor != nil { execMention = users.Mention(executor.Login) }

    msg := ""
    iconEmoji := ":thumbsup_dongler:"
    thumb := ""
    switch ec.event {
    case domain.TaskClosed:
        msg = escape(actor.Name) + " has finished the task :sunglasses::sunglasses::sunglasses::"
        thumb = avatarURL(actor.Mail)
    case domain.StoryClaimed:
        msg = "Hey guys, don't worry, " + escape(actor.Name) + " will take care of "
        iconEmoji = ":you_dongler:"
    case domain.StoryReadyForReview:
        msg = "Hey guys, " + users.Mention(actor.Login) + " claims, that this story is ready for Review! :innocent::innocent::innocent:"
    case domain.StoryPassedReview:
        msg = execMention + ", good job! Your story just passed the Review! :thumbsup: Let's test it a little :smirk::smirk::smirk:"
    case domain.StoryPassedTesting:
        msg = execMention + ", great, looks like you hid your bugs thoroughly! :ok_hand:"
    case domain.StoryAccepted:
        msg = execMention + ", fantastic!!! Your story was just accepted! :tada::tada::tada: Mission accomplished :sunglasses::sunglasses::sunglasses:"
        msg += "\n@channel guys, thumbs up for the good boy!"
        iconEmoji = ":tada_dongler:"
    }
    if ec.event != domain.TaskClosed && executor != nil { thumb = avatarURL(executor.Mail) }

    if issue.Assignee != nil && issue.Assignee.ID != actor.ID {
        msg += "\n" + users.Mention(issue.Assignee.Login) + ", it's your turn now!"
    }
    msg += e.karmaProgress(ctx, ec, issue, users)

    att := e.issueCard(ec, issue)
    att.Color = "good"
    att.Pretext = msg
    att.ThumbURL = thumb
    return []domain.Payload{{Attachment: att, IconEmoji: iconEmoji}}
}

func (e *Engine) returnMessage(ctx context.Context, ec *EditContext, issue *domain.Issue, journal *domain.Journal, users *UserMap) []domain.Payload {
    if !ec.isReturn || !journal.AssigneeChanged() || issue.Assignee == nil { return nil }
    actor := journal.Author
    executor := e.role(ctx, ec, issue, RoleExecutor)
    if executor == nil || executor.ID != issue.Assignee.ID || issue.Assignee.ID == actor.ID { return nil }

    // The flag is one-shot: a later assignee change in the same request must
    // not see it again.
    ec.isReturn = false
    ec.returnFired = true

    assignee := issue.Assignee
    msg := users.Mention(assignee.Login) + " Issue was returned :cry::cry::cry: to you (by " + escape(actor.Name) + ")"

    att := e.issueCard(ec, issue)
    att.ThumbURL = avatarURL(assignee.Mail)
    iconEmoji := ":sad_dongler:"
    att.Color = "warning"

    var extra []domain.Payload
    if issue.StatusID == e.cfg.StatusFeedback {
        iconEmoji = ":upset_dongler:"
        att.Color = "danger"
        reviewer := e.role(ctx, ec, issue, RoleReviewer)
        tester := e.role(ctx, ec, issue, RoleTester)
        manager := e.role(ctx, ec, issue, RoleManager)
        actorIsManager := manager != nil && actor.ID == manager.ID
        if actorIsManager {
            if reviewer != nil {
                priv := e.issueCard(ec, issue)
                priv.Color = "danger"
                priv.Pretext = msg
                extra = append(extra, domain.Payload{
                    Attachment:      priv,
                    IconEmoji:       iconEmoji,
                    ChannelOverride: "@" + users.Handle(reviewer.Login),
                })
            }
        } else {
            var heads []string
            for _, u := range []*domain.User{reviewer, tester, manager} {
                if u != nil && u.ID != actor.ID { heads = append(heads, users.Mention(u.Login)) }
            }
            if len(heads) > 0 { msg += "\n" + strings.Join(heads, " ") + " the story bounced back, heads up!" }
        }
        msg += e.karmaReturn(ec, issue, actor, actorIsManager, users)
    }
    att.Pretext = msg
    return append([]domain.Payload{{Attachment: att, IconEmoji: iconEmoji}}, extra...)
}

func (e *Engine) assignedChangeMessage(ctx context.Context, ec *EditContext, issue *domain.Issue, journal *domain.Journal, users *UserMap) []domain.Payload {
    if !e.cfg.IsStory(issue.TrackerID) { return nil }
    if journal.StatusChanged() { return nil }
    if !journal.AssigneeChanged() || issue.Assignee == nil { return nil }
    if ec.returnFired { return nil }
    actor := journal.Author
    assignee := issue.Assignee

    previous := ""
    if prev := ec.prior.Assignee; prev != nil && prev.ID != actor.ID {
        previous = users.Mention(prev.Login) + ", "
    }
    msg := ""
    if assignee.ID == actor.ID {
        msg = previous + "Story was captured by " + escape(assignee.Name)
    } else {
        msg = previous + "Issue was transferred to " + users.Mention(assignee.Login) + " (by " + escape(actor.Name) + ")"
    }
    att := e.issueCard(ec, issue)
    att.Pretext = msg
    return []domain.Payload{{Attachment: att, IconEmoji: ":you_dongler:"}}
}

// detailsChangeMessage posts the field-diff card. A status change already has
// its own message, so it suppresses this one.
func (e *Engine) detailsChangeMessage(ctx context.Context, issue *domain.Issue, journal *domain.Journal) []domain.Payload {
    if journal.StatusChanged() { return nil }
    fields := e.detailFields(ctx, journal)
    if len(fields) == 0 { return nil }
    att := &domain.Attachment{
        Pretext:  escape(journal.Author.Name) + " updated " + e.issueLink(issue),
        ThumbURL: avatarURL(journal.Author.Mail),
        Fields:   fields,
    }
    return []domain.Payload{{Attachment: att}}
}

func (e *Engine) commentMessage(ctx context.Context, ec *EditContext, issue *domain.Issue, journal *domain.Journal, users *UserMap) []domain.Payload {
    if strings.TrimSpace(journal.Notes) == "" || ec.silent { return nil }
    actor := journal.Author
    rewritten, footer := users.MentionFooter(journal.Notes)

    // Plain containment check on the resolved handle. A handle that is a
    // substring of another mentioned handle will suppress the auto-mention.
    mention := ""
    if a := issue.Assignee; a != nil && a.ID != actor.ID && !strings.Contains(rewritten, "@"+users.Handle(a.Login)) {
        mention += users.Mention(a.Login) + " "
    }
    executor := e.role(ctx, ec, issue, RoleExecutor)
    if executor != nil && executor.ID != actor.ID && (issue.Assignee == nil || issue.Assignee.ID != executor.ID) {
        if !strings.Contains(rewritten, "@"+users.Handle(executor.Login)) {
            mention += users.Mention(executor.Login) + " "
        }
    }

    msg := mention + escape(actor.Name) + " commented on " + e.issueLink(issue) + footer
    att := &domain.Attachment{
        Pretext:  msg,
        Text:     escape(rewritten),
        ThumbURL: avatarURL(actor.Mail),
    }
    return []domain.Payload{{Attachment: att}}
}

func (e *Engine) escalationMessage(ec *EditContext, issue *domain.Issue) []domain.Payload {
    if e.cfg.IsHighPriority(ec.prior.PriorityID) || !e.cfg.IsHighPriority(issue.PriorityID) { return nil }
    msg := "@channel " + e.issueLink(issue) + " was escalated to " + escape(issue.PriorityName)
    att := e.issueCard(ec, issue)
    att.Color = "danger"
    return []domain.Payload{{Text: msg, Attachment: att}}
}

func (e *Engine) composeCreation(issue *domain.Issue, project *domain.Project, users *UserMap) domain.Payload {
    projectName := ""
    if project != nil { projectName = project.Name }
    _, footer := users.MentionFooter(issue.Description)
    msg := "@channel [" + escape(projectName) + "] " + escape(issue.Author.Name) + " created " + e.issueLink(issue) + footer

    att := &domain.Attachment{}
    if issue.Description != "" { att.Text = escape(issue.Description) }
    assigned := ""
    if issue.Assignee != nil { assigned = issue.Assignee.Name }
    att.Fields = []domain.Field{
        {Title: "Status", Value: escape(issue.StatusName), Short: true},
        {Title: "Priority", Value: escape(issue.PriorityName), Short: true},
        {Title: "Assignee", Value: escape(assigned), Short: true},
    }
    if e.cfg.DisplayWatchers && len(issue.Watchers) > 0 {
        att.Fields = append(att.Fields, domain.Field{Title: "Watchers", Value: escape(strings.Join(issue.Watchers, ", ")), Short: true})
    }
    return domain.Payload{Text: msg, Attachment: att}
}

func (e *Engine) composeCommitNote(ctx context.Context, issue *domain.Issue, journal *domain.Journal, cs *domain.Changeset) domain.Payload {
    revURL := fmt.Sprintf("%s/projects/%d/repository/%s/revisions/%s",
        strings.TrimRight(e.cfg.TrackerBaseURL, "/"), issue.ProjectID, cs.RepoID, cs.Revision)
    att := &domain.Attachment{
        Text:   "Status changed by changeset <" + revURL + "|" + escape(cs.Comments) + ">",
        Fields: e.detailFields(ctx, journal),
    }
    return domain.Payload{Attachment: att}
}

func (e *Engine) composeDigests(ctx context.Context, ec *EditContext, issue *domain.Issue) []domain.Payload {
    executor := e.role(ctx, ec, issue, RoleExecutor)
    if executor == nil || ec.users == nil { return nil }
    target := "@" + ec.users.Handle(executor.Login)

    var out []domain.Payload
    if refs, err := e.store.AwaitingReview(ctx); err != nil {
        e.log.Error().Err(err).Msg("awaiting-review query failed")
    } else if len(refs) > 0 {
        out = append(out, domain.Payload{
            Text:            "You have stories waiting for your review:\n" + e.refLines(refs),
            ChannelOverride: target,
        })
    }
    if refs, err := e.store.AwaitingAssignment(ctx, e.cfg.AssignDigestMax); err != nil {
        e.log.Error().Err(err).Msg("awaiting-assignment query failed")
    } else if len(refs) > 0 {
        out = append(out, domain.Payload{
            Text:            "Unassigned stories waiting for an executor:\n" + e.refLines(refs),
            ChannelOverride: target,
        })
    }
    return out
}

func (e *Engine) refLines(refs []domain.IssueRef) string {
    lines := make([]string, 0, len(refs))
    for _, r := range refs {
        lines = append(lines, "• <"+e.issueURL(r.ID)+"|#"+strconv.FormatInt(r.ID, 10)+" "+escape(r.Subject)+">")
    }
    return strings.Join(lines, "\n")
}

// issueCard is the summary attachment shared by most rules: title, link,
// truncated description, and the priority / returns fields when notable.
func (e *Engine) issueCard(ec *EditContext, issue *domain.Issue) *domain.Attachment {
    att := &domain.Attachment{
        Title:     issueTitle(issue),
        TitleLink: e.issueURL(issue.ID),
        Text:      truncate(stripNewlines(issue.Description), 230),
    }
    if issue.PriorityID != e.cfg.DefaultPriority && issue.PriorityName != "" {
        att.Fields = append(att.Fields, domain.Field{Title: "Priority", Value: escape(issue.PriorityName), Short: true})
    }
    if ec != nil && ec.prior != nil && ec.prior.Returns > 0 {
        att.Fields = append(att.Fields, domain.Field{Title: "Returns", Value: strconv.Itoa(ec.prior.Returns), Short: true})
    }
    return att
}

func (e *Engine) detailFields(ctx context.Context, journal *domain.Journal) []domain.Field {
    var fields []domain.Field
    for _, d := range journal.Details {
        if d.Property == "cf" || d.Property == "attachment" { continue }
        key := strings.TrimSuffix(d.PropKey, "_id")
        value := escape(d.Value)
        short := true
        switch key {
        case "title", "subject":
            short = false
        case "description":
            short = false
            value = truncate(value, 230)
        case "parent":
            if d.Value != "" { value = "#" + escape(d.Value) }
        case "status", "priority", "tracker", "category", "fixed_version", "assigned_to", "project":
            value = escape(e.referenceName(ctx, key, d.Value))
        }
        if value == "" { value = "-" }
        fields = append(fields, domain.Field{Title: fieldTitle(key), Value: value, Short: short})
    }
    return fields
}

// referenceName resolves an id-keyed detail value to its display name.
// Unparseable or dangling ids degrade to the "-" placeholder.
func (e *Engine) referenceName(ctx context.Context, kind, raw string) string {
    id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
    if err != nil || id == 0 { return "" }
    name, err := e.store.ReferenceName(ctx, kind, id)
    if err != nil || name == "" { return "" }
    return name
}

func fieldTitle(key string) string {
    key = strings.ReplaceAll(key, "_", " ")
    if key == "" { return key }
    return strings.ToUpper(key[:1]) + key[1:]
}

func (e *Engine) issueURL(id int64) string {
    return strings.TrimRight(e.cfg.TrackerBaseURL, "/") + "/issues/" + strconv.FormatInt(id, 10)
}

func (e *Engine) issueLink(issue *domain.Issue) string {
    return "<" + e.issueURL(issue.ID) + "|" + issueTitle(issue) + ">"
}

func issueTitle(issue *domain.Issue) string {
    return "#" + strconv.FormatInt(issue.ID, 10) + " " + escape(issue.Subject)
}

func escape(s string) string {
    s = strings.ReplaceAll(s, "&", "&amp;")
    s = strings.ReplaceAll(s, "<", "&lt;")
    s = strings.ReplaceAll(s, ">", "&gt;")
    return s
}

func stripNewlines(s string) string {
    s = strings.ReplaceAll(s, "\r\n", " ")
    s = strings.ReplaceAll(s, "\n", " ")
    s = strings.ReplaceAll(s, "\r", " ")
    return strings.TrimSpace(s)
}

// truncate cuts at a word boundary within max runes, like the original
// description rendering did.
func truncate(s string, max int) string {
    r := []rune(s)
    if len(r) <= max { return s }
    cut := string(r[:max-3])
    if idx := strings.LastIndex(cut, " "); idx > 0 { cut = cut[:idx] }
    return cut + "..."
}

func avatarURL(mail string) string {
    mail = strings.ToLower(strings.TrimSpace(mail))
    if mail == "" { return "" }
    return fmt.Sprintf("https://www.gravatar.com/avatar/%x?size=150", md5.Sum([]byte(mail)))
}
