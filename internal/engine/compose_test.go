package engine

import (
    "context"
    "strings"
    "testing"

    "github.com/gorbunovav/redmine-slack/internal/domain"
)

func runEdit(e *Engine, issue *domain.Issue, prior domain.PriorState, journal *domain.Journal) {
    ec := NewEditContext()
    e.OnIssueBeforeSave(context.Background(), ec, issue, prior, journal)
    e.OnIssueAfterSave(context.Background(), ec, issue, journal)
}

func TestReturnMessage_FeedbackNotifiesHeadsAndMovesKarma(t *testing.T) {
    store := newTestStore()
    store.issueCV[10] = map[string]string{
        "Исполнитель": "1", "Is return": "1", "Returns": "2", "Reviewer": "4",
    }
    e, out := newTestEngine(store)

    issue := story(4)
    issue.Assignee = &ivan
    journal := &domain.Journal{Author: &petr, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "assigned_to_id", OldValue: "4", Value: "1"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 4, Assignee: &rev}, journal)

    if len(out.sent) != 2 { t.Fatalf("expected return + field card, got %d: %#v", len(out.sent), out.sent) }
    p := out.sent[0]
    if p.Attachment.Color != "danger" { t.Fatalf("expected danger color, got %q", p.Attachment.Color) }
    pre := p.Attachment.Pretext
    if !strings.Contains(pre, "@ivan Issue was returned") { t.Fatalf("unexpected pretext: %q", pre) }
    if !strings.Contains(pre, "@rev @qa @boss the story bounced back, heads up!") {
        t.Fatalf("heads line missing: %q", pre)
    }
    if !strings.Contains(pre, "Karma: @ivan -2, @qa -1, @boss -1") {
        t.Fatalf("karma line wrong: %q", pre)
    }
    if p.IconEmoji != ":upset_dongler:" { t.Fatalf("unexpected icon %q", p.IconEmoji) }
}

func TestReturnMessage_ByManagerGoesPrivatelyToReviewer(t *testing.T) {
    store := newTestStore()
    store.issueCV[10] = map[string]string{
        "Исполнитель": "1", "Is return": "1", "Returns": "0", "Reviewer": "4",
    }
    e, out := newTestEngine(store)

    issue := story(4)
    issue.Assignee = &ivan
    journal := &domain.Journal{Author: &boss, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "assigned_to_id", OldValue: "4", Value: "1"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 4}, journal)

    if len(out.sent) != 3 { t.Fatalf("expected public + private + field card, got %d", len(out.sent)) }
    if out.sent[0].Channel != "#dev" { t.Fatalf("expected channel delivery, got %q", out.sent[0].Channel) }
    if out.sent[1].Channel != "@rev" { t.Fatalf("expected private copy to reviewer, got %q", out.sent[1].Channel) }
    pre := out.sent[0].Attachment.Pretext
    if strings.Contains(pre, "heads up") { t.Fatalf("manager return must not ping heads: %q", pre) }
    if !strings.Contains(pre, "Karma: @ivan -") { t.Fatalf("karma line missing: %q", pre) }
    if strings.Contains(pre, "@qa -1") || strings.Contains(pre, "@boss -1") {
        t.Fatalf("manager return must not penalize heads: %q", pre)
    }
}

func TestReturnMessage_OutsideFeedbackIsSoft(t *testing.T) {
    store := newTestStore()
    store.issueCV[10] = map[string]string{"Исполнитель": "1", "Is return": "1"}
    e, out := newTestEngine(store)

    issue := story(2)
    issue.Assignee = &ivan
    journal := &domain.Journal{Author: &petr, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "assigned_to_id", OldValue: "5", Value: "1"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 2}, journal)

    if len(out.sent) != 2 { t.Fatalf("expected return + field card, got %d", len(out.sent)) }
    p := out.sent[0]
    if p.Attachment.Color != "warning" { t.Fatalf("expected warning color, got %q", p.Attachment.Color) }
    if p.IconEmoji != ":sad_dongler:" { t.Fatalf("unexpected icon %q", p.IconEmoji) }
    if strings.Contains(p.Attachment.Pretext, "Karma:") {
        t.Fatalf("no karma outside feedback: %q", p.Attachment.Pretext)
    }
}

func TestKarmaProgress_BonusShrinksAfterReturns(t *testing.T) {
    for _, tc := range []struct {
        returns string
        want    string
    }{
        {"0", "Karma: @ivan +5, @rev +1, @qa +1"},
        {"3", "Karma: @ivan +2, @rev +1, @qa +1"},
    } {
        store := newTestStore()
        store.issueCV[10] = map[string]string{
            "Исполнитель": "1", "Reviewer": "4", "Returns": tc.returns,
        }
        e, out := newTestEngine(store)

        runEdit(e, story(9), domain.PriorState{StatusID: 7}, statusJournal(boss, "7", "9"))
        if len(out.sent) != 1 { t.Fatalf("expected one payload, got %d", len(out.sent)) }
        pre := out.sent[0].Attachment.Pretext
        if !strings.Contains(pre, tc.want) { t.Fatalf("returns=%s: karma line wrong: %q", tc.returns, pre) }
        if !strings.Contains(pre, "fantastic!!!") { t.Fatalf("unexpected accepted text: %q", pre) }
    }
}

func TestIssueCard_ShowsReturnsCounter(t *testing.T) {
    store := newTestStore()
    store.issueCV[10] = map[string]string{"Исполнитель": "1", "Returns": "2"}
    e, out := newTestEngine(store)

    runEdit(e, story(9), domain.PriorState{StatusID: 7}, statusJournal(boss, "7", "9"))
    fields := out.sent[0].Attachment.Fields
    found := false
    for _, f := range fields {
        if f.Title == "Returns" && f.Value == "2" { found = true }
    }
    if !found { t.Fatalf("returns field missing: %#v", fields) }
}

func TestEscalationMessage(t *testing.T) {
    store := newTestStore()
    e, out := newTestEngine(store)

    issue := story(2)
    issue.PriorityID = 6
    issue.PriorityName = "Urgent"
    journal := &domain.Journal{Author: &petr, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "priority_id", OldValue: "4", Value: "6"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 2, PriorityID: 4}, journal)

    var hit *domain.Payload
    for i := range out.sent {
        if strings.Contains(out.sent[i].Text, "was escalated to Urgent") { hit = &out.sent[i] }
    }
    if hit == nil { t.Fatalf("escalation payload missing: %#v", out.sent) }
    if hit.Attachment.Color != "danger" { t.Fatalf("expected danger color, got %q", hit.Attachment.Color) }
    if !strings.Contains(hit.Text, "@channel") { t.Fatalf("escalation must ping the channel: %q", hit.Text) }
}

func TestEscalationMessage_AlreadyHighStaysQuiet(t *testing.T) {
    store := newTestStore()
    e, out := newTestEngine(store)

    issue := story(2)
    issue.PriorityID = 7
    issue.PriorityName = "Immediate"
    journal := &domain.Journal{Author: &petr, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "priority_id", OldValue: "6", Value: "7"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 2, PriorityID: 6}, journal)

    for _, p := range out.sent {
        if strings.Contains(p.Text, "escalated") { t.Fatalf("high-to-high must not escalate: %#v", p) }
    }
}

func TestCommentMessage_AutoMentionsAssigneeAndExecutor(t *testing.T) {
    store := newTestStore()
    store.issueCV[10] = map[string]string{"Исполнитель": "4"}
    e, out := newTestEngine(store)

    issue := story(2)
    issue.Assignee = &ivan
    journal := &domain.Journal{Author: &petr, Notes: "please check with @qa"}
    runEdit(e, issue, domain.PriorState{StatusID: 2}, journal)

    if len(out.sent) != 1 { t.Fatalf("expected one comment payload, got %d", len(out.sent)) }
    pre := out.sent[0].Attachment.Pretext
    if !strings.Contains(pre, "@ivan @rev Petr Sidorov commented on") {
        t.Fatalf("auto-mentions missing: %q", pre)
    }
    if !strings.Contains(pre, "To: @qa") { t.Fatalf("mention footer missing: %q", pre) }
}

func TestCommentMessage_SkipsAutoMentionWhenAlreadyMentioned(t *testing.T) {
    store := newTestStore()
    e, out := newTestEngine(store)

    issue := story(2)
    issue.Assignee = &ivan
    journal := &domain.Journal{Author: &petr, Notes: "done, over to you @ivan"}
    runEdit(e, issue, domain.PriorState{StatusID: 2}, journal)

    pre := out.sent[0].Attachment.Pretext
    if strings.HasPrefix(pre, "@ivan ") {
        t.Fatalf("assignee already mentioned in the body, no auto-mention expected: %q", pre)
    }
    if !strings.Contains(pre, "To: @ivan") { t.Fatalf("footer should list the body mention: %q", pre) }
}

func TestAssignedChangeMessage(t *testing.T) {
    store := newTestStore()
    e, out := newTestEngine(store)

    issue := story(2)
    issue.Assignee = &ivan
    journal := &domain.Journal{Author: &boss, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "assigned_to_id", OldValue: "5", Value: "1"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 2, Assignee: &petr}, journal)

    if len(out.sent) != 2 { t.Fatalf("expected transfer + field card, got %d", len(out.sent)) }
    pre := out.sent[0].Attachment.Pretext
    if !strings.Contains(pre, "@petr, Issue was transferred to @ivan (by Big Boss)") {
        t.Fatalf("unexpected transfer text: %q", pre)
    }
}

func TestDetailsCard_KeptAlongsideAssignedChange(t *testing.T) {
    store := newTestStore()
    store.refs["assigned_to"] = map[int64]string{1: "Ivan Petrov"}
    e, out := newTestEngine(store)

    issue := story(2)
    issue.Assignee = &ivan
    journal := &domain.Journal{Author: &boss, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "assigned_to_id", OldValue: "5", Value: "1"},
        {Property: "attr", PropKey: "subject", OldValue: "Old subject", Value: "New subject"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 2, Assignee: &petr}, journal)

    if len(out.sent) != 2 { t.Fatalf("expected transfer + field card, got %d: %#v", len(out.sent), out.sent) }
    card := out.sent[1]
    if !strings.Contains(card.Attachment.Pretext, "updated") {
        t.Fatalf("expected the update card, got %q", card.Attachment.Pretext)
    }
    var subject, assigned *domain.Field
    for i := range card.Attachment.Fields {
        switch card.Attachment.Fields[i].Title {
        case "Subject":
            subject = &card.Attachment.Fields[i]
        case "Assigned to":
            assigned = &card.Attachment.Fields[i]
        }
    }
    if subject == nil || subject.Value != "New subject" || subject.Short {
        t.Fatalf("subject field wrong: %#v", card.Attachment.Fields)
    }
    if assigned == nil || assigned.Value != "Ivan Petrov" {
        t.Fatalf("assignee id not resolved: %#v", card.Attachment.Fields)
    }
}

func TestDetailsCard_SuppressedOnStatusChange(t *testing.T) {
    store := newTestStore()
    store.issueCV[10] = map[string]string{"Исполнитель": "1"}
    e, out := newTestEngine(store)

    issue := story(8)
    journal := &domain.Journal{Author: &ivan, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "status_id", OldValue: "2", Value: "8"},
        {Property: "attr", PropKey: "subject", OldValue: "Old subject", Value: "New subject"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 2}, journal)

    if len(out.sent) != 1 { t.Fatalf("expected the milestone message only, got %d", len(out.sent)) }
    if strings.Contains(out.sent[0].Attachment.Pretext, "updated") {
        t.Fatalf("status change must not add the field card: %#v", out.sent[0])
    }
}

func TestDetailFields_ResolveIdsToNames(t *testing.T) {
    store := newTestStore()
    store.refs["fixed_version"] = map[int64]string{42: "Sprint 12"}
    e, out := newTestEngine(store)

    issue := story(2)
    journal := &domain.Journal{Author: &petr, Details: []domain.JournalDetail{
        {Property: "attr", PropKey: "fixed_version_id", OldValue: "", Value: "42"},
        {Property: "attr", PropKey: "category_id", OldValue: "", Value: "99"},
    }}
    runEdit(e, issue, domain.PriorState{StatusID: 2}, journal)

    if len(out.sent) != 1 { t.Fatalf("expected one field card, got %d", len(out.sent)) }
    got := map[string]string{}
    for _, f := range out.sent[0].Attachment.Fields { got[f.Title] = f.Value }
    if got["Fixed version"] != "Sprint 12" { t.Fatalf("version id not resolved: %#v", got) }
    if got["Category"] != "-" { t.Fatalf("dangling id must degrade to placeholder: %#v", got) }
}

func TestTruncate(t *testing.T) {
    if got := truncate("short text", 230); got != "short text" {
        t.Fatalf("short text must pass through, got %q", got)
    }
    long := strings.Repeat("word ", 100)
    got := truncate(long, 50)
    if len([]rune(got)) > 50 { t.Fatalf("truncated text too long: %d", len([]rune(got))) }
    if !strings.HasSuffix(got, "...") { t.Fatalf("expected ellipsis, got %q", got) }
    if strings.Contains(strings.TrimSuffix(got, "..."), "wor ") {
        t.Fatalf("cut mid-word: %q", got)
    }
}

func TestEscape(t *testing.T) {
    if got := escape("<a & b>"); got != "&lt;a &amp; b&gt;" {
        t.Fatalf("got %q", got)
    }
}
