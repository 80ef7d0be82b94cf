package domain

// ProgressEvent is a canonical lifecycle milestone derived from a status
// change plus role/actor comparison. Absence of a milestone is a valid
// outcome of classification.
type ProgressEvent int

const (
    EventNone ProgressEvent = iota
    TaskClosed
    StoryClaimed
    StoryReadyForReview
    StoryPassedReview
    StoryPassedTesting
    StoryAccepted
)

func (e ProgressEvent) String() string {
    switch e {
    case TaskClosed: return "task_closed"
    case StoryClaimed: return "story_claimed"
    case StoryReadyForReview: return "story_ready_for_review"
    case StoryPassedReview: return "story_passed_review"
    case StoryPassedTesting: return "story_passed_testing"
    case StoryAccepted: return "story_accepted"
    }
    return "none"
}

type User struct {
    ID     int64
    Login  string
    Name   string
    Mail   string
    Handle string // stored chat-handle preference; empty means "derive from login"
}

type Project struct {
    ID       int64
    Name     string
    ParentID int64 // 0 for root projects
}

type Issue struct {
    ID           int64
    ProjectID    int64
    TrackerID    int64
    StatusID     int64
    PriorityID   int64
    StatusName   string
    PriorityName string
    Subject      string
    Description  string
    Assignee     *User
    Author       *User
    Watchers     []string
}

// JournalDetail is one changed field within an edit. Property distinguishes
// tracked attributes ("attr") from custom fields ("cf") and attachments.
type JournalDetail struct {
    Property string
    PropKey  string
    OldValue string
    Value    string
}

type Journal struct {
    Author  *User
    Notes   string
    Details []JournalDetail
}

func (j *Journal) Detail(propKey string) *JournalDetail {
    for i := range j.Details {
        d := &j.Details[i]
        if d.Property != "cf" && d.Property != "attachment" && d.PropKey == propKey { return d }
    }
    return nil
}

func (j *Journal) StatusChanged() bool { return j.Detail("status_id") != nil }
func (j *Journal) AssigneeChanged() bool { return j.Detail("assigned_to_id") != nil }

// PriorState is the pre-save snapshot of the fields the engine diffs against.
// It lives inside one edit's EditContext only and is never persisted.
type PriorState struct {
    Assignee   *User
    StatusID   int64
    PriorityID int64
    Returns    int
}

type Changeset struct {
    Revision string
    Comments string
    RepoID   string
}

// IssueRef is the minimal projection used by digest lists.
type IssueRef struct {
    ID      int64
    Subject string
}

type Field struct {
    Title string `json:"title"`
    Value string `json:"value"`
    Short bool   `json:"short,omitempty"`
}

type Attachment struct {
    Pretext   string  `json:"pretext,omitempty"`
    Title     string  `json:"title,omitempty"`
    TitleLink string  `json:"title_link,omitempty"`
    Text      string  `json:"text,omitempty"`
    Color     string  `json:"color,omitempty"`
    ThumbURL  string  `json:"thumb_url,omitempty"`
    Fields    []Field `json:"fields,omitempty"`
}

// Payload is one outbound chat notification. Channel and WebhookURL are filled
// from the resolved route; ChannelOverride forces direct/private delivery.
type Payload struct {
    Text            string
    Attachment      *Attachment
    IconEmoji       string // token starting with ':'
    IconURL         string
    Channel         string
    ChannelOverride string
    WebhookURL      string
}

type ChannelRoute struct {
    URL            string
    Channel        string
    SupportChannel string
}
