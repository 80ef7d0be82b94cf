/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "regexp"
    "strings"

    "github.com/gorbunovav/redmine-slack/internal/domain"
)

// Chat handles may only contain lowercase letters, numbers, dashes and
// underscores and must start with a letter or number.
var mentionRe = regexp.MustCompile(`@([a-zA-Z0-9][a-zA-Z0-9_\-]*)`)

// UserMap maps tracker logins to chat handles. Built once per request from the
// active users' stored preference, falling back to the lower-cased login.
type UserMap struct {
    m map[string]string
}

func NewUserMap(users []domain.User) *UserMap {
    m := make(map[string]string, len(users))
    for _, u := range users {
        if u.Login == "" { continue }
        if u.Handle != "" {
            m[u.Login] = u.Handle
        } else {
            m[u.Login] = strings.ToLower(u.Login)
        }
    }
    return &UserMap{m: m}
}

func (u *UserMap) Handle(login string) string {
    if h, ok := u.m[login]; ok { return h }
    return strings.ToLower(login)
}

func (u *UserMap) Mention(login string) string { return "@" + u.Handle(login) }

// RewriteMentions replaces every "@login" token with the mapped chat handle.
func (u *UserMap) RewriteMentions(text string) string {
    return mentionRe.ReplaceAllStringFunc(text, func(tok string) string {
        return "@" + u.Handle(tok[1:])
    })
}

// ExtractMentions returns the distinct handle tokens already mentioned in text.
func (u *UserMap) ExtractMentions(text string) []string {
    var out []string
    seen := map[string]struct{}{}
    for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
        if _, ok := seen[m[1]]; ok { continue }
        seen[m[1]] = struct{}{}
        out = append(out, m[1])
    }
    return out
}

// MentionFooter rewrites the mentions in text and builds the trailing
// "To: @a, @b" line listing everyone mentioned, or "" when nobody is.
func (u *UserMap) MentionFooter(text string) (string, string) {
    rewritten := u.RewriteMentions(text)
    names := u.ExtractMentions(rewritten)
    if len(names) == 0 { return rewritten, "" }
    lower := make([]string, 0, len(names))
    for _, n := range names { lower = append(lower, strings.ToLower(n)) }
    return rewritten, "\nTo: @" + strings.Join(lower, ", @")
}
