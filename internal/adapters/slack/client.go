/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package slack

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/gorbunovav/redmine-slack/internal/config"
    "github.com/gorbunovav/redmine-slack/internal/domain"
    "github.com/rs/zerolog"
)

type Client struct {
    username string
    icon     string
    http     *http.Client
    log      zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    timeout := cfg.HTTPTimeout
    if timeout <= 0 { timeout = 10 * time.Second }
    return &Client{
        username: cfg.SlackUsername,
        icon:     cfg.SlackIcon,
        http:     &http.Client{Timeout: timeout},
        log:      log,
    }
}

type message struct {
    Channel     string              `json:"channel,omitempty"`
    Username    string              `json:"username,omitempty"`
    Text        string              `json:"text,omitempty"`
    LinkNames   int                 `json:"link_names"`
    IconEmoji   string              `json:"icon_emoji,omitempty"`
    IconURL     string              `json:"icon_url,omitempty"`
    Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// Send posts one payload to the incoming-webhook URL. The payload's icon wins
// over the configured default; an icon token starting with ':' is an emoji,
// anything else is treated as an image URL.
func (c *Client) Send(ctx context.Context, url string, p domain.Payload) error {
    if url == "" { return fmt.Errorf("slack: missing webhook url") }

    m := message{
        Channel:   p.Channel,
        Username:  c.username,
        Text:      p.Text,
        LinkNames: 1,
    }
    if p.Attachment != nil { m.Attachments = []domain.Attachment{*p.Attachment} }

    icon := c.icon
    switch {
    case p.IconEmoji != "":
        m.IconEmoji = p.IconEmoji
    case p.IconURL != "":
        m.IconURL = p.IconURL
    case strings.HasPrefix(icon, ":"):
        m.IconEmoji = icon
    case icon != "":
        m.IconURL = icon
    }

    b, _ := json.Marshal(m)
    req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
    if err != nil { return err }
    req.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        body, _ := io.ReadAll(resp.Body)
        return fmt.Errorf("slack webhook status=%d body=%s", resp.StatusCode, string(body))
    }
    return nil
}
