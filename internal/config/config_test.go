package config

import "testing"

func TestLoadDefaults(t *testing.T) {
    cfg := Load()
    if cfg.StatusClosed != 5 || cfg.StatusReview != 8 { t.Fatalf("unexpected status defaults: %+v", cfg) }
    if !cfg.IsStory(3) || cfg.IsStory(2) { t.Fatalf("unexpected story trackers: %v", cfg.StoryTrackers) }
    if !cfg.IsHighPriority(6) || cfg.IsHighPriority(4) { t.Fatalf("unexpected high priorities: %v", cfg.HighPriorities) }
    if cfg.SilentMarker != "!silent" { t.Fatalf("got %q", cfg.SilentMarker) }
    if cfg.ChannelPrefix != "#" { t.Fatalf("got %q", cfg.ChannelPrefix) }
}

func TestLoadOverrides(t *testing.T) {
    t.Setenv("STORY_TRACKERS", "7, 9,")
    t.Setenv("POST_UPDATES", "no")
    t.Setenv("STATUS_CLOSED", "12")
    cfg := Load()
    if len(cfg.StoryTrackers) != 2 || cfg.StoryTrackers[0] != 7 || cfg.StoryTrackers[1] != 9 {
        t.Fatalf("got %v", cfg.StoryTrackers)
    }
    if cfg.PostUpdates { t.Fatalf("expected updates disabled") }
    if cfg.StatusClosed != 12 { t.Fatalf("got %d", cfg.StatusClosed) }
}

func TestParseInt64sIgnoresGarbage(t *testing.T) {
    got := parseInt64s("1,x,3")
    if len(got) != 2 || got[0] != 1 || got[1] != 3 { t.Fatalf("got %v", got) }
}
