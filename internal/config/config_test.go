package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GlobalMaxRunning != 4 || cfg.DefaultOwnerCap != 1 {
		t.Errorf("concurrency defaults wrong: %+v", cfg)
	}
	if cfg.YtdlpPath != "yt-dlp" || cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("tool defaults wrong: %+v", cfg)
	}
}

func TestLoadAppliesOverridesAndBackfills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reely.yaml")
	content := `
global_max_running: 8
owner_caps:
  pro-user: 3
download_timeout_secs: 120
hook_min_secs: 10
hook_max_secs: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GlobalMaxRunning != 8 {
		t.Errorf("GlobalMaxRunning = %d, want 8", cfg.GlobalMaxRunning)
	}
	if cfg.DownloadTimeout() != 2*time.Minute {
		t.Errorf("DownloadTimeout = %v, want 2m", cfg.DownloadTimeout())
	}
	// Unset values backfill from defaults.
	if cfg.TranscodeTimeoutSecs != 1800 {
		t.Errorf("TranscodeTimeoutSecs = %d, want default 1800", cfg.TranscodeTimeoutSecs)
	}
	// An inverted hook range falls back to the default max.
	if cfg.HookMaxSecs <= cfg.HookMinSecs {
		t.Errorf("hook range not repaired: min %d max %d", cfg.HookMinSecs, cfg.HookMaxSecs)
	}
}

func TestOwnerCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultOwnerCap = 1
	cfg.OwnerCaps = map[string]int{"pro-user": 3, "broken": 0}

	if got := cfg.OwnerCap("pro-user"); got != 3 {
		t.Errorf("OwnerCap(pro-user) = %d, want 3", got)
	}
	if got := cfg.OwnerCap("anonymous"); got != 1 {
		t.Errorf("OwnerCap(anonymous) = %d, want 1", got)
	}
	// A zero override is ignored, not honored.
	if got := cfg.OwnerCap("broken"); got != 1 {
		t.Errorf("OwnerCap(broken) = %d, want 1", got)
	}
}

func TestResolveWorkDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/reely"
	if got := cfg.ResolveWorkDir(); got != filepath.Join("/var/lib/reely", "work") {
		t.Errorf("ResolveWorkDir = %q", got)
	}

	cfg.WorkDir = "/scratch"
	if got := cfg.ResolveWorkDir(); got != "/scratch" {
		t.Errorf("ResolveWorkDir = %q, want /scratch", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cfg.GlobalMaxRunning = 1
	cfg.DefaultOwnerCap = 2
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when global cap is below owner cap")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "reely.yaml")

	cfg := DefaultConfig()
	cfg.GlobalMaxRunning = 6
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.GlobalMaxRunning != 6 {
		t.Errorf("round trip lost GlobalMaxRunning: %d", loaded.GlobalMaxRunning)
	}
}
