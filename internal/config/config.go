package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// WorkDir is where per-job artifact directories are created
	WorkDir string `yaml:"work_dir"`

	// DataDir holds the job database
	DataDir string `yaml:"data_dir"`

	// LogLevel controls logging verbosity: debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// GlobalMaxRunning caps concurrently running jobs across all owners
	GlobalMaxRunning int `yaml:"global_max_running"`

	// DefaultOwnerCap is the concurrent-running cap for owners without an override
	DefaultOwnerCap int `yaml:"default_owner_cap"`

	// OwnerCaps overrides the running cap per owner id (stand-in for the
	// subscription-tier lookup, which lives outside this service)
	OwnerCaps map[string]int `yaml:"owner_caps"`

	// MaxQueuedPerOwner bounds how many jobs one owner may have waiting;
	// submits beyond it are rejected rather than queued
	MaxQueuedPerOwner int `yaml:"max_queued_per_owner"`

	// Stage timeouts, in seconds
	DownloadTimeoutSecs   int `yaml:"download_timeout_secs"`
	ExtractTimeoutSecs    int `yaml:"extract_timeout_secs"`
	TranscribeTimeoutSecs int `yaml:"transcribe_timeout_secs"`
	AnalyzeTimeoutSecs    int `yaml:"analyze_timeout_secs"`
	TranscodeTimeoutSecs  int `yaml:"transcode_timeout_secs"`

	// Retention windows before the sweeper deletes a terminal job, in seconds
	ResultRetentionSecs int `yaml:"result_retention_secs"`
	FailedRetentionSecs int `yaml:"failed_retention_secs"`
	SweepIntervalSecs   int `yaml:"sweep_interval_secs"`

	// MaxClipSecs bounds the requested trim duration at submit time
	MaxClipSecs int `yaml:"max_clip_secs"`

	// AnalysisWindowSecs bounds how much of the source is transcribed for
	// hook detection, independent of source length
	AnalysisWindowSecs int `yaml:"analysis_window_secs"`

	// Hook candidate duration bounds, in seconds
	HookMinSecs int `yaml:"hook_min_secs"`
	HookMaxSecs int `yaml:"hook_max_secs"`

	// External tool binaries
	YtdlpPath   string `yaml:"ytdlp_path"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	// API keys; environment variables OPENAI_API_KEY / ANTHROPIC_API_KEY win
	OpenAIKey    string `yaml:"openai_api_key"`
	AnthropicKey string `yaml:"anthropic_api_key"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:               "data",
		LogLevel:              "info",
		GlobalMaxRunning:      4,
		DefaultOwnerCap:       1,
		MaxQueuedPerOwner:     10,
		DownloadTimeoutSecs:   600,
		ExtractTimeoutSecs:    120,
		TranscribeTimeoutSecs: 300,
		AnalyzeTimeoutSecs:    120,
		TranscodeTimeoutSecs:  1800,
		ResultRetentionSecs:   3600,
		FailedRetentionSecs:   900,
		SweepIntervalSecs:     60,
		MaxClipSecs:           600,
		AnalysisWindowSecs:    600,
		HookMinSecs:           5,
		HookMaxSecs:           60,
		YtdlpPath:             "yt-dlp",
		FFmpegPath:            "ffmpeg",
		FFprobePath:           "ffprobe",
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.YtdlpPath == "" {
		c.YtdlpPath = def.YtdlpPath
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = def.FFmpegPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = def.FFprobePath
	}
	if c.GlobalMaxRunning < 1 {
		c.GlobalMaxRunning = def.GlobalMaxRunning
	}
	if c.DefaultOwnerCap < 1 {
		c.DefaultOwnerCap = def.DefaultOwnerCap
	}
	if c.MaxQueuedPerOwner < 1 {
		c.MaxQueuedPerOwner = def.MaxQueuedPerOwner
	}
	if c.DownloadTimeoutSecs < 1 {
		c.DownloadTimeoutSecs = def.DownloadTimeoutSecs
	}
	if c.ExtractTimeoutSecs < 1 {
		c.ExtractTimeoutSecs = def.ExtractTimeoutSecs
	}
	if c.TranscribeTimeoutSecs < 1 {
		c.TranscribeTimeoutSecs = def.TranscribeTimeoutSecs
	}
	if c.AnalyzeTimeoutSecs < 1 {
		c.AnalyzeTimeoutSecs = def.AnalyzeTimeoutSecs
	}
	if c.TranscodeTimeoutSecs < 1 {
		c.TranscodeTimeoutSecs = def.TranscodeTimeoutSecs
	}
	if c.ResultRetentionSecs < 1 {
		c.ResultRetentionSecs = def.ResultRetentionSecs
	}
	if c.FailedRetentionSecs < 1 {
		c.FailedRetentionSecs = def.FailedRetentionSecs
	}
	if c.SweepIntervalSecs < 1 {
		c.SweepIntervalSecs = def.SweepIntervalSecs
	}
	if c.MaxClipSecs < 1 {
		c.MaxClipSecs = def.MaxClipSecs
	}
	if c.AnalysisWindowSecs < 1 {
		c.AnalysisWindowSecs = def.AnalysisWindowSecs
	}
	if c.HookMinSecs < 1 {
		c.HookMinSecs = def.HookMinSecs
	}
	if c.HookMaxSecs <= c.HookMinSecs {
		c.HookMaxSecs = def.HookMaxSecs
	}
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// OwnerCap returns the concurrent-running cap for an owner
func (c *Config) OwnerCap(owner string) int {
	if n, ok := c.OwnerCaps[owner]; ok && n > 0 {
		return n
	}
	return c.DefaultOwnerCap
}

// ResolveWorkDir returns the artifact root, defaulting under the data dir
func (c *Config) ResolveWorkDir() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return filepath.Join(c.DataDir, "work")
}

// Validate sanity-checks values that have no safe fallback
func (c *Config) Validate() error {
	if c.GlobalMaxRunning < c.DefaultOwnerCap {
		return fmt.Errorf("global_max_running (%d) below default_owner_cap (%d)",
			c.GlobalMaxRunning, c.DefaultOwnerCap)
	}
	return nil
}

// DownloadTimeout and friends expose stage limits as durations.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSecs) * time.Second
}

func (c *Config) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSecs) * time.Second
}

func (c *Config) TranscribeTimeout() time.Duration {
	return time.Duration(c.TranscribeTimeoutSecs) * time.Second
}

func (c *Config) AnalyzeTimeout() time.Duration {
	return time.Duration(c.AnalyzeTimeoutSecs) * time.Second
}

func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.TranscodeTimeoutSecs) * time.Second
}
