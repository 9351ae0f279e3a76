package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/muhammadegaa/reely/internal/ai"
	"github.com/muhammadegaa/reely/internal/api"
	"github.com/muhammadegaa/reely/internal/config"
	"github.com/muhammadegaa/reely/internal/ffmpeg"
	"github.com/muhammadegaa/reely/internal/jobs"
	"github.com/muhammadegaa/reely/internal/logger"
	"github.com/muhammadegaa/reely/internal/pipeline"
	"github.com/muhammadegaa/reely/internal/store"
	"github.com/muhammadegaa/reely/internal/ytdlp"
)

const version = "0.3.0"

// targetHooks is how many hook candidates a detection job keeps at most.
const targetHooks = 5

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file (default: ./config/reely.yaml)")
	port := flag.Int("port", 8080, "Port to listen on")
	flag.Parse()

	// Determine config path
	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/reely.yaml"
		}
	}

	// Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init("info")
		logger.Warn("Could not load config", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}

	// Initialize logger with configured level
	logger.Init(cfg.LogLevel)

	// Environment variables win over file values for secrets
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.AnthropicKey = key
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Could not create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	jobStore, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "reely.db"))
	if err != nil {
		logger.Error("Failed to initialize job store", "error", err)
		os.Exit(1)
	}
	defer jobStore.Close()

	// Jobs that were queued or running when the previous process died can
	// never finish; fail them before loading the table.
	if n, err := jobStore.MarkInterrupted(); err != nil {
		logger.Warn("Could not mark interrupted jobs", "error", err)
	} else if n > 0 {
		logger.Info("Marked interrupted jobs as failed", "count", n)
	}

	if cfg.OpenAIKey == "" {
		logger.Warn("No OpenAI API key configured; transcription and hook detection will fail")
	}

	whisper := ai.NewWhisperClient(cfg.OpenAIKey)
	openAI := ai.NewOpenAIClient(cfg.OpenAIKey)
	anthropic := ai.NewAnthropicClient(cfg.AnthropicKey)

	resolver := func(provider string) (ai.HookAnalyzer, error) {
		switch provider {
		case "", "openai":
			if cfg.OpenAIKey == "" {
				return nil, fmt.Errorf("openai api key not configured")
			}
			return openAI, nil
		case "anthropic":
			if cfg.AnthropicKey == "" {
				return nil, fmt.Errorf("anthropic api key not configured")
			}
			return anthropic, nil
		default:
			return nil, fmt.Errorf("unknown ai provider %q", provider)
		}
	}

	defs, err := pipeline.BuildDefinitions(
		pipeline.Tools{
			Downloader:  ytdlp.NewClient(cfg.YtdlpPath),
			Prober:      ffmpeg.NewProber(cfg.FFprobePath),
			Extractor:   ffmpeg.NewExtractor(cfg.FFmpegPath),
			Trimmer:     ffmpeg.NewTrimmer(cfg.FFmpegPath),
			Transcriber: whisper,
			Analyzers:   resolver,
		},
		pipeline.Settings{
			DownloadTimeout:    cfg.DownloadTimeout(),
			ExtractTimeout:     cfg.ExtractTimeout(),
			TranscribeTimeout:  cfg.TranscribeTimeout(),
			AnalyzeTimeout:     cfg.AnalyzeTimeout(),
			TranscodeTimeout:   cfg.TranscodeTimeout(),
			AnalysisWindowSecs: float64(cfg.AnalysisWindowSecs),
			HookMinSecs:        float64(cfg.HookMinSecs),
			HookMaxSecs:        float64(cfg.HookMaxSecs),
			TargetHooks:        targetHooks,
		},
	)
	if err != nil {
		logger.Error("Failed to build pipelines", "error", err)
		os.Exit(1)
	}

	gate := jobs.NewGate(cfg.GlobalMaxRunning, cfg.OwnerCap)
	manager, err := jobs.NewManager(defs, gate, jobStore, jobs.Options{
		WorkRoot:          cfg.ResolveWorkDir(),
		MaxQueuedPerOwner: cfg.MaxQueuedPerOwner,
		MaxClipSecs:       float64(cfg.MaxClipSecs),
	})
	if err != nil {
		logger.Error("Failed to initialize job manager", "error", err)
		os.Exit(1)
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := jobs.NewSweeper(manager,
		time.Duration(cfg.SweepIntervalSecs)*time.Second,
		time.Duration(cfg.ResultRetentionSecs)*time.Second,
		time.Duration(cfg.FailedRetentionSecs)*time.Second,
	)
	go sweeper.Run(sweepCtx)

	handler := api.NewHandler(manager, cfg, version)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Reely started",
		"version", version,
		"port", *port,
		"database", jobStore.Path(),
		"work_dir", cfg.ResolveWorkDir(),
		"global_max_running", cfg.GlobalMaxRunning,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		stopSweeper()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server shutdown", "error", err)
		}
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Workers did not stop in time", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		stopSweeper()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
