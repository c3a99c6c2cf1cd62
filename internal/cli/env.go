package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ipagrab/ipagrab/internal/config"
	"github.com/ipagrab/ipagrab/internal/download"
	"github.com/ipagrab/ipagrab/internal/history"
	"github.com/ipagrab/ipagrab/internal/ipatool"
	"github.com/ipagrab/ipagrab/internal/itunes"
	"github.com/ipagrab/ipagrab/internal/logger"
	"github.com/ipagrab/ipagrab/internal/notify"
	"github.com/ipagrab/ipagrab/internal/precheck"
)

// appEnv holds the wired collaborators for one command invocation.
type appEnv struct {
	cfg          *config.Config
	logger       *slog.Logger
	db           *history.DB
	tool         *ipatool.Client
	lookup       *itunes.VersionCache
	orchestrator *download.Orchestrator
}

// buildEnv loads configuration and wires every collaborator a command may
// need. Cheap components are always built; the sqlite connection is the
// only stateful one, released by Close.
func buildEnv(c *cli.Context) (*appEnv, error) {
	cfgPath := c.String("config")
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := c.String("log-level")
	if cfg.Logging.Level != "" && !c.IsSet("log-level") {
		level = cfg.Logging.Level
	}
	format := c.String("log-format")
	if cfg.Logging.Format != "" && !c.IsSet("log-format") {
		format = cfg.Logging.Format
	}
	log, err := logger.New(level, format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := history.InitDB(history.Config{
		DatabasePath: cfg.Storage.GetDatabasePath(),
		LogLevel:     cfg.Storage.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	tool := ipatool.NewClient(cfg.Ipatool.GetPath(), ipatool.NewRealCommandRunner(), log)

	lookupClient := itunes.NewClient(itunes.Config{Country: cfg.Lookup.GetCountry()})
	lookupCache := itunes.NewVersionCache(lookupClient, cfg.Lookup.GetCacheTTL())

	dir := cfg.Download.GetDir()
	if c.String("output-dir") != "" {
		dir = c.String("output-dir")
	}

	var confirmer precheck.Confirmer = newPromptConfirmer(os.Stdin, os.Stdout)
	if c.Bool("yes") {
		confirmer = autoConfirmer{}
	}
	validator := precheck.NewValidator(dir, confirmer, precheck.NewDefaultProber(), log)

	var notifier notify.Notifier = notify.NewConsole(os.Stdout)
	if c.Bool("quiet") {
		notifier = notify.Silent{}
	}

	// An explicit zero in config means no retries at all, which Options
	// marks with a negative value.
	maxRetries := cfg.Download.GetMaxRetries()
	if maxRetries == 0 {
		maxRetries = -1
	}

	orchestrator := download.New(download.Deps{
		Tool:      tool,
		Auth:      tool,
		Validator: validator,
		Metadata:  metadataSource{cache: lookupCache},
		Notifier:  notifier,
		Recorder:  historyRecorder{db: db},
		Logger:    log,
	}, download.Options{
		Dir:                dir,
		MaxRetries:         maxRetries,
		InitialRetryDelay:  cfg.Download.GetRetryDelay(),
		NetworkDelayCap:    cfg.Download.GetNetworkCap(),
		ThrottleDelayFloor: cfg.Download.GetThrottleFloor(),
		ThrottleDelayCap:   cfg.Download.GetThrottleCap(),
		PollInterval:       cfg.Download.GetPollInterval(),
		StallWindow:        cfg.Download.GetStallWindow(),
		OverallTimeout:     cfg.Download.GetOverallTimeout(),
		ProgressDelta:      cfg.Download.GetProgressStep(),
	})

	return &appEnv{
		cfg:          cfg,
		logger:       log,
		db:           db,
		tool:         tool,
		lookup:       lookupCache,
		orchestrator: orchestrator,
	}, nil
}

// Close releases the environment's stateful resources.
func (e *appEnv) Close() {
	if err := e.db.Close(); err != nil {
		e.logger.Warn("failed to close database", "error", err)
	}
}
