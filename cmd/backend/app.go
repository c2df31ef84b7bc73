package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/hairizuanbinnoorazman/persona-navigator/broadcast"
	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
	"github.com/hairizuanbinnoorazman/persona-navigator/database"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/reasoning"
	"github.com/hairizuanbinnoorazman/persona-navigator/recorder"
	"github.com/hairizuanbinnoorazman/persona-navigator/screencast"
	"github.com/hairizuanbinnoorazman/persona-navigator/session"
	"github.com/hairizuanbinnoorazman/persona-navigator/storage"
	"github.com/hairizuanbinnoorazman/persona-navigator/studyrun"
	"gorm.io/gorm"
)

// app holds the long-lived components shared by serve and run.
type app struct {
	cfg    *Config
	log    *logger.LogrusLogger
	db     *gorm.DB
	blobs  storage.BlobStorage
	hub    *broadcast.Hub
	live   *recorder.LiveState
	store  recorder.Store
	runs   studyrun.Store
	pool   *session.Pool
	runner *agent.Runner
}

func newLogger(cfg LogConfig, out io.Writer) *logger.LogrusLogger {
	return logger.NewLogrusLoggerWithOptions(logger.Options{
		Level:      cfg.Level,
		Output:     out,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
}

func databaseConfig(cfg DatabaseConfig) database.Config {
	return database.Config{
		Driver:       cfg.Driver,
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Password:     cfg.Password,
		Database:     cfg.Database,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	}
}

// newApp builds every component. On error, whatever was already opened is closed.
func newApp(ctx context.Context, cfg *Config, log *logger.LogrusLogger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close(ctx)
		}
	}()

	a.db, err = database.Connect(databaseConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// sqlite is for single-process runs and has no migration files.
	if strings.EqualFold(cfg.Database.Driver, "sqlite") {
		if err = a.db.AutoMigrate(&recorder.PersonaSession{}, &recorder.Step{}, &recorder.Issue{}, &studyrun.Run{}); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
	}
	log.Info(ctx, "database connected", map[string]interface{}{
		"driver":   cfg.Database.Driver,
		"database": cfg.Database.Database,
	})

	a.blobs, err = storage.New(storage.Config{
		Type:     cfg.Storage.Type,
		BaseDir:  cfg.Storage.BaseDir,
		S3Bucket: cfg.Storage.S3Bucket,
		S3Region: cfg.Storage.S3Region,
		S3Prefix: cfg.Storage.S3Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.hub = broadcast.NewHub(cfg.Server.HubBuffer, log)
	a.live = recorder.NewLiveState()
	a.store = recorder.NewMySQLStore(a.db, log)
	a.runs = studyrun.NewMySQLStore(a.db, log)

	a.pool, err = session.New(session.Config{
		MaxSessions: cfg.Pool.MaxSessions,
		Provider: session.ProviderConfig{
			BaseURL:         cfg.Provider.BaseURL,
			APIKey:          cfg.Provider.APIKey,
			ProjectID:       cfg.Provider.ProjectID,
			CreateAttempts:  cfg.Provider.CreateAttempts,
			BackoffBase:     cfg.Provider.BackoffBase,
			RecordSession:   cfg.Provider.RecordSession,
			AdvancedStealth: cfg.Provider.AdvancedStealth,
			SolveCaptchas:   cfg.Provider.SolveCaptchas,
		},
		Local: session.LocalConfig{
			Headless:  cfg.Pool.Headless,
			ChromeBin: cfg.Pool.ChromeBin,
			NoSandbox: cfg.Pool.NoSandbox,
		},
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create session pool: %w", err)
	}
	if cfg.Pool.LeaseCheckInterval > 0 {
		a.pool.StartLeaseMonitor(cfg.Pool.LeaseCheckInterval, cfg.Pool.MaxLeaseAge)
	}
	log.Info(ctx, "session pool ready", map[string]interface{}{
		"capacity": a.pool.Capacity(),
		"cloud":    a.pool.IsCloudBacked(),
	})

	model, err := reasoning.NewModel(ctx, reasoning.Config{
		Provider:  cfg.Reasoning.Provider,
		Model:     cfg.Reasoning.Model,
		Region:    cfg.Reasoning.Region,
		APIKey:    cfg.Reasoning.APIKey,
		MaxTokens: cfg.Reasoning.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning model: %w", err)
	}

	agentCfg := agent.DefaultConfig()
	agentCfg.MaxSteps = cfg.Agent.MaxSteps
	agentCfg.StuckWindow = cfg.Agent.StuckWindow
	agentCfg.CompletionProgress = cfg.Agent.CompletionProgress
	agentCfg.HistoryWindow = cfg.Agent.HistoryWindow
	agentCfg.RenderDelay = cfg.Agent.RenderDelay
	agentCfg.NavigateTimeout = cfg.Agent.NavigateTimeout

	var streams agent.StreamFactory
	if cfg.Screencast.Enabled {
		streams = a.streamFactory()
	}

	a.runner = agent.NewRunner(
		agentCfg,
		a.pool,
		reasoning.NewReasoner(model, cfg.Reasoning.Timeout, log),
		browser.NewExecutor(browser.DefaultConfig(), log),
		streams,
		log,
	)
	return a, nil
}

// streamFactory streams rod-driven sessions; sessions without a rod page get no stream.
func (a *app) streamFactory() agent.StreamFactory {
	opts := screencast.Options{
		Quality:       a.cfg.Screencast.Quality,
		MaxWidth:      a.cfg.Screencast.MaxWidth,
		MaxHeight:     a.cfg.Screencast.MaxHeight,
		EveryNthFrame: a.cfg.Screencast.EveryNthFrame,
		MaxFPS:        a.cfg.Screencast.MaxFPS,
		Replay:        a.cfg.Screencast.Replay,
		ReplayEvery:   a.cfg.Screencast.ReplayEvery,
	}
	return func(sessionID uuid.UUID, bs *session.BrowserSession) agent.Stream {
		if bs.RodPage == nil {
			return nil
		}
		return screencast.NewStreamer(sessionID.String(), screencast.NewRodSource(bs.RodPage), a.hub, a.blobs, opts, a.log)
	}
}

// recorderFor returns the recorder for one study run.
func (a *app) recorderFor(studyID uuid.UUID) agent.StudyRecorder {
	return recorder.New(a.store, a.blobs, a.hub, a.live, a.log.WithField("study_id", studyID.String()))
}

// pruneLiveState drops finished sessions from the live snapshot once they are older than
// retention. It returns when ctx is done.
func pruneLiveState(ctx context.Context, live *recorder.LiveState, retention time.Duration, log logger.Logger) {
	interval := retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := live.Prune(retention); n > 0 {
				log.Debug(ctx, "pruned live sessions", map[string]interface{}{
					"removed":   n,
					"remaining": live.Len(),
				})
			}
		}
	}
}

// Close shuts components down in reverse order of construction.
func (a *app) Close(ctx context.Context) {
	if a.pool != nil {
		if err := a.pool.Close(ctx); err != nil {
			a.log.Warn(ctx, "failed to close session pool", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
