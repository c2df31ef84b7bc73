package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/hairizuanbinnoorazman/persona-navigator/cmd/backend/handlers"
	"github.com/hairizuanbinnoorazman/persona-navigator/studyrun"
	"github.com/spf13/cobra"
)

var configFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServer,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log := newLogger(cfg.Log, os.Stdout)
	defer log.Close()
	log.Info(ctx, "starting server", map[string]interface{}{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
	})

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	if n, err := a.runs.CancelUnfinished(ctx, "server restarted"); err != nil {
		a.Close(ctx)
		return fmt.Errorf("failed to cancel unfinished studies: %w", err)
	} else if n > 0 {
		log.Warn(ctx, "cancelled unfinished studies from a previous run", map[string]interface{}{
			"count": n,
		})
	}

	// Study workers stop taking work when workCtx is cancelled; running studies see the
	// cancellation and release their sessions.
	workCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var tracker *studyrun.Tracker
	workers := agent.NewWorkerPool(cfg.Agent.Workers, cfg.Agent.QueueSize, a.runner, a.recorderFor,
		func(ctx context.Context, study agent.Study, results []agent.NavigationResult, err error) {
			tracker.Finished(ctx, study, results, err)
		}, log)
	tracker = studyrun.NewTracker(a.runs, workers, log)
	workers.OnStart = tracker.Started
	workers.Start(workCtx)

	if cfg.Server.LiveRetention > 0 {
		go pruneLiveState(workCtx, a.live, cfg.Server.LiveRetention, log)
	}

	// Setup router
	router := mux.NewRouter()
	router.Use(handlers.RequestLogger(log))

	// Health check endpoint (public)
	router.Handle("/health", handlers.NewHealthHandler(a.pool)).Methods("GET")

	authMiddleware := handlers.NewAPIKeyMiddleware(cfg.Server.APIKey, log)

	liveHandler := handlers.NewLiveHandler(a.hub, a.live, cfg.Server.AllowedOrigins, log)
	wsRouter := router.PathPrefix("/ws").Subrouter()
	wsRouter.Use(authMiddleware.Handler)
	wsRouter.HandleFunc("/live", liveHandler.ServeWS).Methods("GET")

	studyHandler := handlers.NewStudyHandler(tracker, a.runs, a.store, a.live, log)
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMiddleware.Handler)

	apiRouter.HandleFunc("/studies", studyHandler.Create).Methods("POST")
	apiRouter.HandleFunc("/studies", studyHandler.List).Methods("GET")
	apiRouter.HandleFunc("/studies/{id}", studyHandler.Get).Methods("GET")
	apiRouter.HandleFunc("/studies/{id}/snapshot", studyHandler.Snapshot).Methods("GET")
	apiRouter.HandleFunc("/studies/{id}/sessions", studyHandler.ListSessions).Methods("GET")
	apiRouter.HandleFunc("/sessions/{id}", studyHandler.GetSession).Methods("GET")

	// Create HTTP server. The websocket connections are long-lived, so only reads are bounded.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info(ctx, "server listening", map[string]interface{}{
			"address": addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down server", nil)

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stopWorkers()
	workers.Wait()

	// Closing the hub ends every observer connection.
	a.Close(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info(ctx, "server stopped", nil)
	return nil
}
