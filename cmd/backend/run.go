package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/hairizuanbinnoorazman/persona-navigator/studyrun"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var studyFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one study and print the results as JSON",
	RunE:  runStudy,
}

func init() {
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	runCmd.Flags().StringVarP(&studyFile, "study", "s", "", "study definition (YAML)")
	runCmd.MarkFlagRequired("study")
	rootCmd.AddCommand(runCmd)
}

// loadStudy reads and validates a YAML study definition.
func loadStudy(r io.Reader) (agent.Study, error) {
	var study agent.Study
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&study); err != nil {
		return study, fmt.Errorf("failed to parse study: %w", err)
	}
	if err := study.Validate(); err != nil {
		return study, err
	}
	if study.ID == uuid.Nil {
		study.ID = uuid.New()
	}
	return study, nil
}

func runStudy(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(studyFile)
	if err != nil {
		return fmt.Errorf("failed to open study: %w", err)
	}
	study, err := loadStudy(f)
	f.Close()
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg.Log, os.Stderr)
	defer log.Close()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	tracker := studyrun.NewTracker(a.runs, nil, log)
	if study, err = tracker.Record(ctx, study); err != nil {
		return fmt.Errorf("failed to record study: %w", err)
	}
	tracker.Started(ctx, study)

	results, err := a.runner.Run(ctx, study, a.recorderFor(study.ID))
	tracker.Finished(ctx, study, results, err)
	if err != nil {
		return fmt.Errorf("study failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"study_id": study.ID.String(),
		"results":  results,
	})
}
