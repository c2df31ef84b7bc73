// Package agent drives personas through live websites: one sequential loop per session and a
// runner that fans a study's personas out over the session pool.
package agent

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/reasoning"
	"github.com/hairizuanbinnoorazman/persona-navigator/recorder"
)

// KindStepFailed is the action kind recorded for a degraded step.
const KindStepFailed browser.Kind = "step_failed"

// StepRecorder persists and publishes completed steps.
type StepRecorder interface {
	SaveStep(ctx context.Context, rec *recorder.StepRecord) error
	PublishStepEvent(ctx context.Context, rec *recorder.StepRecord)
}

// ActionExecutor performs an action on a page and reports the outcome as a value.
type ActionExecutor interface {
	Execute(ctx context.Context, page browser.Page, action browser.Action) browser.Result
}

// Run identifies one session attempt.
type Run struct {
	SessionID   uuid.UUID
	StudyID     uuid.UUID
	Persona     Persona
	Task        Task
	Page        browser.Page
	LiveViewURL string
}

// Loop runs the observe, decide, act, record cycle for one session at a time.
type Loop struct {
	cfg      Config
	reasoner reasoning.Client
	executor ActionExecutor
	recorder StepRecorder
	logger   logger.Logger
}

// NewLoop creates a loop. Zero config fields fall back to DefaultConfig.
func NewLoop(cfg Config, reasoner reasoning.Client, executor ActionExecutor, rec StepRecorder, log logger.Logger) *Loop {
	return &Loop{
		cfg:      cfg.withDefaults(),
		reasoner: reasoner,
		executor: executor,
		recorder: rec,
		logger:   log,
	}
}

// Navigate runs run to completion. Failures are reported in the result's Error field; it
// never panics out.
func (l *Loop) Navigate(ctx context.Context, run Run) (result NavigationResult) {
	log := l.logger.WithFields(map[string]interface{}{
		"session_id": run.SessionID.String(),
		"persona":    run.Persona.Name,
	})
	result = NavigationResult{
		SessionID:   run.SessionID,
		PersonaName: run.Persona.Name,
		Steps:       []StepOutcome{},
	}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("unexpected failure: %v", r)
			result.TotalSteps = len(result.Steps)
			log.Error(ctx, "navigation panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
				"steps": result.TotalSteps,
			})
		}
	}()

	if err := l.start(ctx, run, log); err != nil {
		result.Error = err.Error()
		log.Error(ctx, "navigation setup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return result
	}

	var history []reasoning.HistoryEntry
	progress := 0
	for n := 1; n <= l.cfg.MaxSteps; n++ {
		if err := ctx.Err(); err != nil {
			result.Error = fmt.Sprintf("navigation cancelled: %v", err)
			break
		}

		outcome, shot := l.step(ctx, run, n, history, progress)
		l.record(ctx, run, &outcome, shot, log)
		result.Steps = append(result.Steps, outcome)
		result.TotalSteps = n
		progress = outcome.TaskProgress
		history = l.appendHistory(history, outcome)

		if stop := l.terminate(&result, log); stop {
			break
		}
	}

	log.Info(ctx, "navigation finished", map[string]interface{}{
		"total_steps":    result.TotalSteps,
		"task_completed": result.TaskCompleted,
		"gave_up":        result.GaveUp,
		"error":          result.Error,
	})
	return result
}

// start navigates to the start page and checks for blockers.
func (l *Loop) start(ctx context.Context, run Run, log logger.Logger) error {
	nctx, cancel := context.WithTimeout(ctx, l.cfg.NavigateTimeout)
	err := run.Page.Navigate(nctx, run.Task.StartURL)
	cancel()
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", run.Task.StartURL, err)
	}

	if err := sleep(ctx, l.cfg.RenderDelay); err != nil {
		return fmt.Errorf("navigation cancelled: %w", err)
	}

	if n := browser.DismissOverlays(ctx, run.Page); n > 0 {
		log.Info(ctx, "dismissed overlays", map[string]interface{}{
			"count": n,
		})
	}

	switch browser.DetectBlocker(ctx, run.Page) {
	case browser.BlockerCaptcha:
		return fmt.Errorf("CAPTCHA detected on %s, automated navigation is blocked", run.Task.StartURL)
	case browser.BlockerAuthWall:
		log.Warn(ctx, "authentication wall detected, continuing", map[string]interface{}{
			"url": run.Task.StartURL,
		})
	}
	return nil
}

// step runs perceive, decide and act for step n. Any failure becomes a degraded outcome.
func (l *Loop) step(ctx context.Context, run Run, n int, history []reasoning.HistoryEntry, progress int) (outcome StepOutcome, shot []byte) {
	defer func() {
		if r := recover(); r != nil {
			outcome = l.degraded(ctx, run.Page, n, progress, fmt.Errorf("step panicked: %v", r))
			shot = nil
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, l.cfg.PerceiveTimeout)
	shot, err := run.Page.Screenshot(pctx)
	if err != nil {
		cancel()
		return l.degraded(ctx, run.Page, n, progress, fmt.Errorf("screenshot failed: %w", err)), nil
	}
	pageURL, title, err := run.Page.Info(pctx)
	cancel()
	if err != nil {
		return l.degraded(ctx, run.Page, n, progress, fmt.Errorf("reading page info failed: %w", err)), shot
	}
	elements := browser.InteractiveElements(ctx, run.Page)

	decision, err := l.reasoner.Decide(ctx, reasoning.Request{
		PersonaName:       run.Persona.Name,
		PersonaAttributes: run.Persona.Attributes,
		BehavioralRules:   run.Persona.BehavioralRules,
		Task:              run.Task.Goal,
		Screenshot:        shot,
		Elements:          elements,
		URL:               pageURL,
		Title:             title,
		StepNumber:        n,
		History:           history,
	})
	if err != nil {
		return l.degraded(ctx, run.Page, n, progress, err), shot
	}

	outcome = StepOutcome{
		StepNumber:     n,
		URL:            pageURL,
		Title:          title,
		Narration:      decision.Narration,
		Reasoning:      decision.Reasoning,
		Confidence:     decision.Confidence,
		TaskProgress:   decision.TaskProgress,
		EmotionalState: decision.EmotionalState,
		Issues:         decision.Issues,
		Action:         decision.Action.Kind(),
	}

	if browser.IsTerminal(decision.Action) {
		outcome.Result = browser.Result{
			Success:     true,
			Kind:        decision.Action.Kind(),
			Description: decision.Action.Describe(),
		}
		return outcome, shot
	}

	// The target is looked up before the click, which may navigate away.
	if x, y, ok := browser.Point(decision.Action); ok {
		cx, cy := int(math.Round(x)), int(math.Round(y))
		outcome.ClickX, outcome.ClickY = &cx, &cy
		outcome.ClickTarget = browser.ElementAt(ctx, run.Page, x, y)
	}
	outcome.Result = l.executor.Execute(ctx, run.Page, decision.Action)
	return outcome, shot
}

// degraded builds the outcome for a failed step. Progress carries over from the prior step.
func (l *Loop) degraded(ctx context.Context, page browser.Page, n, progress int, err error) StepOutcome {
	l.logger.Warn(ctx, "step failed, recording degraded outcome", map[string]interface{}{
		"step":  n,
		"error": err.Error(),
	})
	out := StepOutcome{
		StepNumber:     n,
		Narration:      fmt.Sprintf("Something went wrong and I couldn't take this step: %v", err),
		Confidence:     0,
		TaskProgress:   progress,
		EmotionalState: "frustrated",
		Action:         KindStepFailed,
		Result: browser.Result{
			Success:     false,
			Kind:        KindStepFailed,
			Description: "Step failed",
			Error:       err.Error(),
		},
		Degraded: true,
	}

	ictx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	func() {
		defer func() { _ = recover() }()
		if u, t, ierr := page.Info(ictx); ierr == nil {
			out.URL, out.Title = u, t
		}
	}()
	return out
}

// record persists then publishes outcome. A persistence failure is logged and the session
// continues.
func (l *Loop) record(ctx context.Context, run Run, outcome *StepOutcome, shot []byte, log logger.Logger) {
	rec := &recorder.StepRecord{
		SessionID:         run.SessionID,
		StudyID:           run.StudyID,
		PersonaName:       run.Persona.Name,
		LiveViewURL:       run.LiveViewURL,
		StepNumber:        outcome.StepNumber,
		URL:               outcome.URL,
		Title:             outcome.Title,
		Narration:         outcome.Narration,
		Reasoning:         outcome.Reasoning,
		Confidence:        outcome.Confidence,
		TaskProgress:      outcome.TaskProgress,
		EmotionalState:    outcome.EmotionalState,
		Issues:            outcome.Issues,
		ActionKind:        string(outcome.Action),
		ActionDescription: outcome.Result.Description,
		ActionSuccess:     outcome.Result.Success,
		ActionError:       outcome.Result.Error,
		ClickX:            outcome.ClickX,
		ClickY:            outcome.ClickY,
		ClickTarget:       outcome.ClickTarget,
		Screenshot:        shot,
	}
	if err := l.recorder.SaveStep(ctx, rec); err != nil {
		log.Error(ctx, "failed to save step", map[string]interface{}{
			"step":  outcome.StepNumber,
			"error": err.Error(),
		})
	}
	outcome.ScreenshotPath = rec.ScreenshotPath
	l.recorder.PublishStepEvent(ctx, rec)
}

// terminate applies the termination checks in order and reports whether to stop.
func (l *Loop) terminate(result *NavigationResult, log logger.Logger) bool {
	last := result.Steps[len(result.Steps)-1]
	switch {
	case last.Action == browser.KindDone:
		result.TaskCompleted = true
		return true
	case last.Action == browser.KindGiveUp:
		result.GaveUp = true
		return true
	case last.TaskProgress >= l.cfg.CompletionProgress:
		result.TaskCompleted = true
		return true
	case isStuck(result.Steps, l.cfg.StuckWindow):
		result.GaveUp = true
		log.Info(context.Background(), "persona is stuck, giving up", map[string]interface{}{
			"url":      last.URL,
			"progress": last.TaskProgress,
			"window":   l.cfg.StuckWindow,
		})
		return true
	}
	return false
}

// isStuck reports whether the last window steps share one normalized URL and one progress.
func isStuck(steps []StepOutcome, window int) bool {
	if window < 1 || len(steps) < window {
		return false
	}
	tail := steps[len(steps)-window:]
	page, progress := normalizeURL(tail[0].URL), tail[0].TaskProgress
	for _, s := range tail[1:] {
		if normalizeURL(s.URL) != page || s.TaskProgress != progress {
			return false
		}
	}
	return true
}

// normalizeURL lowercases scheme and host and drops the fragment and a trailing slash.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

func (l *Loop) appendHistory(history []reasoning.HistoryEntry, o StepOutcome) []reasoning.HistoryEntry {
	history = append(history, reasoning.HistoryEntry{
		Step:      o.StepNumber,
		Action:    truncate(o.Result.Description, l.cfg.HistoryNarrationLimit),
		Narration: truncate(o.Narration, l.cfg.HistoryNarrationLimit),
		URL:       o.URL,
		Success:   o.Result.Success,
		Progress:  o.TaskProgress,
	})
	if len(history) > l.cfg.HistoryWindow {
		history = append([]reasoning.HistoryEntry(nil), history[len(history)-l.cfg.HistoryWindow:]...)
	}
	return history
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
