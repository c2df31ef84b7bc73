package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/reasoning"
	"github.com/hairizuanbinnoorazman/persona-navigator/recorder"
	"github.com/hairizuanbinnoorazman/persona-navigator/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scripted struct {
	decision *reasoning.Decision
	err      error
	panic    bool
	// moveTo, when set, is where the page ends up once this decision is returned.
	moveTo string
}

type scriptedReasoner struct {
	mu       sync.Mutex
	page     *testutil.FakePage
	script   []scripted
	requests []reasoning.Request
}

func (r *scriptedReasoner) Decide(ctx context.Context, req reasoning.Request) (*reasoning.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	i := len(r.requests) - 1
	if i >= len(r.script) {
		i = len(r.script) - 1
	}
	s := r.script[i]
	if s.panic {
		panic("model exploded")
	}
	if s.moveTo != "" && r.page != nil {
		r.page.SetLocation(s.moveTo, "Moved")
	}
	return s.decision, s.err
}

func (r *scriptedReasoner) Requests() []reasoning.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reasoning.Request(nil), r.requests...)
}

type fakeRecorder struct {
	mu        sync.Mutex
	saved     []*recorder.StepRecord
	published []*recorder.StepRecord
	began     []recorder.SessionInfo
	completed map[uuid.UUID]recorder.Completion
	errors    []string
	progress  []string
	saveErr   error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{completed: map[uuid.UUID]recorder.Completion{}}
}

func (f *fakeRecorder) SaveStep(ctx context.Context, rec *recorder.StepRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	if f.saveErr != nil {
		return f.saveErr
	}
	rec.ScreenshotPath = "screenshots/" + rec.SessionID.String() + "/shot.jpg"
	return nil
}

func (f *fakeRecorder) PublishStepEvent(ctx context.Context, rec *recorder.StepRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, rec)
}

func (f *fakeRecorder) BeginSession(ctx context.Context, info recorder.SessionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.began = append(f.began, info)
	return nil
}

func (f *fakeRecorder) CompleteSession(ctx context.Context, id uuid.UUID, c recorder.Completion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = c
	return nil
}

func (f *fakeRecorder) PublishProgress(ctx context.Context, studyID, sessionID uuid.UUID, name, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, msg)
}

func (f *fakeRecorder) PublishError(ctx context.Context, studyID, sessionID uuid.UUID, name, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

func (f *fakeRecorder) stepNumbers(sessionID uuid.UUID) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, r := range f.saved {
		if r.SessionID == sessionID {
			out = append(out, r.StepNumber)
		}
	}
	return out
}

func decide(action browser.Action, progress int) *reasoning.Decision {
	return &reasoning.Decision{
		Narration:      "I look around and " + action.Describe(),
		Action:         action,
		Confidence:     0.7,
		TaskProgress:   progress,
		EmotionalState: "curious",
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RenderDelay = 0
	return cfg
}

func newTestLoop(cfg Config, r reasoning.Client, rec StepRecorder) *Loop {
	log := logger.NewTestLogger()
	return NewLoop(cfg, r, browser.NewExecutor(browser.Config{}, log), rec, log)
}

func newRun(page *testutil.FakePage, start string) Run {
	return Run{
		SessionID: uuid.New(),
		StudyID:   uuid.New(),
		Persona:   Persona{Name: "Ada", Attributes: map[string]string{"age": "67"}, BehavioralRules: "Reads everything."},
		Task:      Task{Goal: "Buy a pair of socks", StartURL: start},
		Page:      page,
	}
}

func TestLoop_CompletesOnDone(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	r := &scriptedReasoner{page: page, script: []scripted{
		{decision: decide(browser.Click{Selector: "#socks"}, 10), moveTo: "https://shop.example/socks"},
		{decision: decide(browser.Click{Selector: "#add"}, 50), moveTo: "https://shop.example/cart"},
		{decision: decide(browser.Done{Summary: "bought"}, 100)},
	}}
	rec := newFakeRecorder()
	run := newRun(page, "https://shop.example")

	res := newTestLoop(testConfig(), r, rec).Navigate(context.Background(), run)

	assert.Equal(t, 3, res.TotalSteps)
	assert.True(t, res.TaskCompleted)
	assert.False(t, res.GaveUp)
	assert.Empty(t, res.Error)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, browser.KindDone, res.Steps[2].Action)
	assert.True(t, res.Steps[2].Result.Success)
	assert.Equal(t, []int{1, 2, 3}, rec.stepNumbers(run.SessionID))
	assert.Len(t, rec.published, 3)
	assert.Equal(t, 2, page.CallCount("Click"))
	assert.NotEmpty(t, res.Steps[0].ScreenshotPath)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, rec.saved[0].Screenshot)
}

func TestLoop_GivesUpWhenStuck(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	r := &scriptedReasoner{page: page, script: []scripted{
		{decision: decide(browser.Scroll{Direction: "down"}, 40), moveTo: "https://x/checkout"},
	}}
	rec := newFakeRecorder()

	res := newTestLoop(testConfig(), r, rec).Navigate(context.Background(), newRun(page, "https://x/checkout"))

	assert.Equal(t, 3, res.TotalSteps)
	assert.True(t, res.GaveUp)
	assert.False(t, res.TaskCompleted)
	assert.Empty(t, res.Error)
	for _, s := range res.Steps {
		assert.Equal(t, "https://x/checkout", s.URL)
		assert.Equal(t, 40, s.TaskProgress)
	}
}

func TestLoop_AbortsOnCaptcha(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	page.EvalResults["verify you are human"] = "captcha"
	r := &scriptedReasoner{script: []scripted{{decision: decide(browser.Done{}, 100)}}}
	rec := newFakeRecorder()

	res := newTestLoop(testConfig(), r, rec).Navigate(context.Background(), newRun(page, "https://blocked.example"))

	assert.Equal(t, 0, res.TotalSteps)
	assert.True(t, strings.HasPrefix(res.Error, "CAPTCHA detected"), res.Error)
	assert.Empty(t, res.Steps)
	assert.Empty(t, r.Requests())
	assert.Empty(t, rec.saved)
}

func TestLoop_ContinuesPastAuthWall(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	page.EvalResults["verify you are human"] = "auth_wall"
	r := &scriptedReasoner{script: []scripted{{decision: decide(browser.Done{}, 100)}}}

	res := newTestLoop(testConfig(), r, newFakeRecorder()).Navigate(context.Background(), newRun(page, "https://login.example"))

	assert.Empty(t, res.Error)
	assert.True(t, res.TaskCompleted)
	assert.Equal(t, 1, res.TotalSteps)
}

func TestLoop_NavigationFailureEndsSession(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	page.FailNext("Navigate", errors.New("net::ERR_NAME_NOT_RESOLVED"))
	r := &scriptedReasoner{script: []scripted{{decision: decide(browser.Done{}, 100)}}}

	res := newTestLoop(testConfig(), r, newFakeRecorder()).Navigate(context.Background(), newRun(page, "https://nowhere.invalid"))

	assert.Equal(t, 0, res.TotalSteps)
	assert.Contains(t, res.Error, "navigation to https://nowhere.invalid failed")
	assert.Contains(t, res.Error, "ERR_NAME_NOT_RESOLVED")
}

func TestLoop_StepFailuresAreDegradedNotFatal(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	r := &scriptedReasoner{page: page, script: []scripted{
		{decision: decide(browser.Click{Selector: "#a"}, 30), moveTo: "https://shop.example/a"},
		{err: errors.New("reasoning call failed: throttled")},
		{panic: true},
		{decision: decide(browser.Done{}, 100)},
	}}
	rec := newFakeRecorder()
	run := newRun(page, "https://shop.example")

	res := newTestLoop(testConfig(), r, rec).Navigate(context.Background(), run)

	require.Equal(t, 4, res.TotalSteps)
	assert.True(t, res.TaskCompleted)
	for _, i := range []int{1, 2} {
		s := res.Steps[i]
		assert.True(t, s.Degraded)
		assert.Equal(t, "frustrated", s.EmotionalState)
		assert.Equal(t, 30, s.TaskProgress, "progress carries over")
		assert.Equal(t, KindStepFailed, s.Action)
		assert.False(t, s.Result.Success)
		assert.NotEmpty(t, s.Narration)
		assert.Equal(t, "https://shop.example/a", s.URL)
	}
	assert.Contains(t, res.Steps[1].Narration, "throttled")
	assert.Equal(t, []int{1, 2, 3, 4}, rec.stepNumbers(run.SessionID))
}

func TestLoop_ScreenshotFailureIsDegraded(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	page.FailNext("Screenshot", errors.New("target crashed"))
	r := &scriptedReasoner{script: []scripted{{decision: decide(browser.Done{}, 100)}}}

	res := newTestLoop(testConfig(), r, newFakeRecorder()).Navigate(context.Background(), newRun(page, "https://shop.example"))

	require.Equal(t, 2, res.TotalSteps)
	assert.True(t, res.Steps[0].Degraded)
	assert.Len(t, r.Requests(), 1)
}

func TestLoop_StopsAtMaxSteps(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	var script []scripted
	for i := 1; i <= 10; i++ {
		script = append(script, scripted{decision: decide(browser.Scroll{Direction: "down"}, i*5)})
	}
	r := &scriptedReasoner{page: page, script: script}
	rec := newFakeRecorder()
	cfg := testConfig()
	cfg.MaxSteps = 4
	run := newRun(page, "https://shop.example")

	res := newTestLoop(cfg, r, rec).Navigate(context.Background(), run)

	assert.Equal(t, 4, res.TotalSteps)
	assert.False(t, res.TaskCompleted)
	assert.False(t, res.GaveUp)
	assert.Empty(t, res.Error)
	assert.Equal(t, []int{1, 2, 3, 4}, rec.stepNumbers(run.SessionID))
}

func TestLoop_HighProgressCompletes(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	r := &scriptedReasoner{script: []scripted{
		{decision: decide(browser.Scroll{Direction: "down"}, 20)},
		{decision: decide(browser.Scroll{Direction: "up"}, 96)},
	}}

	res := newTestLoop(testConfig(), r, newFakeRecorder()).Navigate(context.Background(), newRun(page, "https://shop.example"))

	assert.Equal(t, 2, res.TotalSteps)
	assert.True(t, res.TaskCompleted)
	assert.False(t, res.GaveUp)
}

func TestLoop_GiveUp(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	r := &scriptedReasoner{script: []scripted{{decision: decide(browser.GiveUp{Reason: "too confusing"}, 10)}}}

	res := newTestLoop(testConfig(), r, newFakeRecorder()).Navigate(context.Background(), newRun(page, "https://shop.example"))

	assert.Equal(t, 1, res.TotalSteps)
	assert.True(t, res.GaveUp)
	assert.False(t, res.TaskCompleted)
}

func TestLoop_CoordinateClickRecordsTarget(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	page.EvalResults["elementFromPoint"] = `button#buy "Buy now"`
	r := &scriptedReasoner{script: []scripted{
		{decision: decide(browser.ClickAt{X: 120.4, Y: 339.6}, 30)},
		{decision: decide(browser.Done{}, 100)},
	}}
	rec := newFakeRecorder()

	res := newTestLoop(testConfig(), r, rec).Navigate(context.Background(), newRun(page, "https://shop.example"))

	first := res.Steps[0]
	require.NotNil(t, first.ClickX)
	require.NotNil(t, first.ClickY)
	assert.Equal(t, 120, *first.ClickX)
	assert.Equal(t, 340, *first.ClickY)
	assert.Equal(t, `button#buy "Buy now"`, first.ClickTarget)
	assert.Equal(t, `button#buy "Buy now"`, rec.saved[0].ClickTarget)
	assert.Nil(t, res.Steps[1].ClickX)
	assert.Equal(t, 1, page.CallCount("MouseClick"))
}

func TestLoop_HistoryIsBounded(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	long := strings.Repeat("very long narration ", 50)
	var script []scripted
	for i := 1; i <= 12; i++ {
		d := decide(browser.Scroll{Direction: "down"}, i*5)
		d.Narration = long
		script = append(script, scripted{decision: d})
	}
	r := &scriptedReasoner{script: script}
	cfg := testConfig()
	cfg.MaxSteps = 12

	newTestLoop(cfg, r, newFakeRecorder()).Navigate(context.Background(), newRun(page, "https://shop.example"))

	reqs := r.Requests()
	require.Len(t, reqs, 12)
	assert.Empty(t, reqs[0].History)
	last := reqs[11]
	require.Len(t, last.History, 8)
	assert.Equal(t, 4, last.History[0].Step)
	assert.Equal(t, 11, last.History[7].Step)
	assert.LessOrEqual(t, len([]rune(last.History[7].Narration)), 203)
	assert.Equal(t, 12, last.StepNumber)
	assert.Equal(t, "Ada", last.PersonaName)
	assert.Equal(t, "Buy a pair of socks", last.Task)
}

func TestLoop_CancelledContext(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedReasoner{script: []scripted{{decision: decide(browser.Scroll{Direction: "down"}, 10)}}}
	rec := &cancellingRecorder{fakeRecorder: newFakeRecorder(), cancel: cancel}

	res := newTestLoop(testConfig(), r, rec).Navigate(ctx, newRun(page, "https://shop.example"))

	assert.Equal(t, 1, res.TotalSteps)
	assert.Contains(t, res.Error, "cancelled")
}

type cancellingRecorder struct {
	*fakeRecorder
	cancel context.CancelFunc
}

func (c *cancellingRecorder) PublishStepEvent(ctx context.Context, rec *recorder.StepRecord) {
	c.fakeRecorder.PublishStepEvent(ctx, rec)
	c.cancel()
}

func TestLoop_SaveFailureDoesNotStopSession(t *testing.T) {
	page := testutil.NewFakePage("about:blank")
	rec := newFakeRecorder()
	rec.saveErr = errors.New("database is locked")
	r := &scriptedReasoner{script: []scripted{
		{decision: decide(browser.Scroll{Direction: "down"}, 10)},
		{decision: decide(browser.Done{}, 100)},
	}}

	res := newTestLoop(testConfig(), r, rec).Navigate(context.Background(), newRun(page, "https://shop.example"))

	assert.Equal(t, 2, res.TotalSteps)
	assert.True(t, res.TaskCompleted)
	assert.Len(t, rec.published, 2)
}

func TestIsStuck(t *testing.T) {
	step := func(url string, progress int) StepOutcome { return StepOutcome{URL: url, TaskProgress: progress} }
	tests := []struct {
		name  string
		steps []StepOutcome
		want  bool
	}{
		{"too few steps", []StepOutcome{step("https://x/a", 10), step("https://x/a", 10)}, false},
		{"same page same progress", []StepOutcome{step("https://x/a", 10), step("https://x/a", 10), step("https://x/a", 10)}, true},
		{"fragment and slash ignored", []StepOutcome{step("https://X/a/", 10), step("https://x/a#top", 10), step("https://x/a", 10)}, true},
		{"progress moved", []StepOutcome{step("https://x/a", 10), step("https://x/a", 15), step("https://x/a", 15)}, false},
		{"query differs", []StepOutcome{step("https://x/a?p=1", 10), step("https://x/a?p=2", 10), step("https://x/a?p=2", 10)}, false},
		{"only the tail counts", []StepOutcome{step("https://x/b", 5), step("https://x/a", 10), step("https://x/a", 10), step("https://x/a", 10)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isStuck(tt.steps, 3))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo world", 4))
}
