package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		ClickTimeout:         time.Second,
		TypeTimeout:          time.Second,
		NavigateTimeout:      time.Second,
		KeyTimeout:           time.Second,
		MouseTimeout:         time.Second,
		ScrollTimeout:        time.Second,
		RetryDelay:           time.Millisecond,
		ContentLoadedTimeout: 50 * time.Millisecond,
		MaxWait:              20 * time.Millisecond,
	}
}

func newTestExecutor() *Executor {
	return NewExecutor(fastConfig(), logger.NewTestLogger())
}

func TestExecutor_ClickRetry(t *testing.T) {
	tests := []struct {
		name       string
		errs       []error
		wantOK     bool
		wantClicks int
	}{
		{name: "first try succeeds", wantOK: true, wantClicks: 1},
		{name: "not found then found", errs: []error{ErrElementNotFound}, wantOK: true, wantClicks: 2},
		{name: "timeout then found", errs: []error{context.DeadlineExceeded}, wantOK: true, wantClicks: 2},
		{name: "not found twice", errs: []error{ErrElementNotFound, ErrElementNotFound, nil}, wantOK: false, wantClicks: 2},
		{name: "other error is not retried", errs: []error{errors.New("detached node")}, wantOK: false, wantClicks: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := testutil.NewFakePage("https://example.com")
			page.FailNext("Click", tt.errs...)

			res := newTestExecutor().Execute(context.Background(), page, Click{Selector: "#buy"})

			assert.Equal(t, tt.wantOK, res.Success)
			assert.Equal(t, KindClick, res.Kind)
			assert.Equal(t, tt.wantClicks, page.CallCount("Click"))
			if !tt.wantOK {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestExecutor_TypeSequence(t *testing.T) {
	page := testutil.NewFakePage("https://example.com")
	res := newTestExecutor().Execute(context.Background(), page, Type{Selector: "#q", Text: "hé", Submit: true})
	require.True(t, res.Success, res.Error)

	assert.Equal(t, []string{
		"Focus(#q)",
		"Press(Control+A)",
		"Press(Backspace)",
		"TypeText(h)",
		"TypeText(é)",
		"Press(Enter)",
		"WaitContentLoaded",
	}, page.Calls())
}

func TestExecutor_TypeRetriesAtMostOnce(t *testing.T) {
	page := testutil.NewFakePage("https://example.com")
	page.FailNext("Focus", ErrElementNotFound, ErrElementNotFound)

	res := newTestExecutor().Execute(context.Background(), page, Type{Selector: "#missing", Text: "x"})

	assert.False(t, res.Success)
	assert.Equal(t, 2, page.CallCount("Focus"))
	assert.Zero(t, page.CallCount("TypeText"))
}

func TestExecutor_ContentLoadedTimeoutIsSwallowed(t *testing.T) {
	page := testutil.NewFakePage("https://example.com")
	page.FailNext("WaitContentLoaded", context.DeadlineExceeded)

	res := newTestExecutor().Execute(context.Background(), page, Navigate{URL: "example.com/pricing"})

	assert.True(t, res.Success)
	assert.Equal(t, "Navigate(https://example.com/pricing)", page.Calls()[0])
}

func TestExecutor_Dispatch(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{Scroll{Direction: "down"}, "Scroll(0,500)"},
		{Scroll{Direction: "up", Amount: 200}, "Scroll(0,-200)"},
		{GoBack{}, "GoBack"},
		{Tab{}, "Press(Tab)"},
		{ShiftTab{}, "Press(Shift+Tab)"},
		{Enter{}, "Press(Enter)"},
		{PressKey{Key: "Escape"}, "Press(Escape)"},
		{ClickAt{X: 10, Y: 20}, "MouseClick(10,20,1)"},
		{DoubleClickAt{X: 10, Y: 20}, "MouseClick(10,20,2)"},
		{Drag{FromX: 1, FromY: 2, ToX: 3, ToY: 4}, "MouseDrag(1,2,3,4)"},
		{ScrollAt{X: 5, Y: 6, DeltaY: 300}, "MouseWheel(5,6,0,300)"},
		{TypeRaw{Text: "ab"}, "TypeText(a)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.action.Kind()), func(t *testing.T) {
			page := testutil.NewFakePage("https://example.com")
			res := newTestExecutor().Execute(context.Background(), page, tt.action)
			require.True(t, res.Success, res.Error)
			assert.Equal(t, tt.action.Kind(), res.Kind)
			assert.Equal(t, tt.want, page.Calls()[0])
		})
	}
}

func TestExecutor_TerminalActionsTouchNothing(t *testing.T) {
	page := testutil.NewFakePage("https://example.com")
	e := newTestExecutor()

	assert.True(t, e.Execute(context.Background(), page, Done{}).Success)
	assert.True(t, e.Execute(context.Background(), page, GiveUp{Reason: "lost"}).Success)
	assert.Empty(t, page.Calls())
}

func TestExecutor_WaitIsCapped(t *testing.T) {
	start := time.Now()
	res := newTestExecutor().Execute(context.Background(), testutil.NewFakePage(""), Wait{Duration: time.Hour})
	assert.True(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutor_ExecuteKind(t *testing.T) {
	page := testutil.NewFakePage("https://example.com")
	e := newTestExecutor()

	res := e.ExecuteKind(context.Background(), page, "hover", Params{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unsupported action kind")
	assert.Empty(t, page.Calls())

	res = e.ExecuteKind(context.Background(), page, "click", Params{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid action parameters")

	res = e.ExecuteKind(context.Background(), page, "CLICK", Params{Selector: "text=Sign in"})
	assert.True(t, res.Success)
	assert.Equal(t, "Click(text=Sign in)", page.Calls()[0])
}

func TestExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestExecutor().Execute(ctx, testutil.NewFakePage(""), Wait{Duration: time.Second})
	assert.False(t, res.Success)
}

type crashingTyper struct{ *testutil.FakePage }

func (crashingTyper) TypeText(ctx context.Context, text string) error {
	panic("key not defined")
}

func TestExecutor_DriverPanicBecomesFailedResult(t *testing.T) {
	page := crashingTyper{testutil.NewFakePage("https://example.com")}
	e := newTestExecutor()

	for _, action := range []Action{TypeRaw{Text: "a\nb"}, Type{Selector: "#note", Text: "a\nb"}} {
		var res Result
		require.NotPanics(t, func() {
			res = e.Execute(context.Background(), page, action)
		})
		assert.False(t, res.Success)
		assert.Equal(t, action.Kind(), res.Kind)
		assert.Contains(t, res.Error, "key not defined")
	}

	var res Result
	require.NotPanics(t, func() {
		res = e.ExecuteKind(context.Background(), page, "type_raw", Params{Text: "line1\nline2"})
	})
	assert.False(t, res.Success)
}

func TestExecutor_LongTextOutlastsTypeTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.TypeTimeout = 200 * time.Millisecond
	cfg.KeystrokeDelay = 2 * time.Millisecond
	cfg.AutocompleteSettle = 10 * time.Millisecond
	e := NewExecutor(cfg, logger.NewTestLogger())

	// 150 keystrokes at 2ms pace past the base timeout on their own.
	text := strings.Repeat("abcde", 30)

	page := testutil.NewFakePage("https://example.com")
	res := e.Execute(context.Background(), page, Type{Selector: "#bio", Text: text})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, page.CallCount("Focus"))
	assert.Equal(t, 150, page.CallCount("TypeText"))

	page = testutil.NewFakePage("https://example.com")
	res = e.Execute(context.Background(), page, TypeRaw{Text: text})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 150, page.CallCount("TypeText"))

	assert.Equal(t, 200*time.Millisecond+150*2*time.Millisecond+10*time.Millisecond, e.typeTimeout(text, true))
	assert.Equal(t, 200*time.Millisecond+150*2*time.Millisecond, e.typeTimeout(text, false))
}
