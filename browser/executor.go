package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// Result is the outcome of one executed action. It is always a value, never an error.
type Result struct {
	Success     bool   `json:"success"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

// Config holds executor timeouts and pacing.
type Config struct {
	ClickTimeout    time.Duration
	TypeTimeout     time.Duration
	NavigateTimeout time.Duration
	KeyTimeout      time.Duration
	MouseTimeout    time.Duration
	ScrollTimeout   time.Duration

	// RetryDelay is the pause before the single retry of a click or type.
	RetryDelay time.Duration
	// KeystrokeDelay is the pause between typed characters.
	KeystrokeDelay time.Duration
	// AutocompleteSettle is the pause after typing for suggestion lists to render.
	AutocompleteSettle time.Duration
	// ContentLoadedTimeout bounds the wait for the document after a navigational action.
	ContentLoadedTimeout time.Duration
	// SettleDelay is the fixed extra pause after content loaded, for client-side frameworks.
	SettleDelay time.Duration

	MaxWait       time.Duration
	DefaultScroll float64
}

// DefaultConfig returns the production executor settings.
func DefaultConfig() Config {
	return Config{
		ClickTimeout:         5 * time.Second,
		TypeTimeout:          15 * time.Second,
		NavigateTimeout:      30 * time.Second,
		KeyTimeout:           3 * time.Second,
		MouseTimeout:         5 * time.Second,
		ScrollTimeout:        3 * time.Second,
		RetryDelay:           500 * time.Millisecond,
		KeystrokeDelay:       50 * time.Millisecond,
		AutocompleteSettle:   800 * time.Millisecond,
		ContentLoadedTimeout: 5 * time.Second,
		SettleDelay:          500 * time.Millisecond,
		MaxWait:              10 * time.Second,
		DefaultScroll:        500,
	}
}

// Executor dispatches actions onto a Page.
type Executor struct {
	cfg    Config
	logger logger.Logger
}

// NewExecutor creates an executor. Zero timeouts fall back to DefaultConfig; zero delays
// are kept as given.
func NewExecutor(cfg Config, log logger.Logger) *Executor {
	def := DefaultConfig()
	orDefaultDuration(&cfg.ClickTimeout, def.ClickTimeout)
	orDefaultDuration(&cfg.TypeTimeout, def.TypeTimeout)
	orDefaultDuration(&cfg.NavigateTimeout, def.NavigateTimeout)
	orDefaultDuration(&cfg.KeyTimeout, def.KeyTimeout)
	orDefaultDuration(&cfg.MouseTimeout, def.MouseTimeout)
	orDefaultDuration(&cfg.ScrollTimeout, def.ScrollTimeout)
	orDefaultDuration(&cfg.ContentLoadedTimeout, def.ContentLoadedTimeout)
	orDefaultDuration(&cfg.MaxWait, def.MaxWait)
	if cfg.DefaultScroll <= 0 {
		cfg.DefaultScroll = def.DefaultScroll
	}
	return &Executor{cfg: cfg, logger: log}
}

// ExecuteKind parses kind/params and executes the result. Unknown kinds produce a failed
// Result rather than an error.
func (e *Executor) ExecuteKind(ctx context.Context, page Page, kind string, params Params) Result {
	action, err := ParseAction(kind, params)
	if err != nil {
		return Result{Success: false, Kind: Kind(kind), Description: "Unsupported action " + kind, Error: err.Error()}
	}
	return e.Execute(ctx, page, action)
}

// Execute performs action on page. A panic in the page driver is reported as a failed Result.
func (e *Executor) Execute(ctx context.Context, page Page, action Action) (res Result) {
	if action == nil {
		return Result{Success: false, Description: "No action", Error: "nil action"}
	}
	res = Result{Kind: action.Kind(), Description: action.Describe()}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("action panicked: %v", r)
			e.logger.Error(ctx, "action panicked", map[string]interface{}{
				"kind":  string(action.Kind()),
				"panic": fmt.Sprint(r),
			})
		}
	}()

	err := e.dispatch(ctx, page, action)
	if err != nil {
		res.Error = err.Error()
		e.logger.Warn(ctx, "action failed", map[string]interface{}{
			"kind":  string(action.Kind()),
			"error": err.Error(),
		})
		return res
	}
	res.Success = true
	return res
}

func (e *Executor) dispatch(ctx context.Context, page Page, action Action) error {
	switch a := action.(type) {
	case Click:
		err := e.withRetry(ctx, func() error {
			return e.timed(ctx, e.cfg.ClickTimeout, func(ctx context.Context) error {
				return page.Click(ctx, a.Selector)
			})
		})
		if err != nil {
			return err
		}
		e.settle(ctx, page)
		return nil

	case Type:
		err := e.withRetry(ctx, func() error {
			return e.timed(ctx, e.typeTimeout(a.Text, true), func(ctx context.Context) error {
				return e.typeInto(ctx, page, a.Selector, a.Text)
			})
		})
		if err != nil {
			return err
		}
		if a.Submit {
			if err := e.timed(ctx, e.cfg.KeyTimeout, func(ctx context.Context) error {
				return page.Press(ctx, "Enter")
			}); err != nil {
				return err
			}
			e.settle(ctx, page)
		}
		return nil

	case Scroll:
		amount := a.Amount
		if amount <= 0 {
			amount = e.cfg.DefaultScroll
		}
		if a.Direction == "up" {
			amount = -amount
		}
		return e.timed(ctx, e.cfg.ScrollTimeout, func(ctx context.Context) error {
			return page.Scroll(ctx, 0, amount)
		})

	case Navigate:
		target := a.URL
		if !strings.Contains(target, "://") {
			target = "https://" + target
		}
		if err := e.timed(ctx, e.cfg.NavigateTimeout, func(ctx context.Context) error {
			return page.Navigate(ctx, target)
		}); err != nil {
			return err
		}
		e.settle(ctx, page)
		return nil

	case GoBack:
		if err := e.timed(ctx, e.cfg.NavigateTimeout, page.GoBack); err != nil {
			return err
		}
		e.settle(ctx, page)
		return nil

	case Wait:
		d := a.Duration
		if d <= 0 {
			d = time.Second
		}
		if d > e.cfg.MaxWait {
			d = e.cfg.MaxWait
		}
		return sleep(ctx, d)

	case Tab:
		return e.press(ctx, page, "Tab", false)
	case ShiftTab:
		return e.press(ctx, page, "Shift+Tab", false)
	case Enter:
		return e.press(ctx, page, "Enter", true)
	case PressKey:
		return e.press(ctx, page, a.Key, strings.EqualFold(a.Key, "Enter"))

	case ClickAt:
		return e.mouseClick(ctx, page, a.X, a.Y, 1)
	case DoubleClickAt:
		return e.mouseClick(ctx, page, a.X, a.Y, 2)

	case Drag:
		return e.timed(ctx, e.cfg.MouseTimeout, func(ctx context.Context) error {
			return page.MouseDrag(ctx, a.FromX, a.FromY, a.ToX, a.ToY)
		})

	case ScrollAt:
		return e.timed(ctx, e.cfg.ScrollTimeout, func(ctx context.Context) error {
			return page.MouseWheel(ctx, a.X, a.Y, a.DeltaX, a.DeltaY)
		})

	case TypeRaw:
		return e.timed(ctx, e.typeTimeout(a.Text, false), func(ctx context.Context) error {
			return e.keystrokes(ctx, page, a.Text)
		})

	case Done, GiveUp:
		return nil

	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedAction, action)
	}
}

// typeInto focuses selector, clears it with select-all + delete so client-side handlers
// fire, types text key by key and waits for autocomplete suggestions.
func (e *Executor) typeInto(ctx context.Context, page Page, selector, text string) error {
	if err := page.Focus(ctx, selector); err != nil {
		return err
	}
	if err := page.Press(ctx, "Control+A"); err != nil {
		return err
	}
	if err := page.Press(ctx, "Backspace"); err != nil {
		return err
	}
	if err := e.keystrokes(ctx, page, text); err != nil {
		return err
	}
	return sleep(ctx, e.cfg.AutocompleteSettle)
}

// typeTimeout extends TypeTimeout by the pacing delays typing text will spend.
func (e *Executor) typeTimeout(text string, settles bool) time.Duration {
	d := e.cfg.TypeTimeout + time.Duration(utf8.RuneCountInString(text))*e.cfg.KeystrokeDelay
	if settles {
		d += e.cfg.AutocompleteSettle
	}
	return d
}

func (e *Executor) keystrokes(ctx context.Context, page Page, text string) error {
	for _, r := range text {
		if err := page.TypeText(ctx, string(r)); err != nil {
			return err
		}
		if err := sleep(ctx, e.cfg.KeystrokeDelay); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) press(ctx context.Context, page Page, combo string, navigational bool) error {
	if err := e.timed(ctx, e.cfg.KeyTimeout, func(ctx context.Context) error {
		return page.Press(ctx, combo)
	}); err != nil {
		return err
	}
	if navigational {
		e.settle(ctx, page)
	}
	return nil
}

func (e *Executor) mouseClick(ctx context.Context, page Page, x, y float64, clicks int) error {
	if err := e.timed(ctx, e.cfg.MouseTimeout, func(ctx context.Context) error {
		return page.MouseClick(ctx, x, y, clicks)
	}); err != nil {
		return err
	}
	e.settle(ctx, page)
	return nil
}

// withRetry runs fn and, on a not-found or timeout failure, waits RetryDelay and runs it
// exactly once more. Other failures are returned immediately.
func (e *Executor) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !isRetryable(err) {
		return err
	}
	if sleepErr := sleep(ctx, e.cfg.RetryDelay); sleepErr != nil {
		return err
	}
	return fn()
}

func (e *Executor) timed(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(tctx)
}

// settle waits for the document to load with a bounded timeout, swallowing the timeout,
// then pauses SettleDelay.
func (e *Executor) settle(ctx context.Context, page Page) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.ContentLoadedTimeout)
	err := page.WaitContentLoaded(tctx)
	cancel()
	if err != nil {
		e.logger.Debug(ctx, "content loaded wait ended early", map[string]interface{}{
			"error": err.Error(),
		})
	}
	_ = sleep(ctx, e.cfg.SettleDelay)
}

func orDefaultDuration(v *time.Duration, d time.Duration) {
	if *v <= 0 {
		*v = d
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrElementNotFound) || errors.Is(err, context.DeadlineExceeded)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
