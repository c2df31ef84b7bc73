package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// RodPage adapts a *rod.Page to the Page interface.
type RodPage struct {
	page *rod.Page
}

// NewRodPage wraps page.
func NewRodPage(page *rod.Page) *RodPage {
	return &RodPage{page: page}
}

// Raw exposes the underlying rod page for CDP-level consumers such as the screencast source.
func (r *RodPage) Raw() *rod.Page {
	return r.page
}

func (r *RodPage) Navigate(ctx context.Context, url string) error {
	return r.page.Context(ctx).Navigate(url)
}

func (r *RodPage) GoBack(ctx context.Context) error {
	return r.page.Context(ctx).NavigateBack()
}

// textTargetJS resolves a "text=" selector. Matching is literal and case-insensitive on
// whitespace-collapsed text: an exact label on a clickable element wins, then a clickable
// element containing the text, then the innermost visible element containing it.
const textTargetJS = `(text) => {
	const norm = (s) => (s || "").replace(/\s+/g, " ").trim().toLowerCase();
	const want = norm(text);
	if (!want) return null;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	const label = (el) => norm(el.innerText || el.value || el.getAttribute("aria-label"));
	const clickable = Array.from(document.querySelectorAll(
		"a, button, [role=button], [role=link], [role=tab], [role=menuitem], input[type=submit], input[type=button], label, summary"
	)).filter(visible);
	const exact = clickable.find((el) => label(el) === want);
	if (exact) return exact;
	const partial = clickable.find((el) => label(el).includes(want));
	if (partial) return partial;
	const contains = (el) => norm(el.innerText).includes(want);
	const root = document.body || document.documentElement;
	for (const el of root.querySelectorAll("*")) {
		if (visible(el) && contains(el) && !Array.from(el.children).some(contains)) return el;
	}
	return null;
}`

func (r *RodPage) element(ctx context.Context, selector string) (*rod.Element, error) {
	p := r.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	if text, ok := strings.CutPrefix(selector, "text="); ok {
		el, err = p.ElementByJS(rod.Eval(textTargetJS, text))
	} else {
		el, err = p.Element(selector)
	}
	if err != nil {
		var notFound *rod.ElementNotFoundError
		if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrElementNotFound, selector, err)
		}
		return nil, err
	}
	return el, nil
}

func (r *RodPage) Click(ctx context.Context, selector string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (r *RodPage) Focus(ctx context.Context, selector string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Focus()
}

var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"esc":        input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
	"space":      input.Space,
	"shift":      input.ShiftLeft,
	"control":    input.ControlLeft,
	"ctrl":       input.ControlLeft,
	"alt":        input.AltLeft,
	"meta":       input.MetaLeft,
}

func lookupKey(name string) (input.Key, error) {
	if k, ok := namedKeys[strings.ToLower(name)]; ok {
		return k, nil
	}
	if runes := []rune(name); len(runes) == 1 {
		if k, ok := keyFor(runes[0]); ok {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown key %q", ErrUnsupportedAction, name)
}

// keyFor maps a rune to the key that produces it. Line breaks press Enter; runes rod has
// no key for report false and are inserted as text instead.
func keyFor(c rune) (input.Key, bool) {
	switch {
	case c == '\n' || c == '\r':
		return input.Enter, true
	case c == '\t':
		return input.Tab, true
	case c < 0x20 || c >= 0x7f:
		return 0, false
	}
	return input.Key(c), keyDefined(input.Key(c))
}

// keyDefined reports whether rod has a key definition for k. Key.Info panics otherwise.
func keyDefined(k input.Key) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = k.Info()
	return true
}

// keystroke is either a key press or literal text for InsertText.
type keystroke struct {
	key  input.Key
	text string
}

// keystrokesFor splits text into key presses, grouping runs of runes without a key into
// one text insertion.
func keystrokesFor(text string) []keystroke {
	var out []keystroke
	for _, c := range text {
		if k, ok := keyFor(c); ok {
			out = append(out, keystroke{key: k})
			continue
		}
		if n := len(out); n > 0 && out[n-1].text != "" {
			out[n-1].text += string(c)
			continue
		}
		out = append(out, keystroke{text: string(c)})
	}
	return out
}

// Press sends a chord such as "Shift+Tab". Every part but the last is held as a modifier.
func (r *RodPage) Press(ctx context.Context, combo string) error {
	parts := strings.Split(combo, "+")
	keys := make([]input.Key, 0, len(parts))
	for _, part := range parts {
		k, err := lookupKey(strings.TrimSpace(part))
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	p := r.page.Context(ctx)
	return p.KeyActions().Press(keys[:len(keys)-1]...).Type(keys[len(keys)-1]).Do()
}

func (r *RodPage) TypeText(ctx context.Context, text string) error {
	p := r.page.Context(ctx)
	for _, ks := range keystrokesFor(text) {
		var err error
		if ks.text != "" {
			err = p.InsertText(ks.text)
		} else {
			err = p.Keyboard.Type(ks.key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *RodPage) MouseClick(ctx context.Context, x, y float64, clicks int) error {
	m := r.page.Context(ctx).Mouse
	if err := m.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return err
	}
	return m.Click(proto.InputMouseButtonLeft, clicks)
}

func (r *RodPage) MouseDrag(ctx context.Context, fromX, fromY, toX, toY float64) error {
	m := r.page.Context(ctx).Mouse
	if err := m.MoveTo(proto.Point{X: fromX, Y: fromY}); err != nil {
		return err
	}
	if err := m.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := m.MoveLinear(proto.Point{X: toX, Y: toY}, 10); err != nil {
		_ = m.Up(proto.InputMouseButtonLeft, 1)
		return err
	}
	return m.Up(proto.InputMouseButtonLeft, 1)
}

func (r *RodPage) MouseWheel(ctx context.Context, x, y, deltaX, deltaY float64) error {
	m := r.page.Context(ctx).Mouse
	if err := m.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return err
	}
	return m.Scroll(deltaX, deltaY, 1)
}

func (r *RodPage) Scroll(ctx context.Context, deltaX, deltaY float64) error {
	_, err := r.page.Context(ctx).Eval(`(dx, dy) => window.scrollBy(dx, dy)`, deltaX, deltaY)
	return err
}

func (r *RodPage) WaitContentLoaded(ctx context.Context) error {
	return r.page.Context(ctx).Wait(rod.Eval(`() => document.readyState !== 'loading'`))
}

func (r *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	quality := 70
	return r.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
}

func (r *RodPage) Evaluate(ctx context.Context, js string) (string, error) {
	res, err := r.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (r *RodPage) Info(ctx context.Context) (string, string, error) {
	info, err := r.page.Context(ctx).Info()
	if err != nil {
		return "", "", err
	}
	return info.URL, info.Title, nil
}

func (r *RodPage) Close() error {
	return r.page.Close()
}
