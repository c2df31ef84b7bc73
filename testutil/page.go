package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakePage is a scriptable in-memory browser.Page.
type FakePage struct {
	mu sync.Mutex

	URL   string
	Title string
	// Shot is returned by Screenshot.
	Shot []byte

	// Errors queues per-method failures; each call pops the head of its queue.
	Errors map[string][]error
	// EvalResults maps a substring of the evaluated script to its result.
	EvalResults map[string]string
	// OnNavigate, when set, runs after a successful Navigate.
	OnNavigate func(url string)

	calls  []string
	closed bool
}

// NewFakePage returns a page positioned at url.
func NewFakePage(url string) *FakePage {
	return &FakePage{
		URL:         url,
		Title:       "Fake page",
		Shot:        []byte{0xFF, 0xD8, 0xFF, 0xE0},
		Errors:      map[string][]error{},
		EvalResults: map[string]string{},
	}
}

// FailNext queues err for the next call of method.
func (p *FakePage) FailNext(method string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Errors[method] = append(p.Errors[method], errs...)
}

// Calls returns the recorded calls as "Method(arg)" strings.
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallCount counts recorded calls whose name is method.
func (p *FakePage) CallCount(method string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == method || strings.HasPrefix(c, method+"(") {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetLocation moves the page to url.
func (p *FakePage) SetLocation(url, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.URL, p.Title = url, title
}

func (p *FakePage) record(method, arg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if arg == "" {
		p.calls = append(p.calls, method)
	} else {
		p.calls = append(p.calls, fmt.Sprintf("%s(%s)", method, arg))
	}
	if q := p.Errors[method]; len(q) > 0 {
		p.Errors[method] = q[1:]
		return q[0]
	}
	return nil
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := p.record("Navigate", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.URL = url
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return nil
}

func (p *FakePage) GoBack(ctx context.Context) error { return p.record("GoBack", "") }

func (p *FakePage) Click(ctx context.Context, selector string) error {
	return p.record("Click", selector)
}

func (p *FakePage) Focus(ctx context.Context, selector string) error {
	return p.record("Focus", selector)
}

func (p *FakePage) Press(ctx context.Context, combo string) error { return p.record("Press", combo) }

func (p *FakePage) TypeText(ctx context.Context, text string) error {
	return p.record("TypeText", text)
}

func (p *FakePage) MouseClick(ctx context.Context, x, y float64, clicks int) error {
	return p.record("MouseClick", fmt.Sprintf("%.0f,%.0f,%d", x, y, clicks))
}

func (p *FakePage) MouseDrag(ctx context.Context, fromX, fromY, toX, toY float64) error {
	return p.record("MouseDrag", fmt.Sprintf("%.0f,%.0f,%.0f,%.0f", fromX, fromY, toX, toY))
}

func (p *FakePage) MouseWheel(ctx context.Context, x, y, deltaX, deltaY float64) error {
	return p.record("MouseWheel", fmt.Sprintf("%.0f,%.0f,%.0f,%.0f", x, y, deltaX, deltaY))
}

func (p *FakePage) Scroll(ctx context.Context, deltaX, deltaY float64) error {
	return p.record("Scroll", fmt.Sprintf("%.0f,%.0f", deltaX, deltaY))
}

func (p *FakePage) WaitContentLoaded(ctx context.Context) error {
	return p.record("WaitContentLoaded", "")
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.record("Screenshot", ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.Shot...), nil
}

func (p *FakePage) Evaluate(ctx context.Context, js string) (string, error) {
	if err := p.record("Evaluate", ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for needle, out := range p.EvalResults {
		if strings.Contains(js, needle) {
			return out, nil
		}
	}
	return "", nil
}

func (p *FakePage) Info(ctx context.Context) (string, string, error) {
	if err := p.record("Info", ""); err != nil {
		return "", "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URL, p.Title, nil
}

func (p *FakePage) Close() error {
	err := p.record("Close", "")
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return err
}
