// Package browser turns abstract action intents into page mutations and exposes the
// best-effort page probes used by the agent loop.
package browser

import (
	"context"
	"errors"
)

// ErrElementNotFound is returned by Page implementations when a selector does not resolve
// before the context deadline.
var ErrElementNotFound = errors.New("element not found")

// Page is the page-level driver the executor and probes operate on. Implementations must
// honor ctx cancellation and deadlines on every call.
type Page interface {
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error

	// Click waits for selector to resolve and clicks its center.
	Click(ctx context.Context, selector string) error
	Focus(ctx context.Context, selector string) error

	// Press sends a key or chord such as "Enter", "Shift+Tab" or "Control+A".
	Press(ctx context.Context, combo string) error
	// TypeText sends text as keystrokes to the focused element.
	TypeText(ctx context.Context, text string) error

	MouseClick(ctx context.Context, x, y float64, clicks int) error
	MouseDrag(ctx context.Context, fromX, fromY, toX, toY float64) error
	MouseWheel(ctx context.Context, x, y, deltaX, deltaY float64) error
	Scroll(ctx context.Context, deltaX, deltaY float64) error

	// WaitContentLoaded blocks until the document has left the "loading" state.
	WaitContentLoaded(ctx context.Context) error

	Screenshot(ctx context.Context) ([]byte, error)
	// Evaluate runs a function expression that returns a string and yields that string.
	Evaluate(ctx context.Context, js string) (string, error)
	Info(ctx context.Context) (url, title string, err error)

	Close() error
}
