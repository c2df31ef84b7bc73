package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedAction is returned by ParseAction for an action kind outside the known set.
var ErrUnsupportedAction = errors.New("unsupported action kind")

// ErrInvalidAction is returned by ParseAction when required parameters are missing.
var ErrInvalidAction = errors.New("invalid action parameters")

// Kind names an action variant on the wire.
type Kind string

const (
	KindClick         Kind = "click"
	KindType          Kind = "type"
	KindScroll        Kind = "scroll"
	KindNavigate      Kind = "navigate"
	KindGoBack        Kind = "go_back"
	KindWait          Kind = "wait"
	KindTab           Kind = "tab"
	KindShiftTab      Kind = "shift_tab"
	KindEnter         Kind = "enter"
	KindClickAt       Kind = "click_at"
	KindDoubleClickAt Kind = "double_click_at"
	KindDrag          Kind = "drag"
	KindScrollAt      Kind = "scroll_at"
	KindPressKey      Kind = "press_key"
	KindTypeRaw       Kind = "type_raw"
	KindDone          Kind = "done"
	KindGiveUp        Kind = "give_up"
)

// Kinds lists every action kind ParseAction accepts.
var Kinds = []Kind{
	KindClick, KindType, KindScroll, KindNavigate, KindGoBack, KindWait, KindTab, KindShiftTab,
	KindEnter, KindClickAt, KindDoubleClickAt, KindDrag, KindScrollAt, KindPressKey, KindTypeRaw,
	KindDone, KindGiveUp,
}

// Action is one of the concrete action variants below. The set is closed: only types in
// this package implement it.
type Action interface {
	Kind() Kind
	Describe() string
	isAction()
}

// IsTerminal reports whether a ends the session instead of mutating the page.
func IsTerminal(a Action) bool {
	if a == nil {
		return false
	}
	k := a.Kind()
	return k == KindDone || k == KindGiveUp
}

type Click struct{ Selector string }
type Type struct {
	Selector string
	Text     string
	Submit   bool
}
type Scroll struct {
	Direction string // "up" or "down"
	Amount    float64
}
type Navigate struct{ URL string }
type GoBack struct{}
type Wait struct{ Duration time.Duration }
type Tab struct{}
type ShiftTab struct{}
type Enter struct{}
type ClickAt struct{ X, Y float64 }
type DoubleClickAt struct{ X, Y float64 }
type Drag struct{ FromX, FromY, ToX, ToY float64 }
type ScrollAt struct{ X, Y, DeltaX, DeltaY float64 }
type PressKey struct{ Key string }
type TypeRaw struct{ Text string }
type Done struct{ Summary string }
type GiveUp struct{ Reason string }

func (Click) Kind() Kind         { return KindClick }
func (Type) Kind() Kind          { return KindType }
func (Scroll) Kind() Kind        { return KindScroll }
func (Navigate) Kind() Kind      { return KindNavigate }
func (GoBack) Kind() Kind        { return KindGoBack }
func (Wait) Kind() Kind          { return KindWait }
func (Tab) Kind() Kind           { return KindTab }
func (ShiftTab) Kind() Kind      { return KindShiftTab }
func (Enter) Kind() Kind         { return KindEnter }
func (ClickAt) Kind() Kind       { return KindClickAt }
func (DoubleClickAt) Kind() Kind { return KindDoubleClickAt }
func (Drag) Kind() Kind          { return KindDrag }
func (ScrollAt) Kind() Kind      { return KindScrollAt }
func (PressKey) Kind() Kind      { return KindPressKey }
func (TypeRaw) Kind() Kind       { return KindTypeRaw }
func (Done) Kind() Kind          { return KindDone }
func (GiveUp) Kind() Kind        { return KindGiveUp }

func (Click) isAction()         {}
func (Type) isAction()          {}
func (Scroll) isAction()        {}
func (Navigate) isAction()      {}
func (GoBack) isAction()        {}
func (Wait) isAction()          {}
func (Tab) isAction()           {}
func (ShiftTab) isAction()      {}
func (Enter) isAction()         {}
func (ClickAt) isAction()       {}
func (DoubleClickAt) isAction() {}
func (Drag) isAction()          {}
func (ScrollAt) isAction()      {}
func (PressKey) isAction()      {}
func (TypeRaw) isAction()       {}
func (Done) isAction()          {}
func (GiveUp) isAction()        {}

func (a Click) Describe() string { return fmt.Sprintf("Click %s", a.Selector) }
func (a Type) Describe() string {
	d := fmt.Sprintf("Type %q into %s", a.Text, a.Selector)
	if a.Submit {
		d += " and submit"
	}
	return d
}
func (a Scroll) Describe() string        { return fmt.Sprintf("Scroll %s %.0fpx", a.Direction, a.Amount) }
func (a Navigate) Describe() string      { return fmt.Sprintf("Navigate to %s", a.URL) }
func (GoBack) Describe() string          { return "Go back" }
func (a Wait) Describe() string          { return fmt.Sprintf("Wait %s", a.Duration) }
func (Tab) Describe() string             { return "Press Tab" }
func (ShiftTab) Describe() string        { return "Press Shift+Tab" }
func (Enter) Describe() string           { return "Press Enter" }
func (a ClickAt) Describe() string       { return fmt.Sprintf("Click at (%.0f, %.0f)", a.X, a.Y) }
func (a DoubleClickAt) Describe() string { return fmt.Sprintf("Double-click at (%.0f, %.0f)", a.X, a.Y) }
func (a Drag) Describe() string {
	return fmt.Sprintf("Drag from (%.0f, %.0f) to (%.0f, %.0f)", a.FromX, a.FromY, a.ToX, a.ToY)
}
func (a ScrollAt) Describe() string {
	return fmt.Sprintf("Scroll by (%.0f, %.0f) at (%.0f, %.0f)", a.DeltaX, a.DeltaY, a.X, a.Y)
}
func (a PressKey) Describe() string { return fmt.Sprintf("Press %s", a.Key) }
func (a TypeRaw) Describe() string  { return fmt.Sprintf("Type %q", a.Text) }
func (a Done) Describe() string {
	if a.Summary == "" {
		return "Task done"
	}
	return "Task done: " + a.Summary
}
func (a GiveUp) Describe() string {
	if a.Reason == "" {
		return "Give up"
	}
	return "Give up: " + a.Reason
}

// Params is the loose parameter bag an action arrives in from the reasoning service.
type Params struct {
	Selector  string   `json:"selector,omitempty"`
	Text      string   `json:"text,omitempty"`
	Submit    bool     `json:"submit,omitempty"`
	URL       string   `json:"url,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Amount    float64  `json:"amount,omitempty"`
	Seconds   float64  `json:"seconds,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	ToX       *float64 `json:"to_x,omitempty"`
	ToY       *float64 `json:"to_y,omitempty"`
	DeltaX    float64  `json:"delta_x,omitempty"`
	DeltaY    float64  `json:"delta_y,omitempty"`
	Key       string   `json:"key,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// ParseAction validates p against kind and returns the typed action.
func ParseAction(kind string, p Params) (Action, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case KindClick:
		if p.Selector == "" {
			return nil, fmt.Errorf("%w: click requires selector", ErrInvalidAction)
		}
		return Click{Selector: p.Selector}, nil
	case KindType:
		if p.Selector == "" {
			return nil, fmt.Errorf("%w: type requires selector", ErrInvalidAction)
		}
		return Type{Selector: p.Selector, Text: p.Text, Submit: p.Submit}, nil
	case KindScroll:
		dir := strings.ToLower(p.Direction)
		if dir != "up" {
			dir = "down"
		}
		return Scroll{Direction: dir, Amount: p.Amount}, nil
	case KindNavigate:
		if p.URL == "" {
			return nil, fmt.Errorf("%w: navigate requires url", ErrInvalidAction)
		}
		return Navigate{URL: p.URL}, nil
	case KindGoBack:
		return GoBack{}, nil
	case KindWait:
		return Wait{Duration: time.Duration(p.Seconds * float64(time.Second))}, nil
	case KindTab:
		return Tab{}, nil
	case KindShiftTab:
		return ShiftTab{}, nil
	case KindEnter:
		return Enter{}, nil
	case KindClickAt, KindDoubleClickAt:
		if p.X == nil || p.Y == nil {
			return nil, fmt.Errorf("%w: %s requires x and y", ErrInvalidAction, k)
		}
		if k == KindClickAt {
			return ClickAt{X: *p.X, Y: *p.Y}, nil
		}
		return DoubleClickAt{X: *p.X, Y: *p.Y}, nil
	case KindDrag:
		if p.X == nil || p.Y == nil || p.ToX == nil || p.ToY == nil {
			return nil, fmt.Errorf("%w: drag requires x, y, to_x and to_y", ErrInvalidAction)
		}
		return Drag{FromX: *p.X, FromY: *p.Y, ToX: *p.ToX, ToY: *p.ToY}, nil
	case KindScrollAt:
		if p.X == nil || p.Y == nil {
			return nil, fmt.Errorf("%w: scroll_at requires x and y", ErrInvalidAction)
		}
		return ScrollAt{X: *p.X, Y: *p.Y, DeltaX: p.DeltaX, DeltaY: p.DeltaY}, nil
	case KindPressKey:
		if p.Key == "" {
			return nil, fmt.Errorf("%w: press_key requires key", ErrInvalidAction)
		}
		return PressKey{Key: p.Key}, nil
	case KindTypeRaw:
		return TypeRaw{Text: p.Text}, nil
	case KindDone:
		return Done{Summary: p.Reason}, nil
	case KindGiveUp:
		return GiveUp{Reason: p.Reason}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, kind)
	}
}

// Point returns the viewport coordinates carried by coordinate clicks.
func Point(a Action) (x, y float64, ok bool) {
	switch v := a.(type) {
	case ClickAt:
		return v.X, v.Y, true
	case DoubleClickAt:
		return v.X, v.Y, true
	}
	return 0, 0, false
}
