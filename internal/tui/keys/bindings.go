package keys

import (
	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/chatline/internal/tui/ui"
)

// Global is the scope of bindings that apply on every page.
const Global = ""

// Action is one key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string // key as shown in the menu; derived when empty
	Description string
	Handler     func()
	Visible     bool
	Numeric     bool
}

// Matches reports whether ev triggers the action. Rune bindings ignore modifiers
// other than Shift, so Alt-q does not quit.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	return a.match(ev.Key(), ev.Rune(), ev.Modifiers())
}

func (a *Action) match(k tcell.Key, r rune, mod tcell.ModMask) bool {
	if a.Key != tcell.KeyRune {
		return k == a.Key
	}
	if mod&(tcell.ModAlt|tcell.ModCtrl|tcell.ModMeta) != 0 {
		return false
	}
	return k == tcell.KeyRune && r == a.Rune
}

func (a *Action) label() string {
	switch {
	case a.Label != "":
		return a.Label
	case a.Key == tcell.KeyRune:
		return string(a.Rune)
	default:
		return tcell.KeyNames[a.Key]
	}
}

// Registry holds key bindings per scope in registration order.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// Add registers action in scope. Use Global for bindings active everywhere.
func (r *Registry) Add(scope string, action *Action) {
	r.scopes[scope] = append(r.scopes[scope], action)
}

// Hints returns the visible bindings of scope followed by the global ones.
func (r *Registry) Hints(scope string) []ui.MenuHint {
	var hints []ui.MenuHint
	add := func(actions []*Action) {
		for _, a := range actions {
			if a.Visible {
				hints = append(hints, ui.MenuHint{Key: a.label(), Description: a.Description, Numeric: a.Numeric})
			}
		}
	}
	if scope != Global {
		add(r.scopes[scope])
	}
	add(r.scopes[Global])
	return hints
}

// HandleEvent runs the first action matching ev, scope bindings before global
// ones. It reports whether one ran.
func (r *Registry) HandleEvent(scope string, ev *tcell.EventKey) bool {
	return r.handle(scope, ev.Key(), ev.Rune(), ev.Modifiers())
}

func (r *Registry) handle(scope string, k tcell.Key, ch rune, mod tcell.ModMask) bool {
	scopes := []string{scope, Global}
	if scope == Global {
		scopes = scopes[:1]
	}
	for _, s := range scopes {
		for _, a := range r.scopes[s] {
			if a.match(k, ch, mod) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
