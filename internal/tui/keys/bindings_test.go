package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestScopeBindingsWinOverGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.Add(Global, &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "global" }})
	r.Add("thread", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "thread" }})

	if !r.handle("thread", tcell.KeyRune, 'q', tcell.ModNone) || got != "thread" {
		t.Errorf("thread scope: got %q", got)
	}
	if !r.handle("conversations", tcell.KeyRune, 'q', tcell.ModNone) || got != "global" {
		t.Errorf("other scope: got %q", got)
	}
	if r.handle("thread", tcell.KeyRune, 'x', tcell.ModNone) {
		t.Error("unbound key reported as handled")
	}
}

func TestModifiedRunesDoNotMatch(t *testing.T) {
	a := &Action{Key: tcell.KeyRune, Rune: 'q'}
	if a.match(tcell.KeyRune, 'q', tcell.ModAlt) {
		t.Error("Alt-q matched q")
	}
	if !a.match(tcell.KeyRune, 'q', tcell.ModNone) {
		t.Error("q did not match")
	}

	enter := &Action{Key: tcell.KeyEnter}
	if !enter.match(tcell.KeyEnter, 0, tcell.ModNone) {
		t.Error("Enter did not match")
	}
}

func TestHintsKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(Global, &Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true})
	r.Add(Global, &Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true})
	r.Add("conversations", &Action{Key: tcell.KeyEnter, Description: "Open", Visible: true})
	r.Add("conversations", &Action{Key: tcell.KeyRune, Rune: '1', Label: "1-9", Description: "Jump", Visible: true, Numeric: true})
	r.Add("conversations", &Action{Key: tcell.KeyRune, Rune: '2', Description: "Jump"})

	hints := r.Hints("conversations")
	want := []string{"Enter", "1-9", "q", "?"}
	if len(hints) != len(want) {
		t.Fatalf("got %d hints, want %d: %+v", len(hints), len(want), hints)
	}
	for i, h := range hints {
		if h.Key != want[i] {
			t.Errorf("hint %d = %q, want %q", i, h.Key, want[i])
		}
	}
	if !hints[1].Numeric {
		t.Error("jump hint should be numeric")
	}

	if got := len(r.Hints(Global)); got != 2 {
		t.Errorf("global hints = %d, want 2", got)
	}
}
