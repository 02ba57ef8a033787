package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

// formatTimestamp shows the clock time for today and month/day otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// formatLastSeen describes when a participant was last active.
func formatLastSeen(online bool, t, now time.Time) string {
	switch {
	case online:
		return "online"
	case t.IsZero():
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return formatTimestamp(t, now)
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// displayText makes untrusted text safe for a tview cell or text view.
func displayText(s string) string {
	return tview.Escape(sanitizeForTerminal(s, false))
}

// messageBody is what the thread shows for m.
func messageBody(m chat.Message) string {
	if m.Type.IsMedia() {
		return fmt.Sprintf("[::i]<%s>[::-]", strings.ToLower(string(m.Type)))
	}
	return tview.Escape(sanitizeForTerminal(m.Content, true))
}

// receipt marks own messages: one tick when stored, two once seen.
func receipt(theme *ui.Theme, m chat.Message, selfID string) string {
	if m.SenderID != selfID {
		return ""
	}
	if m.State == chat.StateSeen {
		return fmt.Sprintf(" [%s]✓✓[-]", ui.Color(theme.SeenColor))
	}
	return " [::d]✓[::-]"
}
