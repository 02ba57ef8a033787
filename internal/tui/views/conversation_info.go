package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

// ConversationInfo shows the details of the open conversation.
type ConversationInfo struct {
	*tview.TextView
	theme  *ui.Theme
	selfID string
	now    func() time.Time
}

// NewConversationInfo creates an empty details view.
func NewConversationInfo(theme *ui.Theme, selfID string) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
		selfID:   selfID,
		now:      time.Now,
	}
}

// Name implements ui.Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Focus implements ui.Component.
func (ci *ConversationInfo) FocusTarget() tview.Primitive { return ci.TextView }

// Update renders conv. A nil conv clears the view.
func (ci *ConversationInfo) Update(conv *chat.Conversation, messages int) {
	ci.Clear()
	if conv == nil {
		return
	}

	fg := ui.Color(ci.theme.FgColor)
	ct := ui.Color(ci.theme.CounterColor)
	now := ci.now()

	last := formatTimestamp(conv.LastMessageAt, now)
	if last == "" {
		last = "-"
	}
	presence := formatLastSeen(conv.OtherPartyOnline, conv.LastSeenAt, now)

	text := fmt.Sprintf(
		"\n [%s::b]Name:[-:-:-]         [%s]%s[-]\n"+
			" [%s::b]Conversation:[-:-:-] [%s]%s[-]\n"+
			" [%s::b]With:[-:-:-]         [%s]%s[-]\n"+
			" [%s::b]Presence:[-:-:-]     [%s]%s[-]\n"+
			" [%s::b]Messages:[-:-:-]     [%s]%d[-]\n"+
			" [%s::b]Last Active:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s[-]",
		fg, ct, displayText(conv.DisplayName),
		fg, ct, displayText(conv.ID),
		fg, ct, displayText(conv.OtherParticipant(ci.selfID)),
		fg, ct, presence,
		fg, ct, messages,
		fg, ct, last,
		fg, ct, displayText(conv.LastMessagePreview),
	)
	_, _ = fmt.Fprint(ci, text)
	ci.SetTitle(fmt.Sprintf(" %s Details ", displayText(conv.DisplayName)))
}
