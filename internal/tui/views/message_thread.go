package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

// MessageThread displays the open conversation and its composer.
type MessageThread struct {
	*tview.Flex
	theme     *ui.Theme
	messages  *tview.TextView
	composer  *tview.InputField
	selfID    string
	chatName  string
	onSend    func(text string)
	onCompose func(text string)
	now       func() time.Time
}

// NewMessageThread creates the thread view for the user selfID.
func NewMessageThread(theme *ui.Theme, selfID string) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		selfID:   selfID,
		now:      time.Now,
	}

	// The compose buffer is cleared by the engine once the store accepted the
	// message, so a failed send keeps the text for another try.
	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			if text := composer.GetText(); strings.TrimSpace(text) != "" {
				mt.onSend(text)
			}
		}
	})
	composer.SetChangedFunc(func(text string) {
		if mt.onCompose != nil {
			mt.onCompose(text)
		}
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if mt.chatName != "" {
		return mt.chatName
	}
	return "Messages"
}

// Focus implements ui.Component.
func (mt *MessageThread) FocusTarget() tview.Primitive { return mt.messages }

// SetOnSend sets the callback for Enter in the composer.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnCompose sets the callback for every edit of the composer.
func (mt *MessageThread) SetOnCompose(fn func(text string)) {
	mt.onCompose = fn
}

// SetCompose brings the composer in line with the engine's compose buffer.
func (mt *MessageThread) SetCompose(text string) {
	if mt.composer.GetText() != text {
		mt.composer.SetText(text)
	}
}

// Update renders conv and msgs. A nil conv clears the view.
func (mt *MessageThread) Update(conv *chat.Conversation, msgs []chat.Message) {
	mt.messages.Clear()
	if conv == nil {
		mt.chatName = ""
		mt.messages.SetTitle(" Messages ")
		return
	}

	mt.chatName = conv.DisplayName
	title := " " + displayText(conv.DisplayName)
	if conv.OtherPartyOnline {
		title += fmt.Sprintf(" [%s]●[-]", ui.Color(mt.theme.OnlineColor))
	}
	mt.messages.SetTitle(title + " ")

	now := mt.now()
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(mt.line(m, conv.DisplayName, now))
	}
	if len(msgs) == 0 {
		b.WriteString("[::d]No messages yet. Press i to write one.[::-]")
	}
	_, _ = fmt.Fprint(mt.messages, b.String())
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) line(m chat.Message, peer string, now time.Time) string {
	sender, color := displayText(peer), mt.theme.PeerMessageColor
	if m.SenderID == mt.selfID {
		sender, color = "You", mt.theme.OwnMessageColor
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[::-]%s\n%s\n\n",
		ui.Color(color), sender, formatTimestamp(m.CreatedAt, now),
		receipt(mt.theme, m, mt.selfID), messageBody(m))
}

// Messages returns the history view.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the input field.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
