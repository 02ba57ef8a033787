package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

// ConversationList is the main table of conversations, in engine order.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []chat.Conversation
	visible []chat.Conversation
	openID  string
	filter  string
	now     func() time.Time
}

// NewConversationList creates an empty conversation table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{
		Table: table,
		theme: theme,
		now:   time.Now,
	}
	cl.render()
	return cl
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Focus implements ui.Component.
func (cl *ConversationList) FocusTarget() tview.Primitive { return cl.Table }

// Update replaces the rows. openID marks the open conversation.
func (cl *ConversationList) Update(convs []chat.Conversation, openID string) {
	cl.convs = convs
	cl.openID = openID
	cl.render()
}

// SetFilter shows only conversations whose name or preview contains filter.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// Filter returns the active filter.
func (cl *ConversationList) Filter() string {
	return cl.filter
}

// Selected returns the conversation under the cursor.
func (cl *ConversationList) Selected() (chat.Conversation, bool) {
	row, _ := cl.GetSelection()
	return cl.ByIndex(row)
}

// ByIndex returns the nth visible conversation, counting from 1.
func (cl *ConversationList) ByIndex(n int) (chat.Conversation, bool) {
	if n < 1 || n > len(cl.visible) {
		return chat.Conversation{}, false
	}
	return cl.visible[n-1], true
}

func (cl *ConversationList) matches(c chat.Conversation) bool {
	return cl.filter == "" || containsFold(c.DisplayName, cl.filter) || containsFold(c.LastMessagePreview, cl.filter)
}

func (cl *ConversationList) render() {
	// Pushes reorder the list; the cursor follows its conversation.
	prev, hadPrev := cl.Selected()

	cl.Clear()
	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	now := cl.now()
	cl.visible = cl.visible[:0]
	selectRow := 1
	for _, c := range cl.convs {
		if !cl.matches(c) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)
		if hadPrev && c.ID == prev.ID {
			selectRow = row
		}

		presence := " "
		if c.OtherPartyOnline {
			presence = "●"
		}
		fg := cl.theme.FgColor
		attrs := tcell.AttrNone
		if c.UnreadCount > 0 {
			fg = cl.theme.UnreadColor
			attrs = tcell.AttrBold
		}
		name := displayText(c.DisplayName)
		if c.ID == cl.openID {
			name += " *"
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf("%d", c.UnreadCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(presence).SetTextColor(cl.theme.OnlineColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+name).SetExpansion(1).SetTextColor(fg).SetAttributes(attrs))
		cl.SetCell(row, 2, tview.NewTableCell(" "+displayText(chat.WrapPreview(c.LastMessagePreview))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 3, tview.NewTableCell(formatTimestamp(c.LastMessageAt, now)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 4, tview.NewTableCell(unread).SetTextColor(cl.theme.UnreadColor).SetAlign(tview.AlignRight))
	}

	if len(cl.visible) > 0 {
		cl.Select(selectRow, 0)
	}
	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}
