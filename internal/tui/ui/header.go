package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/chatline/internal/status"
)

// ProfileData is what the header shows about the running client.
type ProfileData struct {
	Profile       string
	UserID        string
	Server        string
	Channel       status.State
	Conversations int
	Unread        int
}

// ProfileInfo displays the client's identity and connection in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates an empty profile panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders data.
func (pi *ProfileInfo) Update(data ProfileData) {
	pi.Clear()
	_, _ = fmt.Fprint(pi, pi.render(data))
}

func (pi *ProfileInfo) render(data ProfileData) string {
	fg := Color(pi.theme.FgColor)
	val := Color(pi.theme.CounterColor)
	channel := Color(pi.theme.ChannelColor(data.Channel))

	unread := Color(pi.theme.CounterColor)
	if data.Unread > 0 {
		unread = Color(pi.theme.UnreadColor)
	}

	return fmt.Sprintf(
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Server:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Push:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]   [%s]%d[-]\n"+
			"[%s::b]Unread:[-:-:-]  [%s]%d[-]",
		fg, val, tview.Escape(data.Profile),
		fg, val, tview.Escape(data.UserID),
		fg, val, tview.Escape(data.Server),
		fg, channel, data.Channel,
		fg, val, data.Conversations,
		fg, unread, data.Unread,
	)
}

// Logo displays the application name.
type Logo struct {
	*tview.TextView
}

// NewLogo creates the logo panel.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	title := Color(theme.TitleColor)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]┌─┐┬ ┬┌─┐┌┬┐[-:-:-]\n"+
			"[%s::b]│  ├─┤├─┤ │ [-:-:-]\n"+
			"[%s::b]└─┘┴ ┴┴ ┴ ┴ [-:-:-]\n"+
			"[%s]line[-:-:-]",
		title, title, title, Color(theme.FgColor),
	)
	return &Logo{TextView: tv}
}
