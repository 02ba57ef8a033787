package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/reconcile"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/tui/keys"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/matheus3301/chatline/internal/tui/views"
)

// Page ids.
const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageContacts      = "contacts"
	pageInfo          = "info"
	pageHelp          = "help"
)

const eventBuffer = 128

// Engine is the part of the reconciliation engine the terminal client drives.
type Engine interface {
	Snapshot() reconcile.State
	Subscribe(namespace string, bufSize int) (<-chan bus.Event, func())
	LoadConversations(ctx context.Context) error
	SelectConversation(ctx context.Context, conv chat.Conversation) error
	SendMessage(ctx context.Context, text string) error
	CreateConversation(ctx context.Context, contact chat.Contact) error
	SetCompose(text string) error
	SetContactSearch(on bool) error
	Reconnect(ctx context.Context) error
}

// ContactLister provides the contact picker's entries.
type ContactLister interface {
	ListContacts(ctx context.Context) ([]chat.Contact, error)
}

// Options configures the terminal client.
type Options struct {
	Engine   Engine
	Contacts ContactLister
	Profile  string
	UserID   string
	Server   string
	Logger   *zap.Logger
}

// App is the terminal client. It renders engine snapshots and turns key presses
// into engine operations; it never changes conversation state itself.
type App struct {
	app      *tview.Application
	root     *tview.Flex
	pages    *ui.Pages
	theme    *ui.Theme
	registry *keys.Registry
	eng      Engine
	contacts ContactLister
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	profile  ui.ProfileData
	info     *ui.ProfileInfo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	flash    *ui.FlashModel
	flashBar *ui.FlashBar
	prompt   *ui.Prompt

	convList *views.ConversationList
	thread   *views.MessageThread
	picker   *views.ContactPicker
	details  *views.ConversationInfo
	help     *views.HelpView

	// degraded is set while the push channel is down, so a recovery can be announced.
	degraded bool
}

// NewApp builds the interface. Nothing is drawn before Run.
func NewApp(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:      tview.NewApplication(),
		pages:    ui.NewPages(),
		theme:    theme,
		registry: keys.NewRegistry(),
		eng:      opts.Engine,
		contacts: opts.Contacts,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		profile: ui.ProfileData{
			Profile: opts.Profile,
			UserID:  opts.UserID,
			Server:  opts.Server,
		},
		info:     ui.NewProfileInfo(theme),
		menu:     ui.NewMenu(theme),
		crumbs:   ui.NewCrumbs(theme),
		flash:    ui.NewFlashModel(),
		flashBar: ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme, Commands()),
		convList: views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme, opts.UserID),
		picker:   views.NewContactPicker(theme),
		details:  views.NewConversationInfo(theme, opts.UserID),
	}
	a.setupBindings()
	a.help = views.NewHelpView(theme, a.helpSections())
	a.setupCallbacks()
	a.setupLayout()
	a.render("")
	return a
}

func (a *App) setupBindings() {
	r := a.registry
	r.Add(keys.Global, &keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "Quit/Back", Visible: true,
		Handler: func() {
			if a.pages.Depth() > 1 {
				a.back()
				return
			}
			a.Stop()
		},
	})
	r.Add(keys.Global, &keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true,
		Handler: func() { a.show(pageHelp) },
	})
	r.Add(keys.Global, &keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true,
		Handler: func() { a.activatePrompt(ui.PromptCommand) },
	})
	r.Add(keys.Global, &keys.Action{
		Key: tcell.KeyCtrlR, Label: "Ctrl-R", Description: "Reload", Visible: true,
		Handler: a.reload,
	})

	r.Add(pageConversations, &keys.Action{
		Key: tcell.KeyEnter, Description: "Open", Visible: true,
		Handler: func() {
			if c, ok := a.convList.Selected(); ok {
				a.selectConversation(c)
			}
		},
	})
	r.Add(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Description: "New", Visible: true,
		Handler: func() { a.openContacts("") },
	})
	r.Add(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Filter", Visible: true,
		Handler: func() { a.activatePrompt(ui.PromptFilter) },
	})
	r.Add(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "Reconnect", Visible: true,
		Handler: a.reconnect,
	})
	r.Add(pageConversations, &keys.Action{
		Key: tcell.KeyEscape, Description: "Clear filter",
		Handler: a.back,
	})
	for i := 1; i <= 9; i++ {
		n := i
		r.Add(pageConversations, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n), Label: "1-9", Description: "Jump",
			Visible: n == 1, Numeric: true,
			Handler: func() {
				if c, ok := a.convList.ByIndex(n); ok {
					a.selectConversation(c)
				}
			},
		})
	}

	r.Add(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	r.Add(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd', Description: "Details", Visible: true,
		Handler: func() { a.show(pageInfo) },
	})
	r.Add(pageThread, &keys.Action{
		Key: tcell.KeyEscape, Description: "Back", Visible: true,
		Handler: a.back,
	})

	for _, page := range []string{pageContacts, pageInfo, pageHelp} {
		r.Add(page, &keys.Action{
			Key: tcell.KeyEscape, Description: "Back", Visible: true,
			Handler: a.back,
		})
	}
	r.Add(pageContacts, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Search", Visible: true,
		Handler: func() { a.app.SetFocus(a.picker.FocusTarget()) },
	})
}

func (a *App) helpSections() []views.HelpSection {
	scopes := []struct {
		title string
		scope string
	}{
		{"Global", keys.Global},
		{"Conversations", pageConversations},
		{"Conversation", pageThread},
		{"New conversation", pageContacts},
	}
	var sections []views.HelpSection
	for _, s := range scopes {
		var entries []views.HelpEntry
		for _, h := range a.registry.Hints(s.scope) {
			if s.scope != keys.Global && slicesContainsHint(a.registry.Hints(keys.Global), h) {
				continue
			}
			entries = append(entries, views.HelpEntry{Key: h.Key, Description: h.Description})
		}
		sections = append(sections, views.HelpSection{Title: s.title, Entries: entries})
	}
	sections[2].Entries = append(sections[2].Entries,
		views.HelpEntry{Key: "Enter", Description: "Send (in composer)"},
		views.HelpEntry{Key: "Esc", Description: "Leave composer"},
	)
	sections[3].Entries = append(sections[3].Entries,
		views.HelpEntry{Key: "Enter", Description: "Start conversation"},
		views.HelpEntry{Key: "Tab", Description: "Move to the list"},
	)
	sections = append(sections, views.HelpSection{Title: "Commands", Entries: []views.HelpEntry{
		{Key: ":chat <name>", Description: "Open a conversation by name"},
		{Key: ":new [name]", Description: "Start a conversation"},
		{Key: ":filter [text]", Description: "Filter conversations (empty clears)"},
		{Key: ":reload", Description: "Reload the conversation list"},
		{Key: ":reconnect", Description: "Reopen the push channel"},
		{Key: ":help", Description: "Show this help"},
		{Key: ":quit", Description: "Quit"},
	}})
	return sections
}

func slicesContainsHint(hints []ui.MenuHint, h ui.MenuHint) bool {
	for _, x := range hints {
		if x == h {
			return true
		}
	}
	return false
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, _ int) {
		if c, ok := a.convList.ByIndex(row); ok {
			a.selectConversation(c)
		}
	})

	a.thread.SetOnCompose(func(text string) {
		if err := a.eng.SetCompose(text); err != nil && !errors.Is(err, chat.ErrClosed) {
			a.logger.Debug("mirror compose failed", zap.Error(err))
		}
	})
	a.thread.SetOnSend(func(text string) {
		a.async("send", func(ctx context.Context) error {
			return a.eng.SendMessage(ctx, text)
		})
	})
	a.picker.SetOnChoose(a.createConversation)
	a.picker.SetOnInputDone(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			if c, ok := a.picker.Single(); ok {
				a.createConversation(c)
				return
			}
			a.app.SetFocus(a.picker.Results())
		case tcell.KeyTab, tcell.KeyDown:
			a.app.SetFocus(a.picker.Results())
		case tcell.KeyEscape:
			a.back()
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		if mode == ui.PromptFilter {
			a.convList.SetFilter(text)
			return
		}
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.closePrompt)

	a.pages.SetOnChange(func([]string) {
		a.crumbs.Update(a.pages.Names())
		a.menu.Update(a.registry.Hints(a.pages.Current()))
	})
}

func (a *App) setupLayout() {
	a.pages.Register(pageConversations, a.convList)
	a.pages.Register(pageThread, a.thread)
	a.pages.Register(pageContacts, a.picker)
	a.pages.Register(pageInfo, a.details)
	a.pages.Register(pageHelp, a.help)
	a.pages.Reset(pageConversations)

	header := tview.NewFlex().
		AddItem(a.info, 34, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 16, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	a.app.SetRoot(a.root, true)
	a.app.SetFocus(a.convList.FocusTarget())

	a.app.SetInputCapture(a.capture)
}

func (a *App) capture(event *tcell.EventKey) *tcell.EventKey {
	if a.app.GetFocus() == a.thread.Composer() && event.Key() == tcell.KeyEscape {
		a.app.SetFocus(a.thread.FocusTarget())
		return nil
	}
	// Text inputs get every other key. The prompt handles Escape itself.
	if a.typing() {
		return event
	}
	if a.registry.HandleEvent(a.pages.Current(), event) {
		return nil
	}
	return event
}

func (a *App) typing() bool {
	switch a.app.GetFocus().(type) {
	case *tview.InputField, *ui.Prompt:
		return true
	}
	return false
}

// Run draws the interface and blocks until the user quits.
func (a *App) Run() error {
	events, unsubscribe := a.eng.Subscribe("", eventBuffer)
	go func() {
		defer unsubscribe()
		for evt := range events {
			if a.ctx.Err() != nil {
				return
			}
			kind := evt.Kind
			a.app.QueueUpdateDraw(func() { a.render(kind) })
		}
	}()
	return a.app.Run()
}

// Stop leaves Run and cancels every operation still in flight.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// render brings every view in line with the latest snapshot. kind is the bus
// event that caused it, or "" for a full refresh.
func (a *App) render(kind string) {
	snap := a.eng.Snapshot()

	openID := ""
	if snap.Open != nil {
		openID = snap.Open.ID
	}
	a.convList.Update(snap.Conversations, openID)
	a.thread.Update(snap.Open, snap.Messages)
	a.thread.SetCompose(snap.Compose)
	a.details.Update(snap.Open, len(snap.Messages))
	if snap.Open != nil {
		a.pages.Rename(pageThread, snap.Open.DisplayName)
	}

	a.profile.Channel = snap.Channel
	a.profile.Conversations = len(snap.Conversations)
	a.profile.Unread = snap.TotalUnread()
	a.info.Update(a.profile)

	switch kind {
	case bus.ConversationOpened:
		if a.pages.Current() == pageContacts {
			a.pages.Replace(pageThread)
		} else {
			a.pages.Push(pageThread)
		}
		a.app.SetFocus(a.thread.FocusTarget())
	case bus.ContactsModeChanged:
		if !snap.SearchingContacts && a.pages.Current() == pageContacts {
			a.back()
		}
	case bus.MessageSendFailed:
		a.showFlash(a.flash.Warn("message not sent, press Enter to retry"))
	case bus.ChannelStatusChanged:
		a.channelChanged(snap.Channel)
	}
	a.flashBar.Update(a.flash.Current())
}

func (a *App) channelChanged(s status.State) {
	switch s {
	case status.Degraded:
		if !a.degraded {
			a.degraded = true
			a.showFlash(a.flash.Warn("push channel unavailable, updates need a reload (r to reconnect)"))
		}
	case status.Subscribed:
		if a.degraded {
			a.degraded = false
			a.showFlash(a.flash.Info("push channel reconnected"))
		}
	}
}

func (a *App) show(page string) {
	a.pages.Push(page)
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageContacts:
		a.app.SetFocus(a.picker.FocusTarget())
	case pageThread:
		a.app.SetFocus(a.thread.FocusTarget())
	case pageInfo:
		a.app.SetFocus(a.details.FocusTarget())
	case pageHelp:
		a.app.SetFocus(a.help.FocusTarget())
	default:
		a.app.SetFocus(a.convList.FocusTarget())
	}
}

func (a *App) back() {
	top := a.pages.Pop()
	if top == "" {
		if a.convList.Filter() != "" {
			a.convList.SetFilter("")
		}
		return
	}
	if top == pageContacts {
		if err := a.eng.SetContactSearch(false); err != nil && !errors.Is(err, chat.ErrClosed) {
			a.logger.Debug("leave contact search failed", zap.Error(err))
		}
	}
	a.focusCurrent()
}

func (a *App) activatePrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	if mode == ui.PromptFilter {
		a.prompt.SetText(a.convList.Filter())
	}
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "":
	case CmdQuit:
		a.Stop()
	case CmdHelp:
		a.show(pageHelp)
	case CmdNew:
		a.openContacts(cmd.Args)
	case CmdReload:
		a.reload()
	case CmdReconnect:
		a.reconnect()
	case CmdFilter:
		a.convList.SetFilter(cmd.Args)
	case CmdChat:
		c, ok := findConversation(a.eng.Snapshot().Conversations, cmd.Args)
		if !ok {
			a.showFlash(a.flash.Warn(fmt.Sprintf("no conversation matches %q", cmd.Args)))
			return
		}
		a.selectConversation(c)
	default:
		a.showFlash(a.flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name)))
	}
}

// findConversation prefers an exact name match over the first partial one.
func findConversation(convs []chat.Conversation, name string) (chat.Conversation, bool) {
	if strings.TrimSpace(name) == "" {
		return chat.Conversation{}, false
	}
	for _, c := range convs {
		if strings.EqualFold(c.DisplayName, name) {
			return c, true
		}
	}
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.DisplayName), strings.ToLower(name)) {
			return c, true
		}
	}
	return chat.Conversation{}, false
}

func (a *App) selectConversation(c chat.Conversation) {
	a.async("open conversation", func(ctx context.Context) error {
		return a.eng.SelectConversation(ctx, c)
	})
}

func (a *App) createConversation(c chat.Contact) {
	a.async("start conversation", func(ctx context.Context) error {
		return a.eng.CreateConversation(ctx, c)
	})
}

func (a *App) openContacts(query string) {
	if err := a.eng.SetContactSearch(true); err != nil {
		a.showFlash(a.flash.Err(err))
		return
	}
	a.picker.Reset(query)
	a.show(pageContacts)
	if a.contacts == nil {
		a.picker.Update(nil)
		return
	}
	go func() {
		contacts, err := a.contacts.ListContacts(a.ctx)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.logger.Warn("list contacts failed", zap.Error(err))
				a.showFlash(a.flash.Err(fmt.Errorf("list contacts: %w", err)))
				a.picker.Update(nil)
				return
			}
			a.picker.Update(contacts)
		})
	}()
}

func (a *App) reload() {
	a.async("reload", a.eng.LoadConversations)
}

func (a *App) reconnect() {
	if a.eng.Snapshot().Channel != status.Degraded {
		a.showFlash(a.flash.Info("push channel is " + strings.ToLower(string(a.eng.Snapshot().Channel))))
		return
	}
	a.async("reconnect", a.eng.Reconnect)
}

// async runs an engine operation off the UI goroutine and flashes its error.
func (a *App) async(op string, fn func(ctx context.Context) error) {
	go func() {
		err := fn(a.ctx)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, chat.ErrClosed) {
			return
		}
		a.logger.Warn(op+" failed", zap.Error(err))
		a.app.QueueUpdateDraw(func() {
			a.showFlash(a.flash.Err(fmt.Errorf("%s: %w", op, err)))
		})
	}()
}

// showFlash renders the current flash and clears it once it expired.
func (a *App) showFlash(ttl time.Duration) {
	a.flashBar.Update(a.flash.Current())
	time.AfterFunc(ttl, func() {
		if a.ctx.Err() != nil {
			return
		}
		a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
	})
}
