package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel is the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// Flash durations per level.
const (
	flashInfoTTL = 4 * time.Second
	flashWarnTTL = 8 * time.Second
	flashErrTTL  = 10 * time.Second
)

// FlashMessage is one transient notice.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel holds the current notice. It is safe for concurrent use.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{now: time.Now}
}

// Info shows msg for a few seconds and returns how long it stays.
func (f *FlashModel) Info(msg string) time.Duration {
	return f.set(msg, FlashInfo, flashInfoTTL)
}

// Warn shows msg as a warning.
func (f *FlashModel) Warn(msg string) time.Duration {
	return f.set(msg, FlashWarn, flashWarnTTL)
}

// Err shows err as an error.
func (f *FlashModel) Err(err error) time.Duration {
	return f.set(err.Error(), FlashErr, flashErrTTL)
}

func (f *FlashModel) set(msg string, level FlashLevel, ttl time.Duration) time.Duration {
	f.mu.Lock()
	f.current = FlashMessage{Text: msg, Level: level, Expires: f.now().Add(ttl)}
	f.mu.Unlock()
	return ttl
}

// Current returns the live message, or nil once it expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || !f.now().Before(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// FlashBar displays the current flash message.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates an empty flash bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg, or clears the bar for nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", Color(color), tview.Escape(msg.Text))
}
