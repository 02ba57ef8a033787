package reconcile

import (
	"slices"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/status"
)

// State is a copy of the view model. Event payloads are shared by every subscriber
// and must be treated as read-only; Snapshot returns a private copy. Media bytes
// are never copied and must not be modified.
type State struct {
	Conversations     []chat.Conversation
	Open              *chat.Conversation
	Messages          []chat.Message
	Compose           string
	SearchingContacts bool
	Channel           status.State
}

// Conversation returns the listed conversation with the given id.
func (s State) Conversation(id string) (chat.Conversation, bool) {
	for _, c := range s.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return chat.Conversation{}, false
}

// IsOpen reports whether id is the open conversation.
func (s State) IsOpen(id string) bool {
	return s.Open != nil && s.Open.ID == id
}

// TotalUnread sums the unread counters of the list.
func (s State) TotalUnread() int {
	n := 0
	for _, c := range s.Conversations {
		n += c.UnreadCount
	}
	return n
}

// Snapshot returns a private copy of the latest state. It never blocks on the loop.
func (e *Engine) Snapshot() State {
	s := *e.last.Load()
	s.Conversations = slices.Clone(s.Conversations)
	s.Messages = slices.Clone(s.Messages)
	if s.Open != nil {
		o := *s.Open
		s.Open = &o
	}
	s.Channel = e.status.Current()
	return s
}

// snapshot copies the loop-owned state. Loop goroutine only.
func (e *Engine) snapshot() State {
	s := State{
		Conversations:     make([]chat.Conversation, len(e.convs)),
		Messages:          slices.Clone(e.messages),
		Compose:           e.compose,
		SearchingContacts: e.searching,
		Channel:           e.status.Current(),
	}
	for i, c := range e.convs {
		s.Conversations[i] = *c
	}
	if e.open != nil {
		o := *e.open
		s.Open = &o
	}
	return s
}

// publish records the post-mutation state and announces it. Loop goroutine only.
func (e *Engine) publish(kind string) {
	s := e.snapshot()
	e.last.Store(&s)
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: s})
}

// lookup returns the tracked record of id: the list entry, or the open conversation
// when it is not listed. Loop goroutine only.
func (e *Engine) lookup(id string) *chat.Conversation {
	if i := e.index(id); i >= 0 {
		return e.convs[i]
	}
	if e.open != nil && e.open.ID == id {
		return e.open
	}
	return nil
}

func (e *Engine) index(id string) int {
	return slices.IndexFunc(e.convs, func(c *chat.Conversation) bool { return c.ID == id })
}

// setOpen makes c the open conversation with an empty message list and bumps the
// open sequence so in-flight history fetches for an older selection are dropped.
func (e *Engine) setOpen(c *chat.Conversation) uint64 {
	c.UnreadCount = 0
	e.open = c
	e.messages = nil
	e.openSeq++
	return e.openSeq
}
