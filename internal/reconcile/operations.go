package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
)

// LoadConversations replaces the conversation list with the directory's, keeping
// server order. On failure the current list is left untouched.
func (e *Engine) LoadConversations(ctx context.Context) error {
	if _, err := e.userID(); err != nil {
		return err
	}
	if e.closed() {
		return chat.ErrClosed
	}

	convs, err := e.dir.ListConversations(ctx)
	if err != nil {
		e.logger.Warn("load conversations failed", zap.Error(err))
		return fmt.Errorf("load conversations: %w", err)
	}

	return e.do(func() {
		list := make([]*chat.Conversation, 0, len(convs))
		for _, c := range convs {
			c := c
			list = append(list, &c)
		}
		e.convs = list
		// The open conversation follows its fresh record; it stays read.
		if e.open != nil {
			if i := e.index(e.open.ID); i >= 0 {
				e.convs[i].UnreadCount = 0
				e.open = e.convs[i]
			}
		}
		e.logger.Debug("conversation list replaced", zap.Int("count", len(list)))
		e.publish(bus.ConversationListReplaced)
	})
}

// SelectConversation opens conv, resets its unread counter and clears the message
// list right away, then fetches its history and marks it seen. A history result is
// applied only if conv is still the open conversation when it arrives. Mark-seen
// failures are logged and never returned.
func (e *Engine) SelectConversation(ctx context.Context, conv chat.Conversation) error {
	if _, err := e.userID(); err != nil {
		return err
	}

	var seq uint64
	err := e.do(func() {
		c := e.lookup(conv.ID)
		if c == nil {
			adopted := conv
			c = &adopted
		}
		seq = e.setOpen(c)
		e.publish(bus.ConversationOpened)
	})
	if err != nil {
		return err
	}

	e.markSeen(conv.ID)
	return e.loadHistory(ctx, conv.ID, seq)
}

func (e *Engine) loadHistory(ctx context.Context, chatID string, seq uint64) error {
	msgs, err := e.store.ListMessages(ctx, chatID)
	if err != nil {
		e.logger.Warn("load messages failed", zap.String("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("load messages: %w", err)
	}

	return e.do(func() {
		if e.open == nil || e.open.ID != chatID || e.openSeq != seq {
			e.logger.Debug("dropping stale message history", zap.String("chat_id", chatID))
			return
		}
		e.messages = slices.Clone(msgs)
		e.publish(bus.MessageListReplaced)
	})
}

// markSeen fires a mark-seen call that outlives the caller but not the engine.
func (e *Engine) markSeen(chatID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.store.MarkSeen(e.ctx, chatID); err != nil {
			e.logger.Warn("mark seen failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}()
}

// SendMessage persists text as a TEXT message from the current user to the other
// participant of the open conversation. Empty or blank text is ignored. Nothing is
// shown before the store acknowledges the message; on failure the compose buffer
// is kept so the user can retry.
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	uid, err := e.userID()
	if err != nil {
		return err
	}

	var (
		conv   chat.Conversation
		isOpen bool
	)
	if err := e.do(func() {
		if e.open != nil {
			conv, isOpen = *e.open, true
		}
	}); err != nil {
		return err
	}
	if !isOpen {
		return chat.ErrNoOpenConversation
	}

	sender, receiver := conv.Route(uid)
	req := chat.SendRequest{
		ChatID:     conv.ID,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    text,
		Type:       chat.TypeText,
	}
	if err := e.store.SendMessage(ctx, req); err != nil {
		e.logger.Warn("send message failed", zap.String("chat_id", conv.ID), zap.Error(err))
		_ = e.do(func() { e.publish(bus.MessageSendFailed) })
		return fmt.Errorf("send message: %w", err)
	}

	now := e.now()
	return e.do(func() {
		if e.open != nil && e.open.ID == conv.ID {
			e.messages = append(e.messages, chat.Message{
				ConversationID: conv.ID,
				SenderID:       sender,
				ReceiverID:     receiver,
				Content:        text,
				Type:           chat.TypeText,
				State:          chat.StateSent,
				CreatedAt:      now,
			})
			e.publish(bus.MessageAppended)
		}
		if c := e.lookup(conv.ID); c != nil {
			c.LastMessagePreview = text
			c.LastMessageAt = now
		}
		e.compose = ""
		e.publish(bus.MessageSent)
	})
}

// CreateConversation starts a conversation with contact, puts it first in the list,
// leaves contact search and opens it. A new conversation has no history to fetch.
// If the directory answers with a conversation that is already listed, that record
// moves to the front and is opened like a selection.
func (e *Engine) CreateConversation(ctx context.Context, contact chat.Contact) error {
	uid, err := e.userID()
	if err != nil {
		return err
	}
	if contact.ID == "" || contact.ID == uid {
		return chat.ErrInvalidConversationParty
	}
	if e.closed() {
		return chat.ErrClosed
	}

	id, err := e.dir.CreateConversation(ctx, uid, contact.ID)
	if err != nil {
		e.logger.Warn("create conversation failed", zap.String("contact_id", contact.ID), zap.Error(err))
		return fmt.Errorf("create conversation: %w", err)
	}

	var (
		existed bool
		seq     uint64
	)
	err = e.do(func() {
		var c *chat.Conversation
		if i := e.index(id); i >= 0 {
			c = e.convs[i]
			e.convs = slices.Delete(e.convs, i, i+1)
			existed = true
		} else {
			c = &chat.Conversation{
				ID:               id,
				SenderID:         uid,
				ReceiverID:       contact.ID,
				DisplayName:      contact.DisplayName(),
				OtherPartyOnline: contact.Online,
				LastSeenAt:       contact.LastSeen,
				LastMessageAt:    contact.LastSeen,
			}
		}
		e.convs = slices.Insert(e.convs, 0, c)
		seq = e.setOpen(c)
		e.publish(bus.ConversationCreated)
		if e.searching {
			e.searching = false
			e.publish(bus.ContactsModeChanged)
		}
		e.publish(bus.ConversationOpened)
	})
	if err != nil || !existed {
		return err
	}

	e.markSeen(id)
	return e.loadHistory(ctx, id, seq)
}

// SetCompose mirrors the compose input of the rendering layer.
func (e *Engine) SetCompose(text string) error {
	return e.do(func() {
		if e.compose == text {
			return
		}
		e.compose = text
		e.publish(bus.ComposeChanged)
	})
}

// SetContactSearch enters or leaves contact search mode.
func (e *Engine) SetContactSearch(on bool) error {
	return e.do(func() {
		if e.searching == on {
			return
		}
		e.searching = on
		e.publish(bus.ContactsModeChanged)
	})
}
