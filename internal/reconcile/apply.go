package reconcile

import (
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
)

// Apply merges one pushed notification into the view model. It returns once the
// notification has been applied, or chat.ErrClosed after Close.
func (e *Engine) Apply(n chat.Notification) error {
	return e.do(func() {
		if e.open != nil && e.open.ID == n.ChatID {
			e.applyOpen(n)
			return
		}
		e.applyClosed(n)
	})
}

// applyOpen handles a notification for the open conversation.
func (e *Engine) applyOpen(n chat.Notification) {
	switch n.Type {
	case chat.NotifyMessage, chat.NotifyImage:
		msg := chat.Message{
			ConversationID: n.ChatID,
			SenderID:       n.SenderID,
			ReceiverID:     n.ReceiverID,
			Type:           n.MessageType,
			State:          chat.StateSent,
			CreatedAt:      e.now(),
		}
		if n.Type == chat.NotifyImage {
			msg.Media = n.Media
		} else {
			msg.Content = n.Content
		}
		e.messages = append(e.messages, msg)
		e.open.LastMessagePreview = n.Preview()
		e.publish(bus.MessageAppended)

	case chat.NotifySeen:
		// Every visible message, whoever sent it.
		for i := range e.messages {
			e.messages[i].State = chat.StateSeen
		}
		e.publish(bus.MessageSeen)

	default:
		e.logger.Debug("ignoring notification", zap.String("type", string(n.Type)), zap.String("chat_id", n.ChatID))
	}
}

// applyClosed handles a notification for any conversation that is not open.
func (e *Engine) applyClosed(n chat.Notification) {
	c := e.lookup(n.ChatID)

	switch {
	case c != nil && (n.Type == chat.NotifyMessage || n.Type == chat.NotifyImage):
		c.LastMessagePreview = n.Preview()
		c.LastMessageAt = e.now()
		c.UnreadCount++
		e.publish(bus.ConversationUpdated)

	case c == nil && n.Type == chat.NotifyMessage:
		c = &chat.Conversation{
			ID:                 n.ChatID,
			SenderID:           n.SenderID,
			ReceiverID:         n.ReceiverID,
			DisplayName:        n.ChatName,
			LastMessagePreview: n.Preview(),
			LastMessageAt:      e.now(),
			UnreadCount:        1,
		}
		if c.DisplayName == "" && e.ident != nil {
			c.DisplayName = c.OtherParticipant(e.ident.UserID())
		}
		e.convs = append([]*chat.Conversation{c}, e.convs...)
		e.publish(bus.ConversationCreated)

	case c == nil:
		// Only a text message materializes an unknown conversation.
		e.logger.Debug("dropping notification for unknown conversation",
			zap.String("type", string(n.Type)),
			zap.String("chat_id", n.ChatID),
		)

	default:
		// Closed conversations keep no per-message seen state.
	}
}
