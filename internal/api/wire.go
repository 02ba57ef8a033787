package api

import (
	"time"

	"github.com/matheus3301/chatline/internal/chat"
)

// ChatResponse is one entry of GET /api/v1/chats.
type ChatResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	UnreadCount     int        `json:"unreadCount"`
	LastMessage     string     `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
	RecipientOnline bool       `json:"recipientOnline"`
	SenderID        string     `json:"senderId"`
	ReceiverID      string     `json:"receiverId"`
}

// MessageResponse is one entry of GET /api/v1/messages/chat/{chat-id}.
type MessageResponse struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	State      string    `json:"state"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	CreatedAt  time.Time `json:"createdAt"`
	Media      []byte    `json:"media,omitempty"`
}

// UserResponse is one entry of GET /api/v1/users.
type UserResponse struct {
	ID        string     `json:"id"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email"`
	LastSeen  *time.Time `json:"lastSeen"`
	Online    bool       `json:"online"`
}

// MessageRequest is the body of POST /api/v1/messages.
type MessageRequest struct {
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Type       string `json:"type"`
}

// StringResponse wraps a single string result such as a created id.
type StringResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is the body the service sends with a non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (r ChatResponse) Conversation() chat.Conversation {
	c := chat.Conversation{
		ID:                 r.ID,
		SenderID:           r.SenderID,
		ReceiverID:         r.ReceiverID,
		DisplayName:        r.Name,
		LastMessagePreview: r.LastMessage,
		UnreadCount:        r.UnreadCount,
		OtherPartyOnline:   r.RecipientOnline,
	}
	if r.LastMessageTime != nil {
		c.LastMessageAt = *r.LastMessageTime
	}
	return c
}

func (r MessageResponse) Message(chatID string) chat.Message {
	mt, ok := chat.ParseMessageType(r.Type)
	if !ok {
		mt = chat.TypeText
	}
	st := chat.StateSent
	if chat.MessageState(r.State) == chat.StateSeen {
		st = chat.StateSeen
	}
	return chat.Message{
		ID:             r.ID,
		ConversationID: chatID,
		SenderID:       r.SenderID,
		ReceiverID:     r.ReceiverID,
		Content:        r.Content,
		Type:           mt,
		State:          st,
		Media:          r.Media,
		CreatedAt:      r.CreatedAt,
	}
}

func (r UserResponse) Contact() chat.Contact {
	c := chat.Contact{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Online:    r.Online,
	}
	if r.LastSeen != nil {
		c.LastSeen = *r.LastSeen
	}
	return c
}
