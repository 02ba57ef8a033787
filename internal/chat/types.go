package chat

import (
	"strings"
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	TypeText  MessageType = "TEXT"
	TypeImage MessageType = "IMAGE"
	TypeAudio MessageType = "AUDIO"
	TypeVideo MessageType = "VIDEO"
)

// ParseMessageType validates s against the known message types.
func ParseMessageType(s string) (MessageType, bool) {
	switch t := MessageType(strings.ToUpper(s)); t {
	case TypeText, TypeImage, TypeAudio, TypeVideo:
		return t, true
	default:
		return "", false
	}
}

// IsMedia reports whether the type carries an attachment instead of text.
func (t MessageType) IsMedia() bool {
	return t != TypeText
}

// MessageState tracks delivery of a message. It only moves SENT -> SEEN.
type MessageState string

const (
	StateSent MessageState = "SENT"
	StateSeen MessageState = "SEEN"
)

// Conversation is a two-party thread as shown in the conversation list.
type Conversation struct {
	ID                 string
	SenderID           string
	ReceiverID         string
	DisplayName        string
	LastMessagePreview string
	LastMessageAt      time.Time
	UnreadCount        int
	OtherPartyOnline   bool
	LastSeenAt         time.Time
}

// OtherParticipant returns the participant id that is not userID.
// SenderID and ReceiverID are treated as an unordered pair.
func (c Conversation) OtherParticipant(userID string) string {
	if c.SenderID == userID {
		return c.ReceiverID
	}
	return c.SenderID
}

// Route returns the sender and receiver for a message written by userID.
func (c Conversation) Route(userID string) (senderID, receiverID string) {
	return userID, c.OtherParticipant(userID)
}

// Message is one entry of the open conversation's history.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	Type           MessageType
	State          MessageState
	MediaRef       string
	Media          []byte
	CreatedAt      time.Time
}

// Contact is a user of the directory that a conversation can be started with.
type Contact struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	LastSeen  time.Time
	Online    bool
}

// DisplayName joins first and last name the way conversation names are built.
func (c Contact) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// SendRequest is the payload persisted by the message store for an outgoing message.
type SendRequest struct {
	ChatID     string
	SenderID   string
	ReceiverID string
	Content    string
	Type       MessageType
}
