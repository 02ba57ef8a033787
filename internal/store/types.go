package store

import "strings"

// User is an account of the message service. Users are seeded from the service
// configuration; there is no signup.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	LastSeen  int64 // unix millis
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Chat is a two-party conversation. SenderID is the user who created it.
type Chat struct {
	ID          string
	SenderID    string
	RecipientID string
	CreatedAt   int64
}

// Other returns the participant that is not userID.
func (c Chat) Other(userID string) string {
	if c.SenderID == userID {
		return c.RecipientID
	}
	return c.SenderID
}

// Has reports whether userID takes part in the chat.
func (c Chat) Has(userID string) bool {
	return c.SenderID == userID || c.RecipientID == userID
}

// ChatSummary is a chat as listed for one user.
type ChatSummary struct {
	Chat
	Name          string // full name of the other participant
	UnreadCount   int
	LastMessage   string // "Attachment" for non-text messages
	LastMessageAt int64
	OtherLastSeen int64
}

// Message is a stored chat message.
type Message struct {
	ID         int64
	ChatID     string
	SenderID   string
	ReceiverID string
	Content    string
	Type       string
	State      string
	Media      []byte
	CreatedAt  int64
}
