package chat

import (
	"encoding/json"
	"fmt"
)

// NotificationType is the closed set of push events the engine understands.
type NotificationType string

const (
	NotifyMessage NotificationType = "MESSAGE"
	NotifyImage   NotificationType = "IMAGE"
	NotifySeen    NotificationType = "SEEN"
)

// Notification is one decoded push event addressed to the current user.
// It is consumed once and never stored.
type Notification struct {
	Type        NotificationType
	ChatID      string
	SenderID    string
	ReceiverID  string
	Content     string
	Media       []byte
	MessageType MessageType
	ChatName    string
}

// wireNotification mirrors the JSON pushed by the message service.
type wireNotification struct {
	Type        string `json:"type"`
	ChatID      string `json:"chatId"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content,omitempty"`
	Media       []byte `json:"media,omitempty"`
	MessageType string `json:"messageType,omitempty"`
	ChatName    string `json:"chatName,omitempty"`
}

// DecodeNotification decodes a pushed payload and validates it against the
// known notification shapes. Anything unrecognized is rejected.
func DecodeNotification(data []byte) (Notification, error) {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	n := Notification{
		Type:       NotificationType(w.Type),
		ChatID:     w.ChatID,
		SenderID:   w.SenderID,
		ReceiverID: w.ReceiverID,
		Content:    w.Content,
		Media:      w.Media,
		ChatName:   w.ChatName,
	}
	if n.ChatID == "" {
		return Notification{}, fmt.Errorf("%w: missing chatId", ErrMalformedNotification)
	}

	switch n.Type {
	case NotifyMessage:
		// A MESSAGE without text carries nothing to show.
		if n.Content == "" {
			return Notification{}, fmt.Errorf("%w: MESSAGE without content", ErrMalformedNotification)
		}
		n.MessageType = TypeText
	case NotifyImage:
		n.MessageType = TypeImage
	case NotifySeen:
		return n, nil
	default:
		return Notification{}, fmt.Errorf("%w: %q", ErrUnknownNotificationType, w.Type)
	}

	if w.MessageType != "" {
		mt, ok := ParseMessageType(w.MessageType)
		if !ok {
			return Notification{}, fmt.Errorf("%w: messageType %q", ErrMalformedNotification, w.MessageType)
		}
		n.MessageType = mt
	}
	return n, nil
}

// EncodeNotification renders n in the wire format. Used by the message service.
func EncodeNotification(n Notification) ([]byte, error) {
	return json.Marshal(wireNotification{
		Type:        string(n.Type),
		ChatID:      n.ChatID,
		SenderID:    n.SenderID,
		ReceiverID:  n.ReceiverID,
		Content:     n.Content,
		Media:       n.Media,
		MessageType: string(n.MessageType),
		ChatName:    n.ChatName,
	})
}

// Preview returns the conversation preview this notification produces.
func (n Notification) Preview() string {
	if n.Type == NotifyImage {
		return AttachmentPreview
	}
	return n.Content
}
