package chat

import "errors"

var (
	ErrNoIdentity               = errors.New("identity not available")
	ErrNoOpenConversation       = errors.New("no open conversation")
	ErrClosed                   = errors.New("engine closed")
	ErrMalformedNotification    = errors.New("malformed notification")
	ErrUnknownNotificationType  = errors.New("unknown notification type")
	ErrConversationNotFound     = errors.New("conversation not found")
	ErrInvalidConversationParty = errors.New("invalid conversation participants")
)
