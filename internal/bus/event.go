package bus

import "time"

// Event represents a state change published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. The prefix before the dot is the namespace subscribers filter on.
const (
	ConversationListReplaced = "conversation.list_replaced"
	ConversationUpdated      = "conversation.updated"
	ConversationCreated      = "conversation.created"
	ConversationOpened       = "conversation.opened"

	MessageListReplaced = "message.list_replaced"
	MessageAppended     = "message.appended"
	MessageSeen         = "message.seen"
	MessageSent         = "message.sent"
	MessageSendFailed   = "message.send_failed"

	ComposeChanged      = "compose.changed"
	ContactsModeChanged = "contacts.mode_changed"

	ChannelStatusChanged = "channel.status_changed"
)
