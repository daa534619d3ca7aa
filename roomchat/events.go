package roomchat

// EventType identifies one kind of event on the Bus. The set is closed:
// frames with an unknown event_type never reach the bus.
type EventType string

const (
	// Lifecycle events emitted by the Client itself.
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventError        EventType = "error"

	// Typed events decoded from stream frames.
	EventMessageCreated EventType = "message_created"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventUserTyping     EventType = "user_typing"
	EventUserJoined     EventType = "user_joined"
	EventUserLeft       EventType = "user_left"
	EventUserOnline     EventType = "room_user_online"
	EventUserOffline    EventType = "room_user_offline"
)

// Event is the unit of delivery on the Bus. Payload holds the typed
// payload struct matching Type.
type Event struct {
	Type    EventType
	RoomID  string
	Payload any
}

// MessageCreatedPayload carries a newly created message.
type MessageCreatedPayload struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

// MessageEditedPayload carries the replacement content for a message.
type MessageEditedPayload struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

// MessageDeletedPayload identifies a removed message.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
}

// TypingPayload signals a participant starting or stopping typing.
type TypingPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// PresencePayload is shared by join/leave and online/offline events.
type PresencePayload struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id"`
}

// ConnectedPayload accompanies EventConnected.
type ConnectedPayload struct {
	RoomID string
}

// DisconnectedPayload accompanies EventDisconnected.
type DisconnectedPayload struct {
	RoomID string
	Code   int
	Reason string
}

// ErrorPayload accompanies EventError.
type ErrorPayload struct {
	RoomID string
	Err    error
}
