package roomchat

import "encoding/json"

const (
	frameTypePing   = "PING"
	frameTypePong   = "PONG"
	frameTypeTyping = "USER_TYPING"
)

// serverFrame is the envelope for everything the stream delivers: either a
// control frame (type) or a typed event frame (event_type + payload).
type serverFrame struct {
	Type      string          `json:"type,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type typingFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
	Username string `json:"username"`
}

// decodeEvent turns a typed event frame into a bus Event. Unknown event
// types return ok=false and are skipped without error; a payload that does
// not match its declared type is a decode error and the frame is dropped.
// room is the session's room, used when the payload carries no room of its
// own (message and typing events).
func decodeEvent(eventType string, raw json.RawMessage, room string) (Event, bool, error) {
	ev := Event{Type: EventType(eventType), RoomID: room}

	switch EventType(eventType) {
	case EventMessageCreated:
		var p MessageCreatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, false, err
		}
		ev.Payload = p
	case EventMessageEdited:
		var p MessageEditedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, false, err
		}
		ev.Payload = p
	case EventMessageDeleted:
		var p MessageDeletedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, false, err
		}
		ev.Payload = p
	case EventUserTyping:
		var p TypingPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, false, err
		}
		ev.Payload = p
	case EventUserJoined, EventUserLeft, EventUserOnline, EventUserOffline:
		var p PresencePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, false, err
		}
		if p.RoomID != "" {
			ev.RoomID = p.RoomID
		}
		ev.Payload = p
	default:
		return Event{}, false, nil
	}
	return ev, true, nil
}
