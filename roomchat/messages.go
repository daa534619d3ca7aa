package roomchat

import "time"

// Message is one chat message as the client sees it.
type Message struct {
	ID        string
	AuthorID  string
	Author    string
	Content   string
	CreatedAt time.Time
	Edited    bool
}

// MessageLog keeps messages unique by id, ordered by CreatedAt ascending.
// Not safe for concurrent use; RoomSync guards it with its own lock.
type MessageLog struct {
	msgs []Message
	ids  map[string]struct{}
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{ids: make(map[string]struct{})}
}

// Append inserts m in creation order unless its id is already present.
// Reports whether the log changed. Duplicate ids cover both a re-delivered
// event and an event echoing a locally inserted message.
func (l *MessageLog) Append(m Message) bool {
	if m.ID == "" {
		return false
	}
	if _, ok := l.ids[m.ID]; ok {
		return false
	}
	i := len(l.msgs)
	for i > 0 && l.msgs[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	l.msgs = append(l.msgs, Message{})
	copy(l.msgs[i+1:], l.msgs[i:])
	l.msgs[i] = m
	l.ids[m.ID] = struct{}{}
	return true
}

// Edit replaces the content of id and marks it edited. An unknown id is
// ignored (the message sits outside the loaded window).
func (l *MessageLog) Edit(id, content string) bool {
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			l.msgs[i].Content = content
			l.msgs[i].Edited = true
			return true
		}
	}
	return false
}

// Remove deletes id; removing an absent id is a no-op.
func (l *MessageLog) Remove(id string) bool {
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			delete(l.ids, id)
			return true
		}
	}
	return false
}

// All returns a copy of the log in order.
func (l *MessageLog) All() []Message {
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the message count.
func (l *MessageLog) Len() int {
	return len(l.msgs)
}

// Clear empties the log.
func (l *MessageLog) Clear() {
	l.msgs = nil
	l.ids = make(map[string]struct{})
}
