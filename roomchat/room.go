package roomchat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat-go/roomchat/rest"
)

const (
	historyLimit    = 200
	snapshotTimeout = 10 * time.Second
)

// StreamClient is the slice of Client that RoomSync needs. Satisfied by
// *Client; tests substitute a fake.
type StreamClient interface {
	Bus() *Bus
	Connect(roomID string) error
	Disconnect()
	Room() string
	State() ConnectionState
	SendTyping(isTyping bool, username string)
}

// RoomAPI is the request/response surface RoomSync consumes: the presence
// snapshot, the privileged disconnect command, and message history.
// Satisfied by *rest.Client.
type RoomAPI interface {
	ActiveUsers(ctx context.Context, roomID string) ([]string, error)
	DisconnectUser(ctx context.Context, roomID, userID string) error
	RecentMessages(ctx context.Context, roomID string, limit int) ([]rest.MessageInfo, error)
}

// Callbacks receive room-scoped notifications. Every field is optional.
// Message and presence callbacks fire only when the event actually changed
// local state.
type Callbacks struct {
	OnMessageCreated func(MessageCreatedPayload)
	OnMessageEdited  func(MessageEditedPayload)
	OnMessageDeleted func(MessageDeletedPayload)
	OnTyping         func(TypingPayload)
	OnUserJoined     func(PresencePayload)
	OnUserLeft       func(PresencePayload)
	OnUserOnline     func(PresencePayload)
	OnUserOffline    func(PresencePayload)
	OnPresence       func([]string)
	OnConnected      func()
	OnDisconnected   func(code int, reason string)
	OnError          func(error)
}

// RoomState is the aggregate view RoomSync exposes to UI collaborators.
type RoomState struct {
	RoomID          string
	Presence        []string
	Messages        []Message
	ConnectionState ConnectionState
	SnapshotLoading bool
}

type presenceDelta struct {
	userID string
	online bool
}

// RoomSync reconciles one room's streamed deltas with REST snapshots. On
// session establishment it fetches the authoritative presence snapshot and
// merges it with any deltas that raced the fetch: the result is always
// snapshot plus replayed deltas, never a blind replace. The local user is
// pinned into presence for as long as the room is attached.
type RoomSync struct {
	client StreamClient
	api    RoomAPI
	log    zerolog.Logger
	roomID string
	selfID string
	cb     Callbacks

	mu       sync.Mutex
	attached bool
	fetchGen uint64 // bumped per fetch issue and on detach; stale responses fail the check
	loading  bool
	overlay  []presenceDelta // deltas applied while a fetch is outstanding
	presence *PresenceSet
	messages *MessageLog
	unsubs   []func()
}

// NewRoomSync builds the controller for one room. selfUserID is the local
// user, always treated as present while the room is attached.
func NewRoomSync(client StreamClient, api RoomAPI, log zerolog.Logger, roomID, selfUserID string, cb Callbacks) *RoomSync {
	return &RoomSync{
		client:   client,
		api:      api,
		log:      log.With().Str("room_id", roomID).Logger(),
		roomID:   roomID,
		selfID:   selfUserID,
		cb:       cb,
		presence: NewPresenceSet(),
		messages: NewMessageLog(),
	}
}

// Attach subscribes this room's handlers on the bus and targets the room's
// stream. Calling Attach on an attached controller is a no-op. Every
// subscription is released again by Detach, on every exit path.
func (r *RoomSync) Attach() error {
	r.mu.Lock()
	if r.attached {
		r.mu.Unlock()
		return nil
	}
	r.attached = true
	r.presence.Add(r.selfID)

	bus := r.client.Bus()
	r.unsubs = []func(){
		bus.Subscribe(EventConnected, r.onConnected),
		bus.Subscribe(EventDisconnected, r.onDisconnected),
		bus.Subscribe(EventError, r.onError),
		bus.Subscribe(EventMessageCreated, r.onMessageCreated),
		bus.Subscribe(EventMessageEdited, r.onMessageEdited),
		bus.Subscribe(EventMessageDeleted, r.onMessageDeleted),
		bus.Subscribe(EventUserTyping, r.onTyping),
		bus.Subscribe(EventUserJoined, r.onUserJoined),
		bus.Subscribe(EventUserLeft, r.onUserLeft),
		bus.Subscribe(EventUserOnline, r.onUserOnline),
		bus.Subscribe(EventUserOffline, r.onUserOffline),
	}
	r.mu.Unlock()

	if err := r.client.Connect(r.roomID); err != nil {
		r.Detach()
		return err
	}
	return nil
}

// Detach releases every subscription, closes the session if this room owns
// it, and clears local state. Safe to call more than once.
func (r *RoomSync) Detach() {
	r.mu.Lock()
	if !r.attached {
		r.mu.Unlock()
		return
	}
	r.attached = false
	r.fetchGen++ // any in-flight snapshot response is now stale
	r.loading = false
	r.overlay = nil
	unsubs := r.unsubs
	r.unsubs = nil
	r.presence.Clear()
	r.messages.Clear()
	r.mu.Unlock()

	for _, release := range unsubs {
		release()
	}
	if r.client.Room() == r.roomID {
		r.client.Disconnect()
	}
}

// State returns a copy of the aggregate room view.
func (r *RoomSync) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomState{
		RoomID:          r.roomID,
		Presence:        r.presence.IDs(),
		Messages:        r.messages.All(),
		ConnectionState: r.client.State(),
		SnapshotLoading: r.loading,
	}
}

// Presence returns the current participant ids, sorted.
func (r *RoomSync) Presence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.IDs()
}

// Messages returns the current message log in creation order.
func (r *RoomSync) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages.All()
}

// SendTyping forwards a typing indicator. Fire and forget.
func (r *RoomSync) SendTyping(isTyping bool, displayName string) {
	r.client.SendTyping(isTyping, displayName)
}

// RefreshPresence re-fetches the snapshot and merges it under the usual
// replay policy, returning the resulting set. Failures propagate.
func (r *RoomSync) RefreshPresence(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	if !r.attached {
		r.mu.Unlock()
		return nil, NewError(ErrorStale, "room not attached")
	}
	gen := r.beginFetchLocked()
	r.mu.Unlock()

	ids, err := r.api.ActiveUsers(ctx, r.roomID)
	return r.applySnapshot(gen, ids, err)
}

// ForceDisconnect issues the privileged disconnect command against
// targetUserID, then refreshes presence. Idempotent server-side; failures
// are returned, not swallowed.
func (r *RoomSync) ForceDisconnect(ctx context.Context, targetUserID string) error {
	if err := r.api.DisconnectUser(ctx, r.roomID, targetUserID); err != nil {
		return WrapError(ErrorCommand, "force disconnect failed", err)
	}
	_, err := r.RefreshPresence(ctx)
	return err
}

// LoadHistory seeds the message log from the recent-messages endpoint.
// Streamed duplicates of seeded messages are absorbed by the id guard.
func (r *RoomSync) LoadHistory(ctx context.Context) error {
	msgs, err := r.api.RecentMessages(ctx, r.roomID, historyLimit)
	if err != nil {
		return WrapError(ErrorSnapshot, "history fetch failed", err)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.attached {
		// Stale result for a detached room: discard, this is expected.
		return nil
	}
	for _, m := range msgs {
		r.messages.Append(Message{
			ID:        m.ID,
			AuthorID:  m.UserID,
			Author:    m.Username,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			Edited:    m.Edited,
		})
	}
	return nil
}

// beginFetchLocked starts a new fetch cycle: older responses become stale
// and delta recording restarts. Caller holds r.mu.
func (r *RoomSync) beginFetchLocked() uint64 {
	r.fetchGen++
	r.loading = true
	r.overlay = nil
	return r.fetchGen
}

// applySnapshot merges a snapshot response issued at generation gen. The
// merged result is the fetched set with the overlay of deltas applied
// since the fetch was issued replayed on top, plus the local user.
func (r *RoomSync) applySnapshot(gen uint64, ids []string, err error) ([]string, error) {
	r.mu.Lock()
	if !r.attached || gen != r.fetchGen {
		r.mu.Unlock()
		return nil, NewError(ErrorStale, "stale snapshot discarded")
	}
	r.loading = false
	if err != nil {
		// Keep the event-driven set; the stream is still authoritative
		// for deltas even when the snapshot endpoint misbehaves.
		r.overlay = nil
		r.mu.Unlock()
		return nil, WrapError(ErrorSnapshot, "presence snapshot fetch failed", err)
	}

	r.presence.Replace(ids)
	for _, d := range r.overlay {
		if d.online {
			r.presence.Add(d.userID)
		} else if d.userID != r.selfID {
			r.presence.Remove(d.userID)
		}
	}
	r.overlay = nil
	r.presence.Add(r.selfID)
	list := r.presence.IDs()
	cb := r.cb.OnPresence
	r.mu.Unlock()

	if cb != nil {
		cb(list)
	}
	return list, nil
}

func (r *RoomSync) fetchSnapshot(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	ids, err := r.api.ActiveUsers(ctx, r.roomID)
	if _, mergeErr := r.applySnapshot(gen, ids, err); mergeErr != nil {
		var ce *ClientError
		if errors.As(mergeErr, &ce) && ce.Code == ErrorStale {
			return
		}
		r.log.Warn().Err(mergeErr).Msg("presence snapshot failed")
		if r.cb.OnError != nil {
			r.cb.OnError(mergeErr)
		}
	}
}

// Bus handlers. Each one ignores events scoped to another room: a stale
// subscription outliving a room switch must not leak state across rooms.

func (r *RoomSync) onConnected(ev Event) {
	r.mu.Lock()
	if !r.attached || ev.RoomID != r.roomID {
		r.mu.Unlock()
		return
	}
	r.presence.Add(r.selfID)
	gen := r.beginFetchLocked()
	r.mu.Unlock()

	go r.fetchSnapshot(gen)
	if r.cb.OnConnected != nil {
		r.cb.OnConnected()
	}
}

func (r *RoomSync) onDisconnected(ev Event) {
	p, ok := ev.Payload.(DisconnectedPayload)
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.attached || ev.RoomID != r.roomID {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	if r.cb.OnDisconnected != nil {
		r.cb.OnDisconnected(p.Code, p.Reason)
	}
}

func (r *RoomSync) onError(ev Event) {
	p, ok := ev.Payload.(ErrorPayload)
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.attached || (ev.RoomID != "" && ev.RoomID != r.roomID) {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	if r.cb.OnError != nil {
		r.cb.OnError(p.Err)
	}
}

func (r *RoomSync) onMessageCreated(ev Event) {
	p, ok := ev.Payload.(MessageCreatedPayload)
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.attached || ev.RoomID != r.roomID {
		r.mu.Unlock()
		return
	}
	added := r.messages.Append(Message{
		ID:        p.MessageID,
		AuthorID:  p.UserID,
		Author:    p.Username,
		Content:   p.Message,
		CreatedAt: time.Now(),
	})
	r.mu.Unlock()

	if added && r.cb.OnMessageCreated != nil {
		r.cb.OnMessageCreated(p)
	}
}

func (r *RoomSync) onMessageEdited(ev Event) {
	p, ok := ev.Payload.(MessageEditedPayload)
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.attached || ev.RoomID != r.roomID {
		r.mu.Unlock()
		return
	}
	changed := r.messages.Edit(p.MessageID, p.Message)
	r.mu.Unlock()

	if changed && r.cb.OnMessageEdited != nil {
		r.cb.OnMessageEdited(p)
	}
}

func (r *RoomSync) onMessageDeleted(ev Event) {
	p, ok := ev.Payload.(MessageDeletedPayload)
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.attached || ev.RoomID != r.roomID {
		r.mu.Unlock()
		return
	}
	removed := r.messages.Remove(p.MessageID)
	r.mu.Unlock()

	if removed && r.cb.OnMessageDeleted != nil {
		r.cb.OnMessageDeleted(p)
	}
}

func (r *RoomSync) onTyping(ev Event) {
	p, ok := ev.Payload.(TypingPayload)
	if !ok {
		return
	}
	r.mu.Lock()
	scoped := r.attached && ev.RoomID == r.roomID
	r.mu.Unlock()
	if scoped && r.cb.OnTyping != nil {
		r.cb.OnTyping(p)
	}
}

func (r *RoomSync) onUserJoined(ev Event)  { r.applyPresenceEvent(ev, true, r.cb.OnUserJoined) }
func (r *RoomSync) onUserLeft(ev Event)    { r.applyPresenceEvent(ev, false, r.cb.OnUserLeft) }
func (r *RoomSync) onUserOnline(ev Event)  { r.applyPresenceEvent(ev, true, r.cb.OnUserOnline) }
func (r *RoomSync) onUserOffline(ev Event) { r.applyPresenceEvent(ev, false, r.cb.OnUserOffline) }

func (r *RoomSync) applyPresenceEvent(ev Event, online bool, cb func(PresencePayload)) {
	p, ok := ev.Payload.(PresencePayload)
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.attached || ev.RoomID != r.roomID {
		r.mu.Unlock()
		return
	}
	if r.loading {
		// A snapshot fetch is outstanding; record the delta so the
		// response can be replayed against instead of clobbering it.
		r.overlay = append(r.overlay, presenceDelta{userID: p.UserID, online: online})
	}
	if online {
		r.presence.Add(p.UserID)
	} else if p.UserID != r.selfID {
		r.presence.Remove(p.UserID)
	}
	list := r.presence.IDs()
	pcb := r.cb.OnPresence
	r.mu.Unlock()

	if cb != nil {
		cb(p)
	}
	if pcb != nil {
		pcb(list)
	}
}
