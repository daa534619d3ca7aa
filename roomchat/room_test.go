package roomchat

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat-go/roomchat/rest"
)

// fakeStream satisfies StreamClient with a real bus and no transport.
type fakeStream struct {
	bus *Bus

	mu           sync.Mutex
	room         string
	state        ConnectionState
	disconnected int
}

func newFakeStream() *fakeStream {
	return &fakeStream{bus: NewBus(zerolog.Nop()), state: StateIdle}
}

func (f *fakeStream) Bus() *Bus { return f.bus }

func (f *fakeStream) Connect(roomID string) error {
	f.mu.Lock()
	f.room = roomID
	f.state = StateOpen
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Disconnect() {
	f.mu.Lock()
	f.room = ""
	f.state = StateIdle
	f.disconnected++
	f.mu.Unlock()
}

func (f *fakeStream) Room() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.room
}

func (f *fakeStream) State() ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) SendTyping(bool, string) {}

// fakeAPI satisfies RoomAPI. When block is set, ActiveUsers waits on it,
// simulating a snapshot fetch that loses the race against stream deltas.
type fakeAPI struct {
	mu        sync.Mutex
	active    []string
	activeErr error
	block     chan struct{}
	kicked    []string
	kickErr   error
	history   []rest.MessageInfo
}

func (f *fakeAPI) ActiveUsers(ctx context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.active...), f.activeErr
}

func (f *fakeAPI) DisconnectUser(ctx context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kickErr != nil {
		return f.kickErr
	}
	f.kicked = append(f.kicked, userID)
	return nil
}

func (f *fakeAPI) RecentMessages(ctx context.Context, roomID string, limit int) ([]rest.MessageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rest.MessageInfo(nil), f.history...), nil
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestRoom(t *testing.T, stream *fakeStream, api *fakeAPI, cb Callbacks) *RoomSync {
	t.Helper()
	r := NewRoomSync(stream, api, zerolog.Nop(), "r1", "me", cb)
	if err := r.Attach(); err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(r.Detach)
	return r
}

func presenceEvent(typ EventType, room, user string) Event {
	return Event{Type: typ, RoomID: room, Payload: PresencePayload{UserID: user, RoomID: room}}
}

func TestRoomSyncMergesSnapshotWithRacingDeltas(t *testing.T) {
	stream := newFakeStream()
	api := &fakeAPI{active: []string{"u2", "u3"}, block: make(chan struct{})}
	r := newTestRoom(t, stream, api, Callbacks{})

	// Session established: the snapshot fetch goes out and blocks.
	stream.bus.Publish(Event{Type: EventConnected, RoomID: "r1", Payload: ConnectedPayload{RoomID: "r1"}})
	waitFor(t, time.Second, "snapshot loading", func() bool { return r.State().SnapshotLoading })

	// Deltas racing the fetch: u1 comes online, u2 goes offline.
	stream.bus.Publish(presenceEvent(EventUserOnline, "r1", "u1"))
	stream.bus.Publish(presenceEvent(EventUserOffline, "r1", "u2"))

	close(api.block)

	// Union of snapshot and replayed deltas, never a blind replace: u1
	// stays, u2 is gone even though the snapshot still listed it.
	want := []string{"me", "u1", "u3"}
	waitFor(t, time.Second, "merged presence", func() bool {
		return reflect.DeepEqual(r.Presence(), want)
	})
}

func TestRoomSyncLocalUserAlwaysPresent(t *testing.T) {
	stream := newFakeStream()
	api := &fakeAPI{active: []string{"u1"}} // snapshot omits the local user
	r := newTestRoom(t, stream, api, Callbacks{})

	stream.bus.Publish(Event{Type: EventConnected, RoomID: "r1", Payload: ConnectedPayload{RoomID: "r1"}})
	waitFor(t, time.Second, "snapshot applied", func() bool {
		return reflect.DeepEqual(r.Presence(), []string{"me", "u1"})
	})

	// An offline event for the local user does not evict it.
	stream.bus.Publish(presenceEvent(EventUserOffline, "r1", "me"))
	if got := r.Presence(); !reflect.DeepEqual(got, []string{"me", "u1"}) {
		t.Fatalf("presence = %v", got)
	}
}

func TestRoomSyncOnlineThenOfflineExcludesUser(t *testing.T) {
	stream := newFakeStream()
	r := newTestRoom(t, stream, &fakeAPI{}, Callbacks{})

	stream.bus.Publish(presenceEvent(EventUserOnline, "r1", "u1"))
	stream.bus.Publish(presenceEvent(EventUserOffline, "r1", "u1"))

	if got := r.Presence(); !reflect.DeepEqual(got, []string{"me"}) {
		t.Fatalf("presence = %v", got)
	}
}

func TestRoomSyncIgnoresEventsForOtherRooms(t *testing.T) {
	stream := newFakeStream()
	r := newTestRoom(t, stream, &fakeAPI{}, Callbacks{})

	stream.bus.Publish(presenceEvent(EventUserOnline, "r2", "u9"))
	stream.bus.Publish(Event{Type: EventMessageCreated, RoomID: "r2", Payload: MessageCreatedPayload{MessageID: "m9"}})

	if got := r.Presence(); !reflect.DeepEqual(got, []string{"me"}) {
		t.Fatalf("presence leaked across rooms: %v", got)
	}
	if len(r.Messages()) != 0 {
		t.Fatal("message leaked across rooms")
	}
}

func TestRoomSyncStaleSnapshotDiscardedAfterDetach(t *testing.T) {
	stream := newFakeStream()
	api := &fakeAPI{active: []string{"u1", "u2"}, block: make(chan struct{})}
	r := newTestRoom(t, stream, api, Callbacks{})

	stream.bus.Publish(Event{Type: EventConnected, RoomID: "r1", Payload: ConnectedPayload{RoomID: "r1"}})
	waitFor(t, time.Second, "snapshot loading", func() bool { return r.State().SnapshotLoading })

	r.Detach()
	close(api.block)

	time.Sleep(50 * time.Millisecond)
	if got := r.Presence(); len(got) != 0 {
		t.Fatalf("stale snapshot applied after detach: %v", got)
	}
}

func TestRoomSyncMessageLifecycle(t *testing.T) {
	stream := newFakeStream()
	r := newTestRoom(t, stream, &fakeAPI{}, Callbacks{})

	created := Event{Type: EventMessageCreated, RoomID: "r1", Payload: MessageCreatedPayload{MessageID: "m1", Message: "first", UserID: "u1", Username: "alice"}}
	stream.bus.Publish(created)
	stream.bus.Publish(created) // duplicate delivery
	if got := r.Messages(); len(got) != 1 {
		t.Fatalf("duplicate create applied: %d messages", len(got))
	}

	stream.bus.Publish(Event{Type: EventMessageEdited, RoomID: "r1", Payload: MessageEditedPayload{MessageID: "m1", Message: "hi"}})
	if got := r.Messages()[0]; got.Content != "hi" || !got.Edited {
		t.Fatalf("edit not applied: %+v", got)
	}

	stream.bus.Publish(Event{Type: EventMessageDeleted, RoomID: "r1", Payload: MessageDeletedPayload{MessageID: "m1"}})
	if got := r.Messages(); len(got) != 0 {
		t.Fatalf("log should be empty, has %d", len(got))
	}
}

func TestRoomSyncEditOutsideWindowIgnored(t *testing.T) {
	stream := newFakeStream()
	calls := 0
	r := newTestRoom(t, stream, &fakeAPI{}, Callbacks{
		OnMessageEdited: func(MessageEditedPayload) { calls++ },
	})

	stream.bus.Publish(Event{Type: EventMessageEdited, RoomID: "r1", Payload: MessageEditedPayload{MessageID: "unseen", Message: "x"}})

	if len(r.Messages()) != 0 || calls != 0 {
		t.Fatalf("edit of unseen message applied (callbacks=%d)", calls)
	}
}

func TestRoomSyncRefreshPresence(t *testing.T) {
	stream := newFakeStream()
	api := &fakeAPI{active: []string{"u5"}}
	r := newTestRoom(t, stream, api, Callbacks{})

	got, err := r.RefreshPresence(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if want := []string{"me", "u5"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("refresh = %v, want %v", got, want)
	}
}

func TestRoomSyncRefreshPresencePropagatesErrors(t *testing.T) {
	stream := newFakeStream()
	api := &fakeAPI{activeErr: errors.New("boom")}
	r := newTestRoom(t, stream, api, Callbacks{})

	_, err := r.RefreshPresence(context.Background())
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Code != ErrorSnapshot {
		t.Fatalf("err = %v, want snapshot error", err)
	}
}

func TestRoomSyncForceDisconnectRefreshes(t *testing.T) {
	stream := newFakeStream()
	api := &fakeAPI{active: []string{"u1"}}
	r := newTestRoom(t, stream, api, Callbacks{})

	if err := r.ForceDisconnect(context.Background(), "u7"); err != nil {
		t.Fatalf("force disconnect: %v", err)
	}
	if !reflect.DeepEqual(api.kicked, []string{"u7"}) {
		t.Fatalf("kicked = %v", api.kicked)
	}
	if got := r.Presence(); !reflect.DeepEqual(got, []string{"me", "u1"}) {
		t.Fatalf("presence not refreshed: %v", got)
	}
}

func TestRoomSyncForceDisconnectPropagatesErrors(t *testing.T) {
	stream := newFakeStream()
	api := &fakeAPI{kickErr: errors.New("forbidden")}
	r := newTestRoom(t, stream, api, Callbacks{})

	err := r.ForceDisconnect(context.Background(), "u7")
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Code != ErrorCommand {
		t.Fatalf("err = %v, want command error", err)
	}
}

func TestRoomSyncDetachReleasesEverything(t *testing.T) {
	stream := newFakeStream()
	r := newTestRoom(t, stream, &fakeAPI{}, Callbacks{})

	r.Detach()
	r.Detach() // safe to call twice

	stream.bus.Publish(Event{Type: EventMessageCreated, RoomID: "r1", Payload: MessageCreatedPayload{MessageID: "m1"}})
	if len(r.Messages()) != 0 || len(r.Presence()) != 0 {
		t.Fatal("state mutated after detach")
	}
	stream.mu.Lock()
	n := stream.disconnected
	stream.mu.Unlock()
	if n != 1 {
		t.Fatalf("stream disconnected %d times, want 1", n)
	}
}

func TestRoomSyncLoadHistorySeedsLog(t *testing.T) {
	stream := newFakeStream()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{history: []rest.MessageInfo{
		{ID: "m2", Username: "bob", Content: "second", CreatedAt: base.Add(time.Minute)},
		{ID: "m1", Username: "alice", Content: "first", CreatedAt: base},
	}}
	r := newTestRoom(t, stream, api, Callbacks{})

	if err := r.LoadHistory(context.Background()); err != nil {
		t.Fatalf("load history: %v", err)
	}
	got := r.Messages()
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("history order wrong: %+v", got)
	}

	// A streamed duplicate of a seeded message is absorbed.
	stream.bus.Publish(Event{Type: EventMessageCreated, RoomID: "r1", Payload: MessageCreatedPayload{MessageID: "m2", Message: "second"}})
	if got := r.Messages(); len(got) != 2 {
		t.Fatalf("duplicate of seeded message applied: %d", len(got))
	}
}
