package roomchat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat-go/roomchat/internal"
)

var pongBytes = []byte(`{"type":"` + frameTypePong + `"}`)

// Client owns the streaming session for the active room. It dials, answers
// liveness probes, decodes frames onto the bus, and drives the reconnect
// policy. At most one session is open at a time; connecting to a new room
// tears the previous session down first.
//
// Construct one per consumer and inject it where needed; there is no shared
// global instance.
type Client struct {
	cfg Config
	log zerolog.Logger
	bus *Bus

	mu        sync.Mutex
	state     ConnectionState
	room      string // desired target room, "" when none
	attempt   int
	gen       uint64 // bumped by Connect/Disconnect; stale async work checks it
	sess      *session
	reconnect *time.Timer
}

// session is one logical streaming connection for one room.
type session struct {
	id       string
	room     string
	gen      uint64
	conn     *internal.Conn
	writeCh  chan []byte
	cancel   context.CancelFunc
	openedAt time.Time

	lastFrame atomic.Int64 // unix nanos of the last inbound frame
}

func (s *session) touch() {
	s.lastFrame.Store(time.Now().UnixNano())
}

func (s *session) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastFrame.Load()))
}

// NewClient constructs a client. Start from DefaultConfig; zero timing
// fields fall back to defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	return &Client{
		cfg: cfg,
		log: cfg.Logger,
		bus: NewBus(cfg.Logger),
	}
}

// Bus exposes the event registry consumers subscribe on.
func (c *Client) Bus() *Bus { return c.bus }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the current target room, or "" when none.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Connect targets roomID and dials in the background. Already targeting
// the same room with a dial in flight or a session open is a no-op; a
// different room supersedes the existing session with a clean close.
// A manual Connect always resets the reconnect attempt counter, so it can
// restart a Failed client. Establishment is reported as EventConnected.
func (c *Client) Connect(roomID string) error {
	if c.cfg.BaseURL == "" {
		return NewError(ErrorInvalidConfig, "empty base URL")
	}
	if roomID == "" {
		return NewError(ErrorInvalidConfig, "empty room id")
	}

	c.mu.Lock()
	if c.room == roomID && (c.state == StateConnecting || c.state == StateOpen) {
		c.mu.Unlock()
		return nil
	}
	prevRoom, hadSession := c.teardownLocked("room switch")
	c.room = roomID
	c.attempt = 0
	c.gen++
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	if hadSession && prevRoom != roomID {
		c.bus.Publish(Event{Type: EventDisconnected, RoomID: prevRoom, Payload: DisconnectedPayload{
			RoomID: prevRoom,
			Code:   int(websocket.StatusNormalClosure),
			Reason: "room switch",
		}})
	}

	go c.dial(gen, roomID)
	return nil
}

// Disconnect deliberately closes the session, cancels any pending
// reconnect, and forgets the target room. It never triggers a reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	prevRoom, hadSession := c.teardownLocked("client disconnect")
	c.gen++
	gen := c.gen
	c.room = ""
	c.attempt = 0
	if hadSession {
		c.state = StateClosing
	} else {
		c.state = StateIdle
	}
	c.mu.Unlock()

	if hadSession {
		go func() {
			c.mu.Lock()
			if c.gen == gen && c.state == StateClosing {
				c.state = StateIdle
			}
			c.mu.Unlock()
		}()
		c.bus.Publish(Event{Type: EventDisconnected, RoomID: prevRoom, Payload: DisconnectedPayload{
			RoomID: prevRoom,
			Code:   int(websocket.StatusNormalClosure),
			Reason: "client disconnect",
		}})
	}
}

// Close disconnects and drops every bus subscription. Used on logout.
func (c *Client) Close() {
	c.Disconnect()
	c.bus.Clear()
}

// SendTyping queues a typing indicator frame. Fire and forget: dropped
// with a log line when no session is open.
func (c *Client) SendTyping(isTyping bool, username string) {
	data, err := json.Marshal(typingFrame{Type: frameTypeTyping, IsTyping: isTyping, Username: username})
	if err != nil {
		return
	}

	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		c.log.Warn().Msg("typing indicator dropped, stream not open")
		return
	}
	select {
	case s.writeCh <- data:
	default:
		c.log.Warn().Str("session_id", s.id).Msg("typing indicator dropped, write queue full")
	}
}

// teardownLocked stops timers and detaches the current session, closing it
// cleanly in the background. Caller holds c.mu.
func (c *Client) teardownLocked(reason string) (string, bool) {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	room := c.room
	s := c.sess
	c.sess = nil
	if s == nil {
		return room, false
	}
	s.cancel()
	go func() {
		_ = s.conn.Close(websocket.StatusNormalClosure, reason)
	}()
	return room, true
}

func (c *Client) dial(gen uint64, roomID string) {
	dialCtx := context.Background()
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(dialCtx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	ws, resp, err := websocket.Dial(dialCtx, c.cfg.streamURL(roomID), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("dial failed")
		c.bus.Publish(Event{Type: EventError, RoomID: roomID, Payload: ErrorPayload{
			RoomID: roomID,
			Err:    WrapError(ErrorConnection, "dial failed", err),
		}})
		c.handleClose(gen, roomID, -1, "dial failed", err)
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       uuid.NewString(),
		room:     roomID,
		gen:      gen,
		conn:     internal.NewConn(ws, c.cfg.WriteTimeout),
		writeCh:  make(chan []byte, 16),
		cancel:   cancel,
		openedAt: time.Now(),
	}
	s.touch()

	c.mu.Lock()
	if gen != c.gen {
		// A newer connect/disconnect superseded this dial.
		c.mu.Unlock()
		cancel()
		_ = ws.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	c.sess = s
	c.state = StateOpen
	c.attempt = 0
	c.mu.Unlock()

	c.log.Info().Str("session_id", s.id).Str("room_id", roomID).Msg("stream open")

	go c.readLoop(runCtx, s)
	go c.writeLoop(runCtx, s)
	go c.heartbeat(runCtx, s)

	c.bus.Publish(Event{Type: EventConnected, RoomID: roomID, Payload: ConnectedPayload{RoomID: roomID}})
}

func (c *Client) readLoop(ctx context.Context, s *session) {
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			c.sessionClosed(s, err)
			return
		}
		s.touch()
		c.handleFrame(ctx, s, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, s *session, data []byte) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Warn().Err(err).Str("session_id", s.id).Msg("malformed frame dropped")
		return
	}

	if frame.Type == frameTypePing {
		// Answer immediately, ahead of anything queued for the write loop.
		if err := s.conn.Write(ctx, pongBytes); err != nil {
			c.log.Warn().Err(err).Str("session_id", s.id).Msg("pong write failed")
		}
		return
	}

	if frame.EventType == "" {
		return
	}
	ev, ok, err := decodeEvent(frame.EventType, frame.Payload, s.room)
	if err != nil {
		c.log.Warn().Err(err).
			Str("session_id", s.id).
			Str("event_type", frame.EventType).
			Msg("undecodable payload dropped")
		return
	}
	if !ok {
		c.log.Debug().Str("event_type", frame.EventType).Msg("unknown event type ignored")
		return
	}
	c.bus.Publish(ev)
}

func (c *Client) writeLoop(ctx context.Context, s *session) {
	for {
		select {
		case data := <-s.writeCh:
			if err := s.conn.Write(ctx, data); err != nil {
				// The read loop observes the broken connection and owns
				// the close handling.
				c.log.Warn().Err(err).Str("session_id", s.id).Msg("write loop exit")
				c.bus.Publish(Event{Type: EventError, RoomID: s.room, Payload: ErrorPayload{
					RoomID: s.room,
					Err:    WrapError(ErrorConnection, "write failed", err),
				}})
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat watches frame recency. The server drives ping cadence and the
// client answers probes from the read loop, so this never writes anything.
func (c *Client) heartbeat(ctx context.Context, s *session) {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	t := time.NewTicker(c.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if idle := s.idleFor(); idle > 2*c.cfg.HeartbeatInterval {
				c.log.Warn().
					Dur("idle", idle).
					Str("session_id", s.id).
					Msg("no frames from server")
			}
		case <-ctx.Done():
			return
		}
	}
}

// sessionClosed runs when the read loop exits. Superseded sessions are
// ignored: a newer connect or disconnect already owns the state.
func (c *Client) sessionClosed(s *session, err error) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.mu.Unlock()
	s.cancel()

	code := websocket.CloseStatus(err)
	reason := ""
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		reason = ce.Reason
	}
	c.log.Info().
		Str("session_id", s.id).
		Str("room_id", s.room).
		Int("code", int(code)).
		Dur("lifetime", time.Since(s.openedAt)).
		Msg("stream closed")

	c.handleClose(s.gen, s.room, code, reason, err)
}

// handleClose applies the reconnect policy after a session ended or a dial
// failed. A normal closure (1000) means the close was deliberate, locally
// or server-side, and never reconnects.
func (c *Client) handleClose(gen uint64, room string, code websocket.StatusCode, reason string, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	failed := false
	switch {
	case code == websocket.StatusNormalClosure:
		c.state = StateIdle
	case c.attempt >= c.cfg.MaxReconnectAttempts:
		c.state = StateFailed
		failed = true
	default:
		c.state = StateReconnecting
		// Delay uses the attempt counter before it increments; the
		// increment happens when the timer fires and the room is still
		// the desired target.
		delay := backoffDelay(c.cfg.ReconnectBaseDelay, c.attempt)
		c.reconnect = time.AfterFunc(delay, func() { c.retry(gen, room) })
	}
	c.mu.Unlock()

	c.bus.Publish(Event{Type: EventDisconnected, RoomID: room, Payload: DisconnectedPayload{
		RoomID: room,
		Code:   int(code),
		Reason: reason,
	}})
	if failed {
		err := WrapError(ErrorReconnectExhausted, "reconnect attempts exhausted", cause)
		c.log.Error().Err(err).Str("room_id", room).Msg("giving up on stream")
		c.bus.Publish(Event{Type: EventError, RoomID: room, Payload: ErrorPayload{RoomID: room, Err: err}})
	}
}

// backoffDelay returns base * 2^attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * (1 << attempt)
}

func (c *Client) retry(gen uint64, roomID string) {
	c.mu.Lock()
	if gen != c.gen || c.room != roomID || c.state != StateReconnecting {
		// Superseded while the timer was pending.
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.attempt++
	c.state = StateConnecting
	attempt := c.attempt
	c.mu.Unlock()

	c.log.Info().Int("attempt", attempt).Str("room_id", roomID).Msg("reconnecting")
	c.dial(gen, roomID)
}
