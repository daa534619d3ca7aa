package internal

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Conn wraps a websocket connection with write serialization and timeouts.
// Reads return raw bytes so the caller can drop malformed frames without
// tearing the session down.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	// wmu serializes writes: pong replies are written directly from the
	// read loop and race the queued write loop.
	wmu sync.Mutex
}

func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

func (c *Conn) Write(ctx context.Context, data []byte) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}
