package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"
)

const pingInterval = 30 * time.Second

// request is a control message from the client.
type request struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Path   string `json:"path"`
}

// Client represents a single WebSocket connection and its subscriptions.
type Client struct {
	id     string
	hub    *Hub
	conn   *ws.Conn
	userID string

	ctx  context.Context
	subs map[string]context.CancelFunc

	// Outbound frames. Snapshot frames coalesce per path, latest wins;
	// control frames keep their order in queue. closed gates late frames
	// from forwarders that race the disconnect.
	mu      sync.Mutex
	closed  bool
	pending map[string]Frame
	queue   []Frame
	wake    chan struct{}
}

// NewClient creates a Client for the authenticated user.
func NewClient(hub *Hub, conn *ws.Conn, userID string) *Client {
	return &Client{
		id:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		userID:  userID,
		subs:    make(map[string]context.CancelFunc),
		pending: make(map[string]Frame),
		wake:    make(chan struct{}, 1),
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection closes, then unregisters.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx

	c.hub.Register(c)
	defer c.hub.Unregister(c)

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump handles subscribe/unsubscribe control messages. It returns on
// read error (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(Frame{Type: "error", Error: "invalid message"})
			continue
		}

		switch req.Action {
		case "subscribe":
			c.subscribe(req.Path)
		case "unsubscribe":
			c.unsubscribe(req.Path)
		default:
			c.reply(Frame{Type: "error", Error: "unknown action"})
		}
	}
}

// subscribe starts forwarding snapshots for path. A user may watch their own
// user document and any list; holding a list id is the sharing capability.
func (c *Client) subscribe(path string) {
	if !c.allowed(path) {
		c.reply(Frame{Type: "error", Path: path, Error: "forbidden path"})
		return
	}
	if _, ok := c.subs[path]; ok {
		return
	}

	subCtx, cancel := context.WithCancel(c.ctx)
	snaps, err := c.hub.docs.Watch(subCtx, path)
	if err != nil {
		cancel()
		c.reply(Frame{Type: "error", Path: path, Error: "subscribe failed"})
		return
	}
	c.subs[path] = cancel

	go func() {
		for snap := range snaps {
			frame := Frame{Type: "snapshot", Path: snap.Path, Exists: snap.Exists}
			if snap.Exists {
				frame.Value = json.RawMessage(snap.Value)
			}
			c.reply(frame)
		}
	}()
}

func (c *Client) unsubscribe(path string) {
	if cancel, ok := c.subs[path]; ok {
		cancel()
		delete(c.subs, path)
	}
}

func (c *Client) allowed(path string) bool {
	segs := strings.Split(path, "/")
	if len(segs) != 2 || segs[1] == "" {
		return false
	}
	switch segs[0] {
	case "users":
		return segs[1] == c.userID
	case "shopping_lists":
		return true
	default:
		return false
	}
}

// reply queues a frame for the write pump. A snapshot replaces any undelivered
// snapshot for the same path, so a slow reader skips straight to the newest
// state instead of losing it. Frames arriving after shutdown are discarded.
func (c *Client) reply(frame Frame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if frame.Type == "snapshot" {
		c.pending[frame.Path] = frame
	} else {
		c.queue = append(c.queue, frame)
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// takeFrames drains the queued control frames and the newest snapshot per
// subscribed path.
func (c *Client) takeFrames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.queue
	c.queue = nil
	for path, frame := range c.pending {
		frames = append(frames, frame)
		delete(c.pending, path)
	}
	return frames
}

// shutdown stops frame delivery. Called by the hub on unregister, after the
// subscriptions are cancelled.
func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.queue = nil
	c.mu.Unlock()
}

// cancelAll stops every subscription. Called by the hub on unregister.
func (c *Client) cancelAll() {
	for path, cancel := range c.subs {
		cancel()
		delete(c.subs, path)
	}
}

// writePump writes queued frames to the WebSocket and sends periodic pings
// to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-c.wake:
			for _, frame := range c.takeFrames() {
				data, err := json.Marshal(frame)
				if err != nil {
					c.hub.logger.Error("marshal frame", "error", err)
					continue
				}
				if err := c.conn.Write(ctx, ws.MessageText, data); err != nil {
					return
				}
			}
		}
	}
}
