package network

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/lot"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Commands accepted over the socket.
const (
	CmdKey         = "KEY"
	CmdSelectSpot  = "SELECT_SPOT"
	CmdFindNearest = "FIND_NEAREST"
	CmdClearTarget = "CLEAR_TARGET"
	CmdDepart      = "DEPART"
)

// DriverCommand represents an incoming command from the frontend.
type DriverCommand struct {
	Type    string          `json:"type"`    // "KEY", "SELECT_SPOT", ...
	Payload json.RawMessage `json:"payload"` // Command-specific data
}

// CommandResult answers a command to the client that sent it.
type CommandResult struct {
	Command string        `json:"command"`
	Found   *bool         `json:"found,omitempty"` // FIND_NEAREST only
	Spot    *parking.Spot `json:"spot,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Client object to hold connection status. Added Hub ref to allow unregister.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu          sync.Mutex
	windowStart time.Time
	windowCount int
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.tuning.ClientSendBuffer),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump pumps messages from the websocket connection to the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var cmd DriverCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Warn("failed to parse driver command", "error", err)
			c.reply(CommandResult{Command: "", Error: "malformed command"})
			continue
		}
		c.handleCommand(cmd)
	}
}

// allow applies the per-client message budget over a one second window.
func (c *Client) allow(now time.Time) bool {
	limit := c.hub.tuning.MaxMessagesPerSecond
	if limit <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	if c.windowCount >= limit {
		return false
	}
	c.windowCount++
	return true
}

func (c *Client) handleCommand(cmd DriverCommand) {
	if !c.allow(time.Now()) {
		c.hub.logger.Warn("rate limit exceeded for client command", "type", cmd.Type)
		c.reply(CommandResult{Command: cmd.Type, Error: "rate limit exceeded"})
		return
	}

	eng := c.hub.engine
	switch cmd.Type {
	case CmdKey:
		c.handleKey(eng, cmd.Payload)
	case CmdSelectSpot:
		c.handleSelect(eng, cmd.Payload)
	case CmdFindNearest:
		c.handleNearest(eng, cmd.Payload)
	case CmdClearTarget:
		eng.ClearTarget()
		c.reply(CommandResult{Command: cmd.Type})
	case CmdDepart:
		eng.Depart()
		c.reply(CommandResult{Command: cmd.Type})
	default:
		c.hub.logger.Warn("unknown driver command", "type", cmd.Type)
		c.reply(CommandResult{Command: cmd.Type, Error: "unknown command"})
	}
}

func (c *Client) handleKey(eng *engine.Engine, raw json.RawMessage) {
	var parsed struct {
		Key     string `json:"key"`
		Pressed bool   `json:"pressed"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.reply(CommandResult{Command: CmdKey, Error: "invalid payload"})
		return
	}
	d, err := engine.ParseDirection(parsed.Key)
	if err != nil {
		c.reply(CommandResult{Command: CmdKey, Error: err.Error()})
		return
	}
	// Key presses are frequent, only failures are answered.
	_ = eng.SetIntent(d, parsed.Pressed)
}

func (c *Client) handleSelect(eng *engine.Engine, raw json.RawMessage) {
	var parsed struct {
		SpotID string `json:"spot_id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.SpotID == "" {
		c.reply(CommandResult{Command: CmdSelectSpot, Error: "spot_id is required"})
		return
	}
	spot, err := eng.AssignTarget(parsed.SpotID)
	if err != nil {
		c.reply(CommandResult{Command: CmdSelectSpot, Error: err.Error()})
		return
	}
	c.reply(CommandResult{Command: CmdSelectSpot, Spot: &spot})
}

func (c *Client) handleNearest(eng *engine.Engine, raw json.RawMessage) {
	var parsed struct {
		Category string `json:"category"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			c.reply(CommandResult{Command: CmdFindNearest, Error: "invalid payload"})
			return
		}
	}
	spot, err := eng.AssignNearest(parking.Category(parsed.Category))
	switch {
	case errors.Is(err, lot.ErrNoSpotAvailable):
		found := false
		c.reply(CommandResult{Command: CmdFindNearest, Found: &found})
	case err != nil:
		c.reply(CommandResult{Command: CmdFindNearest, Error: err.Error()})
	default:
		found := true
		c.reply(CommandResult{Command: CmdFindNearest, Found: &found, Spot: &spot})
	}
}

// reply answers the sending client only.
func (c *Client) reply(res CommandResult) {
	msgType := MsgTypeResult
	if res.Error != "" {
		msgType = MsgTypeError
	}
	c.sendMessage(NewMessage(msgType, res))
}

// sendMessage queues msg for this client without blocking. It may race with
// the hub closing the channel on unregister, so a send on a closed channel is
// recovered.
func (c *Client) sendMessage(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to serialize client message", "type", msg.Type, "error", err)
		return
	}
	defer func() { _ = recover() }()
	select {
	case c.send <- payload:
		c.hub.metrics.RecordWSMessage(false)
	default:
		c.hub.metrics.RecordWSError()
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
