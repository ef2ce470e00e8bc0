package network

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/guidance"
	"github.com/parkpilot/server/internal/infra/ai"
	"github.com/parkpilot/server/internal/insight"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/metrics"
	"github.com/parkpilot/server/internal/platform/optimization"
)

// Message types pushed to clients.
const (
	MsgTypeLot      = "LOT"
	MsgTypeVehicle  = "VEHICLE"
	MsgTypeGuidance = "GUIDANCE"
	MsgTypeEvent    = "EVENT"
	MsgTypeAudio    = "AUDIO"
	MsgTypeInsight  = "INSIGHT"
	MsgTypeResult   = "RESULT"
	MsgTypeError    = "ERROR"
)

// Message is the envelope of every server push.
type Message struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Payload   any    `json:"payload"`
}

// NewMessage stamps a message with the current time.
func NewMessage(msgType string, payload any) Message {
	return Message{Type: msgType, Timestamp: time.Now().UnixMilli(), Payload: payload}
}

// GuidancePayload is pushed for every instruction and arrival.
type GuidancePayload struct {
	VehicleID string `json:"vehicle_id"`
	guidance.Outcome
}

// AudioPayload carries synthesised speech next to the text it voices.
type AudioPayload struct {
	Text     string `json:"text"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

// Hub maintains the set of active clients and broadcasts messages to them.
// It observes the engine and forwards every lot, vehicle and guidance change.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	engine     *engine.Engine
	tuning     *optimization.Config
	logger     *logger.Logger
	metrics    *metrics.Collector
}

// NewHub initializes a new WebSocket Hub.
func NewHub(eng *engine.Engine, tuning *optimization.Config, log *logger.Logger) *Hub {
	if tuning == nil {
		tuning = optimization.DefaultConfig()
	}
	return &Hub{
		broadcast:  make(chan []byte, tuning.BroadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		engine:     eng,
		tuning:     tuning,
		logger:     log.With("component", "hub"),
		metrics:    metrics.Get(),
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.tuning.MaxClientsPerLot > 0 && len(h.clients) >= h.tuning.MaxClientsPerLot {
				h.mu.Unlock()
				h.logger.Warn("client limit reached, refusing connection", "limit", h.tuning.MaxClientsPerLot)
				close(client.send)
				continue
			}
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.sendInitialState(client)
			h.logger.Info("WebSocket client connected", "clients", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage(false)
				default:
					// Slow consumer
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast serializes msg and queues it for every client. The engine calls
// this from its tick goroutines, so a full queue drops the message instead
// of blocking.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to serialize message for broadcast", "type", msg.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.RecordWSError()
		h.logger.Warn("broadcast queue full, dropping message", "type", msg.Type)
	}
}

func (h *Hub) sendInitialState(c *Client) {
	c.sendMessage(NewMessage(MsgTypeLot, h.engine.Snapshot()))
	c.sendMessage(NewMessage(MsgTypeVehicle, h.engine.Vehicle()))
}

// OnLotUpdate implements engine.LotObserver.
func (h *Hub) OnLotUpdate(s engine.LotSnapshot) {
	h.Broadcast(NewMessage(MsgTypeLot, s))
}

// OnVehicleUpdate implements engine.VehicleObserver.
func (h *Hub) OnVehicleUpdate(s engine.VehicleSnapshot) {
	h.Broadcast(NewMessage(MsgTypeVehicle, s))
}

// OnGuidance implements engine.GuidanceObserver.
func (h *Hub) OnGuidance(vehicleID string, out guidance.Outcome) {
	h.Broadcast(NewMessage(MsgTypeGuidance, GuidancePayload{VehicleID: vehicleID, Outcome: out}))
}

// BroadcastAudio implements voice.AudioSink.
func (h *Hub) BroadcastAudio(text string, audio *ai.Audio) {
	h.Broadcast(NewMessage(MsgTypeAudio, AudioPayload{
		Text:     text,
		MimeType: audio.MimeType,
		Data:     base64.StdEncoding.EncodeToString(audio.Data),
	}))
}

// BroadcastInsight pushes an operator summary.
func (h *Hub) BroadcastInsight(in insight.Insight) {
	h.Broadcast(NewMessage(MsgTypeInsight, in))
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes new
// activity entries to the Hub.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	go func() {
		pollInterval := time.NewTicker(interval)
		defer pollInterval.Stop()

		offset := eventLog.Len()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				var fresh []events.LotEvent
				fresh, offset = eventLog.Since(offset)
				for _, e := range fresh {
					if e.Type == events.EventTypeGuidanceInstruction {
						// Already pushed as GUIDANCE.
						continue
					}
					h.Broadcast(NewMessage(MsgTypeEvent, NewActivityEntry(e)))
				}
			}
		}
	}()
}
