// Package websocket fans run progress out to subscribed websocket clients.
package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/model"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
)

// Broadcaster publishes run events. The pipeline worker depends on this
// interface rather than on the hub.
type Broadcaster interface {
	BroadcastProgress(runID string, percent int, status model.RunStatus, step string)
	BroadcastComplete(runID string, state *model.RunState)
	BroadcastError(runID string, code, message string)
}

// Client is one websocket subscriber of a single run
type Client struct {
	RunID string
	Send  chan []byte
}

// Hub keeps subscribers grouped by run id. All map access happens on the Run goroutine.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	logger     *zap.Logger
}

// BroadcastMessage is an encoded message for the subscribers of one run
type BroadcastMessage struct {
	RunID   string
	Message []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		logger:     logger.With(zap.String("component", "ws_hub")),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for runID, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, runID)
			}
			return

		case client := <-h.register:
			if h.clients[client.RunID] == nil {
				h.clients[client.RunID] = make(map[*Client]struct{})
			}
			h.clients[client.RunID][client] = struct{}{}
			h.logger.Debug("client registered", zap.String("run_id", client.RunID))

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("client unregistered", zap.String("run_id", client.RunID))

		case msg := <-h.broadcast:
			for client := range h.clients[msg.RunID] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.RunID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.RunID)
	}
}

// Subscribe registers a new client for runID. After the hub has stopped the
// returned client's channel is already closed.
func (h *Hub) Subscribe(runID string) *Client {
	client := &Client{RunID: runID, Send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
	return client
}

// Unsubscribe removes a client
func (h *Hub) Unsubscribe(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastProgress sends a progress update to all run subscribers
func (h *Hub) BroadcastProgress(runID string, percent int, status model.RunStatus, step string) {
	h.publish(runID, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		RunID:    runID,
		Percent:  percent,
		Status:   status,
		Progress: step,
	})
}

// BroadcastComplete sends the final run state to all run subscribers
func (h *Hub) BroadcastComplete(runID string, state *model.RunState) {
	h.publish(runID, model.WSCompleteMessage{
		Type:  model.WSMessageTypeComplete,
		RunID: runID,
		State: state,
	})
}

// BroadcastError sends a failure to all run subscribers
func (h *Hub) BroadcastError(runID string, code, message string) {
	h.publish(runID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		RunID: runID,
		Error: model.WSError{Code: code, Message: message},
	})
}

// publish never blocks the caller; messages are dropped when the hub is backed up
func (h *Hub) publish(runID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.String("run_id", runID), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{RunID: runID, Message: data}:
	default:
		h.logger.Warn("broadcast queue full, dropping message", zap.String("run_id", runID))
	}
}

// SnapshotFunc describes a run's current state. It returns a nil message for
// an unknown run; terminal reports that no further events will follow.
type SnapshotFunc func() (msg interface{}, terminal bool)

// Attach subscribes to runID and only then takes the snapshot, so an event
// published while the snapshot is read still reaches the client.
func (h *Hub) Attach(runID string, snapshot SnapshotFunc) (client *Client, initial []byte, terminal bool) {
	client = h.Subscribe(runID)
	if snapshot == nil {
		return client, nil, false
	}

	msg, terminal := snapshot()
	if msg == nil {
		return client, nil, false
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal snapshot", zap.String("run_id", runID), zap.Error(err))
		return client, nil, false
	}
	return client, data, terminal
}

// HandleConnection serves one websocket subscriber. The snapshot is written
// before any broadcast; a terminal snapshot ends the stream.
func (h *Hub) HandleConnection(c *websocket.Conn, runID string, snapshot SnapshotFunc) {
	client, initial, terminal := h.Attach(runID, snapshot)
	defer h.Unsubscribe(client)

	if initial != nil {
		if err := c.WriteMessage(websocket.TextMessage, initial); err != nil {
			h.logger.Warn("failed to send initial state", zap.String("run_id", runID), zap.Error(err))
			return
		}
		if terminal {
			c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}

	pong := make(chan struct{}, 1)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-pong:
				data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
				if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("run_id", runID), zap.Error(err))
			}
			return
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			select {
			case pong <- struct{}{}:
			default:
			}
		}
	}
}
