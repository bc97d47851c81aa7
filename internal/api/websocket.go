package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS middleware
	},
}

// Hub maintains the set of active websocket clients and pushes verdicts and
// alerts down to monitoring dashboards. It also serves as a notification
// sink, so BLOCK and silence events reach connected dashboards without extra
// wiring.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline keeps one stuck client from hanging the hub.
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Str("component", "ws").Err(err).Msg("dropping websocket client")
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades the request and registers the client.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("component", "ws").Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()
	log.Info().Str("component", "ws").Int("clients", total).Msg("websocket client connected")

	// Read loop exists only to notice disconnects; the stream is push-only.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			remaining := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Info().Str("component", "ws").Int("clients", remaining).Msg("websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Debug().Str("component", "ws").Err(err).Msg("websocket read error")
				}
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Broadcast queues raw bytes for every client, dropping when the hub is
// saturated.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		log.Warn().Str("component", "ws").Msg("websocket broadcast buffer full, dropping")
	}
}

// BroadcastJSON marshals and broadcasts a payload.
func (h *Hub) BroadcastJSON(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Str("component", "ws").Err(err).Msg("broadcast marshal failed")
		return
	}
	h.Broadcast(data)
}

// NotifyBlocked implements the notification sink: connected dashboards see
// every BLOCK as it happens.
func (h *Hub) NotifyBlocked(txn *models.Transaction, result *models.EvaluationResult) {
	h.BroadcastJSON(map[string]any{
		"type":   "blocked",
		"txn":    txn,
		"result": result,
	})
}

// NotifySilent pushes silence alerts to dashboards.
func (h *Hub) NotifySilent(clientID string, silenceMinutes, expectedGapMinutes, hourlyTps float64) {
	h.BroadcastJSON(map[string]any{
		"type":               "silence",
		"clientId":           clientID,
		"silenceMinutes":     silenceMinutes,
		"expectedGapMinutes": expectedGapMinutes,
		"hourlyTps":          hourlyTps,
	})
}
