package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/venue-jukebox/internal/apperr"
	"github.com/venue-jukebox/pkg/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// conn is one subscriber. Only writePump writes to ws.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

// Handler streams venue events to websocket subscribers.
type Handler struct {
	// venueID -> set of connections
	venues   map[string]map[*conn]struct{}
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler builds the hub. allowOrigins limits browser origins; empty
// allows any.
func NewHandler(allowOrigins []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = true
	}
	return &Handler{
		venues: make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		logger: logger.With().Str("handler", "ws").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws/:venueId", h.HandleWebSocket)
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	venueID := c.Param("venueId")
	if _, err := uuid.Parse(venueID); err != nil {
		apperr.Respond(c, apperr.ErrNotFound)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}

	cn := &conn{ws: ws, send: make(chan []byte, sendBuffer)}
	h.addConnection(venueID, cn)
	h.logger.Debug().Str("venue_id", venueID).Str("user_id", c.GetString("user_id")).Msg("Subscriber connected")

	go h.writePump(cn)
	h.readPump(venueID, cn)
}

// Broadcast delivers event to every subscriber of its venue. Subscribers
// whose buffer is full are dropped.
func (h *Handler) Broadcast(event events.Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal event")
		return
	}

	var slow []*conn
	h.mu.RLock()
	for cn := range h.venues[event.VenueID] {
		select {
		case cn.send <- message:
		default:
			slow = append(slow, cn)
		}
	}
	h.mu.RUnlock()

	for _, cn := range slow {
		h.removeConnection(event.VenueID, cn)
	}
}

// Subscribers returns the number of open connections for venueID.
func (h *Handler) Subscribers(venueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.venues[venueID])
}

func (h *Handler) addConnection(venueID string, cn *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.venues[venueID]; !exists {
		h.venues[venueID] = make(map[*conn]struct{})
	}
	h.venues[venueID][cn] = struct{}{}
}

func (h *Handler) removeConnection(venueID string, cn *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.venues[venueID]
	if !exists {
		return
	}
	if _, exists := room[cn]; !exists {
		return
	}
	delete(room, cn)
	close(cn.send)
	if len(room) == 0 {
		delete(h.venues, venueID)
	}
}

// readPump discards client messages and keeps the connection alive until the
// peer goes away.
func (h *Handler) readPump(venueID string, cn *conn) {
	defer func() {
		h.removeConnection(venueID, cn)
		cn.ws.Close()
	}()

	cn.ws.SetReadLimit(512)
	_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cn.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("venue_id", venueID).Msg("WebSocket closed")
			}
			return
		}
	}
}

func (h *Handler) writePump(cn *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cn.ws.Close()
	}()

	for {
		select {
		case message, ok := <-cn.send:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
