package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hairizuanbinnoorazman/persona-navigator/broadcast"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/recorder"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// ClientMessage is a control message sent by an observer.
type ClientMessage struct {
	Type    string `json:"type"`
	StudyID string `json:"study_id"`
}

// LiveHandler streams study events and screencast frames to websocket observers.
type LiveHandler struct {
	hub      *broadcast.Hub
	live     *recorder.LiveState
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewLiveHandler creates a live handler. An empty allowedOrigins accepts any origin.
func NewLiveHandler(hub *broadcast.Hub, live *recorder.LiveState, allowedOrigins []string, log logger.Logger) *LiveHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &LiveHandler{
		hub:  hub,
		live: live,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		logger: log,
	}
}

// ServeWS upgrades the connection. The observer starts with no subscriptions and sends
// {"type":"subscribe","study_id":...} to select a study; each subscribe replaces the previous
// one and is answered with a snapshot before any live event.
func (h *LiveHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	c := &liveClient{
		ctx:     r.Context(),
		id:      uuid.NewString(),
		conn:    conn,
		sub:     h.hub.Subscribe(),
		handler: h,
	}
	h.logger.Info(r.Context(), "live observer connected", map[string]interface{}{
		"client_id": c.id,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	c.sub.Close()
	<-done

	h.logger.Info(r.Context(), "live observer disconnected", map[string]interface{}{
		"client_id": c.id,
		"dropped":   c.sub.Dropped(),
	})
}

type liveClient struct {
	ctx     context.Context
	id      string
	conn    *websocket.Conn
	sub     *broadcast.Subscription
	handler *LiveHandler
}

// readPump handles control messages until the peer goes away.
func (c *liveClient) readPump() {
	log := c.handler.logger
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug(c.ctx, "websocket read error", map[string]interface{}{
					"client_id": c.id,
					"error":     err.Error(),
				})
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug(c.ctx, "ignoring malformed client message", map[string]interface{}{
				"client_id": c.id,
			})
			continue
		}
		if msg.Type != "subscribe" {
			continue
		}
		studyID, err := uuid.Parse(msg.StudyID)
		if err != nil {
			continue
		}
		c.subscribe(studyID)
	}
}

// subscribe switches the client to studyID. The snapshot and the channel set are taken under
// the subscription lock, so the snapshot precedes every event delivered afterwards.
func (c *liveClient) subscribe(studyID uuid.UUID) {
	live := c.handler.live
	channels := []string{broadcast.StudyChannel(studyID.String())}
	for _, s := range live.Study(studyID) {
		channels = append(channels, broadcast.ScreencastChannel(s.SessionID))
	}

	c.sub.Reset(func() (broadcast.Message, bool) {
		msg, err := live.SnapshotMessage(studyID)
		if err != nil {
			c.handler.logger.Error(c.ctx, "failed to build snapshot", map[string]interface{}{
				"error":    err.Error(),
				"study_id": studyID.String(),
			})
			return broadcast.Message{}, false
		}
		return msg, true
	}, channels...)

	// Sessions that started between the lookup and the reset.
	for _, s := range live.Study(studyID) {
		if channel := broadcast.ScreencastChannel(s.SessionID); !c.sub.Has(channel) {
			c.sub.Add(channel)
		}
	}
}

// writePump is the connection's only writer.
func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.C():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !msg.Binary {
				c.follow(msg.Data)
			}
			kind := websocket.TextMessage
			if msg.Binary {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, msg.Data); err != nil {
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

// follow adds the screencast channel of a session that started after the subscribe.
func (c *liveClient) follow(data []byte) {
	var ev struct {
		Type      string `json:"type"`
		StudyID   string `json:"study_id"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type != recorder.EventSessionStarted || ev.SessionID == "" {
		return
	}
	// Skip events of a study the client has since switched away from.
	if !c.sub.Has(broadcast.StudyChannel(ev.StudyID)) {
		return
	}
	channel := broadcast.ScreencastChannel(ev.SessionID)
	if !c.sub.Has(channel) {
		c.sub.Add(channel)
	}
}
