package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/yolodesk/internal/router"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// eventMessage is the JSON form of a non-frame router event.
type eventMessage struct {
	Kind     string         `json:"kind"`
	Seq      uint64         `json:"seq"`
	Time     int64          `json:"timestamp"`
	Path     string         `json:"path,omitempty"`
	Counts   map[string]int `json:"counts,omitempty"`
	Message  string         `json:"message,omitempty"`
	Progress int            `json:"progress"`
}

func toMessage(ev router.Event) eventMessage {
	return eventMessage{
		Kind:     ev.Kind.String(),
		Seq:      ev.Seq,
		Time:     ev.Time.UnixMilli(),
		Path:     ev.Path,
		Counts:   ev.Counts,
		Message:  ev.Message,
		Progress: ev.Progress,
	}
}

// EventsHandler pushes results, statuses, progress and fps to WebSocket
// clients.
type EventsHandler struct {
	router *router.Router
	logger *zap.SugaredLogger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(r *router.Router, logger *zap.SugaredLogger) *EventsHandler {
	return &EventsHandler{router: r, logger: logger}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// subscribe before the upgrade so nothing published after the handshake
	// is missed
	mb := h.router.Subscribe(router.Result, router.Status, router.Progress, router.FPS)
	defer mb.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Keep connection alive by reading messages
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		ev, err := mb.Next(ctx)
		if err != nil {
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteJSON(toMessage(ev))
		ev.Close()
		if err != nil {
			h.logger.Debugw("websocket client gone", "error", err)
			return
		}
	}
}
