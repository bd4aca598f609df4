package activity

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

const writeTimeout = 5 * time.Second

// WebSocketHandler streams a store's events as JSON messages.
type WebSocketHandler struct {
	hub            *Hub
	originPatterns []string
}

// NewWebSocketHandler creates a handler. originPatterns follow
// websocket.AcceptOptions; a "*" entry accepts any origin.
func NewWebSocketHandler(hub *Hub, originPatterns []string) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler. The route must bind {storeID}; an
// optional ?after=<id> replays buffered events newer than id.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	if storeID == "" {
		http.Error(w, "missing store id", http.StatusBadRequest)
		return
	}
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid after", http.StatusBadRequest)
			return
		}
		after = n
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Error("failed to accept activity websocket", "error", err, "store_id", storeID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed closed"); closeErr != nil {
			slog.Debug("failed to close activity websocket", "error", closeErr, "store_id", storeID)
		}
	}()

	replay, events, cancel := h.hub.Subscribe(storeID, after)
	defer cancel()
	slog.Info("activity subscriber connected", "store_id", storeID, "replay", len(replay))

	// The feed is one-way; CloseRead handles control frames and cancels ctx
	// when the client goes away.
	ctx := ws.CloseRead(r.Context())

	for _, ev := range replay {
		if err := write(ctx, ws, ev); err != nil {
			return
		}
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(ctx, ws, ev); err != nil {
				slog.Debug("activity write failed", "error", err, "store_id", storeID)
				return
			}
		case <-ctx.Done():
			slog.Info("activity subscriber disconnected", "store_id", storeID)
			return
		}
	}
}

func write(ctx context.Context, ws *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, ev)
}
