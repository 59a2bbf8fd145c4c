package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ndmitriev/payhub/internal/handlers/actorctx"
	"github.com/ndmitriev/payhub/internal/handlers/render"
	"github.com/ndmitriev/payhub/internal/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleStatusStream upgrades the connection and forwards status updates for
// the actor's own withdrawals. Admins may watch any applicant's channel via
// the applicant_id query parameter. The stream is a hint channel: missed
// events are recovered by polling, so the handler never buffers beyond the
// subscription and simply drops the connection on any write failure.
func handleStatusStream(stream statusStream, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		channelID := actor.ID
		if raw := r.URL.Query().Get("applicant_id"); raw != "" && actor.IsAdmin() {
			id, err := uuid.Parse(raw)
			if err != nil {
				render.ServiceError(w, "Invalid applicant id", http.StatusBadRequest)
				return
			}
			channelID = id
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an error
			l.Debug("WebSocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		sub := stream.Subscribe(channelID)
		defer sub.Close()

		// Read pump exists only to notice the peer going away and to answer
		// control frames
		done := make(chan struct{})
		go func() {
			defer close(done)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case update := <-sub.Updates():
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(update); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
