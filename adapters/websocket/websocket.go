package websocket

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"progresskit/core"
	"progresskit/realtime"
)

// Handler returns an http.Handler that upgrades to WebSocket and streams
// progression events from the hub. A non-empty "user" query parameter limits
// the stream to that user's events.
func Handler(hub *realtime.Hub) http.Handler {
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var id int
		var ch <-chan core.Event
		if uid, err := core.NormalizeUserID(core.UserID(r.URL.Query().Get("user"))); err == nil {
			id, ch = hub.SubscribeUser(uid, 256)
		} else {
			id, ch = hub.Subscribe(256)
		}
		defer hub.Unsubscribe(id)

		for ev := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
				return
			}
		}
	})
}
