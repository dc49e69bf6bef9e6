package handlers

import (
	"net/http"
	"time"

	"aquadetect/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	viewerReadTimeout = 60 * time.Second
	viewerPingPeriod  = viewerReadTimeout * 9 / 10
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Viewers tracks live feed connections.
type Viewers interface {
	Register(conn *websocket.Conn)
	Unregister(conn *websocket.Conn)
}

// LiveWebsocketHandler subscribes a viewer to detection events. Viewers only listen;
// anything they send is discarded.
func LiveWebsocketHandler(viewers Viewers, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
			return nil
		})

		viewers.Register(connection)
		defer viewers.Unregister(connection)

		stop := make(chan struct{})
		defer close(stop)
		go keepAlive(connection, stop)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				// A normal close is not an error
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warning("Viewer read error: %v", err)
				}
				return
			}
			connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
		}
	}
}

// keepAlive pings the viewer so its pong keeps the read deadline moving.
func keepAlive(connection *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(viewerPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
