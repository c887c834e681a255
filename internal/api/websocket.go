package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/markusressel/heat2go/internal/ui"
)

const (
	snapshotInterval = 250 * time.Millisecond
	writeTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func registerWebsocketEndpoint(rest *echo.Echo, h *handlers) {
	rest.GET("/ws/", h.streamSnapshots)
}

// streamSnapshots sends a snapshot of all channels and fans until the client disconnects
func (h *handlers) streamSnapshots(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					ui.Debug("Websocket read error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(h.loop.Manager().Snapshot()); err != nil {
			ui.Debug("Websocket write error: %v", err)
			return nil
		}

		select {
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}
