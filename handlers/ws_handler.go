package handlers

import (
	"log"
	"net/http"
	"time"

	"clinic-queue/config"
	"clinic-queue/services"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
)

const maxMessageSize = 4096

// QueueSocketHandler upgrades HTTP requests to WebSocket sessions and
// runs one reader and one writer goroutine per connection. The writer
// drains the client's outbound channel, so a slow socket only ever
// stalls itself.
type QueueSocketHandler struct {
	registry   *services.Registry
	dispatcher *services.Dispatcher
	cfg        *config.Config
	upgrader   websocket.Upgrader
}

func NewQueueSocketHandler(registry *services.Registry, dispatcher *services.Dispatcher, cfg *config.Config) *QueueSocketHandler {
	return &QueueSocketHandler{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Auth happens at the message layer; browsers of any
				// origin may open the socket.
				return true
			},
		},
	}
}

// Serve handles GET /ws/queue.
func (h *QueueSocketHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client, err := h.registry.Register()
	if err != nil {
		conn.Close()
		return err
	}

	log.Printf("New queue client connected: %s", client.ID)

	go h.writePump(conn, client)
	h.readPump(conn, client)
	return nil
}

func (h *QueueSocketHandler) readPump(conn *websocket.Conn, client *services.Client) {
	defer func() {
		h.dispatcher.HandleDisconnect(client.ID)
		conn.Close()
	}()

	// The liveness sweep evicts idle clients; the transport deadline is
	// kept looser so the sweep, not the socket, decides.
	readWait := 2 * h.cfg.ConnIdleTimeout

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Queue client %s read error: %v", client.ID, err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readWait))
		h.dispatcher.HandleMessage(client.ID, message)
	}
}

func (h *QueueSocketHandler) writePump(conn *websocket.Conn, client *services.Client) {
	pingPeriod := h.cfg.ConnIdleTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Outbound():
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				// Registry removed the client; tell the peer goodbye.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing connection"))
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
