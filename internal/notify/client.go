package notify

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one websocket connection of one owner.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	ownerID string
	send    chan []byte
}

// ServeWS upgrades the request and streams ownerID's notifications to it.
//
// checkOrigin may be nil to use the gorilla same-origin default.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, ownerID string, checkOrigin func(*http.Request) bool) error {
	up := upgrader
	up.CheckOrigin = checkOrigin

	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		hub:     h,
		conn:    conn,
		ownerID: ownerID,
		send:    make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return ErrHubClosed
	case <-r.Context().Done():
		conn.Close()
		return r.Context().Err()
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump discards inbound messages and keeps the read deadline fresh from pongs.
// It unregisters the client when the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued messages and periodic pings until the hub closes send.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
