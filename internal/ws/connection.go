package ws

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

type Connection struct {
	ws   *websocket.Conn
	send chan []byte
	room string
	uid  string
	hub  *Hub
}

func NewConnection(conn *websocket.Conn, uid, room string, hub *Hub) *Connection {
	return &Connection{
		ws:   conn,
		send: make(chan []byte, 256),
		room: room,
		uid:  uid,
		hub:  hub,
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.Unregister(c.room, c)
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(1024)
	_ = c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// incoming frames are keepalive only
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
