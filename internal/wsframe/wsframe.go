// Package wsframe implements the WebSocket text-frame concern (§4.1):
// the handshake accept-key computation, and thin send/receive helpers over
// gorilla/websocket's connection type. Framing itself (FIN bit, opcode,
// mask, 7/16/64-bit length variants) is handled by gorilla/websocket, which
// already implements RFC 6455 correctly; AcceptKey below exists because the
// handshake math is specified literally in the spec and is worth exercising
// on its own.
package wsframe

import (
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// websocketGUID is the magic string from RFC 6455 §1.3.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key: base64(sha1(key || GUID)).
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Upgrader is the shared gorilla/websocket upgrader. Origin checking is
// left permissive, matching the teacher's CORS posture on the HTTP side.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn wraps a gorilla/websocket connection with the ping/pong keepalive
// deadlines the teacher's client.go configures by hand.
type Conn struct {
	ws *websocket.Conn
}

// NewConn adopts an already-upgraded gorilla connection.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &Conn{ws: ws}
}

// ReadText blocks until one complete text frame is available, handing back
// its payload. Control frames (ping/pong/close) are handled transparently
// by gorilla/websocket's ReadMessage, and binary messages are read and
// discarded, so neither surfaces here.
func (c *Conn) ReadText() ([]byte, error) {
	for {
		mt, payload, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return payload, nil
		}
	}
}

// WriteText encodes payload as a single unmasked text frame (server→client
// frames MUST NOT be masked, per §4.1).
func (c *Conn) WriteText(payload []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Ping sends a control ping, used by the write pump's keepalive ticker.
func (c *Conn) Ping() error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// PingPeriod is exported so Connection's writer goroutine can share the
// single keepalive cadence defined here.
func PingPeriod() time.Duration { return pingPeriod }
