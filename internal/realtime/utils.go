package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// writeMessage sends a pre-encoded text frame with a write deadline.
func writeMessage(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// writeTyped encodes and sends a protocol message.
func writeTyped(conn *websocket.Conn, kind Kind, payload interface{}) error {
	data, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	return writeMessage(conn, data)
}

// readEnvelope reads the next message and extends the read deadline.
func readEnvelope(conn *websocket.Conn, env *Envelope) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	return conn.ReadJSON(env)
}

// keepReadAlive extends the read deadline whenever the peer proves liveness.
func keepReadAlive(conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
}
