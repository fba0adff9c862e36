// Package transports wires every Transporter implementation into the default
// lookup table.
package transports

import (
	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/connection/transporter/longpolling"
	"bastionzero.com/wasync/connection/transporter/sse"
	"bastionzero.com/wasync/connection/transporter/streaming"
	"bastionzero.com/wasync/connection/transporter/websocket"
)

func Default() transporter.Table {
	return transporter.Table{
		transporter.WebSocket:   websocket.New,
		transporter.SSE:         sse.New,
		transporter.LongPolling: longpolling.New,
		transporter.Streaming:   streaming.New,
	}
}
