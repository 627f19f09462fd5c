// Package wsconn is the connection primitive shared by the publisher and the
// subscriber: one gorilla/websocket channel with uniform open/close semantics
// and no knowledge of topics or payload shape.
//
// Conn.Connect(ctx, url) dials and takes ownership; Conn.Disconnect() sends a
// normal-closure frame and releases ownership (no-op when nothing is owned).
// Conn.Send(v) writes one JSON text frame. Conn.Observe(fn) runs the read
// loop and reports the channel's life as a tagged Event:
//
//	Message(payload)  zero or more, in network order
//	Error(cause)      terminal
//	Completed         terminal, normal closure from either side
//
// Inbound frames must be JSON; anything else ends the channel with
// ErrInvalidPayload.
package wsconn
