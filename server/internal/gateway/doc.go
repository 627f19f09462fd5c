// Package gateway bridges browser WebSocket clients and the broker.
//
// Two endpoints share one HTTP server (see Routes):
//
//	/topic/{topic}/stream/{stream}
//	    Publish. Each inbound text message is produced to {topic} keyed by
//	    {stream}. Channels are expected to be short-lived: connect, send,
//	    close. Idle channels are closed after a minute.
//
//	/topic/{topic}
//	    Subscribe. Hub keeps the clients of each topic and runs one broker
//	    consumer per topic while it has clients. Every consumed value is sent
//	    to every client of the topic; values that are not JSON are wrapped as
//	    JSON strings. Clients are pinged periodically. A client whose send
//	    buffer fills is disconnected with a policy-violation close.
//
// Hub.Close (or cancelling Hub.Run's context) sends going-away to every
// client and refuses new ones.
package gateway
