// Package connection publishes run progress to a WebSocket endpoint.
//
// A Client owns one connection: it answers server pings, sends its own
// keepalive pings and drains whatever the server writes back. A Publisher
// sits in front of a Client, queues outgoing frames and reconnects with
// exponential backoff when the connection drops, so callers never block on
// the network.
package connection
