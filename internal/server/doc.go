// Package server is the WebSocket transport for the room relay.
//
// It upgrades HTTP requests with gorilla/websocket, runs a read and a write
// pump per connection and hands every inbound frame to the relay. The Hub
// owns connection lifecycle: it registers clients with the relay, starts
// their pumps, turns close and error events into relay disconnects and
// closes everything on shutdown.
package server
