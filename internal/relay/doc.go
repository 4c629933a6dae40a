// Package relay bridges a store pub/sub channel to live client connections.
//
// A [Relay] holds exactly one standing subscription on its channel. Each
// payload that parses as JSON is broadcast verbatim through the [Hub] to
// every open client, in the order the store delivered it. Payloads that do
// not parse are dropped and counted. Clients only see messages broadcast
// after they registered; there is no replay.
//
// Two transports share the hub:
//
//   - GET /ws: websocket, one text frame per message
//   - GET /events: Server-Sent Events, one "message" event per message
package relay
