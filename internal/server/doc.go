// Package server hosts novaos services over HTTP.
//
// A [Server] owns one listening port. Services (snapshot, journal, relay)
// mount their routes on it, and several services configured on the same port
// share one Server. Every Server also answers:
//
//   - GET /healthz: liveness, {"ok":true,"service":name}
//   - GET /readyz: readiness, 503 when the store cannot be reached
//
// All responses carry permissive CORS headers. The server shuts down
// gracefully on context cancellation, with a 5-second timeout for in-flight
// requests.
package server
