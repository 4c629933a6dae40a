// Package novaos relays operational events from background producers to
// live clients and serves read/write endpoints over a shared Redis store.
//
// # Quick Start
//
//	trend, _ := novaos.TrendFetcher()
//	n, _ := novaos.New(
//	    novaos.WithStoreURL("redis://localhost:6379/0"),
//	    novaos.WithProducer(trend),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	n.Start(ctx) // blocks until ctx is cancelled
//
// # Services
//
// Three HTTP services run against the store, each on its own port unless
// configured to share one:
//
//   - relay (4000): GET /ws (websocket) and GET /events (server-sent
//     events) stream every valid JSON message published on the relay
//     channel to every connected client
//   - metrics (5000): GET /metrics returns the counter snapshot,
//     POST /counters/{name}/incr increments a counter, GET /producers
//     reports producer status and GET /prometheus exposes telemetry
//   - memory (6000): GET and POST /memory read and append the journal
//
// Every service also answers GET /healthz and GET /readyz.
//
// Counter reads never fail: a missing, malformed or unreachable value is
// served as the counter's default. Late clients receive only messages
// published after they connected.
//
// # Producers
//
// A [Producer] runs on its own interval, checks the store, does its work and
// publishes the [Event] it returns on the relay channel. Built-ins:
//
//   - [TrendFetcher]: increments the active streams counter
//   - [TimeSentinel]: counts down to a deadline
//   - [HTTPCheck]: watches an HTTP endpoint using a [HealthExtractor]
//
// Producer failures are logged and recorded; they never stop the service.
//
// # Architecture
//
// The internal packages are not part of the public API:
//
//   - internal/store: Redis and in-memory store clients
//   - internal/relay: channel subscription and client fan-out
//   - internal/snapshot: counter snapshot service
//   - internal/journal: append-only journal service
//   - internal/producer: producer scheduler and publisher
//   - internal/server: HTTP hosting, health and CORS
//   - internal/telemetry: Prometheus collectors
package novaos
