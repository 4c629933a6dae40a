package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novaos/novaos/internal/store"
	"github.com/novaos/novaos/internal/telemetry"
)

// DefaultChannel is the store channel relayed when none is configured.
const DefaultChannel = "novaos:commands"

// writeTimeout bounds a single write to one client.
const writeTimeout = 5 * time.Second

// Mux is the route registration surface the relay mounts its transports on.
type Mux interface {
	Handle(pattern string, h http.Handler)
}

// Relay bridges one store channel to every client in a [Hub].
type Relay struct {
	store   store.Store
	channel string
	hub     *Hub
	metrics *telemetry.Metrics
	logger  *zap.Logger

	subscribed     chan struct{}
	subscribedOnce sync.Once
}

// New creates a relay for channel. An empty channel uses [DefaultChannel].
func New(st store.Store, channel string, hub *Hub, metrics *telemetry.Metrics, logger *zap.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if metrics == nil {
		metrics = telemetry.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		store:   st,
		channel: channel,
		hub:     hub,
		metrics: metrics,
		logger:  logger.With(zap.String("channel", channel)),

		subscribed: make(chan struct{}),
	}
}

// Hub returns the relay's client registry.
func (r *Relay) Hub() *Hub {
	return r.hub
}

// Register mounts the websocket transport at GET /ws and the SSE transport
// at GET /events.
func (r *Relay) Register(mux Mux) {
	mux.Handle("GET /ws", http.HandlerFunc(r.serveWebSocket))
	mux.Handle("GET /events", http.HandlerFunc(r.serveSSE))
}

// Subscribed returns a channel that is closed once the store first confirms
// the relay's subscription. Messages published after that reach every
// registered client.
func (r *Relay) Subscribed() <-chan struct{} {
	return r.subscribed
}

// Run holds one standing subscription on the relay channel until ctx is
// done, then closes every client. Store outages are retried inside the
// subscription; Run only returns early if the store gives up.
func (r *Relay) Run(ctx context.Context) error {
	defer r.hub.Close()

	r.logger.Info("relay subscribing")
	err := r.store.Subscribe(ctx, r.channel, r.handle, store.OnSubscribed(func() {
		r.subscribedOnce.Do(func() { close(r.subscribed) })
	}))
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// handle is invoked from the single subscription goroutine, so broadcasts
// happen in channel order.
func (r *Relay) handle(msg store.Message) {
	r.metrics.RelayReceived.Inc()

	payload := []byte(msg.Payload)
	if !json.Valid(payload) {
		r.metrics.RelayMalformed.Inc()
		r.logger.Warn("dropping malformed payload", zap.Int("bytes", len(payload)))
		return
	}

	n := r.hub.Broadcast(payload)
	r.logger.Debug("relayed message", zap.Int("clients", n))
}
