package relay

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/novaos/novaos/internal/telemetry"
)

// DefaultQueueSize is the per-client send buffer used when none is given.
const DefaultQueueSize = 64

// ErrHubClosed is returned by [Hub.Register] after [Hub.Close].
var ErrHubClosed = errors.New("relay: hub closed")

// Hub is the registry of open client connections.
//
// Register, Unregister and Broadcast are safe for concurrent use. Broadcast
// copies the registry under a read lock and fans out after releasing it, so
// clients can join or leave mid-broadcast. Each client has its own buffered
// queue; a client whose queue is full is evicted instead of blocking the
// others.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool

	queueSize int
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

// NewHub creates an empty hub. A queueSize <= 0 uses [DefaultQueueSize].
func NewHub(queueSize int, metrics *telemetry.Metrics, logger *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if metrics == nil {
		metrics = telemetry.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:   make(map[string]*Client),
		queueSize: queueSize,
		metrics:   metrics,
		logger:    logger,
	}
}

// NewClient returns a Connecting client that receives nothing until it is
// registered.
func (h *Hub) NewClient(transport Transport) *Client {
	return newClient(transport, h.queueSize)
}

// Register opens c and adds it to the fan-out registry. The client receives
// every broadcast that starts after Register returns.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		c.close()
		return ErrHubClosed
	}
	if c.State() != StateConnecting {
		return errors.New("relay: client already registered")
	}

	c.state.Store(int32(StateOpen))
	h.clients[c.id] = c
	h.metrics.RelayClients.WithLabelValues(string(c.transport)).Inc()

	h.logger.Debug("client connected",
		zap.String("client", c.id),
		zap.String("transport", string(c.transport)),
		zap.Int("clients", len(h.clients)),
	)
	return nil
}

// Unregister removes c and closes it. It is a no-op for unknown or already
// removed clients.
func (h *Hub) Unregister(c *Client) {
	h.remove(c)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		h.metrics.RelayClients.WithLabelValues(string(c.transport)).Dec()
	}
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.Debug("client disconnected",
			zap.String("client", c.id),
			zap.Bool("evicted", c.Evicted()),
			zap.Int("clients", n),
		)
	}
}

// Broadcast queues msg to every open client and returns how many accepted
// it. Clients that cannot accept it are evicted.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	delivered := 0
	var slow []*Client
	for _, c := range snapshot {
		if c.enqueue(msg) {
			delivered++
			continue
		}
		slow = append(slow, c)
	}
	h.metrics.RelayDelivered.Add(float64(delivered))

	for _, c := range slow {
		c.evicted.Store(true)
		h.metrics.RelayEvicted.Inc()
		h.logger.Warn("evicting slow client",
			zap.String("client", c.id),
			zap.String("transport", string(c.transport)),
			zap.Int("queue_size", h.queueSize),
		)
		h.remove(c)
	}
	return delivered
}

// Len returns the number of open clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every client and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*Client)
	for _, c := range clients {
		h.metrics.RelayClients.WithLabelValues(string(c.transport)).Dec()
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.logger.Info("hub closed", zap.Int("clients", len(clients)))
}
