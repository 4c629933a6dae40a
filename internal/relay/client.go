package relay

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Transport identifies how a client is connected.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
)

// State is the lifecycle position of a client connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one live subscriber of the relay.
//
// A Client is created Connecting by [Hub.NewClient], becomes Open when
// [Hub.Register] adds it to the fan-out registry, and is Closed exactly once
// on disconnect, eviction or hub shutdown. The transport handler drains
// [Client.Send] until [Client.Done] is closed.
type Client struct {
	id        string
	transport Transport

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	evicted   atomic.Bool
}

func newClient(transport Transport, queueSize int) *Client {
	return &Client{
		id:        uuid.NewString(),
		transport: transport,
		send:      make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
}

// ID returns the client's registry key.
func (c *Client) ID() string { return c.id }

// Transport returns how the client is connected.
func (c *Client) Transport() Transport { return c.transport }

// State returns the client's current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// Send delivers relayed payloads in broadcast order.
func (c *Client) Send() <-chan []byte { return c.send }

// Done is closed when the client leaves the Open state.
func (c *Client) Done() <-chan struct{} { return c.done }

// Evicted reports whether the client was closed for falling behind.
func (c *Client) Evicted() bool { return c.evicted.Load() }

// enqueue queues msg without blocking. It reports false when the queue is
// full.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close moves the client to Closed. The send channel is left open so a
// concurrent broadcast never writes to a closed channel.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}
