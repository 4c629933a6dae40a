package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Event is the JSON payload producers announce on the relay channel.
type Event struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// ChannelPublisher is the store operation a [Publisher] needs.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// Publisher announces events on one named channel.
type Publisher struct {
	pub     ChannelPublisher
	channel string
}

// NewPublisher creates a publisher for channel.
func NewPublisher(pub ChannelPublisher, channel string) (*Publisher, error) {
	if pub == nil {
		return nil, errors.New("publisher requires a store")
	}
	if channel == "" {
		return nil, errors.New("publisher requires a channel name")
	}
	return &Publisher{pub: pub, channel: channel}, nil
}

// Channel returns the channel events are published on.
func (p *Publisher) Channel() string {
	return p.channel
}

// Publish encodes ev as JSON and publishes it.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.pub.Publish(ctx, p.channel, string(data)); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
