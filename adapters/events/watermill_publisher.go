package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

const (
	// DefaultTopic is the topic session events are published on
	DefaultTopic = "tokenauth.sessions"

	EventIssued  = "session.issued"
	EventRevoked = "session.revoked"
)

// SessionEvent is the payload of a session lifecycle message.
// It carries the token fingerprint, never the token value.
type SessionEvent struct {
	Type        string    `json:"type"`
	Identity    string    `json:"identity"`
	Fingerprint string    `json:"fingerprint"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
		now:       time.Now,
	}
}

// PublishIssued publishes a session.issued event
func (p *WatermillPublisher) PublishIssued(ctx context.Context, tok core.Token) error {
	return p.publish(ctx, EventIssued, tok)
}

// PublishRevoked publishes a session.revoked event
func (p *WatermillPublisher) PublishRevoked(ctx context.Context, tok core.Token) error {
	return p.publish(ctx, EventRevoked, tok)
}

func (p *WatermillPublisher) publish(ctx context.Context, eventType string, tok core.Token) error {
	event := SessionEvent{
		Type:        eventType,
		Identity:    tok.Owner.String(),
		Fingerprint: tok.Fingerprint(),
		OccurredAt:  p.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", eventType)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishIssued(context.Context, core.Token) error  { return nil }
func (NopPublisher) PublishRevoked(context.Context, core.Token) error { return nil }
