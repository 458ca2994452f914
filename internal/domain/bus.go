package domain

import "context"

// EventBus is the best-effort sink for decision records and rule-change
// notifications. Supports Go channels (community) or NATS (pro). Publish
// failures are logged by callers and never propagated to decide callers.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, orgID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic. Returns a subscription that
	// can be used to unsubscribe.
	Subscribe(ctx context.Context, orgID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	OrgID     string            `json:"orgId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names.
const (
	TopicDecisionRecorded = "kestrel.decision.recorded"
	TopicRuleUpdated      = "kestrel.rule.updated"
)
