package mq

import (
	"context"
	"time"
)

// MessageQueue is the broker surface used by the judge: publishing status events
// and rejudge requests, and consuming weighted job topics.
type MessageQueue interface {
	Producer

	// SubscribeWeighted registers handler for topics fetched in proportion to their weights.
	SubscribeWeighted(ctx context.Context, topics []WeightedTopic, handler HandlerFunc, opts *SubscribeOptions, limiter FetchLimiter) error

	// Start starts consuming messages
	Start() error

	// Stop stops fetching and waits for in-flight handlers to return
	Stop() error

	// Ping verifies the message queue connection is alive
	Ping(ctx context.Context) error

	// Close closes the message queue connection
	Close() error
}

// Producer defines the interface for publishing messages
type Producer interface {
	// Publish publishes a message to the specified topic
	Publish(ctx context.Context, topic string, message *Message) error
}

// FetchLimiter gates how many fetched messages may be in flight at once.
type FetchLimiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// Message represents a message in the queue
type Message struct {
	// ID is the unique identifier for the message, also used as the partition key
	ID string `json:"id"`

	// Body is the message payload
	Body []byte `json:"body"`

	// Headers contains metadata about the message
	Headers map[string]string `json:"headers"`

	// Timestamp is when the message was created
	Timestamp time.Time `json:"timestamp"`

	// Topic the message was consumed from; empty for outgoing messages
	Topic string `json:"topic,omitempty"`

	// Expiration drops the message unhandled once it is older than this
	Expiration time.Duration `json:"expiration"`
}

// HandlerFunc is the function signature for message handlers.
// A nil return commits the message. A non-nil return commits it too, after
// forwarding it to the dead letter topic when one is configured; messages are
// never redelivered for handler errors.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions defines options for subscribing to topics
type SubscribeOptions struct {
	// ConsumerGroup is the consumer group name
	ConsumerGroup string

	// DeadLetterTopic receives messages whose handler returned an error
	DeadLetterTopic string

	// MessageTTL sets the time-to-live for messages without their own expiration
	MessageTTL time.Duration
}

// NewMessage creates a new message with the given body
func NewMessage(id string, body []byte) *Message {
	return &Message{
		ID:        id,
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}

// Expired reports whether the message outlived its expiration at now.
func (m *Message) Expired(now time.Time) bool {
	if m.Expiration <= 0 || m.Timestamp.IsZero() {
		return false
	}
	return now.Sub(m.Timestamp) > m.Expiration
}
