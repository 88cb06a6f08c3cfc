// Package bus provides the topic-based message bus the simulation components
// communicate over: an AMQP implementation for deployed runs and an in-memory
// implementation for tests and in-process scenarios. Both follow RabbitMQ
// topic-exchange routing semantics.
package bus

import "context"

// Handler consumes one delivered message. The routing key is the topic the
// message was published on, which may be narrower than the subscribed pattern.
type Handler func(routingKey string, body []byte)

// Bus publishes and subscribes raw message bodies by topic.
type Bus interface {
	// Publish sends body to every subscription with a pattern matching topic.
	Publish(ctx context.Context, topic string, body []byte) error
	// Subscribe registers handler for every topic matching one of the
	// patterns. A subscription is one queue with one consumer, so messages
	// matching any of its patterns are handled one at a time in publish
	// order. RabbitMQ wildcards apply: "*" matches one dot-separated word,
	// "#" matches zero or more words.
	Subscribe(ctx context.Context, handler Handler, patterns ...string) error
	// Close tears the bus connection down. Publish after Close fails.
	Close() error
}
