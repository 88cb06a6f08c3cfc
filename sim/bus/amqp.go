package bus

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AMQPConfig holds the RabbitMQ connection parameters. The field names match
// the environment variables the components are deployed with.
type AMQPConfig struct {
	Host     string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	Port     int    `env:"RABBITMQ_PORT" envDefault:"5672"`
	Login    string `env:"RABBITMQ_LOGIN" envDefault:"guest"`
	Password string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"v2g-sim"`
}

// URL renders the config as an AMQP connection URL.
func (c AMQPConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.Login, c.Password, c.Host, c.Port)
}

// AMQPBus is a Bus backed by a RabbitMQ topic exchange. Each subscription
// consumes from its own exclusive auto-deleted queue bound by pattern.
type AMQPBus struct {
	conn     *amqp.Connection
	exchange string

	mu      sync.Mutex
	pubCh   *amqp.Channel
	subChs  []*amqp.Channel
	closed  bool
	subWait sync.WaitGroup
}

// DialAMQP connects to RabbitMQ and declares the topic exchange.
func DialAMQP(cfg AMQPConfig) (*AMQPBus, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("connecting to RabbitMQ at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening publish channel: %w", err)
	}
	if err := declareExchange(pubCh, cfg.Exchange); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPBus{conn: conn, exchange: cfg.Exchange, pubCh: pubCh}, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,
		"topic",
		false, // durable
		true,  // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declaring exchange %q: %w", name, err)
	}
	return nil
}

// Publish sends body to the exchange with topic as the routing key.
func (b *AMQPBus) Publish(ctx context.Context, topic string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("publish on closed bus (topic %s)", topic)
	}
	err := b.pubCh.PublishWithContext(ctx, b.exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe binds a fresh exclusive queue to the patterns and dispatches
// deliveries to handler until the bus is closed. One queue per subscription
// keeps deliveries across the patterns in publish order.
func (b *AMQPBus) Subscribe(ctx context.Context, handler Handler, patterns ...string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("subscribe needs at least one pattern")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("subscribe on closed bus (patterns %v)", patterns)
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel for %v: %w", patterns, err)
	}
	queue, err := ch.QueueDeclare(
		"",    // broker-generated name
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declaring queue for %v: %w", patterns, err)
	}
	for _, pattern := range patterns {
		if err := ch.QueueBind(queue.Name, pattern, b.exchange, false, nil); err != nil {
			ch.Close()
			return fmt.Errorf("binding queue to %q: %w", pattern, err)
		}
	}
	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consuming from %v: %w", patterns, err)
	}

	b.subChs = append(b.subChs, ch)
	b.subWait.Add(1)
	go func() {
		defer b.subWait.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				dispatch(handler, d.RoutingKey, d.Body)
			}
		}
	}()
	return nil
}

func dispatch(handler Handler, routingKey string, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("handler panicked on %s: %v", routingKey, r)
		}
	}()
	handler(routingKey, body)
}

// Close closes every channel and the connection.
func (b *AMQPBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subChs := b.subChs
	pubCh := b.pubCh
	conn := b.conn
	b.mu.Unlock()

	for _, ch := range subChs {
		ch.Close()
	}
	b.subWait.Wait()
	pubCh.Close()
	return conn.Close()
}
