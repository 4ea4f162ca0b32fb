package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange records are published to.
const DefaultExchange = "knoldrill.snapshots"

// AMQPSink publishes records as persistent JSON messages on a topic
// exchange. The routing key is "snapshot.<kind>".
type AMQPSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
	logger   *slog.Logger
}

// NewAMQPSink connects to the broker at uri and declares the exchange. An
// empty uri returns a disabled sink that accepts and discards every record.
func NewAMQPSink(uri, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if uri == "" {
		logger.Warn("AMQP URI is empty, snapshot publishing is disabled")
		return &AMQPSink{enabled: false, logger: logger}, nil
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPSink{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		logger:   logger,
	}, nil
}

// Enabled reports whether the sink publishes to a broker.
func (s *AMQPSink) Enabled() bool {
	return s.enabled
}

// Deliver implements Sink.
func (s *AMQPSink) Deliver(ctx context.Context, r Record) error {
	if !s.enabled {
		s.logger.Debug("Snapshot publishing is disabled, skipping record", "kind", r.Kind, "key", r.Key)
		return nil
	}

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = s.channel.PublishWithContext(
		pubCtx,
		s.exchange,         // exchange
		RoutingKey(r.Kind), // routing key
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    r.ID,
			Timestamp:    r.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (s *AMQPSink) Close() error {
	if !s.enabled {
		return nil
	}
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return s.conn.Close()
}

// RoutingKey returns the routing key for records of kind k.
func RoutingKey(k Kind) string {
	return "snapshot." + string(k)
}
