package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/meetup/pkg/model"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeyPrefix prefixes the notification kind in every routing key,
// e.g. "meetup.invite".
const RoutingKeyPrefix = "meetup."

// Publisher is the subset of *amqp.Channel used by AMQPSink.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPConfig configures the RabbitMQ connection.
type AMQPConfig struct {
	URL            string
	Exchange       string
	ConnectRetries int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

// AMQPSink publishes notifications as JSON to a topic exchange.
type AMQPSink struct {
	pub      Publisher
	exchange string
	timeout  time.Duration
	logger   *slog.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPSink creates a sink publishing through pub. It does not declare the
// exchange.
func NewAMQPSink(pub Publisher, exchange string, timeout time.Duration, logger *slog.Logger) *AMQPSink {
	return &AMQPSink{
		pub:      pub,
		exchange: exchange,
		timeout:  timeout,
		logger:   logger.With("component", "amqp"),
	}
}

// DialAMQP connects to RabbitMQ, retrying up to cfg.ConnectRetries times,
// declares a durable topic exchange and returns a sink bound to it. Close
// releases the channel and connection.
func DialAMQP(ctx context.Context, cfg AMQPConfig, logger *slog.Logger) (*AMQPSink, error) {
	logger = logger.With("component", "amqp")
	attempts := max(cfg.ConnectRetries, 1)

	var conn *amqp.Connection
	var err error
	for i := 1; i <= attempts; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		logger.Warn("connect failed, retrying", "attempt", i, "error", err, "delay", cfg.RetryDelay)
		if i == attempts {
			return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", attempts, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	logger.Info("connected to rabbitmq", "exchange", cfg.Exchange)

	s := NewAMQPSink(ch, cfg.Exchange, cfg.PublishTimeout, logger)
	s.conn = conn
	s.channel = ch
	return s, nil
}

// Deliver publishes n with routing key RoutingKeyPrefix+kind. The correlation
// token, when set, becomes the message CorrelationId.
func (s *AMQPSink) Deliver(ctx context.Context, n *model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	key := RoutingKeyPrefix + string(n.Kind)
	s.logger.Debug("publish", "routing_key", key, "event_id", n.EventID, "correlation_id", n.CorrelationToken)
	return s.pub.PublishWithContext(ctx, s.exchange, key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: n.CorrelationToken,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     n.CreatedAt,
			Body:          body,
		})
}

// Close closes the channel and connection opened by DialAMQP.
func (s *AMQPSink) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
