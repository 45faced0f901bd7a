/**
 * @description
 * RabbitMQ publisher for payment tracking outcomes. Every tracked payment that
 * ends (confirmed, rejected, returned, or lost its status stream) is published
 * once to a durable topic exchange.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: AMQP 0-9-1 client.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/njabbott/npp-simulation/internal/domain"
)

// DefaultTrackingExchange is used when no exchange is configured.
const DefaultTrackingExchange = "npp.tracking"

// RoutingKeyPrefix prefixes every tracking outcome routing key.
const RoutingKeyPrefix = "payment.tracking."

// Publisher is the interface implemented by event publishers.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel.
type EventProducer struct {
	conn *amqp091.Connection

	mu      sync.Mutex
	channel *amqp091.Channel
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	log.Printf("level=info component=rabbitmq_producer msg=\"broker unavailable; publish skipped\" exchange=%s routing_key=%s", exchange, routingKey)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ with a bounded timeout.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

// NewPublisher returns a producer for amqpURL, or the fallback when the URL is
// empty or the broker cannot be reached.
func NewPublisher(amqpURL string) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		log.Printf("level=info component=rabbitmq_producer msg=\"RABBITMQ_URL not set; tracking outcomes will not be published\"")
		return &EventProducerFallback{}
	}
	producer, err := NewEventProducer(amqpURL)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"connect failed; using fallback publisher\" err=%v", err)
		return &EventProducerFallback{}
	}
	return producer
}

// Publish sends body as JSON to exchange. A failed declare or publish reopens
// the channel and is tried once more.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return errors.New("rabbitmq channel not initialized")
	}
	err = p.publishLocked(ctx, exchange, routingKey, payload)
	if err == nil {
		return nil
	}

	log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
	if p.conn == nil {
		return err
	}
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	_ = p.channel.Close()
	p.channel = ch
	return p.publishLocked(ctx, exchange, routingKey, payload)
}

func (p *EventProducer) publishLocked(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

// Close closes the RabbitMQ channel and connection.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// TrackingPublisher publishes tracking outcomes through a Publisher.
type TrackingPublisher struct {
	publisher Publisher
	exchange  string
}

// NewTrackingPublisher creates a TrackingPublisher. An empty exchange uses
// DefaultTrackingExchange.
func NewTrackingPublisher(publisher Publisher, exchange string) *TrackingPublisher {
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultTrackingExchange
	}
	return &TrackingPublisher{publisher: publisher, exchange: exchange}
}

// RoutingKey returns the routing key an outcome with status is published under,
// e.g. payment.tracking.confirmed.
func RoutingKey(status domain.PaymentStatus) string {
	return RoutingKeyPrefix + strings.ToLower(string(status))
}

// PublishTrackingOutcome publishes one outcome.
func (t *TrackingPublisher) PublishTrackingOutcome(ctx context.Context, outcome domain.TrackingOutcome) error {
	return t.publisher.Publish(ctx, t.exchange, RoutingKey(outcome.Status), outcome)
}

// Close closes the underlying publisher.
func (t *TrackingPublisher) Close() {
	t.publisher.Close()
}
