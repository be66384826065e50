package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ceevent "github.com/cloudevents/sdk-go/v2/event"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// ContentTypeCloudEventsJSON is the structured-mode CloudEvents media type
const ContentTypeCloudEventsJSON = "application/cloudevents+json"

// RabbitMQConfig holds the publisher settings
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Source   string
}

// amqpChannel is the subset of *amqp.Channel the publisher uses
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes sync events to a topic exchange, one structured
// CloudEvent per message, routed by event type.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	channel  amqpChannel
	exchange string
	source   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewRabbitMQPublisher dials the broker and declares the exchange
func NewRabbitMQPublisher(cfg RabbitMQConfig, logger *zap.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("Connected to RabbitMQ",
		zap.String("exchange", cfg.Exchange),
		zap.String("source", cfg.Source),
	)

	p := newRabbitMQPublisher(ch, cfg.Exchange, cfg.Source, logger)
	p.conn = conn
	return p, nil
}

func newRabbitMQPublisher(ch amqpChannel, exchange, source string, logger *zap.Logger) *RabbitMQPublisher {
	if source == "" {
		source = DefaultSource
	}
	return &RabbitMQPublisher{
		channel:  ch,
		exchange: exchange,
		source:   source,
		logger:   logger,
		now:      time.Now,
	}
}

// PublishRunCompleted announces a closed run
func (p *RabbitMQPublisher) PublishRunCompleted(ctx context.Context, run *integration.SyncRun) error {
	e, err := NewRunEvent(p.source, EventTypeRunCompleted, run, "", p.now())
	if err != nil {
		return err
	}
	return p.publish(ctx, e)
}

// PublishRunEscalated announces a pair that now needs manual intervention
func (p *RabbitMQPublisher) PublishRunEscalated(ctx context.Context, run *integration.SyncRun, reason string) error {
	e, err := NewRunEvent(p.source, EventTypeRunEscalated, run, reason, p.now())
	if err != nil {
		return err
	}
	return p.publish(ctx, e)
}

// PublishRecordQuarantined announces a record held for review
func (p *RabbitMQPublisher) PublishRecordQuarantined(ctx context.Context, record *integration.QuarantineRecord) error {
	e, err := NewQuarantineEvent(p.source, record, p.now())
	if err != nil {
		return err
	}
	return p.publish(ctx, e)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, e ceevent.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		e.Type(),
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  ContentTypeCloudEventsJSON,
			MessageId:    e.ID(),
			Type:         e.Type(),
			Timestamp:    e.Time(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type(), err)
	}

	p.logger.Debug("Published sync event",
		zap.String("event_id", e.ID()),
		zap.String("event_type", e.Type()),
		zap.String("subject", e.Subject()),
	)
	return nil
}

// Close closes the channel and connection
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ integration.SyncEventPublisher = (*RabbitMQPublisher)(nil)
