package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notify_relay/internal/domain"
)

const eventSchemaVersion = 1

// RabbitMQ mirrors announcements as JSON events on a topic exchange. Each
// event is routed as "<routing_key>.<kind>", so consumers can bind to one
// kind or to "<routing_key>.#".
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	prefix   string
	source   string
	logger   *slog.Logger
}

type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	// QueueName, when set, declares a durable queue bound to every kind so
	// events are kept while no consumer is attached.
	QueueName string
	// Source identifies this relay in emitted events.
	Source string
}

func NewRabbitMQ(cfg RabbitMQConfig, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger = logger.With("publisher", "rabbitmq")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"routing_key", cfg.RoutingKey+".*",
		"queue", cfg.QueueName,
	)

	r := &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		prefix:   cfg.RoutingKey,
		source:   cfg.Source,
		logger:   logger,
	}
	go r.watchClose(conn.NotifyClose(make(chan *amqp.Error, 1)))

	return r, nil
}

func declareTopology(ch *amqp.Channel, cfg RabbitMQConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if cfg.QueueName == "" {
		return nil
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey+".#", cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// watchClose logs an unexpected broker disconnect. Later publishes fail and
// are logged by the fanout.
func (r *RabbitMQ) watchClose(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		r.logger.Error("rabbitmq connection closed", "error", err)
	}
}

// AnnouncementEvent is the body of a mirrored announcement.
type AnnouncementEvent struct {
	Version      int                 `json:"version"`
	Source       string              `json:"source,omitempty"`
	Event        string              `json:"event"` // "video", "stream" or "manual"
	Announcement domain.Announcement `json:"announcement"`
	EmittedAt    time.Time           `json:"emitted_at"`
}

func routingKeyFor(prefix string, kind domain.AnnouncementKind) string {
	if prefix == "" {
		return string(kind)
	}
	return prefix + "." + string(kind)
}

func (r *RabbitMQ) Publish(ctx context.Context, a domain.Announcement) error {
	if a.Test {
		return nil
	}

	now := time.Now().UTC()
	event := AnnouncementEvent{
		Version:      eventSchemaVersion,
		Source:       r.source,
		Event:        string(a.Kind),
		Announcement: a,
		EmittedAt:    now,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := routingKeyFor(r.prefix, a.Kind)
	err = r.channel.PublishWithContext(ctx, r.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    a.ID,
		Type:         event.Event,
		AppId:        r.source,
		Body:         body,
		Timestamp:    now,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", key, err)
	}

	r.logger.Debug("mirrored announcement", "announcement_id", a.ID, "routing_key", key)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
