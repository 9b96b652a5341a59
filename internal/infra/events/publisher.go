// Package events publishes storefront domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jcmexdev/storefront/internal/core/ports"
)

const (
	OrderPlaced         = "order.placed"
	PaymentOrphaned     = "payment.orphaned"
	PaymentUnknown      = "payment.unknown"
	OrderNeedsAttention = "order.needs_attention"
)

var ErrPublisherClosed = errors.New("events: publisher closed")

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ ports.EventPublisher = (*Publisher)(nil)

type Publisher struct {
	writer messageWriter
	topic  string
	closed atomic.Bool
	now    func() time.Time
}

// Envelope is the JSON body of every message.
type Envelope struct {
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewKafkaPublisher writes synchronously with acks from all in-sync
// replicas. Messages with the same key land on the same partition, so
// events for one order stay ordered.
func NewKafkaPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				d := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true, KeepAlive: 30 * time.Second}
				return d.DialContext(ctx, network, address)
			},
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			slog.Error("kafka writer: " + fmt.Sprintf(msg, args...))
		}),
	}
	return newPublisher(w, topic)
}

func newPublisher(w messageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic, now: func() time.Time { return time.Now().UTC() }}
}

func (p *Publisher) Publish(ctx context.Context, evt ports.Event) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("events: encode %s payload: %w", evt.Type, err)
	}
	body, err := json.Marshal(Envelope{Type: evt.Type, Key: evt.Key, OccurredAt: p.now(), Payload: payload})
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", evt.Type, err)
	}

	msg := kafka.Message{
		Key:     []byte(evt.Key),
		Value:   body,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(evt.Type)}},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s to %s: %w", evt.Type, p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

// headerCarrier lets the OTel propagator write traceparent into Kafka headers.
type headerCarrier struct {
	msg *kafka.Message
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}
