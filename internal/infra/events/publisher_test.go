package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jcmexdev/storefront/internal/core/ports"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed int
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed++
	return nil
}

func TestPublish_WritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "storefront.orders")

	err := p.Publish(context.Background(), ports.Event{
		Type: OrderPlaced, Key: "o-1", Payload: map[string]string{"order_id": "o-1", "amount": "20.00"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o-1", string(msg.Key))
	assert.Equal(t, OrderPlaced, headerCarrier{msg: &msg}.Get("event-type"))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, OrderPlaced, env.Type)
	assert.JSONEq(t, `{"order_id":"o-1","amount":"20.00"}`, string(env.Payload))
	assert.False(t, env.OccurredAt.IsZero())
}

func TestPublish_InjectsTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "checkout")
	defer span.End()

	msg := kafka.Message{}
	propagation.TraceContext{}.Inject(ctx, headerCarrier{msg: &msg})

	assert.Contains(t, headerCarrier{msg: &msg}.Get("traceparent"), span.SpanContext().TraceID().String())
	assert.Equal(t, []string{"traceparent"}, headerCarrier{msg: &msg}.Keys())
}

func TestPublish_WriterErrorIsWrapped(t *testing.T) {
	boom := errors.New("broker down")
	p := newPublisher(&fakeWriter{err: boom}, "t")

	err := p.Publish(context.Background(), ports.Event{Type: PaymentOrphaned, Key: "c-1"})
	assert.ErrorIs(t, err, boom)
}

func TestClose_IsIdempotentAndBlocksPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "t")

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)

	assert.ErrorIs(t, p.Publish(context.Background(), ports.Event{Type: OrderPlaced}), ErrPublisherClosed)
}
