package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oagudo/courier/pkg/courier"
)

type fakeConfirmation struct {
	acked bool
	err   error
}

func (c fakeConfirmation) WaitContext(context.Context) (bool, error) {
	return c.acked, c.err
}

type fakeChannel struct {
	confirm    fakeConfirmation
	publishErr error
	exchange   string
	key        string
	msgs       []amqp.Publishing
	closed     bool
}

func (c *fakeChannel) publish(_ context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	if c.publishErr != nil {
		return nil, c.publishErr
	}
	c.exchange, c.key = exchange, key
	c.msgs = append(c.msgs, msg)
	return c.confirm, nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func testMessage() courier.Message {
	return courier.Message{
		Topic: "orders",
		Key:   []byte("abc"),
		Value: []byte(`{"orderId":1}`),
		Headers: []courier.Header{
			{Key: courier.HeaderType, Value: []byte("order.created")},
			{Key: courier.HeaderDataContentType, Value: []byte("application/json")},
			{Key: courier.HeaderTime, Value: []byte("2024-05-01T12:00:00Z")},
		},
	}
}

func TestSendStatus(t *testing.T) {
	tests := []struct {
		name    string
		channel *fakeChannel
		want    courier.DeliveryStatus
		wantErr bool
	}{
		{name: "acked", channel: &fakeChannel{confirm: fakeConfirmation{acked: true}}, want: courier.Persisted},
		{name: "nacked", channel: &fakeChannel{confirm: fakeConfirmation{acked: false}}, want: courier.NotPersisted, wantErr: true},
		{name: "confirm timeout", channel: &fakeChannel{confirm: fakeConfirmation{err: context.DeadlineExceeded}}, want: courier.PossiblyPersisted, wantErr: true},
		{name: "publish failure", channel: &fakeChannel{publishErr: amqp.ErrClosed}, want: courier.NotPersisted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := newProducer(tt.channel, "events", WithConfirmTimeout(time.Second))

			status, err := producer.Send(context.Background(), testMessage())

			assert.Equal(t, tt.want, status)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSendBuildsPersistentPublishing(t *testing.T) {
	ch := &fakeChannel{confirm: fakeConfirmation{acked: true}}
	producer := newProducer(ch, "events")

	_, err := producer.Send(context.Background(), testMessage())
	require.NoError(t, err)

	assert.Equal(t, "events", ch.exchange)
	assert.Equal(t, "orders", ch.key)
	require.Len(t, ch.msgs, 1)

	pub := ch.msgs[0]
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "abc", pub.MessageId)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "order.created", pub.Type)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), pub.Timestamp)
	assert.Equal(t, "order.created", pub.Headers[courier.HeaderType])
}

func TestPublishErrorWrapsCause(t *testing.T) {
	producer := newProducer(&fakeChannel{publishErr: amqp.ErrClosed}, "events")

	_, err := producer.Send(context.Background(), testMessage())
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestChannelAndClose(t *testing.T) {
	ch := &fakeChannel{}
	producer := newProducer(ch, "events")

	assert.Equal(t, courier.AckAll, producer.Channel().Acks)
	require.NoError(t, producer.Close())
	assert.True(t, ch.closed)

	_, err := NewProducer(nil, "events")
	assert.ErrorIs(t, err, courier.ErrInvalidArgument)
}
