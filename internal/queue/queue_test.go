package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "lifecycle", Body: []byte("payload")}))

	out, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-out:
		assert.Equal(t, "lifecycle", msg.Type)
		assert.Equal(t, []byte("payload"), msg.Body)
	case <-ctx.Done():
		t.Fatal("no message before timeout")
	}
}

func TestInMemoryPublishHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewInMemory(0)
	err := q.Publish(ctx, Message{Type: "lifecycle"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "lifecycle", Body: []byte(`{"kind":"event_started"}`)}
	got, err := deserialize(serialize(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDeserializeWithoutSeparator(t *testing.T) {
	got, err := deserialize("bare")
	require.NoError(t, err)
	assert.Empty(t, got.Type)
	assert.Equal(t, []byte("bare"), got.Body)
}
