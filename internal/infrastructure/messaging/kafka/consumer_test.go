package kafka

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Protonate/internal/testutil"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// mockKafkaReader hands out queued messages and then blocks until canceled.
type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockKafkaReader) Close() error { return nil }

func (m *mockKafkaReader) commitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}

type mockPublisher struct {
	mu   sync.Mutex
	sent []*ProducerMessage
}

func (m *mockPublisher) Publish(_ context.Context, msg *ProducerMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) messages() []*ProducerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ProducerMessage(nil), m.sent...)
}

func newTestConsumer(r ReaderInterface, dl Publisher, retries int) *Consumer {
	return newConsumer(r, dl, ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "g",
		RetryConfig: RetryConfig{
			MaxRetries:      retries,
			RetryBackoff:    time.Millisecond,
			MaxRetryBackoff: 2 * time.Millisecond,
			DeadLetterTopic: "dlq",
		},
	}, testutil.NewMockLogger())
}

func TestValidateConsumerConfig(t *testing.T) {
	valid := ConsumerConfig{Brokers: []string{"b"}, GroupID: "g"}
	assert.NoError(t, ValidateConsumerConfig(valid))

	cases := map[string]func(*ConsumerConfig){
		"no brokers":     func(c *ConsumerConfig) { c.Brokers = nil },
		"no group":       func(c *ConsumerConfig) { c.GroupID = "" },
		"bad offset":     func(c *ConsumerConfig) { c.AutoOffsetReset = "middle" },
		"negative retry": func(c *ConsumerConfig) { c.RetryConfig.MaxRetries = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.True(t, errors.IsValidation(ValidateConsumerConfig(cfg)))
		})
	}
}

func TestSubscribe_RequiresHandler(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{}, nil, 0)
	assert.Error(t, c.Subscribe("t", nil))
	assert.NoError(t, c.Subscribe("t", func(context.Context, *Message) error { return nil }))
}

func TestConsumer_ProcessesAndCommits(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{
		{Topic: "t", Offset: 0, Value: []byte("a"), Headers: []kafka.Header{{Key: "h", Value: []byte("1")}}},
		{Topic: "other", Offset: 1, Value: []byte("b")},
	}}
	c := newTestConsumer(reader, nil, 0)

	var got atomic.Value
	require.NoError(t, c.Subscribe("t", func(_ context.Context, m *Message) error {
		got.Store(m)
		return nil
	}))
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return reader.commitCount() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	msg := got.Load().(*Message)
	assert.Equal(t, "1", msg.Headers["h"])
	assert.Equal(t, int64(2), c.Metrics().MessagesConsumed.Load())
	assert.Equal(t, int64(1), c.Metrics().MessagesProcessed.Load())
}

func TestConsumer_RetryThenSucceed(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{{Topic: "t", Value: []byte("a")}}}
	dl := &mockPublisher{}
	c := newTestConsumer(reader, dl, 3)

	var calls atomic.Int32
	var retries atomic.Int32
	c.OnRetry = func(*Message, int, error) { retries.Add(1) }
	require.NoError(t, c.Subscribe("t", func(context.Context, *Message) error {
		if calls.Add(1) < 3 {
			return stderrors.New("transient")
		}
		return nil
	}))
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commitCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), retries.Load())
	assert.Empty(t, dl.messages())
}

func TestConsumer_ExhaustedRetriesDeadLetter(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{{Topic: "t", Key: []byte("k"), Value: []byte("a")}}}
	dl := &mockPublisher{}
	c := newTestConsumer(reader, dl, 2)

	require.NoError(t, c.Subscribe("t", func(context.Context, *Message) error {
		return errors.New(errors.ErrCodeEngineFailure, "reduce crashed")
	}))
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commitCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	sent := dl.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "dlq", sent[0].Topic)
	assert.Equal(t, []byte("k"), sent[0].Key)
	assert.Equal(t, "t", sent[0].Headers[HeaderOriginalTopic])
	assert.Equal(t, string(errors.ErrCodeEngineFailure), sent[0].Headers[HeaderErrorCode])
	assert.Equal(t, "3", sent[0].Headers[HeaderAttempts])
	assert.Equal(t, int64(1), c.Metrics().MessagesFailed.Load())
	assert.Equal(t, int64(1), c.Metrics().MessagesDeadLettered.Load())
}

func TestConsumer_PermanentErrorSkipsRetries(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{{Topic: "t", Value: []byte("{")}}}
	dl := &mockPublisher{}
	c := newTestConsumer(reader, dl, 5)

	var calls atomic.Int32
	require.NoError(t, c.Subscribe("t", func(_ context.Context, m *Message) error {
		calls.Add(1)
		_, err := DecodeJob(m)
		return err
	}))
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(dl.messages()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "1", dl.messages()[0].Headers[HeaderAttempts])
}

//Personal.AI order the ending
