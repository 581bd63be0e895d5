package worker

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Protonate/internal/testutil"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

type fakeConsumer struct {
	mu       sync.Mutex
	topic    string
	started  bool
	closed   bool
	startErr error
	done     chan struct{}
}

func newFakeConsumer() *fakeConsumer { return &fakeConsumer{done: make(chan struct{})} }

func (c *fakeConsumer) Subscribe(topic string, _ kafka.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = topic
	return nil
}

func (c *fakeConsumer) Start(ctx context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go func() {
		<-ctx.Done()
		close(c.done)
	}()
	return nil
}

func (c *fakeConsumer) Wait() { <-c.done }

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func noopHandler(context.Context, *kafka.Message) error { return nil }

func TestPool_RunsUntilCanceled(t *testing.T) {
	var consumers []*fakeConsumer
	pool := &Pool{
		Topic: "jobs",
		Size:  3,
		Factory: func(int) (Consumer, error) {
			c := newFakeConsumer()
			consumers = append(consumers, c)
			return c, nil
		},
		Handler: noopHandler,
		Logger:  testutil.NewMockLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		l := pool.Logger.(*testutil.MockLogger)
		return l.HasMessage("info", "worker pool started")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}

	require.Len(t, consumers, 3)
	for _, c := range consumers {
		assert.Equal(t, "jobs", c.topic)
		assert.True(t, c.started)
		assert.True(t, c.closed)
	}
}

func TestPool_StartFailureStopsAll(t *testing.T) {
	var consumers []*fakeConsumer
	pool := &Pool{
		Topic: "jobs",
		Size:  2,
		Factory: func(i int) (Consumer, error) {
			c := newFakeConsumer()
			if i == 1 {
				c.startErr = stderrors.New("group coordinator unavailable")
			}
			consumers = append(consumers, c)
			return c, nil
		},
		Handler: noopHandler,
	}

	err := pool.Run(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
	for _, c := range consumers {
		assert.True(t, c.closed)
	}
}

func TestPool_FactoryFailure(t *testing.T) {
	first := newFakeConsumer()
	pool := &Pool{
		Topic: "jobs",
		Size:  2,
		Factory: func(i int) (Consumer, error) {
			if i == 1 {
				return nil, stderrors.New("bad brokers")
			}
			return first, nil
		},
		Handler: noopHandler,
	}

	err := pool.Run(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
	assert.True(t, first.closed)
}

func TestPool_InvalidSize(t *testing.T) {
	err := (&Pool{Topic: "jobs"}).Run(context.Background())
	assert.True(t, errors.IsValidation(err))
}

func TestKafkaConsumers_RejectsBadConfig(t *testing.T) {
	h := NewJobHandler(&fakeProcessor{}, nil, "", nil, nil)
	_, err := KafkaConsumers(kafka.ConsumerConfig{}, h, testutil.NewMockLogger())(0)
	assert.True(t, errors.IsValidation(err))
}

//Personal.AI order the ending
