package kafka

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Protonate/internal/testutil"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

type mockKafkaConn struct {
	createFunc func(topics ...kafka.TopicConfig) error
	deleteFunc func(topics ...string) error
	readFunc   func(topics ...string) ([]kafka.Partition, error)
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.createFunc != nil {
		return m.createFunc(topics...)
	}
	return nil
}

func (m *mockKafkaConn) DeleteTopics(topics ...string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(topics...)
	}
	return nil
}

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.readFunc != nil {
		return m.readFunc(topics...)
	}
	return nil, nil
}

func (m *mockKafkaConn) Close() error { return nil }

func newTestTopicManager(conn ConnInterface) *TopicManager {
	return &TopicManager{conn: conn, logger: testutil.NewMockLogger()}
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics(DefaultTopicNames(), 0)
	require.Len(t, topics, 4)
	assert.Equal(t, TopicProtonateRequested, topics[0].Name)
	assert.Equal(t, TopicProtonateDeadLetter, topics[3].Name)
	for _, tc := range topics {
		assert.Equal(t, 1, tc.ReplicationFactor)
		assert.Greater(t, tc.RetentionMs, int64(0))
	}
}

func TestCreateTopic(t *testing.T) {
	var got kafka.TopicConfig
	m := newTestTopicManager(&mockKafkaConn{createFunc: func(topics ...kafka.TopicConfig) error {
		got = topics[0]
		return nil
	}})

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name: "x", NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 1000, CleanupPolicy: "delete",
	})
	require.NoError(t, err)
	assert.Equal(t, "x", got.Topic)
	assert.Contains(t, got.ConfigEntries, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: "1000"})
	assert.Contains(t, got.ConfigEntries, kafka.ConfigEntry{ConfigName: "cleanup.policy", ConfigValue: "delete"})
}

func TestCreateTopic_Validation(t *testing.T) {
	m := newTestTopicManager(&mockKafkaConn{})
	ctx := context.Background()
	assert.True(t, errors.IsValidation(m.CreateTopic(ctx, TopicConfig{NumPartitions: 1, ReplicationFactor: 1})))
	assert.True(t, errors.IsValidation(m.CreateTopic(ctx, TopicConfig{Name: "x", ReplicationFactor: 1})))
	assert.True(t, errors.IsValidation(m.CreateTopic(ctx, TopicConfig{Name: "x", NumPartitions: 1})))
}

func TestCreateTopic_AlreadyExists(t *testing.T) {
	m := newTestTopicManager(&mockKafkaConn{createFunc: func(...kafka.TopicConfig) error {
		return kafka.TopicAlreadyExists
	}})
	assert.NoError(t, m.CreateTopic(context.Background(), TopicConfig{Name: "x", NumPartitions: 1, ReplicationFactor: 1}))
}

func TestCreateTopic_Failure(t *testing.T) {
	m := newTestTopicManager(&mockKafkaConn{
		createFunc: func(...kafka.TopicConfig) error { return stderrors.New("boom") },
		readFunc: func(...string) ([]kafka.Partition, error) {
			return nil, kafka.UnknownTopicOrPartition
		},
	})
	err := m.CreateTopic(context.Background(), TopicConfig{Name: "x", NumPartitions: 1, ReplicationFactor: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
}

func TestListTopics_Dedup(t *testing.T) {
	m := newTestTopicManager(&mockKafkaConn{readFunc: func(...string) ([]kafka.Partition, error) {
		return []kafka.Partition{{Topic: "a", ID: 0}, {Topic: "a", ID: 1}, {Topic: "b", ID: 0}}, nil
	}})
	topics, err := m.ListTopics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, topics)
}

func TestEnsureTopics(t *testing.T) {
	var created []string
	m := newTestTopicManager(&mockKafkaConn{createFunc: func(topics ...kafka.TopicConfig) error {
		created = append(created, topics[0].Topic)
		return nil
	}})
	require.NoError(t, m.EnsureTopics(context.Background(), DefaultTopics(DefaultTopicNames(), 1)))
	assert.Len(t, created, 4)
}

func TestDecodeJob(t *testing.T) {
	env, err := NewEventEnvelope(TopicProtonateRequested, "test", ProtonationJob{JobID: "j", ObjectKey: "a.pdb"})
	require.NoError(t, err)
	pm, err := env.ToMessage(TopicProtonateRequested)
	require.NoError(t, err)
	assert.Equal(t, TopicProtonateRequested, pm.Headers["event_type"])

	job, err := DecodeJob(&Message{Topic: pm.Topic, Value: pm.Value})
	require.NoError(t, err)
	assert.Equal(t, "a.pdb", job.ObjectKey)

	t.Run("missing object key", func(t *testing.T) {
		env, _ := NewEventEnvelope("x", "test", ProtonationJob{JobID: "j"})
		pm, _ := env.ToMessage("x")
		_, err := DecodeJob(&Message{Value: pm.Value})
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("empty value", func(t *testing.T) {
		_, err := DecodeJob(&Message{})
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeJob(&Message{Value: []byte("not json")})
		assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))
	})

	t.Run("null payload", func(t *testing.T) {
		_, err := DecodeJob(&Message{Value: []byte(`{"event_id":"e","payload":null}`)})
		assert.True(t, errors.IsValidation(err))
	})
}

//Personal.AI order the ending
