package protonation

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
)

// NotificationLevel is the severity shown to the end user.
type NotificationLevel string

const (
	NotificationError   NotificationLevel = "error"
	NotificationWarning NotificationLevel = "warning"
	NotificationSuccess NotificationLevel = "success"
)

// Notification is a user-facing message about one structure.
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	Structure string            `json:"structure"`
	RunID     string            `json:"run_id,omitempty"`
	Time      time.Time         `json:"time"`
}

// Notifier delivers notifications to the end user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// MessagePublisher is the slice of a message producer the topic-backed
// sinks need.
type MessagePublisher interface {
	PublishJSON(ctx context.Context, topic, key string, value interface{}) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Implementations
// ─────────────────────────────────────────────────────────────────────────────

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier returns a Notifier logging at the level of each notification.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	fields := []logging.Field{logging.Structure(note.Structure), logging.String("run_id", note.RunID)}
	switch note.Level {
	case NotificationError:
		n.logger.Error(note.Message, fields...)
	case NotificationWarning:
		n.logger.Warn(note.Message, fields...)
	default:
		n.logger.Info(note.Message, fields...)
	}
	return nil
}

// WriterNotifier prints one line per notification, for terminals.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier returns a Notifier printing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "[%s] %s: %s\n", note.Level, note.Structure, note.Message)
	return err
}

// TopicNotifier publishes notifications as JSON messages keyed by structure.
type TopicNotifier struct {
	pub   MessagePublisher
	topic string
}

// NewTopicNotifier returns a Notifier publishing to topic.
func NewTopicNotifier(pub MessagePublisher, topic string) *TopicNotifier {
	return &TopicNotifier{pub: pub, topic: topic}
}

func (n *TopicNotifier) Notify(ctx context.Context, note Notification) error {
	return n.pub.PublishJSON(ctx, n.topic, note.Structure, note)
}

// TopicRunSink publishes finished runs as JSON messages keyed by run ID.
type TopicRunSink struct {
	pub   MessagePublisher
	topic string
}

// NewTopicRunSink returns a RunSink publishing to topic.
func NewTopicRunSink(pub MessagePublisher, topic string) *TopicRunSink {
	return &TopicRunSink{pub: pub, topic: topic}
}

func (t *TopicRunSink) RunFinished(ctx context.Context, run *domain.Run) error {
	return t.pub.PublishJSON(ctx, t.topic, run.ID, run)
}

// MultiNotifier fans out to every notifier and returns the first error.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil && first == nil {
			first = err
		}
	}
	return first
}

//Personal.AI order the ending
