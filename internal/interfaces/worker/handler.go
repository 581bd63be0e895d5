// Package worker consumes protonation jobs from Kafka.
package worker

import (
	"context"
	"time"

	"github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// Processor runs one job; satisfied by *protonation.JobProcessor.
type Processor interface {
	Process(ctx context.Context, req protonation.JobRequest) (*protonation.JobResult, error)
}

// Publisher emits completion events; satisfied by *kafka.Producer.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value interface{}) error
}

// Metrics tracks job throughput.
type Metrics interface {
	JobStarted() func(status string)
	JobRetried()
}

// JobHandler turns consumed ProtonationJob records into processed
// structures and JobCompleted events.
//
// Malformed records are rejected with a permanent error so the consumer
// dead-letters them at once.  Infrastructure failures are returned for the
// consumer to retry.  Any other outcome, including an engine failure, is
// final: it is announced on the completed topic and the record is acked.
type JobHandler struct {
	processor      Processor
	publisher      Publisher
	completedTopic string
	metrics        Metrics
	logger         logging.Logger
	now            func() time.Time
}

// NewJobHandler wires a handler.  publisher and metrics may be nil.
func NewJobHandler(processor Processor, publisher Publisher, completedTopic string, metrics Metrics, logger logging.Logger) *JobHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &JobHandler{
		processor:      processor,
		publisher:      publisher,
		completedTopic: completedTopic,
		metrics:        metrics,
		logger:         logger,
		now:            time.Now,
	}
}

// Handle is a kafka.MessageHandler.
func (h *JobHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	finish := h.started()

	job, err := kafka.DecodeJob(msg)
	if err != nil {
		h.logger.Warn("discarding malformed job",
			logging.String("topic", msg.Topic),
			logging.Int64("offset", msg.Offset),
			logging.Err(err))
		finish(prometheus.JobDropped)
		return err
	}

	log := h.logger.With(logging.String("job_id", job.JobID), logging.String("object_key", job.ObjectKey))
	result, err := h.processor.Process(ctx, protonation.JobRequest{
		JobID:     job.JobID,
		Bucket:    job.Bucket,
		ObjectKey: job.ObjectKey,
		OutputKey: job.OutputKey,
		Flip:      job.Flip,
		His:       job.His,
	})
	if err != nil && protonation.Retryable(err) {
		log.Warn("job attempt failed", logging.Err(err))
		finish(prometheus.JobFailed)
		return err
	}

	event := h.completion(job, result, err)
	if h.publisher != nil && h.completedTopic != "" {
		if perr := h.publisher.PublishJSON(ctx, h.completedTopic, job.JobID, event); perr != nil {
			log.Error("completion event not published", logging.Err(perr))
			finish(prometheus.JobFailed)
			return errors.Wrap(perr, errors.ErrCodeMessagingError, "publish job completion")
		}
	}

	if err != nil {
		log.Warn("job finished with error",
			logging.String("outcome", event.Outcome),
			logging.String("error_code", event.ErrorCode),
			logging.Err(err))
		finish(prometheus.JobFailed)
		return nil
	}
	finish(prometheus.JobSucceeded)
	return nil
}

// OnRetry is a kafka Consumer retry hook.
func (h *JobHandler) OnRetry(msg *kafka.Message, attempt int, err error) {
	if h.metrics != nil {
		h.metrics.JobRetried()
	}
	h.logger.Info("retrying job",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Int("attempt", attempt),
		logging.Err(err))
}

func (h *JobHandler) started() func(string) {
	if h.metrics == nil {
		return func(string) {}
	}
	return h.metrics.JobStarted()
}

func (h *JobHandler) completion(job *kafka.ProtonationJob, result *protonation.JobResult, err error) kafka.JobCompleted {
	event := kafka.JobCompleted{
		JobID:       job.JobID,
		Bucket:      job.Bucket,
		OutputKey:   job.OutputKey,
		Outcome:     string(domain.OutcomeError),
		CompletedAt: h.now().UTC(),
	}
	if result != nil {
		if result.Bucket != "" {
			event.Bucket = result.Bucket
		}
		if result.OutputKey != "" {
			event.OutputKey = result.OutputKey
		}
		if run := result.Run; run != nil {
			event.RunID = run.ID
			event.Outcome = string(run.Outcome)
			event.Added = run.Added
			event.Skipped = run.Skipped
			event.Cached = run.Cached
		}
	}
	if err != nil {
		event.ErrorCode = errors.GetCode(err).String()
		event.Error = err.Error()
		// Nothing was uploaded.
		event.OutputKey = ""
	}
	return event
}

//Personal.AI order the ending
