package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// JobPublisher publishes a JSON event; satisfied by *kafka.Producer.
type JobPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, value interface{}) error
}

// SubmitJobRequest asks for a stored structure to be protonated
// asynchronously.
type SubmitJobRequest struct {
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key" binding:"required"`
	OutputKey string `json:"output_key"`
	Flip      *bool  `json:"flip,omitempty"`
	His       *bool  `json:"his,omitempty"`
}

// SubmitJobResponse acknowledges a queued job.
type SubmitJobResponse struct {
	JobID     string    `json:"job_id"`
	Topic     string    `json:"topic"`
	Bucket    string    `json:"bucket"`
	ObjectKey string    `json:"object_key"`
	OutputKey string    `json:"output_key"`
	QueuedAt  time.Time `json:"queued_at"`
}

// JobHandler queues protonation jobs for the worker.
type JobHandler struct {
	publisher JobPublisher
	topic     string
	bucket    string
	logger    logging.Logger
	now       func() time.Time
}

// NewJobHandler creates a handler publishing to topic.  bucket is used
// when a request names none.
func NewJobHandler(publisher JobPublisher, topic, bucket string, logger logging.Logger) *JobHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &JobHandler{publisher: publisher, topic: topic, bucket: bucket, logger: logger, now: time.Now}
}

// RegisterRoutes mounts POST /jobs.
func (h *JobHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/jobs", h.Submit)
}

// Submit handles POST /jobs and answers 202 once the job is on the topic.
func (h *JobHandler) Submit(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid job request"))
		return
	}
	if strings.HasPrefix(req.ObjectKey, "/") || strings.Contains(req.ObjectKey, "..") {
		writeBadRequest(c, "object_key must be a relative key")
		return
	}

	bucket := req.Bucket
	if bucket == "" {
		bucket = h.bucket
	}
	outputKey := req.OutputKey
	if outputKey == "" {
		outputKey = protonation.OutputKeyFor(req.ObjectKey, protonation.DefaultOutputSuffix)
	}
	if outputKey == req.ObjectKey {
		writeBadRequest(c, "output_key must differ from object_key")
		return
	}

	job := kafka.ProtonationJob{
		JobID:       uuid.NewString(),
		Bucket:      bucket,
		ObjectKey:   req.ObjectKey,
		OutputKey:   outputKey,
		Flip:        req.Flip,
		His:         req.His,
		RequestedAt: h.now().UTC(),
	}
	if err := job.Validate(); err != nil {
		writeAppError(c, err)
		return
	}

	if err := h.publisher.PublishJSON(c.Request.Context(), h.topic, job.ObjectKey, job); err != nil {
		h.logger.Error("failed to queue protonation job",
			logging.String("job_id", job.JobID),
			logging.String("object_key", job.ObjectKey),
			logging.Err(err))
		writeAppError(c, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "job queue unavailable"))
		return
	}

	h.logger.Info("protonation job queued",
		logging.String("job_id", job.JobID),
		logging.String("bucket", bucket),
		logging.String("object_key", job.ObjectKey))

	c.JSON(http.StatusAccepted, SubmitJobResponse{
		JobID:     job.JobID,
		Topic:     h.topic,
		Bucket:    bucket,
		ObjectKey: job.ObjectKey,
		OutputKey: outputKey,
		QueuedAt:  job.RequestedAt,
	})
}

//Personal.AI order the ending
