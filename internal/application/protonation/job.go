package protonation

import (
	"context"
	"path"
	"strings"
	"time"

	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// DefaultOutputSuffix is inserted before the extension of a protonated copy.
const DefaultOutputSuffix = "_h"

// ObjectStore reads and writes PDB documents by bucket and key.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, bucket, key string, data []byte, metadata map[string]string) error
}

// Locker serialises work on one key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// JobRequest asks for one stored structure to be protonated.
type JobRequest struct {
	JobID     string
	Bucket    string
	ObjectKey string
	OutputKey string
	// Flip and His override the processor defaults when non-nil.
	Flip *bool
	His  *bool
}

// JobResult is the outcome of a processed JobRequest.
type JobResult struct {
	JobID     string
	Bucket    string
	OutputKey string
	Run       *domain.Run
	Elapsed   time.Duration
}

// JobProcessor runs stored structures through the Service.
type JobProcessor struct {
	svc      Service
	store    ObjectStore
	locker   Locker
	defaults reduce.Options
	logger   logging.Logger
}

// NewJobProcessor wires a JobProcessor.  locker may be nil.
func NewJobProcessor(svc Service, store ObjectStore, locker Locker, defaults reduce.Options, logger logging.Logger) (*JobProcessor, error) {
	if svc == nil || store == nil {
		return nil, errors.New(errors.ErrCodeValidation, "service and store are required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &JobProcessor{svc: svc, store: store, locker: locker, defaults: defaults, logger: logger}, nil
}

// OutputKeyFor derives the default output key: "in/1abc.pdb" becomes
// "in/1abc_h.pdb".
func OutputKeyFor(objectKey, suffix string) string {
	if suffix == "" {
		suffix = DefaultOutputSuffix
	}
	ext := path.Ext(objectKey)
	return strings.TrimSuffix(objectKey, ext) + suffix + ext
}

// Options resolves the engine options of req.
func (p *JobProcessor) Options(req JobRequest) reduce.Options {
	opts := p.defaults
	if req.Flip != nil {
		opts.Flip = *req.Flip
	}
	if req.His != nil {
		opts.Histidines = *req.His
	}
	return opts
}

// Process downloads req's structure, protonates it and uploads the result
// under the output key, holding the output key's lock throughout.  Engine
// failures and malformed documents come back as errors with the Run attached
// to the result; unreadable engine output is uploaded unchanged.
func (p *JobProcessor) Process(ctx context.Context, req JobRequest) (*JobResult, error) {
	if req.ObjectKey == "" {
		return nil, errors.New(errors.ErrCodeValidation, "object key required").WithDetail(req.JobID)
	}
	if req.OutputKey == "" {
		req.OutputKey = OutputKeyFor(req.ObjectKey, "")
	}
	if req.OutputKey == req.ObjectKey {
		return nil, errors.New(errors.ErrCodeValidation, "output key must differ from object key").WithDetail(req.ObjectKey)
	}
	start := time.Now()
	log := p.logger.With(logging.String("job_id", req.JobID), logging.String("object_key", req.ObjectKey))
	result := &JobResult{JobID: req.JobID, Bucket: req.Bucket, OutputKey: req.OutputKey}

	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, req.OutputKey)
		if err != nil {
			return result, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("output lock not released", logging.Err(err))
			}
		}()
	}

	data, err := p.store.Download(ctx, req.Bucket, req.ObjectKey)
	if err != nil {
		return result, err
	}

	res, err := p.svc.ProtonatePDB(ctx, path.Base(req.ObjectKey), data, p.Options(req))
	if res != nil {
		result.Run = res.Run
	}
	if err != nil {
		result.Elapsed = time.Since(start)
		return result, err
	}

	meta := map[string]string{
		"job-id":  req.JobID,
		"run-id":  res.Run.ID,
		"outcome": string(res.Run.Outcome),
		"source":  req.ObjectKey,
	}
	if err := p.store.Upload(ctx, req.Bucket, req.OutputKey, res.PDB, meta); err != nil {
		return result, err
	}

	result.Elapsed = time.Since(start)
	log.Info("job processed",
		logging.String("output_key", req.OutputKey),
		logging.String("outcome", string(res.Run.Outcome)),
		logging.Int("added", res.Run.Added),
		logging.Duration("elapsed", result.Elapsed))
	return result, nil
}

// Retryable reports whether a Process error is worth another attempt.
// Infrastructure trouble is; anything about the structure itself is not.
func Retryable(err error) bool {
	switch errors.GetCode(err) {
	case errors.ErrCodeStorageError, errors.ErrCodeServiceUnavailable, errors.ErrCodeConflict,
		errors.ErrCodeTimeout, errors.ErrCodeMessagingError, errors.ErrCodeCacheError,
		errors.ErrCodeDatabaseError, errors.ErrCodeStructureWrite:
		return true
	}
	return false
}

//Personal.AI order the ending
