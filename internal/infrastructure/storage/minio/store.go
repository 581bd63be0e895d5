package minio

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// PDBContentType labels uploaded structures.
const PDBContentType = "chemical/x-pdb"

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrObjectTooLarge = errors.New(errors.ErrCodeValidation, "object exceeds the size limit")
	ErrInvalidRequest = errors.New(errors.ErrCodeBadRequest, "bucket and object key are required")
)

// UploadResult describes a stored structure.
type UploadResult struct {
	Bucket     string
	ObjectKey  string
	ETag       string
	Size       int64
	UploadedAt time.Time
}

// StructureStore reads and writes PDB documents in object storage.
type StructureStore struct {
	client *MinIOClient
	logger logging.Logger
}

func NewStructureStore(client *MinIOClient, log logging.Logger) *StructureStore {
	return &StructureStore{client: client, logger: log}
}

func (s *StructureStore) bucket(b string) string {
	if b == "" {
		return s.client.config.Bucket
	}
	return b
}

// Download fetches an object; an empty bucket means the default one.
func (s *StructureStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	if s.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	bucket = s.bucket(bucket)
	if key == "" {
		return nil, ErrInvalidRequest
	}

	info, err := s.client.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound.WithDetail(bucket + "/" + key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "stat failed").WithDetail(bucket + "/" + key)
	}
	limit := s.client.config.MaxObjectSize
	if info.Size > limit {
		return nil, ErrObjectTooLarge.WithDetail(bucket + "/" + key)
	}

	obj, err := s.client.api.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "download failed").WithDetail(bucket + "/" + key)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "download failed").WithDetail(bucket + "/" + key)
	}
	if int64(len(data)) > limit {
		return nil, ErrObjectTooLarge.WithDetail(bucket + "/" + key)
	}
	s.logger.Debug("structure downloaded", logging.String("bucket", bucket), logging.String("key", key), logging.Int("bytes", len(data)))
	return data, nil
}

// Upload stores data with the PDB content type and the given user metadata.
func (s *StructureStore) Upload(ctx context.Context, bucket, key string, data []byte, metadata map[string]string) (*UploadResult, error) {
	if s.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	bucket = s.bucket(bucket)
	if key == "" {
		return nil, ErrInvalidRequest
	}

	info, err := s.client.api.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  PDBContentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "upload failed").WithDetail(bucket + "/" + key)
	}
	s.logger.Debug("structure uploaded", logging.String("bucket", bucket), logging.String("key", key), logging.Int64("bytes", info.Size))
	return &UploadResult{
		Bucket:     info.Bucket,
		ObjectKey:  info.Key,
		ETag:       info.ETag,
		Size:       info.Size,
		UploadedAt: time.Now(),
	}, nil
}

func (s *StructureStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.api.StatObject(ctx, s.bucket(bucket), key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorageError, "stat failed")
	}
	return true, nil
}

func (s *StructureStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.api.RemoveObject(ctx, s.bucket(bucket), key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "delete failed")
	}
	return nil
}

// PresignedURL returns a time-limited download link; zero expiry uses the
// configured default.
func (s *StructureStore) PresignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = s.client.config.PresignExpiry
	}
	u, err := s.client.api.PresignedGetObject(ctx, s.bucket(bucket), key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "presign failed")
	}
	return u.String(), nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

//Personal.AI order the ending
