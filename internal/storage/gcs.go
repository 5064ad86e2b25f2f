package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	errMessageCreateClient = "create cloud storage client"
	errMessageOpenObject   = "open object"
	errMessageReadObject   = "read object"
	errMessageWriteObject  = "write object"
	errMessageCloseWriter  = "close object writer"

	logMessageReadObject  = "read object from cloud storage"
	logMessageWroteObject = "wrote object to cloud storage"
	logFieldBucket        = "bucket"
	logFieldKey           = "key"
	logFieldBytes         = "bytes"
)

// GCSStore accesses objects in Google Cloud Storage.
type GCSStore struct {
	client *gcstorage.Client
	logger *zap.Logger
}

// NewGCSStore connects to Cloud Storage with application default credentials unless options override them.
func NewGCSStore(ctx context.Context, logger *zap.Logger, options ...option.ClientOption) (*GCSStore, error) {
	client, err := gcstorage.NewClient(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateClient, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSStore{client: client, logger: logger}, nil
}

// ReadObject downloads the full content of bucket/key.
func (store *GCSStore) ReadObject(ctx context.Context, bucket string, key string) ([]byte, error) {
	if err := validateLocation(bucket, key); err != nil {
		return nil, err
	}
	reader, err := store.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s gs://%s/%s: %w", errMessageOpenObject, bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("%s gs://%s/%s: %w", errMessageOpenObject, bucket, key, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s gs://%s/%s: %w", errMessageReadObject, bucket, key, err)
	}
	store.logger.Debug(logMessageReadObject, zap.String(logFieldBucket, bucket), zap.String(logFieldKey, key), zap.Int(logFieldBytes, len(content)))
	return content, nil
}

// WriteObject uploads content to bucket/key with the given content type.
func (store *GCSStore) WriteObject(ctx context.Context, bucket string, key string, contentType string, content []byte) error {
	if err := validateLocation(bucket, key); err != nil {
		return err
	}
	writer := store.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return fmt.Errorf("%s gs://%s/%s: %w", errMessageWriteObject, bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%s gs://%s/%s: %w", errMessageCloseWriter, bucket, key, err)
	}
	store.logger.Debug(logMessageWroteObject, zap.String(logFieldBucket, bucket), zap.String(logFieldKey, key), zap.Int(logFieldBytes, len(content)))
	return nil
}

// Close releases the underlying client.
func (store *GCSStore) Close() error {
	return store.client.Close()
}
