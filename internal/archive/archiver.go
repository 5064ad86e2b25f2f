// Package archive exports a run's friend set to object storage as a timestamped CSV file.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/f-sync/listsync/internal/twitter"
)

const (
	// ContentType is attached to every archived object.
	ContentType = "text/csv"
	// TimestampLayout renders the UTC timestamp that prefixes each object key.
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
	// DefaultPrefix names the archived file when no prefix is configured.
	DefaultPrefix = "twitter-friends"

	objectKeyFormat = "%s/%s.csv"
	csvQuote        = `"`
	csvRecordEnd    = "\r\n"

	errMessageMissingWriter = "object writer is required"
	errMessageMissingBucket = "archive bucket is required"
	errMessageWriteArchive  = "write friend archive"

	logMessageUploading    = "uploading friend archive"
	logMessageUploaded     = "uploaded friend archive"
	logMessageUploadFailed = "an error occurred writing the friend archive"
	logFieldBucket         = "bucket"
	logFieldKey            = "key"
	logFieldCount          = "count"
)

var (
	errMissingWriter = errors.New(errMessageMissingWriter)
	errMissingBucket = errors.New(errMessageMissingBucket)
)

// ObjectWriter stores content under bucket/key.
type ObjectWriter interface {
	WriteObject(ctx context.Context, bucket string, key string, contentType string, content []byte) error
}

// ObjectReference locates an archived object.
type ObjectReference struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Config configures an Archiver.
type Config struct {
	Writer ObjectWriter
	Bucket string
	Prefix string
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// Archiver writes friend identifiers to object storage.
type Archiver struct {
	writer ObjectWriter
	bucket string
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// New constructs an Archiver.
func New(configuration Config) (*Archiver, error) {
	if configuration.Writer == nil {
		return nil, errMissingWriter
	}
	if strings.TrimSpace(configuration.Bucket) == "" {
		return nil, errMissingBucket
	}
	prefix := strings.TrimSpace(configuration.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		writer: configuration.Writer,
		bucket: configuration.Bucket,
		prefix: prefix,
		now:    now,
		logger: logger,
	}, nil
}

// Archive writes friends as one quoted CSV record per identifier and returns where it landed.
func (archiver *Archiver) Archive(ctx context.Context, friends []twitter.UserID) (ObjectReference, error) {
	reference := ObjectReference{Bucket: archiver.bucket, Key: ObjectKey(archiver.now(), archiver.prefix)}
	archiver.logger.Info(logMessageUploading,
		zap.String(logFieldBucket, reference.Bucket),
		zap.String(logFieldKey, reference.Key),
		zap.Int(logFieldCount, len(friends)),
	)

	if err := archiver.writer.WriteObject(ctx, reference.Bucket, reference.Key, ContentType, EncodeCSV(friends)); err != nil {
		archiver.logger.Error(logMessageUploadFailed,
			zap.String(logFieldBucket, reference.Bucket),
			zap.String(logFieldKey, reference.Key),
			zap.Error(err),
		)
		return ObjectReference{}, fmt.Errorf("%s: %w", errMessageWriteArchive, err)
	}

	archiver.logger.Info(logMessageUploaded, zap.String(logFieldKey, reference.Key))
	return reference, nil
}

// EncodeCSV renders every identifier as a single quoted field terminated by CRLF.
func EncodeCSV(friends []twitter.UserID) []byte {
	var buffer bytes.Buffer
	for _, friendID := range friends {
		buffer.WriteString(csvQuote)
		buffer.WriteString(friendID.String())
		buffer.WriteString(csvQuote)
		buffer.WriteString(csvRecordEnd)
	}
	return buffer.Bytes()
}

// ObjectKey names the archive written at now.
func ObjectKey(now time.Time, prefix string) string {
	return fmt.Sprintf(objectKeyFormat, now.UTC().Format(TimestampLayout), prefix)
}
