// Package credentials loads the Twitter OAuth secrets used by a sync run.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/f-sync/listsync/internal/twitter"
)

const (
	errMessageMissingReader    = "object reader is required"
	errMessageMissingDecrypter = "decrypter is required"
	errMessageMissingLocation  = "credential bucket and object are required"
	errMessageDownload         = "download encrypted credentials"
	errMessageDecryptDocument  = "decrypt credentials"
	errMessageParseDocument    = "parse credentials document"

	logMessageDownloading = "downloading encrypted credentials"
	logFieldBucket        = "bucket"
	logFieldObject        = "object"
)

var (
	errMissingReader    = errors.New(errMessageMissingReader)
	errMissingDecrypter = errors.New(errMessageMissingDecrypter)
	errMissingLocation  = errors.New(errMessageMissingLocation)
)

// ObjectReader downloads an object.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket string, key string) ([]byte, error)
}

// Decrypter turns ciphertext into plaintext.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// SourceConfig configures a Source.
type SourceConfig struct {
	Reader    ObjectReader
	Decrypter Decrypter
	Bucket    string
	Object    string
	Logger    *zap.Logger
}

// Source fetches an encrypted YAML credentials document, decrypts it and parses it.
type Source struct {
	reader    ObjectReader
	decrypter Decrypter
	bucket    string
	object    string
	logger    *zap.Logger
}

// NewSource constructs a Source.
func NewSource(configuration SourceConfig) (*Source, error) {
	if configuration.Reader == nil {
		return nil, errMissingReader
	}
	if configuration.Decrypter == nil {
		return nil, errMissingDecrypter
	}
	if configuration.Bucket == "" || configuration.Object == "" {
		return nil, errMissingLocation
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		reader:    configuration.Reader,
		decrypter: configuration.Decrypter,
		bucket:    configuration.Bucket,
		object:    configuration.Object,
		logger:    logger,
	}, nil
}

// Credentials downloads, decrypts and parses the credentials document. Each call reads it afresh.
func (source *Source) Credentials(ctx context.Context) (twitter.Credentials, error) {
	source.logger.Info(logMessageDownloading, zap.String(logFieldBucket, source.bucket), zap.String(logFieldObject, source.object))
	ciphertext, err := source.reader.ReadObject(ctx, source.bucket, source.object)
	if err != nil {
		return twitter.Credentials{}, fmt.Errorf("%s: %w", errMessageDownload, err)
	}
	plaintext, err := source.decrypter.Decrypt(ctx, ciphertext)
	if err != nil {
		return twitter.Credentials{}, fmt.Errorf("%s: %w", errMessageDecryptDocument, err)
	}
	return ParseDocument(plaintext)
}

// ParseDocument decodes a YAML mapping with consumer_key, consumer_secret, access_token and access_token_secret.
func ParseDocument(document []byte) (twitter.Credentials, error) {
	var credentials twitter.Credentials
	if err := yaml.Unmarshal(document, &credentials); err != nil {
		return twitter.Credentials{}, fmt.Errorf("%s: %w", errMessageParseDocument, err)
	}
	if err := credentials.Validate(); err != nil {
		return twitter.Credentials{}, fmt.Errorf("%s: %w", errMessageParseDocument, err)
	}
	return credentials, nil
}

// StaticSource serves credentials supplied directly in configuration.
type StaticSource struct {
	Value twitter.Credentials
}

// Credentials returns the configured credentials once they validate.
func (source StaticSource) Credentials(context.Context) (twitter.Credentials, error) {
	if err := source.Value.Validate(); err != nil {
		return twitter.Credentials{}, err
	}
	return source.Value, nil
}
