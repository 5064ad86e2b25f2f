// Package bootstrap assembles a sync job from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f-sync/listsync/internal/archive"
	"github.com/f-sync/listsync/internal/config"
	"github.com/f-sync/listsync/internal/credentials"
	"github.com/f-sync/listsync/internal/job"
	"github.com/f-sync/listsync/internal/metrics"
	"github.com/f-sync/listsync/internal/pagination"
	"github.com/f-sync/listsync/internal/storage"
	"github.com/f-sync/listsync/internal/twitter"
)

const (
	errMessageObjectStore    = "create object store"
	errMessageDecrypter      = "create decrypter"
	errMessageSource         = "create credentials source"
	errMessageArchiver       = "create archiver"
	errMessageJob            = "create job"
	errMessageUnknownBackend = "unknown storage backend"

	logMessageStaticCredentials = "using credentials from configuration"
	logMessageKMSCredentials    = "using kms encrypted credentials"
	logMessageStorageBackend    = "using object storage backend"
	logFieldBackend             = "backend"
	logFieldCryptoKey           = "crypto_key"
)

// ObjectStore reads credentials and writes archives.
type ObjectStore interface {
	credentials.ObjectReader
	archive.ObjectWriter
	Close() error
}

// Dependencies replaces the constructors of external services.
type Dependencies struct {
	NewObjectStore func(ctx context.Context, configuration config.StorageConfig, logger *zap.Logger) (ObjectStore, error)
	NewDecrypter   func(ctx context.Context, keyName string, logger *zap.Logger) (credentials.Decrypter, error)
	Registerer     prometheus.Registerer
	Now            func() time.Time
	Wait           pagination.WaitFunc
}

// Application owns a configured Job and the resources it holds.
type Application struct {
	Job   *job.Job
	store ObjectStore
}

// NewApplication wires storage, credentials, the Twitter client factory, the archiver and metrics into a Job.
func NewApplication(ctx context.Context, configuration config.Config, logger *zap.Logger, dependencies Dependencies) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dependencies.NewObjectStore == nil {
		dependencies.NewObjectStore = newDefaultObjectStore
	}
	if dependencies.NewDecrypter == nil {
		dependencies.NewDecrypter = newDefaultDecrypter
	}

	application := &Application{}
	needsStore := configuration.Archive.Enabled || !configuration.Twitter.HasStaticCredentials()
	if needsStore {
		logger.Info(logMessageStorageBackend, zap.String(logFieldBackend, configuration.Storage.Backend))
		store, err := dependencies.NewObjectStore(ctx, configuration.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageObjectStore, err)
		}
		application.store = store
	}

	credentialSource, err := newCredentialSource(ctx, configuration, application.store, logger, dependencies)
	if err != nil {
		_ = application.Close()
		return nil, err
	}

	var friendArchiver job.Archiver
	if configuration.Archive.Enabled {
		archiver, err := archive.New(archive.Config{
			Writer: application.store,
			Bucket: configuration.Archive.Bucket,
			Prefix: configuration.Archive.Prefix,
			Now:    dependencies.Now,
			Logger: logger,
		})
		if err != nil {
			_ = application.Close()
			return nil, fmt.Errorf("%s: %w", errMessageArchiver, err)
		}
		friendArchiver = archiver
	}

	syncJob, err := job.New(job.Config{
		Credentials:             credentialSource,
		NewClient:               newClientFactory(configuration.Twitter.APIBaseURL, logger),
		Archiver:                friendArchiver,
		ListName:                configuration.List.Name,
		ListDescription:         configuration.List.Description,
		BatchSize:               configuration.Sync.BatchSize,
		MaxFriends:              configuration.Sync.MaxFriends,
		RateLimitCooldown:       configuration.RateLimit.Cooldown,
		RateLimitMaxRetries:     configuration.RateLimit.MaxRetries,
		LookupRequestsPerSecond: configuration.Lookup.RequestsPerSecond,
		Wait:                    dependencies.Wait,
		Metrics:                 metrics.NewRecorder(dependencies.Registerer),
		Logger:                  logger,
		Now:                     dependencies.Now,
	})
	if err != nil {
		_ = application.Close()
		return nil, fmt.Errorf("%s: %w", errMessageJob, err)
	}
	application.Job = syncJob
	return application, nil
}

// Close releases the object store.
func (application *Application) Close() error {
	if application.store == nil {
		return nil
	}
	return application.store.Close()
}

func newCredentialSource(ctx context.Context, configuration config.Config, store ObjectStore, logger *zap.Logger, dependencies Dependencies) (job.CredentialsSource, error) {
	if configuration.Twitter.HasStaticCredentials() {
		logger.Info(logMessageStaticCredentials)
		return credentials.StaticSource{Value: configuration.Twitter.Credentials}, nil
	}

	keyName := credentials.KeyName(configuration.KMS.Project, configuration.KMS.Location, configuration.KMS.KeyRing, configuration.KMS.CryptoKey)
	logger.Info(logMessageKMSCredentials, zap.String(logFieldCryptoKey, keyName))
	decrypter, err := dependencies.NewDecrypter(ctx, keyName, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageDecrypter, err)
	}
	source, err := credentials.NewSource(credentials.SourceConfig{
		Reader:    store,
		Decrypter: decrypter,
		Bucket:    configuration.KMS.Bucket,
		Object:    configuration.KMS.Object,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageSource, err)
	}
	return source, nil
}

func newClientFactory(baseURL string, logger *zap.Logger) job.ClientFactory {
	return func(ctx context.Context, loaded twitter.Credentials) (job.SocialGraph, error) {
		httpClient, err := twitter.NewOAuthHTTPClient(ctx, loaded)
		if err != nil {
			return nil, err
		}
		client, err := twitter.NewClient(twitter.Config{BaseURL: baseURL, Client: httpClient, Logger: logger})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func newDefaultObjectStore(ctx context.Context, configuration config.StorageConfig, logger *zap.Logger) (ObjectStore, error) {
	switch configuration.Backend {
	case config.StorageBackendFilesystem:
		return storage.NewFileStore(configuration.Directory), nil
	case config.StorageBackendGCS:
		store, err := storage.NewGCSStore(ctx, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%s %q", errMessageUnknownBackend, configuration.Backend)
	}
}

func newDefaultDecrypter(ctx context.Context, keyName string, logger *zap.Logger) (credentials.Decrypter, error) {
	decrypter, err := credentials.NewKMSDecrypter(ctx, keyName, logger)
	if err != nil {
		return nil, err
	}
	return decrypter, nil
}
