// Package config loads sync job settings from viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/f-sync/listsync/internal/twitter"
)

// Configuration keys. Environment variables use EnvPrefix with dots and dashes replaced by underscores.
const (
	EnvPrefix = "LISTSYNC"

	KeyListName                 = "list.name"
	KeyListDescription          = "list.description"
	KeyArchiveEnabled           = "archive.enabled"
	KeyArchiveBucket            = "archive.bucket"
	KeyArchivePrefix            = "archive.prefix"
	KeyStorageBackend           = "storage.backend"
	KeyStorageDirectory         = "storage.directory"
	KeyKMSProject               = "kms.project"
	KeyKMSLocation              = "kms.location"
	KeyKMSKeyRing               = "kms.keyring"
	KeyKMSCryptoKey             = "kms.cryptokey"
	KeyKMSBucket                = "kms.bucket"
	KeyKMSObject                = "kms.object"
	KeyTwitterAPIBaseURL        = "twitter.api_base_url"
	KeyTwitterConsumerKey       = "twitter.consumer_key"
	KeyTwitterConsumerSecret    = "twitter.consumer_secret"
	KeyTwitterAccessToken       = "twitter.access_token"
	KeyTwitterAccessTokenSecret = "twitter.access_token_secret"
	KeyRateLimitCooldown        = "ratelimit.cooldown"
	KeyRateLimitMaxRetries      = "ratelimit.max_retries"
	KeyLookupRequestsPerSecond  = "lookup.requests_per_second"
	KeySyncBatchSize            = "sync.batch_size"
	KeySyncMaxFriends           = "sync.max_friends"
	KeyRunTimeout               = "run.timeout"
	KeyServerHost               = "server.host"
	KeyServerPort               = "server.port"
)

// Storage backends.
const (
	StorageBackendGCS        = "gcs"
	StorageBackendFilesystem = "filesystem"
)

const (
	defaultListName              = "Synced Friends"
	defaultListDescription       = "Synced list of friends"
	defaultArchiveBucket         = "twitter-friends"
	defaultArchivePrefix         = "twitter-friends"
	defaultStorageDirectory      = "."
	defaultKMSLocation           = "global"
	defaultKMSCryptoKey          = "twitter"
	defaultKMSObject             = "keys/twitter.encrypted"
	defaultTwitterAPIBaseURL     = "https://api.twitter.com/1.1/"
	defaultRateLimitCooldown     = 15 * time.Minute
	defaultSyncMaxFriends        = 5000
	DefaultServerHost            = "0.0.0.0"
	DefaultServerPort            = 8080
	maximumServerPort            = 65535
	errMessageInvalidConfig      = "invalid configuration"
	errMessageRequiredFormat     = "%s is required"
	errMessageNegativeFormat     = "%s must not be negative"
	errMessagePositiveFormat     = "%s must be positive"
	errMessageRangeFormat        = "%s must be between %d and %d"
	errMessageBackendFormat      = "%s must be %q or %q"
	errMessagePartialCredentials = "twitter credentials must be given all together or not at all"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New(errMessageInvalidConfig)

// Config holds every setting of a sync deployment.
type Config struct {
	List      ListConfig
	Archive   ArchiveConfig
	Storage   StorageConfig
	KMS       KMSConfig
	Twitter   TwitterConfig
	RateLimit RateLimitConfig
	Lookup    LookupConfig
	Sync      SyncConfig
	Run       RunConfig
	Server    ServerConfig
}

// ListConfig names the synced list.
type ListConfig struct {
	Name        string
	Description string
}

// ArchiveConfig controls the friend CSV export.
type ArchiveConfig struct {
	Enabled bool
	Bucket  string
	Prefix  string
}

// StorageConfig selects the object storage backend.
type StorageConfig struct {
	Backend   string
	Directory string
}

// KMSConfig locates the encrypted credentials document and the key that seals it.
type KMSConfig struct {
	Project   string
	Location  string
	KeyRing   string
	CryptoKey string
	Bucket    string
	Object    string
}

// TwitterConfig points at the API and optionally carries credentials directly.
type TwitterConfig struct {
	APIBaseURL  string
	Credentials twitter.Credentials
}

// HasStaticCredentials reports whether any credential was configured directly.
func (configuration TwitterConfig) HasStaticCredentials() bool {
	credentials := configuration.Credentials
	return credentials.ConsumerKey != "" || credentials.ConsumerSecret != "" ||
		credentials.AccessToken != "" || credentials.AccessTokenSecret != ""
}

// RateLimitConfig governs pauses on rate limited reads.
type RateLimitConfig struct {
	Cooldown   time.Duration
	MaxRetries int
}

// LookupConfig paces validity lookups.
type LookupConfig struct {
	RequestsPerSecond float64
}

// SyncConfig bounds the reconciliation.
type SyncConfig struct {
	BatchSize  int
	MaxFriends int
}

// RunConfig bounds a single run.
type RunConfig struct {
	Timeout time.Duration
}

// ServerConfig addresses the HTTP trigger.
type ServerConfig struct {
	Host string
	Port int
}

// Address renders host:port.
func (configuration ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", configuration.Host, configuration.Port)
}

// SetDefaults registers every key with its default and enables environment lookups.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyListName, defaultListName)
	v.SetDefault(KeyListDescription, defaultListDescription)
	v.SetDefault(KeyArchiveEnabled, true)
	v.SetDefault(KeyArchiveBucket, defaultArchiveBucket)
	v.SetDefault(KeyArchivePrefix, defaultArchivePrefix)
	v.SetDefault(KeyStorageBackend, StorageBackendGCS)
	v.SetDefault(KeyStorageDirectory, defaultStorageDirectory)
	v.SetDefault(KeyKMSProject, "")
	v.SetDefault(KeyKMSLocation, defaultKMSLocation)
	v.SetDefault(KeyKMSKeyRing, "")
	v.SetDefault(KeyKMSCryptoKey, defaultKMSCryptoKey)
	v.SetDefault(KeyKMSBucket, "")
	v.SetDefault(KeyKMSObject, defaultKMSObject)
	v.SetDefault(KeyTwitterAPIBaseURL, defaultTwitterAPIBaseURL)
	v.SetDefault(KeyTwitterConsumerKey, "")
	v.SetDefault(KeyTwitterConsumerSecret, "")
	v.SetDefault(KeyTwitterAccessToken, "")
	v.SetDefault(KeyTwitterAccessTokenSecret, "")
	v.SetDefault(KeyRateLimitCooldown, defaultRateLimitCooldown)
	v.SetDefault(KeyRateLimitMaxRetries, 0)
	v.SetDefault(KeyLookupRequestsPerSecond, 0.0)
	v.SetDefault(KeySyncBatchSize, twitter.MaxMembersPerRequest)
	v.SetDefault(KeySyncMaxFriends, defaultSyncMaxFriends)
	v.SetDefault(KeyRunTimeout, time.Duration(0))
	v.SetDefault(KeyServerHost, DefaultServerHost)
	v.SetDefault(KeyServerPort, DefaultServerPort)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	configuration := Config{
		List: ListConfig{
			Name:        strings.TrimSpace(v.GetString(KeyListName)),
			Description: v.GetString(KeyListDescription),
		},
		Archive: ArchiveConfig{
			Enabled: v.GetBool(KeyArchiveEnabled),
			Bucket:  strings.TrimSpace(v.GetString(KeyArchiveBucket)),
			Prefix:  strings.TrimSpace(v.GetString(KeyArchivePrefix)),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(strings.TrimSpace(v.GetString(KeyStorageBackend))),
			Directory: v.GetString(KeyStorageDirectory),
		},
		KMS: KMSConfig{
			Project:   strings.TrimSpace(v.GetString(KeyKMSProject)),
			Location:  strings.TrimSpace(v.GetString(KeyKMSLocation)),
			KeyRing:   strings.TrimSpace(v.GetString(KeyKMSKeyRing)),
			CryptoKey: strings.TrimSpace(v.GetString(KeyKMSCryptoKey)),
			Bucket:    strings.TrimSpace(v.GetString(KeyKMSBucket)),
			Object:    strings.TrimSpace(v.GetString(KeyKMSObject)),
		},
		Twitter: TwitterConfig{
			APIBaseURL: strings.TrimSpace(v.GetString(KeyTwitterAPIBaseURL)),
			Credentials: twitter.Credentials{
				ConsumerKey:       v.GetString(KeyTwitterConsumerKey),
				ConsumerSecret:    v.GetString(KeyTwitterConsumerSecret),
				AccessToken:       v.GetString(KeyTwitterAccessToken),
				AccessTokenSecret: v.GetString(KeyTwitterAccessTokenSecret),
			},
		},
		RateLimit: RateLimitConfig{
			Cooldown:   v.GetDuration(KeyRateLimitCooldown),
			MaxRetries: v.GetInt(KeyRateLimitMaxRetries),
		},
		Lookup: LookupConfig{RequestsPerSecond: v.GetFloat64(KeyLookupRequestsPerSecond)},
		Sync: SyncConfig{
			BatchSize:  v.GetInt(KeySyncBatchSize),
			MaxFriends: v.GetInt(KeySyncMaxFriends),
		},
		Run: RunConfig{Timeout: v.GetDuration(KeyRunTimeout)},
		Server: ServerConfig{
			Host: v.GetString(KeyServerHost),
			Port: v.GetInt(KeyServerPort),
		},
	}
	if err := configuration.Validate(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

// Validate checks that the configuration can drive a run.
func (configuration Config) Validate() error {
	var problems []error
	require := func(value string, key string) {
		if value == "" {
			problems = append(problems, fmt.Errorf(errMessageRequiredFormat, key))
		}
	}

	require(configuration.List.Name, KeyListName)
	require(configuration.Twitter.APIBaseURL, KeyTwitterAPIBaseURL)

	switch configuration.Storage.Backend {
	case StorageBackendGCS:
	case StorageBackendFilesystem:
		require(configuration.Storage.Directory, KeyStorageDirectory)
	default:
		problems = append(problems, fmt.Errorf(errMessageBackendFormat, KeyStorageBackend, StorageBackendGCS, StorageBackendFilesystem))
	}

	if configuration.Archive.Enabled {
		require(configuration.Archive.Bucket, KeyArchiveBucket)
	}

	if configuration.Twitter.HasStaticCredentials() {
		if configuration.Twitter.Credentials.Validate() != nil {
			problems = append(problems, errors.New(errMessagePartialCredentials))
		}
	} else {
		require(configuration.KMS.Project, KeyKMSProject)
		require(configuration.KMS.KeyRing, KeyKMSKeyRing)
		require(configuration.KMS.CryptoKey, KeyKMSCryptoKey)
		require(configuration.KMS.Bucket, KeyKMSBucket)
		require(configuration.KMS.Object, KeyKMSObject)
	}

	if configuration.RateLimit.Cooldown <= 0 {
		problems = append(problems, fmt.Errorf(errMessagePositiveFormat, KeyRateLimitCooldown))
	}
	if configuration.RateLimit.MaxRetries < 0 {
		problems = append(problems, fmt.Errorf(errMessageNegativeFormat, KeyRateLimitMaxRetries))
	}
	if configuration.Lookup.RequestsPerSecond < 0 {
		problems = append(problems, fmt.Errorf(errMessageNegativeFormat, KeyLookupRequestsPerSecond))
	}
	if configuration.Sync.BatchSize < 1 || configuration.Sync.BatchSize > twitter.MaxMembersPerRequest {
		problems = append(problems, fmt.Errorf(errMessageRangeFormat, KeySyncBatchSize, 1, twitter.MaxMembersPerRequest))
	}
	if configuration.Sync.MaxFriends < 1 {
		problems = append(problems, fmt.Errorf(errMessagePositiveFormat, KeySyncMaxFriends))
	}
	if configuration.Run.Timeout < 0 {
		problems = append(problems, fmt.Errorf(errMessageNegativeFormat, KeyRunTimeout))
	}
	if configuration.Server.Port < 1 || configuration.Server.Port > maximumServerPort {
		problems = append(problems, fmt.Errorf(errMessageRangeFormat, KeyServerPort, 1, maximumServerPort))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}
