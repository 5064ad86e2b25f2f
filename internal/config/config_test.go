package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/f-sync/listsync/internal/config"
)

const (
	testKMSProject = "demo-project"
	testKMSKeyRing = "listsync"
	testKMSBucket  = "demo-secrets"
)

func newConfiguredViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	v.Set(config.KeyKMSProject, testKMSProject)
	v.Set(config.KeyKMSKeyRing, testKMSKeyRing)
	v.Set(config.KeyKMSBucket, testKMSBucket)
	for key, value := range overrides {
		v.Set(key, value)
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	configuration, err := config.Load(newConfiguredViper(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if configuration.List.Name != "Synced Friends" {
		t.Fatalf("unexpected list name %q", configuration.List.Name)
	}
	if !configuration.Archive.Enabled || configuration.Archive.Bucket != "twitter-friends" || configuration.Archive.Prefix != "twitter-friends" {
		t.Fatalf("unexpected archive defaults %+v", configuration.Archive)
	}
	if configuration.Storage.Backend != config.StorageBackendGCS {
		t.Fatalf("unexpected storage backend %q", configuration.Storage.Backend)
	}
	if configuration.KMS.Location != "global" || configuration.KMS.CryptoKey != "twitter" || configuration.KMS.Object != "keys/twitter.encrypted" {
		t.Fatalf("unexpected kms defaults %+v", configuration.KMS)
	}
	if configuration.RateLimit.Cooldown != 15*time.Minute || configuration.RateLimit.MaxRetries != 0 {
		t.Fatalf("unexpected rate limit defaults %+v", configuration.RateLimit)
	}
	if configuration.Sync.BatchSize != 100 || configuration.Sync.MaxFriends != 5000 {
		t.Fatalf("unexpected sync defaults %+v", configuration.Sync)
	}
	if configuration.Server.Address() != "0.0.0.0:8080" {
		t.Fatalf("unexpected server address %q", configuration.Server.Address())
	}
	if configuration.Twitter.HasStaticCredentials() {
		t.Fatalf("expected no static credentials by default")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LISTSYNC_LIST_NAME", "Close Friends")
	t.Setenv("LISTSYNC_RATELIMIT_COOLDOWN", "90s")
	t.Setenv("LISTSYNC_ARCHIVE_ENABLED", "false")
	t.Setenv("LISTSYNC_SYNC_BATCH_SIZE", "25")

	configuration, err := config.Load(newConfiguredViper(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if configuration.List.Name != "Close Friends" {
		t.Fatalf("expected list name from environment, got %q", configuration.List.Name)
	}
	if configuration.RateLimit.Cooldown != 90*time.Second {
		t.Fatalf("expected cooldown from environment, got %s", configuration.RateLimit.Cooldown)
	}
	if configuration.Archive.Enabled {
		t.Fatalf("expected archive disabled from environment")
	}
	if configuration.Sync.BatchSize != 25 {
		t.Fatalf("expected batch size from environment, got %d", configuration.Sync.BatchSize)
	}
}

func TestLoadStaticCredentialsSkipKMS(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set(config.KeyTwitterConsumerKey, "ck")
	v.Set(config.KeyTwitterConsumerSecret, "cs")
	v.Set(config.KeyTwitterAccessToken, "at")
	v.Set(config.KeyTwitterAccessTokenSecret, "ats")

	configuration, err := config.Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !configuration.Twitter.HasStaticCredentials() {
		t.Fatalf("expected static credentials")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name      string
		overrides map[string]any
	}{
		{name: "empty list name", overrides: map[string]any{config.KeyListName: "  "}},
		{name: "batch size above ceiling", overrides: map[string]any{config.KeySyncBatchSize: 101}},
		{name: "batch size zero", overrides: map[string]any{config.KeySyncBatchSize: 0}},
		{name: "unknown backend", overrides: map[string]any{config.KeyStorageBackend: "s3"}},
		{name: "missing kms project", overrides: map[string]any{config.KeyKMSProject: ""}},
		{name: "archive without bucket", overrides: map[string]any{config.KeyArchiveBucket: ""}},
		{name: "zero cooldown", overrides: map[string]any{config.KeyRateLimitCooldown: "0s"}},
		{name: "negative retries", overrides: map[string]any{config.KeyRateLimitMaxRetries: -1}},
		{name: "negative lookup rate", overrides: map[string]any{config.KeyLookupRequestsPerSecond: -2.5}},
		{name: "negative timeout", overrides: map[string]any{config.KeyRunTimeout: "-1m"}},
		{name: "port out of range", overrides: map[string]any{config.KeyServerPort: 70000}},
		{name: "partial static credentials", overrides: map[string]any{config.KeyTwitterConsumerKey: "ck"}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			_, err := config.Load(newConfiguredViper(testCase.overrides))
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateAllowsDisabledArchiveWithoutBucket(t *testing.T) {
	configuration, err := config.Load(newConfiguredViper(map[string]any{
		config.KeyArchiveEnabled: false,
		config.KeyArchiveBucket:  "",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if configuration.Archive.Enabled {
		t.Fatalf("expected archive to be disabled")
	}
}
