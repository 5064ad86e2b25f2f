// Package job runs one end to end friends to list synchronization.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/f-sync/listsync/internal/archive"
	"github.com/f-sync/listsync/internal/metrics"
	"github.com/f-sync/listsync/internal/pagination"
	"github.com/f-sync/listsync/internal/reconcile"
	"github.com/f-sync/listsync/internal/twitter"
)

const (
	// DefaultMaxFriends is the number of friend ids fetched when no cap is configured.
	DefaultMaxFriends = 5000

	operationFriendIDs   = "friend_ids"
	operationListMembers = "list_members"

	errMessageMissingCredentials = "credentials source is required"
	errMessageMissingFactory     = "client factory is required"
	errMessageMissingListName    = "list name is required"
	errMessageLoadCredentials    = "load credentials"
	errMessageCreateClient       = "create twitter client"
	errMessageEnsureList         = "ensure list"
	errMessageFetchLists         = "fetch lists"
	errMessageCreateList         = "create list"
	errMessageFetchFriends       = "fetch friends"
	errMessageVerifyCredentials  = "verify credentials"
	errMessageFetchListMembers   = "fetch list members"
	errMessageBuildReconciler    = "build reconciler"
	errMessageReconcile          = "reconcile list"
	errMessageArchive            = "archive friends"

	logMessageRunStarted      = "sync run started"
	logMessageRunCompleted    = "sync run completed"
	logMessageRunFailed       = "sync run failed"
	logMessageCheckingList    = "checking and creating list"
	logMessageFoundList       = "found existing list"
	logMessageCreatedList     = "created list"
	logMessageFetchingFriends = "getting friends"
	logMessageFetchedFriends  = "fetched friend ids"
	logMessageTooManyFriends  = "friend count exceeds the fetch cap, only the first friends will be synced"
	logMessageFetchingMembers = "getting friends currently in list"
	logMessageFetchedMembers  = "fetched list members"
	logMessageArchiveDisabled = "archive disabled, skipping upload"
	logFieldListID            = "list_id"
	logFieldListName          = "list_name"
	logFieldCount             = "count"
	logFieldFriendsCount      = "friends_count"
	logFieldMaxFriends        = "max_friends"
	logFieldDuration          = "duration"
	logFieldAdded             = "added"
	logFieldRemoved           = "removed"
)

var (
	errMissingCredentials = errors.New(errMessageMissingCredentials)
	errMissingFactory     = errors.New(errMessageMissingFactory)
	errMissingListName    = errors.New(errMessageMissingListName)
)

// SocialGraph is the subset of the Twitter API a run needs.
type SocialGraph interface {
	VerifyCredentials(ctx context.Context) (twitter.User, error)
	FriendIDs(ctx context.Context, userID twitter.UserID, cursor int64) (twitter.IDPage, error)
	Lists(ctx context.Context) ([]twitter.List, error)
	CreateList(ctx context.Context, spec twitter.ListSpec) (twitter.List, error)
	ListMemberIDs(ctx context.Context, listID string, cursor int64) (twitter.IDPage, error)
	AddListMembers(ctx context.Context, listID string, userIDs []twitter.UserID) error
	RemoveListMembers(ctx context.Context, listID string, userIDs []twitter.UserID) error
	User(ctx context.Context, userID twitter.UserID) (twitter.User, error)
}

// CredentialsSource yields the OAuth secrets for a run.
type CredentialsSource interface {
	Credentials(ctx context.Context) (twitter.Credentials, error)
}

// ClientFactory builds an authenticated SocialGraph.
type ClientFactory func(ctx context.Context, credentials twitter.Credentials) (SocialGraph, error)

// Archiver exports the fetched friend set.
type Archiver interface {
	Archive(ctx context.Context, friends []twitter.UserID) (archive.ObjectReference, error)
}

// Metrics receives run level measurements.
type Metrics interface {
	reconcile.Observer
	pagination.RateLimitObserver
	ObserveRun(status string, duration time.Duration)
	ObserveFriendsTruncated()
	SetFriendCount(count int)
	SetListMemberCount(count int)
}

// Config wires a Job.
type Config struct {
	Credentials CredentialsSource
	NewClient   ClientFactory
	// Archiver is optional. A nil Archiver disables the export.
	Archiver        Archiver
	ListName        string
	ListDescription string
	// BatchSize defaults to twitter.MaxMembersPerRequest.
	BatchSize int
	// MaxFriends defaults to DefaultMaxFriends.
	MaxFriends              int
	RateLimitCooldown       time.Duration
	RateLimitMaxRetries     int
	LookupRequestsPerSecond float64
	// Wait replaces pagination.SleepContext for rate limit pauses.
	Wait    pagination.WaitFunc
	Metrics Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Summary describes a finished or aborted run.
type Summary struct {
	ListID      string                   `json:"list_id"`
	Friends     int                      `json:"friends"`
	ListMembers int                      `json:"list_members"`
	ToAdd       int                      `json:"to_add"`
	ToRemove    int                      `json:"to_remove"`
	Added       int                      `json:"added"`
	Removed     int                      `json:"removed"`
	Archive     *archive.ObjectReference `json:"archive,omitempty"`
}

// Job executes sync runs. A Job is safe for sequential reuse; callers serialize concurrent runs.
type Job struct {
	configuration Config
	fetcher       *pagination.Fetcher
	metrics       Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// New validates configuration and constructs a Job.
func New(configuration Config) (*Job, error) {
	if configuration.Credentials == nil {
		return nil, errMissingCredentials
	}
	if configuration.NewClient == nil {
		return nil, errMissingFactory
	}
	if configuration.ListName == "" {
		return nil, errMissingListName
	}
	if configuration.BatchSize == 0 {
		configuration.BatchSize = twitter.MaxMembersPerRequest
	}
	if configuration.MaxFriends <= 0 {
		configuration.MaxFriends = DefaultMaxFriends
	}
	runMetrics := configuration.Metrics
	if runMetrics == nil {
		runMetrics = metrics.NewRecorder(nil)
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	fetcher := pagination.NewFetcher(pagination.Config{
		Cooldown:   configuration.RateLimitCooldown,
		MaxRetries: configuration.RateLimitMaxRetries,
		Wait:       configuration.Wait,
		Observer:   runMetrics,
		Logger:     logger,
	})
	return &Job{
		configuration: configuration,
		fetcher:       fetcher,
		metrics:       runMetrics,
		logger:        logger,
		now:           now,
	}, nil
}

// Run performs credentials, list lookup, both fetches, reconciliation and the optional archive in order.
// The first failing step aborts the run; nothing is retried.
func (job *Job) Run(ctx context.Context) (Summary, error) {
	startedAt := job.now()
	job.logger.Info(logMessageRunStarted, zap.String(logFieldListName, job.configuration.ListName))

	summary, err := job.run(ctx)
	duration := job.now().Sub(startedAt)
	if err != nil {
		job.metrics.ObserveRun(metrics.RunStatusFailed, duration)
		job.logger.Error(logMessageRunFailed, zap.Duration(logFieldDuration, duration), zap.Error(err))
		return summary, err
	}
	job.metrics.ObserveRun(metrics.RunStatusSucceeded, duration)
	job.logger.Info(logMessageRunCompleted,
		zap.String(logFieldListID, summary.ListID),
		zap.Int(logFieldAdded, summary.Added),
		zap.Int(logFieldRemoved, summary.Removed),
		zap.Duration(logFieldDuration, duration),
	)
	return summary, nil
}

func (job *Job) run(ctx context.Context) (Summary, error) {
	var summary Summary

	credentials, err := job.configuration.Credentials.Credentials(ctx)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", errMessageLoadCredentials, err)
	}
	graph, err := job.configuration.NewClient(ctx, credentials)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", errMessageCreateClient, err)
	}

	list, err := job.EnsureList(ctx, graph)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", errMessageEnsureList, err)
	}
	summary.ListID = list.ID

	friends, err := job.FetchFriends(ctx, graph)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", errMessageFetchFriends, err)
	}
	summary.Friends = len(friends)
	job.metrics.SetFriendCount(len(friends))

	listMembers, err := job.FetchListMembers(ctx, graph, list.ID)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", errMessageFetchListMembers, err)
	}
	summary.ListMembers = len(listMembers)
	job.metrics.SetListMemberCount(len(listMembers))

	reconciler, err := job.newReconciler(graph)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", errMessageBuildReconciler, err)
	}
	result, err := reconciler.Reconcile(ctx, list.ID, friends, listMembers)
	summary.ToAdd = len(result.Plan.ToAdd)
	summary.ToRemove = len(result.Plan.ToRemove)
	summary.Added = result.Added
	summary.Removed = result.Removed
	if err != nil {
		return summary, fmt.Errorf("%s: %w", errMessageReconcile, err)
	}

	if job.configuration.Archiver == nil {
		job.logger.Info(logMessageArchiveDisabled)
		return summary, nil
	}
	reference, err := job.configuration.Archiver.Archive(ctx, friends)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", errMessageArchive, err)
	}
	summary.Archive = &reference
	return summary, nil
}

// EnsureList returns the list named ListName, creating it as a private list when none exists.
func (job *Job) EnsureList(ctx context.Context, graph SocialGraph) (twitter.List, error) {
	job.logger.Info(logMessageCheckingList, zap.String(logFieldListName, job.configuration.ListName))
	lists, err := graph.Lists(ctx)
	if err != nil {
		return twitter.List{}, fmt.Errorf("%s: %w", errMessageFetchLists, err)
	}
	for _, list := range lists {
		if list.Name == job.configuration.ListName {
			job.logger.Info(logMessageFoundList, zap.String(logFieldListID, list.ID))
			return list, nil
		}
	}

	created, err := graph.CreateList(ctx, twitter.ListSpec{
		Name:        job.configuration.ListName,
		Mode:        twitter.ListModePrivate,
		Description: job.configuration.ListDescription,
	})
	if err != nil {
		return twitter.List{}, fmt.Errorf("%s: %w", errMessageCreateList, err)
	}
	job.logger.Info(logMessageCreatedList, zap.String(logFieldListID, created.ID))
	return created, nil
}

// FetchFriends returns the ids the authenticated account follows, capped at MaxFriends.
func (job *Job) FetchFriends(ctx context.Context, graph SocialGraph) ([]twitter.UserID, error) {
	job.logger.Info(logMessageFetchingFriends)
	account, err := graph.VerifyCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageVerifyCredentials, err)
	}
	maxFriends := job.configuration.MaxFriends
	if account.FriendsCount > maxFriends {
		job.metrics.ObserveFriendsTruncated()
		job.logger.Warn(logMessageTooManyFriends,
			zap.Int(logFieldFriendsCount, account.FriendsCount),
			zap.Int(logFieldMaxFriends, maxFriends),
		)
	}

	friendPages := pagination.All(ctx, job.fetcher, operationFriendIDs, func(ctx context.Context, cursor int64) ([]twitter.UserID, int64, error) {
		page, err := graph.FriendIDs(ctx, account.ID, cursor)
		return page.IDs, page.NextCursor, err
	})
	friends, err := pagination.Collect(friendPages, maxFriends)
	if err != nil {
		return nil, err
	}
	job.logger.Info(logMessageFetchedFriends, zap.Int(logFieldCount, len(friends)))
	return friends, nil
}

// FetchListMembers returns every member id of listID.
func (job *Job) FetchListMembers(ctx context.Context, graph SocialGraph, listID string) ([]twitter.UserID, error) {
	job.logger.Info(logMessageFetchingMembers, zap.String(logFieldListID, listID))
	memberPages := pagination.All(ctx, job.fetcher, operationListMembers, func(ctx context.Context, cursor int64) ([]twitter.UserID, int64, error) {
		page, err := graph.ListMemberIDs(ctx, listID, cursor)
		return page.IDs, page.NextCursor, err
	})
	listMembers, err := pagination.Collect(memberPages, 0)
	if err != nil {
		return nil, err
	}
	job.logger.Info(logMessageFetchedMembers, zap.Int(logFieldCount, len(listMembers)))
	return listMembers, nil
}

func (job *Job) newReconciler(graph SocialGraph) (*reconcile.Reconciler, error) {
	checker, err := reconcile.NewValidityChecker(reconcile.ValidityConfig{
		Lookup:            graph,
		RequestsPerSecond: job.configuration.LookupRequestsPerSecond,
		Logger:            job.logger,
	})
	if err != nil {
		return nil, err
	}
	return reconcile.New(reconcile.Config{
		Editor:    graph,
		Validator: checker,
		BatchSize: job.configuration.BatchSize,
		Observer:  job.metrics,
		Logger:    job.logger,
	})
}
