// Package reconcile computes and applies the membership changes that make a list match a friend set.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/f-sync/listsync/internal/batch"
	"github.com/f-sync/listsync/internal/twitter"
)

const (
	errMessageMissingEditor    = "list editor is required"
	errMessageMissingValidator = "validator is required"
	errMessageBatchSizeFormat  = "batch size must be between 1 and %d, got %d"
	errMessageValidateUser     = "validate user"
	errMessageAddBatch         = "add batch"
	errMessageRemoveBatch      = "remove batch"

	logMessagePlanning      = "syncing friends to list"
	logMessageAdding        = "adding friends to list"
	logMessageAddedBatch    = "added friends to list"
	logMessageRemoving      = "removing friends from list"
	logMessageRemovedBatch  = "removed friends from list"
	logFieldCount           = "count"
	logFieldListID          = "list_id"
	logFieldFriendCount     = "friends"
	logFieldListMemberCount = "list_members"
	logFieldBatchIndex      = "batch"
	logFieldBatchCount      = "batches"
)

var (
	errMissingEditor    = errors.New(errMessageMissingEditor)
	errMissingValidator = errors.New(errMessageMissingValidator)
)

// ListEditor applies bulk membership changes to a list.
type ListEditor interface {
	AddListMembers(ctx context.Context, listID string, userIDs []twitter.UserID) error
	RemoveListMembers(ctx context.Context, listID string, userIDs []twitter.UserID) error
}

// Validator confirms that a candidate account still exists.
type Validator interface {
	IsValidUser(ctx context.Context, userID twitter.UserID) (bool, error)
}

// Observer receives reconciliation counts.
type Observer interface {
	ObserveMembersAdded(count int)
	ObserveMembersRemoved(count int)
	ObserveInvalidUser()
}

// Config configures a Reconciler.
type Config struct {
	Editor    ListEditor
	Validator Validator
	// BatchSize defaults to twitter.MaxMembersPerRequest and may not exceed it.
	BatchSize int
	Observer  Observer
	Logger    *zap.Logger
}

// Plan holds the validity-confirmed membership changes for one run.
type Plan struct {
	ToAdd    []twitter.UserID
	ToRemove []twitter.UserID
}

// Empty reports whether the plan changes nothing.
func (plan Plan) Empty() bool {
	return len(plan.ToAdd) == 0 && len(plan.ToRemove) == 0
}

// Result reports what Apply changed.
type Result struct {
	Plan          Plan
	Added         int
	Removed       int
	AddBatches    int
	RemoveBatches int
}

// Reconciler plans and applies list membership changes.
type Reconciler struct {
	editor    ListEditor
	validator Validator
	batchSize int
	observer  Observer
	logger    *zap.Logger
}

// New constructs a Reconciler.
func New(configuration Config) (*Reconciler, error) {
	if configuration.Editor == nil {
		return nil, errMissingEditor
	}
	if configuration.Validator == nil {
		return nil, errMissingValidator
	}
	batchSize := configuration.BatchSize
	if batchSize == 0 {
		batchSize = twitter.MaxMembersPerRequest
	}
	if batchSize < 1 || batchSize > twitter.MaxMembersPerRequest {
		return nil, fmt.Errorf(errMessageBatchSizeFormat, twitter.MaxMembersPerRequest, batchSize)
	}
	observer := configuration.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		editor:    configuration.Editor,
		validator: configuration.Validator,
		batchSize: batchSize,
		observer:  observer,
		logger:    logger,
	}, nil
}

// Reconcile plans the changes between friends and listMembers and applies them to listID.
func (reconciler *Reconciler) Reconcile(ctx context.Context, listID string, friends []twitter.UserID, listMembers []twitter.UserID) (Result, error) {
	reconciler.logger.Info(logMessagePlanning,
		zap.String(logFieldListID, listID),
		zap.Int(logFieldFriendCount, len(friends)),
		zap.Int(logFieldListMemberCount, len(listMembers)),
	)
	plan, err := reconciler.Plan(ctx, friends, listMembers)
	if err != nil {
		return Result{Plan: plan}, err
	}
	return reconciler.Apply(ctx, listID, plan)
}

// Plan returns friends missing from listMembers and listMembers no longer in friends,
// keeping only candidates the validator confirms. Input order is preserved.
func (reconciler *Reconciler) Plan(ctx context.Context, friends []twitter.UserID, listMembers []twitter.UserID) (Plan, error) {
	var plan Plan
	var err error
	if plan.ToAdd, err = reconciler.validCandidates(ctx, Difference(friends, listMembers)); err != nil {
		return Plan{}, err
	}
	if plan.ToRemove, err = reconciler.validCandidates(ctx, Difference(listMembers, friends)); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Apply issues one bulk add per chunk of plan.ToAdd, then one bulk remove per chunk of plan.ToRemove.
// The first failing call aborts the remainder.
func (reconciler *Reconciler) Apply(ctx context.Context, listID string, plan Plan) (Result, error) {
	result := Result{Plan: plan}

	reconciler.logger.Info(logMessageAdding,
		zap.Int(logFieldCount, len(plan.ToAdd)),
		zap.Int(logFieldBatchCount, batch.Count(len(plan.ToAdd), reconciler.batchSize)),
	)
	addChunks, err := batch.Chunks(plan.ToAdd, reconciler.batchSize)
	if err != nil {
		return result, err
	}
	for chunk := range addChunks {
		if err := reconciler.editor.AddListMembers(ctx, listID, chunk); err != nil {
			return result, fmt.Errorf("%s %d: %w", errMessageAddBatch, result.AddBatches+1, err)
		}
		result.AddBatches++
		result.Added += len(chunk)
		reconciler.observer.ObserveMembersAdded(len(chunk))
		reconciler.logger.Info(logMessageAddedBatch, zap.Int(logFieldBatchIndex, result.AddBatches), zap.Int(logFieldCount, len(chunk)))
	}

	reconciler.logger.Info(logMessageRemoving,
		zap.Int(logFieldCount, len(plan.ToRemove)),
		zap.Int(logFieldBatchCount, batch.Count(len(plan.ToRemove), reconciler.batchSize)),
	)
	removeChunks, err := batch.Chunks(plan.ToRemove, reconciler.batchSize)
	if err != nil {
		return result, err
	}
	for chunk := range removeChunks {
		if err := reconciler.editor.RemoveListMembers(ctx, listID, chunk); err != nil {
			return result, fmt.Errorf("%s %d: %w", errMessageRemoveBatch, result.RemoveBatches+1, err)
		}
		result.RemoveBatches++
		result.Removed += len(chunk)
		reconciler.observer.ObserveMembersRemoved(len(chunk))
		reconciler.logger.Info(logMessageRemovedBatch, zap.Int(logFieldBatchIndex, result.RemoveBatches), zap.Int(logFieldCount, len(chunk)))
	}
	return result, nil
}

func (reconciler *Reconciler) validCandidates(ctx context.Context, candidates []twitter.UserID) ([]twitter.UserID, error) {
	var confirmed []twitter.UserID
	for _, userID := range candidates {
		valid, err := reconciler.validator.IsValidUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", errMessageValidateUser, userID, err)
		}
		if !valid {
			reconciler.observer.ObserveInvalidUser()
			continue
		}
		confirmed = append(confirmed, userID)
	}
	return confirmed, nil
}

// Difference returns the identifiers of source absent from exclude, in source order and without repeats.
func Difference(source []twitter.UserID, exclude []twitter.UserID) []twitter.UserID {
	excluded := make(map[twitter.UserID]struct{}, len(exclude))
	for _, userID := range exclude {
		excluded[userID] = struct{}{}
	}
	var remaining []twitter.UserID
	seen := make(map[twitter.UserID]struct{}, len(source))
	for _, userID := range source {
		if _, skip := excluded[userID]; skip {
			continue
		}
		if _, repeated := seen[userID]; repeated {
			continue
		}
		seen[userID] = struct{}{}
		remaining = append(remaining, userID)
	}
	return remaining
}

type noopObserver struct{}

func (noopObserver) ObserveMembersAdded(int)   {}
func (noopObserver) ObserveMembersRemoved(int) {}
func (noopObserver) ObserveInvalidUser()       {}
