package reconcile

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/f-sync/listsync/internal/twitter"
)

const (
	errMessageMissingLookup = "user lookup is required"

	logMessageCheckingUser = "checking user validity"
	logMessageInvalidUser  = "unable to look up user"
	logFieldUserID         = "user_id"
	logFieldAPIError       = "api_error"
)

var errMissingLookup = errors.New(errMessageMissingLookup)

// UserLookup resolves a single account.
type UserLookup interface {
	User(ctx context.Context, userID twitter.UserID) (twitter.User, error)
}

// ValidityConfig configures a ValidityChecker.
type ValidityConfig struct {
	Lookup UserLookup
	// RequestsPerSecond paces lookups. Zero leaves them unpaced.
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// ValidityChecker decides whether an account still resolves.
type ValidityChecker struct {
	lookup  UserLookup
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewValidityChecker constructs a ValidityChecker.
func NewValidityChecker(configuration ValidityConfig) (*ValidityChecker, error) {
	if configuration.Lookup == nil {
		return nil, errMissingLookup
	}
	limit := rate.Inf
	if configuration.RequestsPerSecond > 0 {
		limit = rate.Limit(configuration.RequestsPerSecond)
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidityChecker{
		lookup:  configuration.Lookup,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// IsValidUser performs one lookup for userID. A failed lookup means the account is deleted,
// suspended or otherwise inaccessible and yields false. Only context errors are returned.
func (checker *ValidityChecker) IsValidUser(ctx context.Context, userID twitter.UserID) (bool, error) {
	checker.logger.Debug(logMessageCheckingUser, zap.Int64(logFieldUserID, int64(userID)))
	if err := checker.limiter.Wait(ctx); err != nil {
		return false, err
	}

	if _, err := checker.lookup.User(ctx, userID); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		checker.logger.Error(logMessageInvalidUser,
			zap.Int64(logFieldUserID, int64(userID)),
			zap.Bool(logFieldAPIError, twitter.IsAPIError(err)),
			zap.Error(err),
		)
		return false, nil
	}
	return true, nil
}
