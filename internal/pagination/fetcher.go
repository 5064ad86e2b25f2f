// Package pagination walks cursored Twitter endpoints, pausing on rate limits.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/f-sync/listsync/internal/twitter"
)

const (
	// StartCursor requests the first page of a cursored endpoint.
	StartCursor int64 = -1
	// EndCursor is returned as the next cursor of the final page.
	EndCursor int64 = 0
	// DefaultCooldown is the pause applied after a rate limit response.
	DefaultCooldown = 15 * time.Minute

	errMessageRetriesExhaustedFormat = "%s after %d rate limited attempts"

	logMessageRateLimited = "rate limited, pausing pagination"
	logFieldOperation     = "operation"
	logFieldCursor        = "cursor"
	logFieldCooldown      = "cooldown"
	logFieldAttempt       = "attempt"
)

// ErrRateLimitRetriesExhausted is returned when MaxRetries consecutive rate limit pauses did not clear the limit.
var ErrRateLimitRetriesExhausted = errors.New("rate limit retries exhausted")

// PageFunc fetches the page at cursor and returns its items and the cursor of the following page.
type PageFunc[T any] func(ctx context.Context, cursor int64) (items []T, nextCursor int64, err error)

// RateLimitObserver is notified before every rate limit pause.
type RateLimitObserver interface {
	ObserveRateLimitWait(operation string)
}

// WaitFunc blocks for the given duration or until ctx is done.
type WaitFunc func(ctx context.Context, duration time.Duration) error

// Config customizes a Fetcher.
type Config struct {
	// Cooldown defaults to DefaultCooldown.
	Cooldown time.Duration
	// MaxRetries bounds consecutive rate limit pauses per page. Zero retries forever.
	MaxRetries    int
	IsRateLimited func(error) bool
	Wait          WaitFunc
	Observer      RateLimitObserver
	Logger        *zap.Logger
}

// Fetcher holds the rate limit policy shared by every paginated walk of a run.
type Fetcher struct {
	cooldown      time.Duration
	maxRetries    int
	isRateLimited func(error) bool
	wait          WaitFunc
	observer      RateLimitObserver
	logger        *zap.Logger
}

// NewFetcher constructs a Fetcher, filling defaults for unset fields.
func NewFetcher(configuration Config) *Fetcher {
	cooldown := configuration.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	maxRetries := configuration.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	isRateLimited := configuration.IsRateLimited
	if isRateLimited == nil {
		isRateLimited = twitter.IsRateLimited
	}
	wait := configuration.Wait
	if wait == nil {
		wait = SleepContext
	}
	observer := configuration.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cooldown:      cooldown,
		maxRetries:    maxRetries,
		isRateLimited: isRateLimited,
		wait:          wait,
		observer:      observer,
		logger:        logger,
	}
}

// All lazily yields every item across all pages. A non rate limit error is yielded once and ends the sequence.
func All[T any](ctx context.Context, fetcher *Fetcher, operation string, fetchPage PageFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		cursor := StartCursor
		for {
			items, nextCursor, err := fetchWithBackoff(ctx, fetcher, operation, cursor, fetchPage)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if nextCursor == EndCursor {
				return
			}
			cursor = nextCursor
		}
	}
}

// Collect drains sequence into a slice, stopping after limit items when limit is positive.
func Collect[T any](sequence iter.Seq2[T, error], limit int) ([]T, error) {
	var collected []T
	for item, err := range sequence {
		if err != nil {
			return nil, err
		}
		collected = append(collected, item)
		if limit > 0 && len(collected) >= limit {
			break
		}
	}
	return collected, nil
}

func fetchWithBackoff[T any](ctx context.Context, fetcher *Fetcher, operation string, cursor int64, fetchPage PageFunc[T]) ([]T, int64, error) {
	rateLimitedAttempts := 0
	for {
		items, nextCursor, err := fetchPage(ctx, cursor)
		if err == nil {
			return items, nextCursor, nil
		}
		if !fetcher.isRateLimited(err) {
			return nil, 0, err
		}

		rateLimitedAttempts++
		if fetcher.maxRetries > 0 && rateLimitedAttempts > fetcher.maxRetries {
			return nil, 0, fmt.Errorf("%w: "+errMessageRetriesExhaustedFormat+": %w", ErrRateLimitRetriesExhausted, operation, rateLimitedAttempts, err)
		}

		fetcher.observer.ObserveRateLimitWait(operation)
		fetcher.logger.Warn(logMessageRateLimited,
			zap.String(logFieldOperation, operation),
			zap.Int64(logFieldCursor, cursor),
			zap.Duration(logFieldCooldown, fetcher.cooldown),
			zap.Int(logFieldAttempt, rateLimitedAttempts),
		)
		if waitErr := fetcher.wait(ctx, fetcher.cooldown); waitErr != nil {
			return nil, 0, waitErr
		}
	}
}

// SleepContext waits for duration, returning ctx.Err() if ctx finishes first.
func SleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopObserver struct{}

func (noopObserver) ObserveRateLimitWait(string) {}
