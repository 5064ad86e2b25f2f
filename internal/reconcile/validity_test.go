package reconcile_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/f-sync/listsync/internal/reconcile"
	"github.com/f-sync/listsync/internal/twitter"
)

type stubLookup struct {
	err      error
	onLookup func()
	calls    int
}

func (lookup *stubLookup) User(_ context.Context, userID twitter.UserID) (twitter.User, error) {
	lookup.calls++
	if lookup.onLookup != nil {
		lookup.onLookup()
	}
	if lookup.err != nil {
		return twitter.User{}, lookup.err
	}
	return twitter.User{ID: userID}, nil
}

func TestIsValidUser(t *testing.T) {
	testCases := []struct {
		name          string
		lookupErr     error
		expectedValid bool
	}{
		{name: "existing account", expectedValid: true},
		{
			name:      "not found",
			lookupErr: &twitter.APIError{StatusCode: http.StatusNotFound, Errors: []twitter.ErrorDetail{{Code: twitter.ErrorCodeUserNotFound}}},
		},
		{
			name:      "suspended",
			lookupErr: &twitter.APIError{StatusCode: http.StatusForbidden, Errors: []twitter.ErrorDetail{{Code: twitter.ErrorCodeUserSuspended}}},
		},
		{
			name:      "rate limited lookup counts as invalid",
			lookupErr: &twitter.APIError{StatusCode: http.StatusTooManyRequests},
		},
		{name: "transport failure", lookupErr: errors.New("connection reset")},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			lookup := &stubLookup{err: testCase.lookupErr}
			checker, err := reconcile.NewValidityChecker(reconcile.ValidityConfig{Lookup: lookup})
			if err != nil {
				t.Fatalf(unexpectedErrorFormat, err)
			}
			valid, err := checker.IsValidUser(context.Background(), 42)
			if err != nil {
				t.Fatalf(unexpectedErrorFormat, err)
			}
			if valid != testCase.expectedValid {
				t.Fatalf("expected valid=%t, got %t", testCase.expectedValid, valid)
			}
			if lookup.calls != 1 {
				t.Fatalf("expected one lookup, got %d", lookup.calls)
			}
		})
	}
}

func TestIsValidUserReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lookup := &stubLookup{err: errors.New("request aborted"), onLookup: cancel}
	checker, err := reconcile.NewValidityChecker(reconcile.ValidityConfig{Lookup: lookup})
	if err != nil {
		t.Fatalf(unexpectedErrorFormat, err)
	}

	if _, err := checker.IsValidUser(ctx, 7); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestIsValidUserPacesLookups(t *testing.T) {
	lookup := &stubLookup{}
	checker, err := reconcile.NewValidityChecker(reconcile.ValidityConfig{Lookup: lookup, RequestsPerSecond: 20})
	if err != nil {
		t.Fatalf(unexpectedErrorFormat, err)
	}

	started := time.Now()
	for userID := twitter.UserID(1); userID <= 3; userID++ {
		if _, err := checker.IsValidUser(context.Background(), userID); err != nil {
			t.Fatalf(unexpectedErrorFormat, err)
		}
	}
	if elapsed := time.Since(started); elapsed < 90*time.Millisecond {
		t.Fatalf("expected paced lookups, finished in %s", elapsed)
	}
}

func TestNewValidityCheckerRequiresLookup(t *testing.T) {
	if _, err := reconcile.NewValidityChecker(reconcile.ValidityConfig{}); err == nil {
		t.Fatalf("expected missing lookup error")
	}
}
