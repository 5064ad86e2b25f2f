package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/f-sync/listsync/internal/metrics"
)

func TestRecorderCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	recorder.ObserveMembersAdded(100)
	recorder.ObserveMembersAdded(50)
	recorder.ObserveMembersRemoved(3)
	recorder.ObserveInvalidUser()
	recorder.ObserveRateLimitWait("friend_ids")
	recorder.ObserveRateLimitWait("friend_ids")
	recorder.ObserveFriendsTruncated()
	recorder.SetFriendCount(5000)
	recorder.SetListMemberCount(4999)
	recorder.ObserveRun(metrics.RunStatusSucceeded, 2*time.Second)

	expected := `
# HELP listsync_members_added_total Total number of users added to the synced list
# TYPE listsync_members_added_total counter
listsync_members_added_total 150
# HELP listsync_members_removed_total Total number of users removed from the synced list
# TYPE listsync_members_removed_total counter
listsync_members_removed_total 3
# HELP listsync_rate_limit_waits_total Total number of rate limit cooldowns by paginated operation
# TYPE listsync_rate_limit_waits_total counter
listsync_rate_limit_waits_total{operation="friend_ids"} 2
# HELP listsync_runs_total Total number of sync runs by outcome
# TYPE listsync_runs_total counter
listsync_runs_total{status="succeeded"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"listsync_members_added_total",
		"listsync_members_removed_total",
		"listsync_rate_limit_waits_total",
		"listsync_runs_total",
	); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	count, err := testutil.GatherAndCount(registry, "listsync_run_duration_seconds")
	if err != nil {
		t.Fatalf("gather run duration: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one run duration series, got %d", count)
	}
}

func TestRecorderWithoutRegistry(t *testing.T) {
	recorder := metrics.NewRecorder(nil)
	recorder.ObserveRun(metrics.RunStatusFailed, time.Second)
	recorder.ObserveInvalidUser()
}
