// Package metrics exposes Prometheus collectors for sync runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "listsync"

	// RunStatusSucceeded labels a run that completed every step.
	RunStatusSucceeded = "succeeded"
	// RunStatusFailed labels a run that aborted on an error.
	RunStatusFailed = "failed"

	labelStatus    = "status"
	labelOperation = "operation"
)

// Recorder groups the collectors updated during a sync run.
type Recorder struct {
	runsTotal             *prometheus.CounterVec
	runDurationSeconds    prometheus.Histogram
	membersAddedTotal     prometheus.Counter
	membersRemovedTotal   prometheus.Counter
	invalidUsersTotal     prometheus.Counter
	rateLimitWaitsTotal   *prometheus.CounterVec
	friendsTruncatedTotal prometheus.Counter
	friendCount           prometheus.Gauge
	listMemberCount       prometheus.Gauge
}

// NewRecorder registers the collectors on registerer. A nil registerer leaves them unregistered.
func NewRecorder(registerer prometheus.Registerer) *Recorder {
	factory := promauto.With(registerer)
	return &Recorder{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of sync runs by outcome",
		}, []string{labelStatus}),
		runDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of sync runs",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
		membersAddedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_added_total",
			Help:      "Total number of users added to the synced list",
		}),
		membersRemovedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_removed_total",
			Help:      "Total number of users removed from the synced list",
		}),
		invalidUsersTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_users_total",
			Help:      "Total number of candidate users skipped because their lookup failed",
		}),
		rateLimitWaitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Total number of rate limit cooldowns by paginated operation",
		}, []string{labelOperation}),
		friendsTruncatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "friends_truncated_total",
			Help:      "Total number of runs whose friend set exceeded the fetch cap",
		}),
		friendCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "friends",
			Help:      "Number of friend ids fetched by the latest run",
		}),
		listMemberCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "list_members",
			Help:      "Number of list members fetched by the latest run",
		}),
	}
}

// ObserveRun records the outcome and duration of a run.
func (recorder *Recorder) ObserveRun(status string, duration time.Duration) {
	recorder.runsTotal.WithLabelValues(status).Inc()
	recorder.runDurationSeconds.Observe(duration.Seconds())
}

// ObserveMembersAdded counts users added by one bulk call.
func (recorder *Recorder) ObserveMembersAdded(count int) {
	recorder.membersAddedTotal.Add(float64(count))
}

// ObserveMembersRemoved counts users removed by one bulk call.
func (recorder *Recorder) ObserveMembersRemoved(count int) {
	recorder.membersRemovedTotal.Add(float64(count))
}

// ObserveInvalidUser counts a candidate skipped by the validity check.
func (recorder *Recorder) ObserveInvalidUser() {
	recorder.invalidUsersTotal.Inc()
}

// ObserveRateLimitWait counts a rate limit cooldown.
func (recorder *Recorder) ObserveRateLimitWait(operation string) {
	recorder.rateLimitWaitsTotal.WithLabelValues(operation).Inc()
}

// ObserveFriendsTruncated counts a run whose friend set exceeded the cap.
func (recorder *Recorder) ObserveFriendsTruncated() {
	recorder.friendsTruncatedTotal.Inc()
}

// SetFriendCount stores the size of the fetched friend set.
func (recorder *Recorder) SetFriendCount(count int) {
	recorder.friendCount.Set(float64(count))
}

// SetListMemberCount stores the size of the fetched member set.
func (recorder *Recorder) SetListMemberCount(count int) {
	recorder.listMemberCount.Set(float64(count))
}
