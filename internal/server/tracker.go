package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/f-sync/listsync/internal/job"
)

const (
	runIdentifierPrefix = "run-"
	runStatusRunning    = RunStatus("running")
	runStatusCompleted  = RunStatus("completed")
	runStatusFailed     = RunStatus("failed")
)

// RunStatus represents the lifecycle state of a sync run.
type RunStatus string

// RunSnapshot copies the public state of one run. Failure causes are logged, never exposed.
type RunSnapshot struct {
	Identifier string       `json:"id"`
	Status     RunStatus    `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Summary    *job.Summary `json:"summary,omitempty"`
}

// StatusSnapshot reports trigger and run counts plus the most recent run.
type StatusSnapshot struct {
	Triggers int          `json:"triggers"`
	Runs     int          `json:"runs"`
	Latest   *RunSnapshot `json:"latest,omitempty"`
}

// runTracker records triggers and the most recent run.
type runTracker struct {
	mutex        sync.Mutex
	now          func() time.Time
	triggers     int
	nextSequence int
	latest       *RunSnapshot
}

func newRunTracker(now func() time.Time) *runTracker {
	if now == nil {
		now = time.Now
	}
	return &runTracker{now: now}
}

// RecordTrigger counts an incoming request, whether it starts a run or joins one.
func (tracker *runTracker) RecordTrigger() {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	tracker.triggers++
}

// StartRun registers a new running run and returns its identifier.
func (tracker *runTracker) StartRun() string {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	tracker.nextSequence++
	identifier := fmt.Sprintf("%s%d", runIdentifierPrefix, tracker.nextSequence)
	tracker.latest = &RunSnapshot{
		Identifier: identifier,
		Status:     runStatusRunning,
		StartedAt:  tracker.now().UTC(),
	}
	return identifier
}

// CompleteRun transitions the run to its terminal status.
func (tracker *runTracker) CompleteRun(identifier string, summary job.Summary, failed bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	if tracker.latest == nil || tracker.latest.Identifier != identifier {
		return
	}
	finishedAt := tracker.now().UTC()
	tracker.latest.FinishedAt = &finishedAt
	tracker.latest.Summary = &summary
	if failed {
		tracker.latest.Status = runStatusFailed
	} else {
		tracker.latest.Status = runStatusCompleted
	}
}

// Snapshot returns a copy of the tracker state.
func (tracker *runTracker) Snapshot() StatusSnapshot {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	snapshot := StatusSnapshot{Triggers: tracker.triggers, Runs: tracker.nextSequence}
	if tracker.latest != nil {
		latest := *tracker.latest
		if latest.FinishedAt != nil {
			finishedAt := *latest.FinishedAt
			latest.FinishedAt = &finishedAt
		}
		if latest.Summary != nil {
			summary := *latest.Summary
			latest.Summary = &summary
		}
		snapshot.Latest = &latest
	}
	return snapshot
}
