package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/f-sync/listsync/internal/job"
	"github.com/f-sync/listsync/internal/server"
)

const (
	secretFailureMessage = "oauth secret ats rejected by upstream"
	runWaitTimeout       = 2 * time.Second
)

type runnerStub struct {
	calls    atomic.Int32
	summary  job.Summary
	err      error
	started  chan struct{}
	release  chan struct{}
	deadline atomic.Bool
}

func (stub *runnerStub) Run(ctx context.Context) (job.Summary, error) {
	stub.calls.Add(1)
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		stub.deadline.Store(true)
	}
	if stub.started != nil {
		stub.started <- struct{}{}
	}
	if stub.release != nil {
		<-stub.release
	}
	return stub.summary, stub.err
}

func newRouter(t *testing.T, configuration server.RouterConfig) http.Handler {
	t.Helper()
	router, err := server.NewRouter(configuration)
	if err != nil {
		t.Fatalf("create router: %v", err)
	}
	return router
}

func performRequest(router http.Handler, method string, path string) *httptest.ResponseRecorder {
	responseRecorder := httptest.NewRecorder()
	router.ServeHTTP(responseRecorder, httptest.NewRequest(method, path, nil))
	return responseRecorder
}

func TestRunRoute(t *testing.T) {
	testCases := []struct {
		name           string
		method         string
		runErr         error
		expectedStatus int
		expectedBody   string
		expectedLogs   int
	}{
		{name: "get completes", method: http.MethodGet, expectedStatus: http.StatusOK, expectedBody: "Completed"},
		{name: "post completes", method: http.MethodPost, expectedStatus: http.StatusOK, expectedBody: "Completed"},
		{
			name:           "failure is opaque",
			method:         http.MethodGet,
			runErr:         errors.New(secretFailureMessage),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "An internal error occurred.",
			expectedLogs:   1,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			runner := &runnerStub{err: testCase.runErr}
			router := newRouter(t, server.RouterConfig{Runner: runner, Logger: zap.New(core), Gatherer: prometheus.NewRegistry()})

			responseRecorder := performRequest(router, testCase.method, "/run")
			if responseRecorder.Code != testCase.expectedStatus {
				t.Fatalf("expected status %d, got %d", testCase.expectedStatus, responseRecorder.Code)
			}
			if body := responseRecorder.Body.String(); body != testCase.expectedBody {
				t.Fatalf("expected body %q, got %q", testCase.expectedBody, body)
			}
			if strings.Contains(responseRecorder.Body.String(), secretFailureMessage) {
				t.Fatalf("response leaked the failure cause")
			}
			if logs.Len() != testCase.expectedLogs {
				t.Fatalf("expected %d error logs, got %d", testCase.expectedLogs, logs.Len())
			}
			if testCase.expectedLogs > 0 && logs.All()[0].ContextMap()["error"] != secretFailureMessage {
				t.Fatalf("expected failure cause in server log, got %v", logs.All()[0].ContextMap())
			}
			if runner.calls.Load() != 1 {
				t.Fatalf("expected one run, got %d", runner.calls.Load())
			}
		})
	}
}

func TestConcurrentTriggersShareOneRun(t *testing.T) {
	runner := &runnerStub{started: make(chan struct{}, 1), release: make(chan struct{})}
	router := newRouter(t, server.RouterConfig{Runner: runner, Gatherer: prometheus.NewRegistry()})

	var waitGroup sync.WaitGroup
	responses := make([]*httptest.ResponseRecorder, 2)
	trigger := func(index int) {
		defer waitGroup.Done()
		responses[index] = performRequest(router, http.MethodPost, "/run")
	}

	waitGroup.Add(1)
	go trigger(0)
	select {
	case <-runner.started:
	case <-time.After(runWaitTimeout):
		t.Fatalf("first run did not start")
	}

	waitGroup.Add(1)
	go trigger(1)
	waitForTriggers(t, router, 2)
	time.Sleep(20 * time.Millisecond)
	close(runner.release)
	waitGroup.Wait()

	if runner.calls.Load() != 1 {
		t.Fatalf("expected concurrent triggers to share one run, got %d runs", runner.calls.Load())
	}
	for index, response := range responses {
		if response.Code != http.StatusOK || response.Body.String() != "Completed" {
			t.Fatalf("trigger %d got %d %q", index, response.Code, response.Body.String())
		}
	}
}

func TestRunUsesDetachedContextWithTimeout(t *testing.T) {
	runner := &runnerStub{}
	router := newRouter(t, server.RouterConfig{Runner: runner, RunTimeout: time.Minute, Gatherer: prometheus.NewRegistry()})

	requestContext, cancel := context.WithCancel(context.Background())
	cancel()
	responseRecorder := httptest.NewRecorder()
	router.ServeHTTP(responseRecorder, httptest.NewRequest(http.MethodGet, "/run", nil).WithContext(requestContext))

	if responseRecorder.Code != http.StatusOK {
		t.Fatalf("expected a cancelled request to still complete the run, got %d", responseRecorder.Code)
	}
	if !runner.deadline.Load() {
		t.Fatalf("expected the run timeout to apply")
	}
}

func TestStatusRoute(t *testing.T) {
	startedAt := time.Date(2024, time.March, 9, 7, 0, 0, 0, time.UTC)
	clock := startedAt
	runner := &runnerStub{summary: job.Summary{ListID: "list-1", Friends: 3, Added: 1}}
	router := newRouter(t, server.RouterConfig{
		Runner:   runner,
		Gatherer: prometheus.NewRegistry(),
		Now: func() time.Time {
			current := clock
			clock = clock.Add(time.Second)
			return current
		},
	})

	var before server.StatusSnapshot
	decodeJSON(t, performRequest(router, http.MethodGet, "/status"), &before)
	if before.Latest != nil || before.Runs != 0 {
		t.Fatalf("expected empty status, got %+v", before)
	}

	performRequest(router, http.MethodGet, "/run")

	var after server.StatusSnapshot
	decodeJSON(t, performRequest(router, http.MethodGet, "/status"), &after)
	if after.Runs != 1 || after.Triggers != 1 || after.Latest == nil {
		t.Fatalf("unexpected status %+v", after)
	}
	if after.Latest.Status != "completed" || after.Latest.Identifier != "run-1" {
		t.Fatalf("unexpected latest run %+v", after.Latest)
	}
	if !after.Latest.StartedAt.Equal(startedAt) || after.Latest.FinishedAt == nil || !after.Latest.FinishedAt.Equal(startedAt.Add(time.Second)) {
		t.Fatalf("unexpected run timestamps %+v", after.Latest)
	}
	if after.Latest.Summary == nil || after.Latest.Summary.ListID != "list-1" || after.Latest.Summary.Added != 1 {
		t.Fatalf("unexpected summary %+v", after.Latest.Summary)
	}
}

func TestStatusRouteHidesFailureCause(t *testing.T) {
	runner := &runnerStub{err: errors.New(secretFailureMessage)}
	router := newRouter(t, server.RouterConfig{Runner: runner, Gatherer: prometheus.NewRegistry()})

	performRequest(router, http.MethodGet, "/run")
	responseRecorder := performRequest(router, http.MethodGet, "/status")
	if strings.Contains(responseRecorder.Body.String(), secretFailureMessage) {
		t.Fatalf("status leaked the failure cause: %s", responseRecorder.Body.String())
	}
	var snapshot server.StatusSnapshot
	decodeJSON(t, responseRecorder, &snapshot)
	if snapshot.Latest == nil || snapshot.Latest.Status != "failed" {
		t.Fatalf("expected failed run, got %+v", snapshot.Latest)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "listsync_probe_total", Help: "probe"})
	registry.MustRegister(counter)
	counter.Inc()
	router := newRouter(t, server.RouterConfig{Runner: &runnerStub{}, Gatherer: registry})

	healthResponse := performRequest(router, http.MethodGet, "/healthz")
	var health map[string]string
	decodeJSON(t, healthResponse, &health)
	if health["status"] != "ok" {
		t.Fatalf("unexpected health payload %v", health)
	}

	metricsResponse := performRequest(router, http.MethodGet, "/metrics")
	if metricsResponse.Code != http.StatusOK || !strings.Contains(metricsResponse.Body.String(), "listsync_probe_total 1") {
		t.Fatalf("unexpected metrics response %d %q", metricsResponse.Code, metricsResponse.Body.String())
	}
}

func TestNewRouterRequiresRunner(t *testing.T) {
	if _, err := server.NewRouter(server.RouterConfig{}); err == nil {
		t.Fatalf("expected missing runner error")
	}
}

func waitForTriggers(t *testing.T, router http.Handler, expected int) {
	t.Helper()
	deadline := time.Now().Add(runWaitTimeout)
	for time.Now().Before(deadline) {
		var snapshot server.StatusSnapshot
		decodeJSON(t, performRequest(router, http.MethodGet, "/status"), &snapshot)
		if snapshot.Triggers >= expected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d triggers", expected)
}

func decodeJSON(t *testing.T, responseRecorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if responseRecorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", responseRecorder.Code)
	}
	if err := json.Unmarshal(responseRecorder.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
