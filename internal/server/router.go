// Package server exposes the sync job over HTTP for schedulers.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/f-sync/listsync/internal/job"
)

const (
	runRoutePath     = "/run"
	healthRoutePath  = "/healthz"
	statusRoutePath  = "/status"
	metricsRoutePath = "/metrics"
	runGroupKey      = "sync"
	ginModeRelease   = "release"

	responseCompleted     = "Completed"
	responseInternalError = "An internal error occurred."
	healthStatusKey       = "status"
	healthStatusOK        = "ok"

	errMessageMissingRunner = "runner is required"

	logMessageRunRequested = "sync run requested"
	logMessageSharedRun    = "sync run shared between concurrent triggers"
	logMessageRequestError = "an error occurred during a request"
	logFieldRunID          = "run_id"
	logFieldClientAddress  = "client_address"
)

var errMissingRunner = errors.New(errMessageMissingRunner)

// Runner executes one sync run.
type Runner interface {
	Run(ctx context.Context) (job.Summary, error)
}

// RouterConfig configures the HTTP routing for sync triggers.
type RouterConfig struct {
	Runner Runner
	// Gatherer backs /metrics and defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// RunTimeout bounds a run independently of the triggering request. Zero means no bound.
	RunTimeout time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewRouter constructs a Gin engine serving the run, health, status and metrics handlers.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	if configuration.Runner == nil {
		return nil, errMissingRunner
	}
	gatherer := configuration.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := &runHandler{
		runner:     configuration.Runner,
		runTimeout: configuration.RunTimeout,
		tracker:    newRunTracker(configuration.Now),
		logger:     logger,
	}

	engine.GET(runRoutePath, handler.triggerRun)
	engine.POST(runRoutePath, handler.triggerRun)
	engine.GET(healthRoutePath, handler.healthStatus)
	engine.GET(statusRoutePath, handler.runStatus)
	engine.GET(metricsRoutePath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return engine, nil
}

type runHandler struct {
	runner     Runner
	runTimeout time.Duration
	tracker    *runTracker
	group      singleflight.Group
	logger     *zap.Logger
}

func (handler *runHandler) triggerRun(ginContext *gin.Context) {
	handler.tracker.RecordTrigger()
	handler.logger.Info(logMessageRunRequested, zap.String(logFieldClientAddress, ginContext.ClientIP()))

	runContext := context.WithoutCancel(ginContext.Request.Context())
	_, err, shared := handler.group.Do(runGroupKey, func() (any, error) {
		return handler.executeRun(runContext)
	})
	if shared {
		handler.logger.Info(logMessageSharedRun)
	}
	if err != nil {
		ginContext.String(http.StatusInternalServerError, responseInternalError)
		return
	}
	ginContext.String(http.StatusOK, responseCompleted)
}

func (handler *runHandler) executeRun(ctx context.Context) (job.Summary, error) {
	if handler.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, handler.runTimeout)
		defer cancel()
	}

	runIdentifier := handler.tracker.StartRun()
	summary, err := handler.runner.Run(ctx)
	handler.tracker.CompleteRun(runIdentifier, summary, err != nil)
	if err != nil {
		handler.logger.Error(logMessageRequestError, zap.String(logFieldRunID, runIdentifier), zap.Error(err))
		return summary, err
	}
	return summary, nil
}

func (handler *runHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}

func (handler *runHandler) runStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, handler.tracker.Snapshot())
}
