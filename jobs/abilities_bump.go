package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vantage-kit/vantage/internal/jobs"
	"github.com/vantage-kit/vantage/internal/rbac"
)

// AbilitiesBumpJob advances the graph version so every cached ability set is
// re-read from the database. Graph mutations bump the version inline; the
// scheduled run covers bumps lost to Redis restarts or crashed requests.
type AbilitiesBumpJob struct {
	Cache   *rbac.Cache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAbilitiesBumpJob initialises the bump handler.
func NewAbilitiesBumpJob(cache *rbac.Cache, logger *slog.Logger, metrics *jobmetrics.Metrics) *AbilitiesBumpJob {
	return &AbilitiesBumpJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle executes a single bump.
func (j *AbilitiesBumpJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("abilities bump: handler not configured")
	}

	tracker := j.Metrics.Track(TaskAbilitiesBump)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Cache.Bump(ctx); err != nil {
		resultErr = err
		j.logger().Error("abilities bump failed", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("advanced ability cache version")
	return nil
}

func (j *AbilitiesBumpJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
