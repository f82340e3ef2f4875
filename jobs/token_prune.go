package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-kit/vantage/internal/identity"
	jobmetrics "github.com/vantage-kit/vantage/internal/jobs"
)

// TokenPruneJob removes access tokens whose lifetime has elapsed. Expired
// tokens are already rejected at resolution time, so the job is pure hygiene
// for the token table.
type TokenPruneJob struct {
	Identity *identity.Service
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewTokenPruneJob initialises the prune handler.
func NewTokenPruneJob(identitySvc *identity.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *TokenPruneJob {
	return &TokenPruneJob{
		Identity: identitySvc,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes a single prune run.
func (j *TokenPruneJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Identity == nil {
		return errors.New("token prune: handler not configured")
	}

	start := j.now()
	tracker := j.metrics().Track(TaskTokensPrune)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	removed, err := j.Identity.PruneExpiredTokens(ctx)
	if err != nil {
		resultErr = err
		logger.Error("token prune failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPruned(removed)

	logger.Info("completed token prune",
		slog.Int64("removed", removed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *TokenPruneJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *TokenPruneJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}

func (j *TokenPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
