package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokensPrune removes access tokens past their lifetime.
	TaskTokensPrune = "tokens:prune"
	// TaskAbilitiesBump invalidates every cached ability set by advancing the
	// graph version. Scheduled as a safety net against missed bumps.
	TaskAbilitiesBump = "abilities:bump"
)

// NewTokensPruneTask constructs an Asynq task for a prune run.
func NewTokensPruneTask() *asynq.Task {
	return asynq.NewTask(TaskTokensPrune, nil)
}

// NewAbilitiesBumpTask constructs an Asynq task for a cache version bump.
func NewAbilitiesBumpTask() *asynq.Task {
	return asynq.NewTask(TaskAbilitiesBump, nil)
}
