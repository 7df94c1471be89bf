package queue

import (
	"context"

	"github.com/alex65536/tourney/internal/util/timeutil"
)

type DB interface {
	// InsertTasks skips tasks whose dedup key is already present.
	InsertTasks(ctx context.Context, tasks []Task) error
	ListLiveTasks(ctx context.Context) ([]Task, error)
	ListDeadTasks(ctx context.Context) ([]Task, error)
	DeleteTask(ctx context.Context, seq int64) error
	UpdateTask(ctx context.Context, task Task) error
	RequeueDeadTasks(ctx context.Context, now timeutil.UTCTime) (int64, error)
}
