package database

import (
	"context"
	"fmt"

	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/util/timeutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func insertTasks(tx *gorm.DB, tasks []queue.Task) error {
	for _, t := range tasks {
		t.Seq = 0
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&t).Error; err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
	}
	return nil
}

func (d *DB) InsertTasks(ctx context.Context, tasks []queue.Task) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertTasks(tx, tasks)
	})
}

func (d *DB) listTasks(ctx context.Context, dead bool) ([]queue.Task, error) {
	var tasks []queue.Task
	err := d.db.WithContext(ctx).Where("dead = ?", dead).Order("seq").Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (d *DB) ListLiveTasks(ctx context.Context) ([]queue.Task, error) {
	return d.listTasks(ctx, false)
}

func (d *DB) ListDeadTasks(ctx context.Context) ([]queue.Task, error) {
	return d.listTasks(ctx, true)
}

func (d *DB) DeleteTask(ctx context.Context, seq int64) error {
	err := d.db.WithContext(ctx).Delete(&queue.Task{}, "seq = ?", seq).Error
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (d *DB) UpdateTask(ctx context.Context, task queue.Task) error {
	err := d.db.WithContext(ctx).Save(&task).Error
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (d *DB) RequeueDeadTasks(ctx context.Context, now timeutil.UTCTime) (int64, error) {
	res := d.db.WithContext(ctx).Model(&queue.Task{}).Where("dead = ?", true).Updates(map[string]any{
		"dead":       false,
		"attempts":   0,
		"not_before": now,
		"last_error": "",
	})
	if res.Error != nil {
		return 0, fmt.Errorf("requeue tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
