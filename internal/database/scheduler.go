package database

import (
	"context"
	"fmt"

	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/util/timeutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *DB) ListTimers(ctx context.Context) ([]scheduler.Timer, error) {
	var timers []scheduler.Timer
	if err := d.db.WithContext(ctx).Order("fire_at, id").Find(&timers).Error; err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	return timers, nil
}

func putTimers(tx *gorm.DB, timers []scheduler.Timer) error {
	if len(timers) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&timers).Error
	if err != nil {
		return fmt.Errorf("put timers: %w", err)
	}
	return nil
}

func (d *DB) PutTimers(ctx context.Context, timers []scheduler.Timer) error {
	return putTimers(d.db.WithContext(ctx), timers)
}

func (d *DB) FinishTimer(ctx context.Context, timerID string, fireAt timeutil.UTCTime, next []scheduler.Timer) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND fire_at = ?", timerID, fireAt).Delete(&scheduler.Timer{}).Error
		if err != nil {
			return fmt.Errorf("delete timer: %w", err)
		}
		return putTimers(tx, next)
	})
}

func (d *DB) DeleteTournamentTimers(ctx context.Context, tournamentID string) error {
	err := d.db.WithContext(ctx).Where("tournament_id = ?", tournamentID).Delete(&scheduler.Timer{}).Error
	if err != nil {
		return fmt.Errorf("delete tournament timers: %w", err)
	}
	return nil
}

func (d *DB) InitCheckIns(ctx context.Context, rows []scheduler.CheckIn) error {
	if len(rows) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("init check-ins: %w", err)
	}
	return nil
}

func (d *DB) MarkCheckIn(ctx context.Context, tournamentID, teamID, memberID string) error {
	res := d.db.WithContext(ctx).Model(&scheduler.CheckIn{}).
		Where("tournament_id = ? AND team_id = ? AND member_id = ?", tournamentID, teamID, memberID).
		Update("checked", true)
	if res.Error != nil {
		return fmt.Errorf("mark check-in: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrNotMember
	}
	return nil
}

func (d *DB) ListCheckIns(ctx context.Context, tournamentID string) ([]scheduler.CheckIn, error) {
	var rows []scheduler.CheckIn
	err := d.db.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("team_id, member_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	return rows, nil
}
