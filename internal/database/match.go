package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/util/gormutil"
	"github.com/alex65536/tourney/internal/util/sliceutil"
	"gorm.io/gorm"
)

var livePhases = []string{
	match.PhaseVeto.String(),
	match.PhaseMapLocked.String(),
	match.PhaseResultSubmitted.String(),
	match.PhaseResultReviewing.String(),
}

func (d *DB) CreateMatch(ctx context.Context, info match.Info, data match.Data) error {
	err := d.db.WithContext(ctx).Create(&Match{Info: info, Data: data}).Error
	if err != nil {
		if gormutil.IsDuplicate(err) && info.SlotKey != nil {
			return match.ErrDuplicateSlot
		}
		return fmt.Errorf("create match: %w", err)
	}
	return nil
}

func findMatch(tx *gorm.DB, query string, arg any) (Match, error) {
	var rows []Match
	if err := tx.Where(query, arg).Limit(1).Find(&rows).Error; err != nil {
		return Match{}, fmt.Errorf("get match: %w", err)
	}
	if len(rows) == 0 {
		return Match{}, match.ErrMatchNotFound
	}
	return rows[0], nil
}

func (d *DB) GetMatch(ctx context.Context, matchID string) (match.FullData, error) {
	row, err := findMatch(d.db.WithContext(ctx), "id = ?", matchID)
	if err != nil {
		return match.FullData{}, err
	}
	return row.Full(), nil
}

func (d *DB) FindMatchBySlot(ctx context.Context, slotKey string) (match.FullData, error) {
	row, err := findMatch(d.db.WithContext(ctx), "slot_key = ?", slotKey)
	if err != nil {
		return match.FullData{}, err
	}
	return row.Full(), nil
}

func (d *DB) ListMatches(ctx context.Context, o match.ListOptions) ([]match.FullData, error) {
	tx := d.db.WithContext(ctx).Order("created_at, id")
	if o.TournamentID != "" {
		tx = tx.Where("tournament_id = ?", o.TournamentID)
	}
	if o.LiveOnly {
		tx = tx.Where("phase IN ?", livePhases)
	}
	var rows []Match
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return sliceutil.Map(rows, Match.Full), nil
}

func updateMatch(tx *gorm.DB, matchID string, data match.Data) (match.Data, error) {
	switch err := bumpVersion(tx, &Match{}, matchID, data.Version); {
	case errors.Is(err, errRowNotFound):
		return match.Data{}, match.ErrMatchNotFound
	case errors.Is(err, errRowConflict):
		return match.Data{}, match.ErrConflict
	case err != nil:
		return match.Data{}, err
	}
	row, err := findMatch(tx, "id = ?", matchID)
	if err != nil {
		return match.Data{}, err
	}
	row.Data = data.Clone()
	row.Data.Version = data.Version + 1
	if err := tx.Save(&row).Error; err != nil {
		return match.Data{}, fmt.Errorf("save match: %w", err)
	}
	return row.Data, nil
}

func (d *DB) UpdateMatch(ctx context.Context, matchID string, data match.Data) (match.Data, error) {
	var res match.Data
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = updateMatch(tx, matchID, data)
		return err
	})
	if err != nil {
		return match.Data{}, err
	}
	return res, nil
}

// CompleteMatch stores the final data together with the bracket tasks and the channel cleanup
// timer.
func (d *DB) CompleteMatch(ctx context.Context, matchID string, data match.Data, c match.Completion) (match.Data, error) {
	var res match.Data
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = updateMatch(tx, matchID, data)
		if err != nil {
			return err
		}
		if err := insertTasks(tx, c.Tasks); err != nil {
			return err
		}
		if !c.CleanupAt.IsZero() && data.ChannelID != "" {
			timer := scheduler.CleanupTimer(matchID, data.ChannelID, c.CleanupAt)
			if err := putTimers(tx, []scheduler.Timer{timer}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return match.Data{}, err
	}
	return res, nil
}
