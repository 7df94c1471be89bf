package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/alex65536/tourney/internal/advance"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/gormutil"
	"github.com/alex65536/tourney/internal/util/sliceutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *DB) CreateTournament(ctx context.Context, info tournament.Info, data tournament.Data) error {
	err := d.db.WithContext(ctx).Create(&Tournament{Info: info, Data: data}).Error
	if err != nil {
		if gormutil.IsDuplicate(err) {
			return fmt.Errorf("create tournament: duplicate id %q", info.ID)
		}
		return fmt.Errorf("create tournament: %w", err)
	}
	return nil
}

func getTournament(tx *gorm.DB, tournamentID string) (Tournament, error) {
	var rows []Tournament
	err := tx.Where("id = ?", tournamentID).Limit(1).Find(&rows).Error
	if err != nil {
		return Tournament{}, fmt.Errorf("get tournament: %w", err)
	}
	if len(rows) == 0 {
		return Tournament{}, tournament.ErrTournamentNotFound
	}
	return rows[0], nil
}

func (d *DB) GetTournament(ctx context.Context, tournamentID string) (tournament.Info, tournament.Data, error) {
	row, err := getTournament(d.db.WithContext(ctx), tournamentID)
	if err != nil {
		return tournament.Info{}, tournament.Data{}, err
	}
	return row.Info, row.Data, nil
}

var finishedStatuses = []string{
	tournament.StatusComplete.String(),
	tournament.StatusCancelled.String(),
}

func (d *DB) ListTournaments(ctx context.Context, o tournament.ListOptions) ([]tournament.FullData, error) {
	tx := d.db.WithContext(ctx).Order("starts_at, id")
	if o.ActiveOnly {
		tx = tx.Where("status_kind NOT IN ?", finishedStatuses)
	}
	if o.Region != "" {
		tx = tx.Where("region = ?", o.Region)
	}
	var rows []Tournament
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	return sliceutil.Map(rows, Tournament.Full), nil
}

// mutateTournament runs the read-modify-write cycle, retrying it when another writer got in
// between. The callback must be safe to run more than once.
func (d *DB) mutateTournament(
	ctx context.Context,
	tournamentID string,
	fn func(tx *gorm.DB, info tournament.Info, data *tournament.Data) error,
) (tournament.FullData, error) {
	for range d.o.MutateAttempts {
		var res tournament.FullData
		err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			row, err := getTournament(tx, tournamentID)
			if err != nil {
				return err
			}
			version := row.Data.Version
			data := row.Data.Clone()
			if err := fn(tx, row.Info, &data); err != nil {
				return err
			}
			if err := bumpVersion(tx, &Tournament{}, tournamentID, version); err != nil {
				return err
			}
			data.Version = version + 1
			row.Data = data
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("save tournament: %w", err)
			}
			res = row.Full().Clone()
			return nil
		})
		switch {
		case errors.Is(err, errRowConflict):
			continue
		case errors.Is(err, errRowNotFound):
			return tournament.FullData{}, tournament.ErrTournamentNotFound
		case err != nil:
			return tournament.FullData{}, err
		}
		return res, nil
	}
	return tournament.FullData{}, tournament.ErrConflict
}

func (d *DB) MutateTournament(
	ctx context.Context,
	tournamentID string,
	fn tournament.MutateFunc,
) (tournament.FullData, error) {
	return d.mutateTournament(ctx, tournamentID, func(_ *gorm.DB, info tournament.Info, data *tournament.Data) error {
		return fn(info, data)
	})
}

// AdvanceTournament mutates the tournament and inserts the returned tasks atomically.
func (d *DB) AdvanceTournament(
	ctx context.Context,
	tournamentID string,
	fn advance.MutateFunc,
) (tournament.FullData, error) {
	return d.mutateTournament(ctx, tournamentID, func(tx *gorm.DB, info tournament.Info, data *tournament.Data) error {
		tasks, err := fn(info, data)
		if err != nil {
			return err
		}
		return insertTasks(tx, tasks)
	})
}

func (d *DB) NextRegionSeq(ctx context.Context, region tournament.Region) (int, error) {
	var seq int
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&tournament.RegionCounter{Region: region}).Error
		if err != nil {
			return fmt.Errorf("create counter: %w", err)
		}
		err = tx.Model(&tournament.RegionCounter{}).
			Where("region = ?", region).
			Update("last", gorm.Expr("last + 1")).Error
		if err != nil {
			return fmt.Errorf("bump counter: %w", err)
		}
		var counter tournament.RegionCounter
		if err := tx.Where("region = ?", region).First(&counter).Error; err != nil {
			return fmt.Errorf("read counter: %w", err)
		}
		seq = counter.Last
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("next region seq: %w", err)
	}
	return seq, nil
}
