package registration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/lockmap"
	"github.com/alex65536/tourney/internal/util/sliceutil"
	"github.com/alex65536/tourney/internal/util/slogx"
)

type DB interface {
	MutateTournament(ctx context.Context, tournamentID string, fn tournament.MutateFunc) (tournament.FullData, error)
}

type Announcer interface {
	RosterUpdated(ctx context.Context, full tournament.FullData)
}

// Ledger serializes roster changes per tournament. Each change runs under an in-process lock
// and inside a versioned store transaction.
type Ledger struct {
	log   *slog.Logger
	db    DB
	ann   Announcer
	locks lockmap.Map[string]
}

func NewLedger(log *slog.Logger, db DB, ann Announcer) *Ledger {
	return &Ledger{
		log: log,
		db:  db,
		ann: ann,
	}
}

func (l *Ledger) mutate(
	ctx context.Context,
	tournamentID string,
	fn func(info tournament.Info, data *tournament.Data, r *Roster) error,
) (tournament.FullData, error) {
	unlock := l.locks.Lock(tournamentID)
	defer unlock()
	return l.db.MutateTournament(ctx, tournamentID, func(info tournament.Info, data *tournament.Data) error {
		r := &Roster{
			Teams:    data.Teams,
			Waiting:  data.Waiting,
			MaxTeams: info.MaxTeams,
		}
		if err := fn(info, data, r); err != nil {
			return err
		}
		if err := r.check(); err != nil {
			l.log.Error("roster broken after update",
				slog.String("tournament_id", tournamentID),
				slogx.Err(err),
			)
			panic("must not happen")
		}
		data.Teams = r.Teams
		data.Waiting = r.Waiting
		return nil
	})
}

func (l *Ledger) Register(ctx context.Context, tournamentID string, team tournament.Team) (tournament.FullData, Placement, error) {
	if err := team.Validate(); err != nil {
		return tournament.FullData{}, PlacedNowhere, fmt.Errorf("%w: %w", tournament.ErrInvalidTeam, err)
	}
	var placement Placement
	full, err := l.mutate(ctx, tournamentID, func(info tournament.Info, data *tournament.Data, r *Roster) error {
		if data.Status.Kind != tournament.StatusWaiting {
			return tournament.ErrNotWaiting
		}
		if data.Closed {
			return tournament.ErrRegistrationClosed
		}
		var err error
		placement, err = r.Register(team.Clone())
		return err
	})
	if err != nil {
		return tournament.FullData{}, PlacedNowhere, err
	}
	l.log.Info("registered team",
		slog.String("tournament_id", tournamentID),
		slog.String("team_id", team.ID),
		slog.String("placement", placement.String()),
		slog.Int("teams", len(full.Data.Teams)),
		slog.Int("waiting", len(full.Data.Waiting)),
	)
	l.ann.RosterUpdated(ctx, full)
	return full, placement, nil
}

func (l *Ledger) Withdraw(ctx context.Context, tournamentID string, teamID string) (tournament.FullData, error) {
	full, err := l.mutate(ctx, tournamentID, func(info tournament.Info, data *tournament.Data, r *Roster) error {
		if data.Status.Kind != tournament.StatusWaiting {
			return tournament.ErrNotWaiting
		}
		_, _, err := r.Withdraw(teamID)
		return err
	})
	if err != nil {
		return tournament.FullData{}, err
	}
	l.log.Info("withdrew team",
		slog.String("tournament_id", tournamentID),
		slog.String("team_id", teamID),
		slog.Int("teams", len(full.Data.Teams)),
		slog.Int("waiting", len(full.Data.Waiting)),
	)
	l.ann.RosterUpdated(ctx, full)
	return full, nil
}

// Close freezes registration ahead of check-in.
func (l *Ledger) Close(ctx context.Context, tournamentID string) (tournament.FullData, error) {
	return l.mutate(ctx, tournamentID, func(info tournament.Info, data *tournament.Data, r *Roster) error {
		if data.Status.Kind != tournament.StatusWaiting {
			return tournament.ErrNotWaiting
		}
		data.Closed = true
		return nil
	})
}

// Finalize drops the teams that failed check-in right before the bracket is drawn. Verified
// waiting teams backfill the roster up to the largest valid size within capacity, and the
// waiting list is cleared. All teams that will not play are returned.
func (l *Ledger) Finalize(
	ctx context.Context,
	tournamentID string,
	verified func(team tournament.Team) bool,
) (tournament.FullData, []tournament.Team, error) {
	var removed []tournament.Team
	full, err := l.mutate(ctx, tournamentID, func(info tournament.Info, data *tournament.Data, r *Roster) error {
		removed = nil
		if data.Status.Kind != tournament.StatusWaiting {
			return tournament.ErrNotWaiting
		}
		var dropped []tournament.Team
		r.Teams, dropped = sliceutil.Partition(r.Teams, verified)
		removed = append(removed, dropped...)
		r.Waiting, dropped = sliceutil.Partition(r.Waiting, verified)
		removed = append(removed, dropped...)
		r.Fill()
		removed = append(removed, r.Waiting...)
		r.Waiting = []tournament.Team{}
		data.Closed = true
		return nil
	})
	if err != nil {
		return tournament.FullData{}, nil, err
	}
	l.log.Info("finalized roster",
		slog.String("tournament_id", tournamentID),
		slog.Int("teams", len(full.Data.Teams)),
		slog.Int("removed", len(removed)),
	)
	return full, removed, nil
}
