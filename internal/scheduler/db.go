package scheduler

import (
	"context"
	"errors"

	"github.com/alex65536/tourney/internal/util/timeutil"
)

var (
	ErrCheckInClosed = errors.New("check-in is not open")
	ErrNotMember     = errors.New("not a member of the team")
)

type DB interface {
	ListTimers(ctx context.Context) ([]Timer, error)
	// PutTimers inserts the timers, replacing the ones with the same IDs.
	PutTimers(ctx context.Context, timers []Timer) error
	// FinishTimer deletes the timer if it still fires at the given time, and stores the follow-up
	// timers in the same transaction.
	FinishTimer(ctx context.Context, timerID string, fireAt timeutil.UTCTime, next []Timer) error
	DeleteTournamentTimers(ctx context.Context, tournamentID string) error

	// InitCheckIns inserts the rows that do not exist yet.
	InitCheckIns(ctx context.Context, rows []CheckIn) error
	// MarkCheckIn returns ErrNotMember if no row exists for the member.
	MarkCheckIn(ctx context.Context, tournamentID, teamID, memberID string) error
	ListCheckIns(ctx context.Context, tournamentID string) ([]CheckIn, error)
}
