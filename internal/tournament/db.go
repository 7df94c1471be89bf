package tournament

import (
	"context"
	"errors"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrDuplicateTeam      = errors.New("team already registered")
	ErrNotWaiting         = errors.New("tournament is not open for registration")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrTournamentFull     = errors.New("tournament has reached maximum team limit")
	ErrAlreadyStarted     = errors.New("tournament already started")
	ErrNotEnoughTeams     = errors.New("not enough teams")
	ErrFinished           = errors.New("tournament is already finished")
	ErrConflict           = errors.New("tournament was modified concurrently")
	ErrInvalidSettings    = errors.New("invalid tournament settings")
	ErrInvalidTeam        = errors.New("invalid team")
)

type ListOptions struct {
	// Only tournaments that are not complete or cancelled.
	ActiveOnly bool
	Region     Region
}

// MutateFunc edits the tournament data in place. It runs inside a store transaction, so it must
// not block on anything except memory.
type MutateFunc func(info Info, data *Data) error

type DB interface {
	CreateTournament(ctx context.Context, info Info, data Data) error
	GetTournament(ctx context.Context, tournamentID string) (Info, Data, error)
	ListTournaments(ctx context.Context, o ListOptions) ([]FullData, error)
	MutateTournament(ctx context.Context, tournamentID string, fn MutateFunc) (FullData, error)
	NextRegionSeq(ctx context.Context, region Region) (int, error)
}

type RegionCounter struct {
	Region Region `gorm:"primaryKey"`
	Last   int
}
