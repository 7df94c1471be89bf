package match

import (
	"context"
	"errors"

	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/util/timeutil"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrNotParticipant = errors.New("not a participant of the match")
	ErrWrongPhase     = errors.New("match is in the wrong phase")
	ErrConflict       = errors.New("match was modified concurrently")
	ErrDuplicateSlot  = errors.New("bracket slot already has a match")
	ErrBadScore       = errors.New("bad score")
)

type ListOptions struct {
	TournamentID string
	LiveOnly     bool
}

// Completion holds the side effects committed together with a finished match.
type Completion struct {
	Tasks []queue.Task
	// CleanupAt schedules the channel deletion. Zero means no cleanup.
	CleanupAt timeutil.UTCTime
}

type DB interface {
	// CreateMatch returns ErrDuplicateSlot if a match for the same bracket slot exists.
	CreateMatch(ctx context.Context, info Info, data Data) error
	GetMatch(ctx context.Context, matchID string) (FullData, error)
	FindMatchBySlot(ctx context.Context, slotKey string) (FullData, error)
	ListMatches(ctx context.Context, o ListOptions) ([]FullData, error)
	// UpdateMatch stores data if the stored version equals data.Version, and returns the stored
	// data with the version bumped. Otherwise it returns ErrConflict.
	UpdateMatch(ctx context.Context, matchID string, data Data) (Data, error)
	// CompleteMatch is UpdateMatch that also inserts the completion side effects in the same
	// transaction.
	CompleteMatch(ctx context.Context, matchID string, data Data, c Completion) (Data, error)
}
