package interpreter

import (
	"context"
	"errors"

	"github.com/alex65536/tourney/internal/stat"
)

// ErrNotResult means the artifact was read successfully, but it is not a final scoreboard.
var ErrNotResult = errors.New("artifact is not a match result")

type Result struct {
	Winner string    `json:"winner"`
	Team1  stat.Team `json:"team1"`
	Team2  stat.Team `json:"team2"`
}

func (r Result) Clone() Result {
	r.Team1 = r.Team1.Clone()
	r.Team2 = r.Team2.Clone()
	return r
}

type Interpreter interface {
	// Interpret reads the scoreboard behind the artifact URL. Roster holds the in-game names of
	// all players that may appear on it.
	Interpret(ctx context.Context, artifactURL string, roster []string) (Result, error)
}

// Manual never reads artifacts, so every submitted result ends up with an administrator.
type Manual struct{}

func (Manual) Interpret(context.Context, string, []string) (Result, error) {
	return Result{}, errors.Join(ErrNotResult, errors.New("automatic result reading is disabled"))
}
