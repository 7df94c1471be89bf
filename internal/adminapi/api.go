package adminapi

import (
	"context"

	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/registration"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
)

type Backend interface {
	CreateTournament(ctx context.Context, settings tournament.Settings) (tournament.Info, error)
	PublishTournament(ctx context.Context, tournamentID string) (tournament.FullData, error)
	CancelTournament(ctx context.Context, tournamentID string, reason string) (tournament.FullData, error)
	StartTournament(ctx context.Context, tournamentID string) (tournament.FullData, error)
	GetTournament(ctx context.Context, tournamentID string) (tournament.FullData, error)
	ListTournaments(ctx context.Context, o tournament.ListOptions) ([]tournament.FullData, error)

	RegisterTeam(ctx context.Context, tournamentID string, team tournament.Team) (tournament.FullData, registration.Placement, error)
	WithdrawTeam(ctx context.Context, tournamentID string, teamID string) (tournament.FullData, error)
	CheckIn(ctx context.Context, tournamentID, teamID, memberID string) error
	CheckIns(ctx context.Context, tournamentID string) ([]scheduler.CheckIn, error)

	CreateMatch(ctx context.Context, spec match.Spec) (match.FullData, error)
	GetMatch(ctx context.Context, matchID string) (match.FullData, error)
	ListMatches(ctx context.Context, o match.ListOptions) ([]match.FullData, error)
	Adjudicate(ctx context.Context, matchID string, score1, score2 int) (match.FullData, error)
	ResumeMatch(ctx context.Context, matchID string) error

	DeadTasks(ctx context.Context) ([]queue.Task, error)
	RequeueTasks(ctx context.Context) (int64, error)
	PendingTimers() []scheduler.Timer
}

type RegisterResponse struct {
	Tournament tournament.FullData `json:"tournament"`
	Placement  string              `json:"placement"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type AdjudicateRequest struct {
	Score1 int `json:"score1"`
	Score2 int `json:"score2"`
}

type RequeueResponse struct {
	Requeued int64 `json:"requeued"`
}
