package app

import (
	"context"
	"fmt"

	"github.com/alex65536/tourney/internal/adminapi"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/registration"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
)

var _ adminapi.Backend = (*App)(nil)

func (a *App) CreateTournament(ctx context.Context, settings tournament.Settings) (tournament.Info, error) {
	return a.Tournaments.Create(ctx, settings)
}

func (a *App) PublishTournament(ctx context.Context, tournamentID string) (tournament.FullData, error) {
	return a.Tournaments.Publish(ctx, tournamentID)
}

func (a *App) CancelTournament(ctx context.Context, tournamentID string, reason string) (tournament.FullData, error) {
	return a.Tournaments.Cancel(ctx, tournamentID, reason)
}

// StartTournament starts the tournament right away, without waiting for check-in.
func (a *App) StartTournament(ctx context.Context, tournamentID string) (tournament.FullData, error) {
	return a.Engine.Start(ctx, tournamentID)
}

func (a *App) GetTournament(ctx context.Context, tournamentID string) (tournament.FullData, error) {
	return a.Tournaments.Get(ctx, tournamentID)
}

func (a *App) ListTournaments(ctx context.Context, o tournament.ListOptions) ([]tournament.FullData, error) {
	return a.Tournaments.List(ctx, o)
}

func (a *App) RegisterTeam(
	ctx context.Context,
	tournamentID string,
	team tournament.Team,
) (tournament.FullData, registration.Placement, error) {
	return a.Ledger.Register(ctx, tournamentID, team)
}

func (a *App) WithdrawTeam(ctx context.Context, tournamentID string, teamID string) (tournament.FullData, error) {
	return a.Ledger.Withdraw(ctx, tournamentID, teamID)
}

func (a *App) CheckIn(ctx context.Context, tournamentID, teamID, memberID string) error {
	return a.Lifecycle.CheckIn(ctx, tournamentID, teamID, memberID)
}

func (a *App) CheckIns(ctx context.Context, tournamentID string) ([]scheduler.CheckIn, error) {
	return a.Lifecycle.CheckIns(ctx, tournamentID)
}

// CreateMatch creates an ad-hoc match outside of any tournament and starts its veto.
func (a *App) CreateMatch(ctx context.Context, spec match.Spec) (match.FullData, error) {
	spec.TournamentID = ""
	spec.Round = 0
	spec.Index = 0
	full, err := a.Matches.CreateMatch(ctx, spec)
	if err != nil {
		return match.FullData{}, err
	}
	if err := a.Matches.StartVeto(ctx, full.Info.ID); err != nil {
		return match.FullData{}, fmt.Errorf("start veto: %w", err)
	}
	return a.Matches.Get(ctx, full.Info.ID)
}

func (a *App) GetMatch(ctx context.Context, matchID string) (match.FullData, error) {
	return a.Matches.Get(ctx, matchID)
}

func (a *App) ListMatches(ctx context.Context, o match.ListOptions) ([]match.FullData, error) {
	return a.Matches.List(ctx, o)
}

func (a *App) Adjudicate(ctx context.Context, matchID string, score1, score2 int) (match.FullData, error) {
	return a.Matches.Adjudicate(ctx, matchID, score1, score2)
}

func (a *App) ResumeMatch(ctx context.Context, matchID string) error {
	return a.Matches.Resume(ctx, matchID)
}

func (a *App) DeadTasks(ctx context.Context) ([]queue.Task, error) {
	return a.Queue.DeadTasks(ctx)
}

func (a *App) RequeueTasks(ctx context.Context) (int64, error) {
	return a.Queue.Requeue(ctx)
}

func (a *App) PendingTimers() []scheduler.Timer {
	return a.Scheduler.Pending()
}
