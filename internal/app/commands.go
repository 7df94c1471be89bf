package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alex65536/tourney/internal/gateway"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/registration"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/human"
	"github.com/alex65536/tourney/internal/util/timeutil"
)

var (
	errNotCaptain     = errors.New("only the team captain can do this")
	errUnknownCommand = errors.New("unknown command")
	errBadArgs        = errors.New("bad command arguments")
)

// Errors whose text is safe to show to players as is.
var userErrors = []error{
	errNotCaptain,
	errUnknownCommand,
	errBadArgs,
	tournament.ErrTournamentNotFound,
	tournament.ErrTeamNotFound,
	tournament.ErrDuplicateTeam,
	tournament.ErrNotWaiting,
	tournament.ErrRegistrationClosed,
	tournament.ErrTournamentFull,
	tournament.ErrInvalidTeam,
	scheduler.ErrCheckInClosed,
	scheduler.ErrNotMember,
	match.ErrMatchNotFound,
}

func userText(err error) (string, bool) {
	for _, e := range userErrors {
		if errors.Is(err, e) {
			msg := e.Error()
			return strings.ToUpper(msg[:1]) + msg[1:] + ".", true
		}
	}
	return "", false
}

type tournamentArgs struct {
	TournamentID string `json:"tournament_id"`
}

type listArgs struct {
	Region string `json:"region"`
}

type registerArgs struct {
	TournamentID string          `json:"tournament_id"`
	Team         tournament.Team `json:"team"`
}

type teamArgs struct {
	TournamentID string `json:"tournament_id"`
	TeamID       string `json:"team_id"`
}

type matchArgs struct {
	MatchID string `json:"match_id"`
}

func decodeArgs[T any](cmd gateway.Command) (T, error) {
	var v T
	if len(cmd.Args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(cmd.Args, &v); err != nil {
		return v, fmt.Errorf("%w: %w", errBadArgs, err)
	}
	return v, nil
}

// HandleCommand serves chat commands coming from the bridges.
func (a *App) HandleCommand(ctx context.Context, cmd gateway.Command) gateway.Reply {
	text, data, err := a.runCommand(ctx, cmd)
	if err != nil {
		if msg, ok := userText(err); ok {
			return gateway.Reply{OK: false, Text: msg}
		}
		a.logErr("command failed", err,
			slog.String("command", cmd.Name),
			slog.String("actor_id", cmd.ActorID),
		)
		return gateway.Reply{OK: false, Text: "Something went wrong. Please try again later."}
	}
	return gateway.Reply{OK: true, Text: text, Data: data}
}

func (a *App) runCommand(ctx context.Context, cmd gateway.Command) (string, any, error) {
	switch cmd.Name {
	case "tournaments":
		args, err := decodeArgs[listArgs](cmd)
		if err != nil {
			return "", nil, err
		}
		return a.cmdTournaments(ctx, args)
	case "status":
		args, err := decodeArgs[tournamentArgs](cmd)
		if err != nil {
			return "", nil, err
		}
		return a.cmdStatus(ctx, args)
	case "register":
		args, err := decodeArgs[registerArgs](cmd)
		if err != nil {
			return "", nil, err
		}
		return a.cmdRegister(ctx, cmd.ActorID, args)
	case "withdraw":
		args, err := decodeArgs[teamArgs](cmd)
		if err != nil {
			return "", nil, err
		}
		return a.cmdWithdraw(ctx, cmd.ActorID, args)
	case "checkin":
		args, err := decodeArgs[teamArgs](cmd)
		if err != nil {
			return "", nil, err
		}
		return a.cmdCheckIn(ctx, cmd.ActorID, args)
	case "match":
		args, err := decodeArgs[matchArgs](cmd)
		if err != nil {
			return "", nil, err
		}
		return a.cmdMatch(ctx, args)
	default:
		return "", nil, fmt.Errorf("%w %q", errUnknownCommand, cmd.Name)
	}
}

func (a *App) cmdTournaments(ctx context.Context, args listArgs) (string, any, error) {
	o := tournament.ListOptions{ActiveOnly: true}
	if args.Region != "" {
		region, err := tournament.ParseRegion(args.Region)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", errBadArgs, err)
		}
		o.Region = region
	}
	list, err := a.Tournaments.List(ctx, o)
	if err != nil {
		return "", nil, fmt.Errorf("list tournaments: %w", err)
	}
	if len(list) == 0 {
		return "No upcoming tournaments.", list, nil
	}
	var b strings.Builder
	for i, full := range list {
		if i != 0 {
			_ = b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%v (%v): %v, starts %v, %v/%v teams",
			full.Info.Name,
			full.Info.ID,
			full.Data.Status.Kind.PrettyString(),
			full.Info.StartsAt.String(),
			len(full.Data.Teams),
			full.Info.MaxTeams,
		)
	}
	return b.String(), list, nil
}

func (a *App) cmdStatus(ctx context.Context, args tournamentArgs) (string, any, error) {
	full, err := a.Tournaments.Get(ctx, args.TournamentID)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %v", full.Info.Name, full.Data.Status.Kind.PrettyString())
	if full.Data.Status.Reason != "" {
		fmt.Fprintf(&b, " (%v)", full.Data.Status.Reason)
	}
	fmt.Fprintf(&b, "\nTeams: %v/%v", len(full.Data.Teams), full.Info.MaxTeams)
	if len(full.Data.Waiting) != 0 {
		fmt.Fprintf(&b, ", %v waiting", len(full.Data.Waiting))
	}
	if champ, ok := full.Data.Champion(); ok {
		fmt.Fprintf(&b, "\nChampion: %v", champ.Name)
	}
	return b.String(), full, nil
}

func (a *App) captainTeam(ctx context.Context, actorID string, args teamArgs) (tournament.Team, error) {
	full, err := a.Tournaments.Get(ctx, args.TournamentID)
	if err != nil {
		return tournament.Team{}, err
	}
	team, ok := full.Data.FindTeam(args.TeamID)
	if !ok {
		return tournament.Team{}, tournament.ErrTeamNotFound
	}
	if team.Captain != actorID {
		return tournament.Team{}, errNotCaptain
	}
	return team, nil
}

func (a *App) cmdRegister(ctx context.Context, actorID string, args registerArgs) (string, any, error) {
	if args.Team.Captain == "" {
		args.Team.Captain = actorID
	}
	if args.Team.Captain != actorID {
		return "", nil, errNotCaptain
	}
	full, placement, err := a.Ledger.Register(ctx, args.TournamentID, args.Team)
	if err != nil {
		return "", nil, err
	}
	var text string
	switch placement {
	case registration.PlacedRoster:
		text = fmt.Sprintf("%v is registered for %v.", args.Team.Name, full.Info.Name)
	case registration.PlacedWaiting:
		text = fmt.Sprintf("%v is on the waiting list for %v. It joins the roster once enough teams sign up.",
			args.Team.Name, full.Info.Name)
	default:
		panic("must not happen")
	}
	return text, full, nil
}

func (a *App) cmdWithdraw(ctx context.Context, actorID string, args teamArgs) (string, any, error) {
	team, err := a.captainTeam(ctx, actorID, args)
	if err != nil {
		return "", nil, err
	}
	full, err := a.Ledger.Withdraw(ctx, args.TournamentID, args.TeamID)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%v withdrew from %v.", team.Name, full.Info.Name), full, nil
}

func (a *App) cmdCheckIn(ctx context.Context, actorID string, args teamArgs) (string, any, error) {
	full, err := a.Tournaments.Get(ctx, args.TournamentID)
	if err != nil {
		return "", nil, err
	}
	if err := a.Lifecycle.CheckIn(ctx, args.TournamentID, args.TeamID, actorID); err != nil {
		return "", nil, err
	}
	text := fmt.Sprintf("You are checked in. %v starts %v.", full.Info.Name, full.Info.StartsAt.String())
	if left := full.Info.StartsAt.Sub(timeutil.NowUTC()); left > 0 {
		text = fmt.Sprintf("You are checked in. %v starts in %v.", full.Info.Name, human.Duration(left))
	}
	return text, nil, nil
}

func (a *App) cmdMatch(ctx context.Context, args matchArgs) (string, any, error) {
	full, err := a.Matches.Get(ctx, args.MatchID)
	if err != nil {
		return "", nil, err
	}
	info, data := full.Info, full.Data
	text := fmt.Sprintf("%v vs %v: %v", info.Team1.Name, info.Team2.Name, data.Phase.String())
	if data.Phase == match.PhaseCompleted {
		text += fmt.Sprintf(", %v : %v", data.Score1, data.Score2)
	}
	return text, full, nil
}
