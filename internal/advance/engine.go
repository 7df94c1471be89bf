package advance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex65536/tourney/internal/bracket"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/randutil"
	"github.com/alex65536/tourney/internal/util/slogx"
)

// MutateFunc changes the tournament and returns tasks to insert in the same transaction.
type MutateFunc func(info tournament.Info, data *tournament.Data) ([]queue.Task, error)

type DB interface {
	GetTournament(ctx context.Context, tournamentID string) (tournament.Info, tournament.Data, error)
	AdvanceTournament(ctx context.Context, tournamentID string, fn MutateFunc) (tournament.FullData, error)
}

type Matches interface {
	Get(ctx context.Context, matchID string) (match.FullData, error)
	CreateMatch(ctx context.Context, spec match.Spec) (match.FullData, error)
	StartVeto(ctx context.Context, matchID string) error
}

type Waker interface {
	Wake()
}

type Registry interface {
	Handle(kind queue.Kind, h queue.Handler)
}

type Announcer interface {
	TournamentStarted(ctx context.Context, full tournament.FullData)
	BracketTied(ctx context.Context, full tournament.FullData, m match.FullData)
	ChampionDecided(ctx context.Context, full tournament.FullData, champion tournament.Team)
}

type Engine struct {
	log     *slog.Logger
	db      DB
	matches Matches
	tasks   Waker
	ann     Announcer
	rnd     randutil.Rand
}

func New(log *slog.Logger, db DB, matches Matches, tasks Waker, ann Announcer, rnd randutil.Rand) *Engine {
	if rnd == nil {
		rnd = randutil.Global()
	}
	return &Engine{
		log:     log,
		db:      db,
		matches: matches,
		tasks:   tasks,
		ann:     ann,
		rnd:     rnd,
	}
}

func (e *Engine) Register(r Registry) {
	r.Handle(queue.KindCreateMatch, e.CreateMatch)
	r.Handle(queue.KindStartVeto, e.StartVeto)
	r.Handle(queue.KindUpdateBracket, e.UpdateBracket)
}

func readyTasks(tournamentID string, ready []bracket.Pos) []queue.Task {
	tasks := make([]queue.Task, 0, len(ready))
	for _, pos := range ready {
		tasks = append(tasks, queue.CreateMatchTask(tournamentID, pos.Round, pos.Index))
	}
	return tasks
}

// Start snapshots the roster into a bracket and schedules the playable matches.
func (e *Engine) Start(ctx context.Context, tournamentID string) (tournament.FullData, error) {
	full, err := e.db.AdvanceTournament(ctx, tournamentID, func(info tournament.Info, data *tournament.Data) ([]queue.Task, error) {
		if data.Bracket != nil {
			return nil, tournament.ErrAlreadyStarted
		}
		if data.Status.Kind != tournament.StatusWaiting {
			return nil, fmt.Errorf("start %v tournament: %w", data.Status.Kind, tournament.ErrNotWaiting)
		}
		if len(data.Teams) < tournament.MinTeams {
			return nil, tournament.ErrNotEnoughTeams
		}
		ids := make([]string, len(data.Teams))
		for i, t := range data.Teams {
			ids[i] = t.ID
		}
		b, err := bracket.Generate(ids, e.rnd)
		if err != nil {
			return nil, fmt.Errorf("generate bracket: %w", err)
		}
		data.Bracket = b
		data.Closed = true
		data.Status = tournament.NewStatusInProgress()
		return readyTasks(info.ID, b.Ready()), nil
	})
	if err != nil {
		return tournament.FullData{}, err
	}
	e.tasks.Wake()
	e.log.Info("started tournament",
		slog.String("tournament_id", tournamentID),
		slog.Int("teams", len(full.Data.Teams)),
		slog.Int("rounds", len(full.Data.Bracket.Rounds)),
	)
	e.ann.TournamentStarted(ctx, full)
	return full, nil
}

func (e *Engine) CreateMatch(ctx context.Context, task queue.Task) error {
	p := task.Payload
	pos := bracket.Pos{Round: p.Round, Index: p.Index}
	log := e.log.With(slog.String("tournament_id", p.TournamentID), slog.String("pos", pos.String()))

	_, data, err := e.db.GetTournament(ctx, p.TournamentID)
	if err != nil {
		return fmt.Errorf("get tournament: %w", err)
	}
	if data.Status.Kind != tournament.StatusInProgress || data.Bracket == nil {
		log.Info("skipping match creation", slog.String("status", data.Status.Kind.String()))
		return nil
	}
	slot, err := data.Bracket.At(pos)
	if err != nil {
		return fmt.Errorf("find slot: %w", err)
	}
	if slot.Done {
		return nil
	}
	if !slot.HasBothTeams() {
		return fmt.Errorf("%w: %v", bracket.ErrNotReady, pos)
	}
	team1, ok1 := data.FindTeam(slot.Team1)
	team2, ok2 := data.FindTeam(slot.Team2)
	if !ok1 || !ok2 {
		log.Error("bracket references unknown team")
		return fmt.Errorf("find teams: %w", tournament.ErrTeamNotFound)
	}

	m, err := e.matches.CreateMatch(ctx, match.Spec{
		TournamentID: p.TournamentID,
		Round:        p.Round,
		Index:        p.Index,
		Team1:        team1,
		Team2:        team2,
	})
	if err != nil {
		log.Warn("could not create match", slogx.Err(err))
		return fmt.Errorf("create match: %w", err)
	}

	_, err = e.db.AdvanceTournament(ctx, p.TournamentID, func(info tournament.Info, data *tournament.Data) ([]queue.Task, error) {
		if data.Bracket == nil {
			panic("must not happen")
		}
		slot, err := data.Bracket.At(pos)
		if err != nil {
			return nil, fmt.Errorf("find slot: %w", err)
		}
		switch slot.MatchID {
		case "":
			slot.MatchID = m.Info.ID
		case m.Info.ID:
		default:
			log.Error("slot already bound to another match",
				slog.String("match_id", m.Info.ID),
				slog.String("bound_id", slot.MatchID),
			)
			panic("must not happen")
		}
		return []queue.Task{queue.StartVetoTask(p.TournamentID, m.Info.ID)}, nil
	})
	if err != nil {
		return fmt.Errorf("record match: %w", err)
	}
	e.tasks.Wake()
	log.Info("bracket match created", slog.String("match_id", m.Info.ID))
	return nil
}

func (e *Engine) StartVeto(ctx context.Context, task queue.Task) error {
	p := task.Payload
	if p.TournamentID != "" {
		_, data, err := e.db.GetTournament(ctx, p.TournamentID)
		if err != nil {
			return fmt.Errorf("get tournament: %w", err)
		}
		if data.Status.Kind != tournament.StatusInProgress {
			e.log.Info("skipping veto of inactive tournament",
				slog.String("tournament_id", p.TournamentID),
				slog.String("match_id", p.MatchID),
			)
			return nil
		}
	}
	if err := e.matches.StartVeto(ctx, p.MatchID); err != nil {
		return fmt.Errorf("start veto: %w", err)
	}
	return nil
}

type updateResult int

const (
	updateNone updateResult = iota
	updateTie
	updateAdvanced
	updateChampion
)

func (e *Engine) UpdateBracket(ctx context.Context, task queue.Task) error {
	p := task.Payload
	pos := bracket.Pos{Round: p.Round, Index: p.Index}
	log := e.log.With(
		slog.String("tournament_id", p.TournamentID),
		slog.String("match_id", p.MatchID),
		slog.String("pos", pos.String()),
	)

	m, err := e.matches.Get(ctx, p.MatchID)
	if err != nil {
		return fmt.Errorf("get match: %w", err)
	}
	if m.Data.Status != match.StatusCompleted {
		return fmt.Errorf("%w: match is %v", match.ErrWrongPhase, m.Data.Status)
	}

	var (
		res    updateResult
		winner string
	)
	full, err := e.db.AdvanceTournament(ctx, p.TournamentID, func(info tournament.Info, data *tournament.Data) ([]queue.Task, error) {
		res = updateNone
		if data.Status.Kind != tournament.StatusInProgress || data.Bracket == nil {
			return nil, nil
		}
		slot, err := data.Bracket.At(pos)
		if err != nil {
			return nil, fmt.Errorf("find slot: %w", err)
		}
		if slot.Done {
			return nil, nil
		}
		if slot.Tie && slot.Score1 == m.Data.Score1 && slot.Score2 == m.Data.Score2 {
			return nil, nil
		}
		if slot.MatchID == "" {
			slot.MatchID = m.Info.ID
		}
		if slot.MatchID != m.Info.ID {
			return nil, fmt.Errorf("slot %v is bound to match %v", pos, slot.MatchID)
		}
		out, err := data.Bracket.Record(pos, m.Data.Score1, m.Data.Score2)
		if err != nil {
			return nil, fmt.Errorf("record score: %w", err)
		}
		switch {
		case out.Tie:
			res = updateTie
			return nil, nil
		case out.Champion:
			res = updateChampion
			winner = out.Winner
			data.ChampionID = out.Winner
			data.Status = tournament.NewStatusComplete()
			return nil, nil
		default:
			res = updateAdvanced
			winner = out.Winner
			return readyTasks(info.ID, out.Ready), nil
		}
	})
	if err != nil {
		return fmt.Errorf("update bracket: %w", err)
	}

	switch res {
	case updateNone:
		log.Info("bracket already up to date")
	case updateTie:
		log.Warn("bracket match tied", slog.Int("score", m.Data.Score1))
		e.ann.BracketTied(ctx, full, m)
	case updateAdvanced:
		e.tasks.Wake()
		log.Info("team advanced", slog.String("team_id", winner))
	case updateChampion:
		champion, ok := full.Data.Champion()
		if !ok {
			panic("must not happen")
		}
		log.Info("tournament complete", slog.String("champion_id", winner))
		e.ann.ChampionDecided(ctx, full, champion)
	default:
		panic("must not happen")
	}
	return nil
}
