package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/lockmap"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/alex65536/tourney/internal/util/timeutil"
)

type Tournaments interface {
	Get(ctx context.Context, tournamentID string) (tournament.FullData, error)
	Cancel(ctx context.Context, tournamentID string, reason string) (tournament.FullData, error)
	CreateWeekly(ctx context.Context, region tournament.Region, startsAt timeutil.UTCTime) (tournament.FullData, error)
}

type Ledger interface {
	Close(ctx context.Context, tournamentID string) (tournament.FullData, error)
	Finalize(
		ctx context.Context,
		tournamentID string,
		verified func(team tournament.Team) bool,
	) (tournament.FullData, []tournament.Team, error)
}

type Starter interface {
	Start(ctx context.Context, tournamentID string) (tournament.FullData, error)
}

type Announcer interface {
	CheckInOpened(ctx context.Context, full tournament.FullData)
	TeamsRemoved(ctx context.Context, full tournament.FullData, removed []tournament.Team)
}

type LifecycleDeps struct {
	DB          DB
	Tournaments Tournaments
	Ledger      Ledger
	Starter     Starter
	Surface     messaging.Surface
	Announcer   Announcer
}

// Lifecycle drives published tournaments through closing, check-in and start, creates weekly
// tournaments and removes the channels of finished matches.
type Lifecycle struct {
	log   *slog.Logger
	s     *Scheduler
	deps  LifecycleDeps
	locks lockmap.Map[string]
}

func NewLifecycle(log *slog.Logger, s *Scheduler, deps LifecycleDeps) *Lifecycle {
	l := &Lifecycle{
		log:  log,
		s:    s,
		deps: deps,
	}
	s.Handle(KindClosing, l.onClosing)
	s.Handle(KindStart, l.onStart)
	s.Handle(KindWeekly, l.onWeekly)
	s.Handle(KindChannelCleanup, l.onChannelCleanup)
	return l
}

func (l *Lifecycle) onClosing(ctx context.Context, t Timer) ([]Timer, error) {
	unlock := l.locks.Lock(t.TournamentID)
	defer unlock()
	return nil, l.close(ctx, t.TournamentID)
}

func (l *Lifecycle) close(ctx context.Context, tournamentID string) error {
	log := l.log.With(slog.String("tournament_id", tournamentID))
	full, err := l.deps.Ledger.Close(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, tournament.ErrNotWaiting) || errors.Is(err, tournament.ErrTournamentNotFound) {
			log.Info("skipping closing", slogx.Err(err))
			return nil
		}
		return fmt.Errorf("close registration: %w", err)
	}
	var rows []CheckIn
	for _, teams := range [][]tournament.Team{full.Data.Teams, full.Data.Waiting} {
		for _, team := range teams {
			for _, memberID := range team.MemberIDs() {
				rows = append(rows, CheckIn{
					TournamentID: tournamentID,
					TeamID:       team.ID,
					MemberID:     memberID,
				})
			}
		}
	}
	if err := l.deps.DB.InitCheckIns(ctx, rows); err != nil {
		return fmt.Errorf("init check-ins: %w", err)
	}
	log.Info("registration closed, check-in open", slog.Int("members", len(rows)))
	l.deps.Announcer.CheckInOpened(ctx, full)
	return nil
}

func (l *Lifecycle) onStart(ctx context.Context, t Timer) ([]Timer, error) {
	unlock := l.locks.Lock(t.TournamentID)
	defer unlock()

	log := l.log.With(slog.String("tournament_id", t.TournamentID))
	full, err := l.deps.Tournaments.Get(ctx, t.TournamentID)
	if err != nil {
		if errors.Is(err, tournament.ErrTournamentNotFound) {
			log.Warn("start timer for missing tournament")
			return nil, nil
		}
		return nil, fmt.Errorf("get tournament: %w", err)
	}
	if full.Data.Status.Kind != tournament.StatusWaiting {
		log.Info("skipping start", slog.String("status", full.Data.Status.Kind.String()))
		return nil, nil
	}
	if !full.Data.Closed {
		// The closing timer has not fired yet. Check-in happens now with nobody present.
		if err := l.close(ctx, t.TournamentID); err != nil {
			return nil, err
		}
	}

	rows, err := l.deps.DB.ListCheckIns(ctx, t.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	checked := make(map[[2]string]struct{}, len(rows))
	for _, r := range rows {
		if r.Checked {
			checked[[2]string{r.TeamID, r.MemberID}] = struct{}{}
		}
	}
	verified := func(team tournament.Team) bool {
		for _, memberID := range team.MemberIDs() {
			if _, ok := checked[[2]string{team.ID, memberID}]; !ok {
				return false
			}
		}
		return true
	}
	full, removed, err := l.deps.Ledger.Finalize(ctx, t.TournamentID, verified)
	if err != nil {
		if errors.Is(err, tournament.ErrNotWaiting) {
			return nil, nil
		}
		return nil, fmt.Errorf("finalize roster: %w", err)
	}
	if len(removed) != 0 {
		l.deps.Announcer.TeamsRemoved(ctx, full, removed)
	}

	if len(full.Data.Teams) < tournament.MinTeams {
		log.Info("not enough verified teams", slog.Int("teams", len(full.Data.Teams)))
		if _, err := l.deps.Tournaments.Cancel(ctx, t.TournamentID, "not enough teams checked in"); err != nil {
			if errors.Is(err, tournament.ErrFinished) {
				return nil, nil
			}
			return nil, fmt.Errorf("cancel tournament: %w", err)
		}
		return nil, nil
	}
	if _, err := l.deps.Starter.Start(ctx, t.TournamentID); err != nil {
		if errors.Is(err, tournament.ErrAlreadyStarted) {
			return nil, nil
		}
		return nil, fmt.Errorf("start tournament: %w", err)
	}
	return nil, nil
}

func (l *Lifecycle) weekly(region tournament.Region) (WeeklyOptions, bool) {
	for _, w := range l.s.Options().Weekly {
		if w.Region == region {
			return w, true
		}
	}
	return WeeklyOptions{}, false
}

func (l *Lifecycle) onWeekly(ctx context.Context, t Timer) ([]Timer, error) {
	log := l.log.With(slog.String("region", string(t.Region)))
	w, ok := l.weekly(t.Region)
	if !ok {
		log.Info("weekly tournaments are not configured for region anymore")
		return nil, nil
	}
	full, err := l.deps.Tournaments.CreateWeekly(ctx, t.Region, t.FireAt.Add(w.Lead))
	if err != nil {
		return nil, fmt.Errorf("create weekly tournament: %w", err)
	}
	log.Info("created weekly tournament",
		slog.String("tournament_id", full.Info.ID),
		slog.String("name", full.Info.Name),
	)
	next := t.FireAt.Add(Week)
	if now := timeutil.NowUTC(); !next.After(now) {
		day, _ := ParseWeekday(w.Weekday)
		next = timeutil.FromTime(NextWeekly(now.UTC(), day, w.Hour))
	}
	return []Timer{WeeklyTimer(t.Region, next)}, nil
}

func (l *Lifecycle) onChannelCleanup(ctx context.Context, t Timer) ([]Timer, error) {
	if t.ChannelID == "" {
		return nil, nil
	}
	if err := l.deps.Surface.DeleteChannel(ctx, t.ChannelID); err != nil {
		return nil, fmt.Errorf("delete channel: %w", err)
	}
	l.log.Info("deleted match channel",
		slog.String("match_id", t.MatchID),
		slog.String("channel_id", t.ChannelID),
	)
	return nil, nil
}

// EnsureWeekly arms the first weekly timer of every configured region that has none.
func (l *Lifecycle) EnsureWeekly(ctx context.Context) error {
	armed := make(map[tournament.Region]struct{})
	for _, t := range l.s.Pending() {
		if t.Kind == KindWeekly {
			armed[t.Region] = struct{}{}
		}
	}
	now := time.Now()
	for _, w := range l.s.Options().Weekly {
		if _, ok := armed[w.Region]; ok {
			continue
		}
		day, err := ParseWeekday(w.Weekday)
		if err != nil {
			return err
		}
		t := WeeklyTimer(w.Region, timeutil.FromTime(NextWeekly(now, day, w.Hour)))
		if err := l.s.Arm(ctx, t); err != nil {
			return fmt.Errorf("arm weekly timer: %w", err)
		}
		l.log.Info("armed weekly timer",
			slog.String("region", string(w.Region)),
			slog.String("fire_at", t.FireAt.String()),
		)
	}
	return nil
}

// CheckIn marks the member of the team present. It is allowed only between closing and start.
func (l *Lifecycle) CheckIn(ctx context.Context, tournamentID, teamID, memberID string) error {
	full, err := l.deps.Tournaments.Get(ctx, tournamentID)
	if err != nil {
		return err
	}
	if full.Data.Status.Kind != tournament.StatusWaiting || !full.Data.Closed {
		return ErrCheckInClosed
	}
	team, ok := full.Data.FindTeam(teamID)
	if !ok {
		return tournament.ErrTeamNotFound
	}
	if !team.HasMember(memberID) {
		return ErrNotMember
	}
	if err := l.deps.DB.MarkCheckIn(ctx, tournamentID, teamID, memberID); err != nil {
		return fmt.Errorf("mark check-in: %w", err)
	}
	l.log.Info("member checked in",
		slog.String("tournament_id", tournamentID),
		slog.String("team_id", teamID),
		slog.String("member_id", memberID),
	)
	return nil
}

func (l *Lifecycle) CheckIns(ctx context.Context, tournamentID string) ([]CheckIn, error) {
	rows, err := l.deps.DB.ListCheckIns(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	return rows, nil
}
