package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alex65536/tourney/internal/interpreter"
	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/review"
	"github.com/alex65536/tourney/internal/stat"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/backoff"
	"github.com/alex65536/tourney/internal/util/idgen"
	"github.com/alex65536/tourney/internal/util/randutil"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/alex65536/tourney/internal/util/timeutil"
	"github.com/alex65536/tourney/internal/veto"
	petname "github.com/dustinkirkland/golang-petname"
)

type Options struct {
	MapPool []string `toml:"map-pool"`
	// Zero means default, negative means no bans.
	Bans           int             `toml:"bans"`
	StepTimeout    time.Duration   `toml:"step-timeout"`
	Review         review.Options  `toml:"review"`
	ChannelCleanup time.Duration   `toml:"channel-cleanup"`
	InterpretRetry backoff.Options `toml:"interpret-retry"`
	DBSaveTimeout  time.Duration   `toml:"db-save-timeout"`
}

func (o Options) Clone() Options {
	o.MapPool = append([]string(nil), o.MapPool...)
	return o
}

func (o *Options) FillDefaults() {
	if len(o.MapPool) == 0 {
		o.MapPool = append([]string(nil), veto.DefaultPool...)
	}
	switch {
	case o.Bans == 0:
		o.Bans = veto.DefaultBans
	case o.Bans < 0:
		o.Bans = 0
	}
	if o.StepTimeout == 0 {
		o.StepTimeout = 30 * time.Second
	}
	o.Review.FillDefaults()
	if o.ChannelCleanup == 0 {
		o.ChannelCleanup = 5 * time.Minute
	}
	if o.InterpretRetry.MaxAttempts == 0 {
		o.InterpretRetry.MaxAttempts = 5
	}
	if o.InterpretRetry.Min == 0 {
		o.InterpretRetry.Min = 2 * time.Second
	}
	o.InterpretRetry.FillDefaults()
	if o.DBSaveTimeout == 0 {
		o.DBSaveTimeout = 10 * time.Second
	}
}

func (o *Options) Validate() error {
	if _, err := veto.New(o.MapPool, o.Bans); err != nil {
		return fmt.Errorf("bad veto setup: %w", err)
	}
	if err := o.InterpretRetry.Validate(); err != nil {
		return fmt.Errorf("bad interpret retry: %w", err)
	}
	return nil
}

type Waker interface {
	Wake()
}

type ArtifactMirror interface {
	Mirror(ctx context.Context, srcURL string) (string, error)
}

type Alerts interface {
	MatchDisputed(ctx context.Context, full FullData)
}

type Deps struct {
	DB          DB
	Surface     messaging.Surface
	Interpreter interpreter.Interpreter
	// Artifacts is optional. Without it, artifacts are referenced by their original URLs.
	Artifacts ArtifactMirror
	Tasks     Waker
	Timers    Waker
	Alerts    Alerts
	Rand      randutil.Rand
}

// Spec describes a match to create. Matches without a tournament are ad-hoc.
type Spec struct {
	TournamentID string          `json:"tournament_id,omitempty"`
	Round        int             `json:"round,omitempty"`
	Index        int             `json:"index,omitempty"`
	Team1        tournament.Team `json:"team1"`
	Team2        tournament.Team `json:"team2"`
}

type Runner struct {
	log  *slog.Logger
	deps Deps
	o    Options

	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]struct{}
}

func New(ctx context.Context, log *slog.Logger, deps Deps, o Options) (*Runner, error) {
	o = o.Clone()
	o.FillDefaults()
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("validate options: %w", err)
	}
	if deps.Rand == nil {
		deps.Rand = randutil.Global()
	}
	if deps.Interpreter == nil {
		deps.Interpreter = interpreter.Manual{}
	}

	live, err := deps.DB.ListMatches(ctx, ListOptions{LiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list live matches: %w", err)
	}

	gctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		log:      log,
		deps:     deps,
		o:        o,
		ctx:      gctx,
		cancel:   cancel,
		sessions: make(map[string]struct{}),
	}
	for _, full := range live {
		if !full.Data.Phase.IsLive() {
			continue
		}
		log.Info("resuming match",
			slog.String("match_id", full.Info.ID),
			slog.String("phase", full.Data.Phase.String()),
		)
		r.spawn(full)
	}
	return r, nil
}

func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) Options() Options {
	return r.o.Clone()
}

func (r *Runner) IsRunning(matchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[matchID]
	return ok
}

func (r *Runner) spawn(full FullData) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[full.Info.ID]; ok {
		return false
	}
	r.sessions[full.Info.ID] = struct{}{}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.sessions, full.Info.ID)
		}()
		s := newSession(r, full)
		s.run(r.ctx)
	}()
	return true
}

func (r *Runner) saveCtx() (context.Context, func()) {
	return context.WithTimeout(context.Background(), r.o.DBSaveTimeout)
}

func channelName(matchID string) string {
	return fmt.Sprintf("match-%v-%v", petname.Generate(2, "-"), idgen.Short(matchID))
}

// CreateMatch creates the match and its channel. For tournament matches, it is idempotent with
// respect to the bracket slot.
func (r *Runner) CreateMatch(ctx context.Context, spec Spec) (FullData, error) {
	if err := spec.Team1.Validate(); err != nil {
		return FullData{}, fmt.Errorf("bad team1: %w", err)
	}
	if err := spec.Team2.Validate(); err != nil {
		return FullData{}, fmt.Errorf("bad team2: %w", err)
	}
	if spec.Team1.ID == spec.Team2.ID {
		return FullData{}, fmt.Errorf("team %v cannot play itself", spec.Team1.ID)
	}

	var slotKey *string
	if spec.TournamentID != "" {
		key := SlotKey(spec.TournamentID, spec.Round, spec.Index)
		slotKey = &key
		full, err := r.deps.DB.FindMatchBySlot(ctx, key)
		switch {
		case err == nil:
			return r.ensureChannel(ctx, full)
		case !errors.Is(err, ErrMatchNotFound):
			return FullData{}, fmt.Errorf("find match by slot: %w", err)
		}
	}

	id := idgen.ID()
	info := Info{
		ID:           id,
		TournamentID: spec.TournamentID,
		Round:        spec.Round,
		Index:        spec.Index,
		SlotKey:      slotKey,
		Team1:        spec.Team1.Clone(),
		Team2:        spec.Team2.Clone(),
		ChannelName:  channelName(id),
		CreatedAt:    timeutil.NowUTC(),
	}
	data := Data{
		Status: StatusPending,
		Phase:  PhasePending,
	}
	err := r.deps.DB.CreateMatch(ctx, info, data)
	if errors.Is(err, ErrDuplicateSlot) {
		full, err := r.deps.DB.FindMatchBySlot(ctx, *slotKey)
		if err != nil {
			return FullData{}, fmt.Errorf("find match by slot: %w", err)
		}
		return r.ensureChannel(ctx, full)
	}
	if err != nil {
		return FullData{}, fmt.Errorf("create match: %w", err)
	}
	r.log.Info("created match",
		slog.String("match_id", id),
		slog.String("tournament_id", spec.TournamentID),
		slog.Int("round", spec.Round),
		slog.Int("index", spec.Index),
	)
	return r.ensureChannel(ctx, FullData{Info: info, Data: data})
}

func (r *Runner) ensureChannel(ctx context.Context, full FullData) (FullData, error) {
	if full.Data.ChannelID != "" {
		return full, nil
	}
	log := r.log.With(slog.String("match_id", full.Info.ID))
	channelID, err := r.deps.Surface.CreateChannel(ctx, messaging.ChannelSpec{
		Name:    full.Info.ChannelName,
		Topic:   fmt.Sprintf("%v vs %v", full.Info.Team1.Name, full.Info.Team2.Name),
		Members: full.Info.MemberIDs(),
	})
	if err != nil {
		log.Warn("could not create match channel", slogx.Err(err))
		return FullData{}, fmt.Errorf("create channel: %w", err)
	}
	data := full.Data.Clone()
	data.ChannelID = channelID
	newData, err := r.deps.DB.UpdateMatch(ctx, full.Info.ID, data)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Somebody else got there first. Keep their channel.
			if err := r.deps.Surface.DeleteChannel(ctx, channelID); err != nil {
				log.Warn("could not delete extra channel", slogx.Err(err))
			}
			fresh, err := r.deps.DB.GetMatch(ctx, full.Info.ID)
			if err != nil {
				return FullData{}, fmt.Errorf("get match: %w", err)
			}
			return fresh, nil
		}
		return FullData{}, fmt.Errorf("save channel: %w", err)
	}
	log.Info("created match channel", slog.String("channel_id", channelID))
	full.Data = newData
	return full, nil
}

// StartVeto starts the session of a pending match. A match that is already running or past the
// veto is left alone.
func (r *Runner) StartVeto(ctx context.Context, matchID string) error {
	full, err := r.deps.DB.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("get match: %w", err)
	}
	log := r.log.With(slog.String("match_id", matchID))
	if full.Data.ChannelID == "" {
		return fmt.Errorf("match %v has no channel", matchID)
	}
	switch {
	case full.Data.Phase == PhasePending:
	case full.Data.Phase.IsLive():
		if r.spawn(full) {
			log.Info("restarted stray match session", slog.String("phase", full.Data.Phase.String()))
		}
		return nil
	default:
		log.Info("match already past the veto", slog.String("phase", full.Data.Phase.String()))
		return nil
	}
	if r.IsRunning(matchID) {
		return nil
	}
	data := full.Data.Clone()
	data.Status = StatusInProgress
	data.Phase = PhaseVeto
	full.Data, err = r.deps.DB.UpdateMatch(ctx, matchID, data)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil
		}
		return fmt.Errorf("update match: %w", err)
	}
	log.Info("starting veto")
	r.spawn(full)
	return nil
}

// Resume restarts the session of a live match whose session stopped on an error.
func (r *Runner) Resume(ctx context.Context, matchID string) error {
	full, err := r.deps.DB.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("get match: %w", err)
	}
	if !full.Data.Phase.IsLive() {
		return fmt.Errorf("%w: %v", ErrWrongPhase, full.Data.Phase)
	}
	if !r.spawn(full) {
		return fmt.Errorf("%w: session already running", ErrWrongPhase)
	}
	return nil
}

func (r *Runner) Get(ctx context.Context, matchID string) (FullData, error) {
	return r.deps.DB.GetMatch(ctx, matchID)
}

func (r *Runner) List(ctx context.Context, o ListOptions) ([]FullData, error) {
	res, err := r.deps.DB.ListMatches(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return res, nil
}

// Adjudicate commits scores decided by an administrator. It accepts disputed matches and
// completed tournament matches that ended in a tie.
func (r *Runner) Adjudicate(ctx context.Context, matchID string, score1, score2 int) (FullData, error) {
	if score1 < 0 || score2 < 0 || score1 > stat.RoundsPerMatch || score2 > stat.RoundsPerMatch {
		return FullData{}, fmt.Errorf("%w: %v:%v", ErrBadScore, score1, score2)
	}
	full, err := r.deps.DB.GetMatch(ctx, matchID)
	if err != nil {
		return FullData{}, fmt.Errorf("get match: %w", err)
	}
	cleanup := true
	switch {
	case full.Data.Phase == PhaseDisputed:
	case full.Data.Phase == PhaseCompleted && full.Info.IsTournament() && full.Data.IsTied():
		// The channel is already scheduled for deletion.
		cleanup = false
	default:
		return FullData{}, fmt.Errorf("%w: cannot adjudicate %v match", ErrWrongPhase, full.Data.Phase)
	}
	if full.Info.IsTournament() && score1 == score2 {
		return FullData{}, fmt.Errorf("%w: tournament match cannot end in a tie", ErrBadScore)
	}
	if r.IsRunning(matchID) {
		return FullData{}, fmt.Errorf("%w: session is running", ErrWrongPhase)
	}
	stats := full.Data.Stats
	if len(stats) == 2 {
		stats = []stat.Team{stats[0].Clone(), stats[1].Clone()}
	} else {
		stats = []stat.Team{{}, {}}
	}
	stats[0].Score.Total = score1
	stats[1].Score.Total = score2
	r.log.Info("adjudicating match",
		slog.String("match_id", matchID),
		slog.Int("score1", score1),
		slog.Int("score2", score2),
	)
	return r.complete(ctx, full, stats, cleanup, "Result set by an administrator")
}

func (r *Runner) complete(
	ctx context.Context,
	full FullData,
	stats []stat.Team,
	cleanup bool,
	note string,
) (FullData, error) {
	if len(stats) != 2 {
		panic("must not happen")
	}
	log := r.log.With(slog.String("match_id", full.Info.ID))
	data := full.Data.Clone()
	data.Status = StatusCompleted
	data.Phase = PhaseCompleted
	data.Score1 = stats[0].Score.Total
	data.Score2 = stats[1].Score.Total
	data.Stats = stats
	var c Completion
	if full.Info.IsTournament() {
		c.Tasks = append(c.Tasks, queue.UpdateBracketTask(
			full.Info.TournamentID, full.Info.ID, full.Info.Round, full.Info.Index,
		))
	}
	if cleanup && data.ChannelID != "" {
		c.CleanupAt = timeutil.NowUTC().Add(r.o.ChannelCleanup)
	}
	newData, err := r.deps.DB.CompleteMatch(ctx, full.Info.ID, data, c)
	if err != nil {
		log.Error("could not complete match", slogx.Err(err))
		return FullData{}, fmt.Errorf("complete match: %w", err)
	}
	full.Data = newData
	if r.deps.Tasks != nil {
		r.deps.Tasks.Wake()
	}
	if r.deps.Timers != nil {
		r.deps.Timers.Wake()
	}
	log.Info("match completed",
		slog.Int("score1", newData.Score1),
		slog.Int("score2", newData.Score2),
	)
	if data.ChannelID != "" {
		if _, err := r.deps.Surface.Send(ctx, data.ChannelID, resultMessage(full, note)); err != nil {
			log.Warn("could not send result", slogx.Err(err))
		}
	}
	return full, nil
}
