package advance

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alex65536/tourney/internal/bracket"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/idgen"
	"github.com/alex65536/tourney/internal/util/randutil"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	mu    sync.Mutex
	full  map[string]tournament.FullData
	tasks []queue.Task
	keys  map[string]struct{}
}

func (d *fakeDB) GetTournament(ctx context.Context, tournamentID string) (tournament.Info, tournament.Data, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	full, ok := d.full[tournamentID]
	if !ok {
		return tournament.Info{}, tournament.Data{}, tournament.ErrTournamentNotFound
	}
	full = full.Clone()
	return full.Info, full.Data, nil
}

func (d *fakeDB) AdvanceTournament(ctx context.Context, tournamentID string, fn MutateFunc) (tournament.FullData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	full, ok := d.full[tournamentID]
	if !ok {
		return tournament.FullData{}, tournament.ErrTournamentNotFound
	}
	data := full.Data.Clone()
	tasks, err := fn(full.Info, &data)
	if err != nil {
		return tournament.FullData{}, err
	}
	data.Version++
	full.Data = data
	d.full[tournamentID] = full
	for _, t := range tasks {
		if t.DedupKey != nil {
			if _, ok := d.keys[*t.DedupKey]; ok {
				continue
			}
			d.keys[*t.DedupKey] = struct{}{}
		}
		d.tasks = append(d.tasks, t)
	}
	return full.Clone(), nil
}

func (d *fakeDB) pop() (queue.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tasks) == 0 {
		return queue.Task{}, false
	}
	t := d.tasks[0]
	d.tasks = d.tasks[1:]
	if t.DedupKey != nil {
		delete(d.keys, *t.DedupKey)
	}
	return t, true
}

func (d *fakeDB) pending() []queue.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]queue.Task(nil), d.tasks...)
}

func (d *fakeDB) get(t *testing.T, id string) tournament.FullData {
	info, data, err := d.GetTournament(context.Background(), id)
	require.NoError(t, err)
	return tournament.FullData{Info: info, Data: data}
}

type fakeMatches struct {
	mu      sync.Mutex
	matches map[string]match.FullData
	creates int
	started []string
}

func (m *fakeMatches) Get(ctx context.Context, matchID string) (match.FullData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	full, ok := m.matches[matchID]
	if !ok {
		return match.FullData{}, match.ErrMatchNotFound
	}
	return full.Clone(), nil
}

func (m *fakeMatches) CreateMatch(ctx context.Context, spec match.Spec) (match.FullData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	key := match.SlotKey(spec.TournamentID, spec.Round, spec.Index)
	for _, full := range m.matches {
		if *full.Info.SlotKey == key {
			return full.Clone(), nil
		}
	}
	full := match.FullData{Info: match.Info{
		ID:           idgen.ID(),
		TournamentID: spec.TournamentID,
		Round:        spec.Round,
		Index:        spec.Index,
		SlotKey:      &key,
		Team1:        spec.Team1,
		Team2:        spec.Team2,
	}}
	m.matches[full.Info.ID] = full
	return full.Clone(), nil
}

func (m *fakeMatches) StartVeto(ctx context.Context, matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, matchID)
	return nil
}

func (m *fakeMatches) finish(t *testing.T, matchID string, score1, score2 int) queue.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	full, ok := m.matches[matchID]
	require.True(t, ok)
	full.Data.Status = match.StatusCompleted
	full.Data.Phase = match.PhaseCompleted
	full.Data.Score1 = score1
	full.Data.Score2 = score2
	m.matches[matchID] = full
	return queue.UpdateBracketTask(full.Info.TournamentID, matchID, full.Info.Round, full.Info.Index)
}

type fakeAnnouncer struct {
	started   int
	ties      int
	champions []string
}

func (a *fakeAnnouncer) TournamentStarted(ctx context.Context, full tournament.FullData) {
	a.started++
}

func (a *fakeAnnouncer) BracketTied(ctx context.Context, full tournament.FullData, m match.FullData) {
	a.ties++
}

func (a *fakeAnnouncer) ChampionDecided(ctx context.Context, full tournament.FullData, champion tournament.Team) {
	a.champions = append(a.champions, champion.ID)
}

type wakes struct{ n int }

func (w *wakes) Wake() { w.n++ }

type env struct {
	db      *fakeDB
	matches *fakeMatches
	ann     *fakeAnnouncer
	engine  *Engine
}

func makeTeams(n int) []tournament.Team {
	teams := make([]tournament.Team, n)
	for i := range teams {
		id := fmt.Sprintf("team%v", i)
		teams[i] = tournament.Team{
			ID:      id,
			Name:    fmt.Sprintf("Team %v", i),
			Captain: id + "-cap",
			Members: []tournament.Member{{ID: id + "-cap", Name: id + "_cap"}},
		}
	}
	return teams
}

func newEnv(teams int, status tournament.Status) *env {
	e := &env{
		db: &fakeDB{
			full: map[string]tournament.FullData{
				"tour": {
					Info: tournament.Info{ID: "tour", Settings: tournament.Settings{MaxTeams: 32}},
					Data: tournament.Data{Status: status, Teams: makeTeams(teams)},
				},
			},
			keys: make(map[string]struct{}),
		},
		matches: &fakeMatches{matches: make(map[string]match.FullData)},
		ann:     &fakeAnnouncer{},
	}
	e.engine = New(slogx.DiscardLogger(), e.db, e.matches, &wakes{}, e.ann, randutil.NewSeeded(7))
	return e
}

func (e *env) handle(t *testing.T, task queue.Task) {
	ctx := context.Background()
	var err error
	switch task.Kind {
	case queue.KindCreateMatch:
		err = e.engine.CreateMatch(ctx, task)
	case queue.KindStartVeto:
		err = e.engine.StartVeto(ctx, task)
	case queue.KindUpdateBracket:
		err = e.engine.UpdateBracket(ctx, task)
	default:
		t.Fatalf("unexpected task kind %v", task.Kind)
	}
	require.NoError(t, err)
}

// drain runs all pending tasks and returns them in execution order.
func (e *env) drain(t *testing.T) []queue.Task {
	var done []queue.Task
	for {
		task, ok := e.db.pop()
		if !ok {
			return done
		}
		e.handle(t, task)
		done = append(done, task)
	}
}

func (e *env) slot(t *testing.T, round, index int) bracket.Match {
	full := e.db.get(t, "tour")
	require.NotNil(t, full.Data.Bracket)
	m, err := full.Data.Bracket.At(bracket.Pos{Round: round, Index: index})
	require.NoError(t, err)
	return *m
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	e := newEnv(4, tournament.NewStatusWaiting())
	full, err := e.engine.Start(ctx, "tour")
	require.NoError(t, err)
	assert.Equal(t, tournament.StatusInProgress, full.Data.Status.Kind)
	assert.True(t, full.Data.Closed)
	require.NotNil(t, full.Data.Bracket)
	assert.Len(t, full.Data.Bracket.Rounds, 2)
	tasks := e.db.pending()
	require.Len(t, tasks, 2)
	for i, task := range tasks {
		assert.Equal(t, queue.KindCreateMatch, task.Kind)
		assert.Equal(t, fmt.Sprintf("create_match:tour:1:%v", i), *task.DedupKey)
	}
	assert.Equal(t, 1, e.ann.started)

	_, err = e.engine.Start(ctx, "tour")
	assert.ErrorIs(t, err, tournament.ErrAlreadyStarted)

	_, err = newEnv(1, tournament.NewStatusWaiting()).engine.Start(ctx, "tour")
	assert.ErrorIs(t, err, tournament.ErrNotEnoughTeams)
	_, err = newEnv(4, tournament.NewStatusDraft()).engine.Start(ctx, "tour")
	assert.ErrorIs(t, err, tournament.ErrNotWaiting)
	_, err = e.engine.Start(ctx, "missing")
	assert.ErrorIs(t, err, tournament.ErrTournamentNotFound)
}

func TestThreeTeams(t *testing.T) {
	ctx := context.Background()
	e := newEnv(3, tournament.NewStatusWaiting())
	_, err := e.engine.Start(ctx, "tour")
	require.NoError(t, err)

	// The lone first-round team is already waiting in the final.
	final := e.slot(t, 2, 0)
	assert.NotEqual(t, bracket.TBD, final.Team1)
	assert.Equal(t, bracket.TBD, final.Team2)
	assert.True(t, e.slot(t, 1, 1).Walkover)

	done := e.drain(t)
	require.Len(t, done, 2)
	assert.Equal(t, queue.KindCreateMatch, done[0].Kind)
	assert.Equal(t, queue.KindStartVeto, done[1].Kind)
	semi := e.slot(t, 1, 0)
	require.NotEmpty(t, semi.MatchID)
	assert.Equal(t, []string{semi.MatchID}, e.matches.started)

	// The completion task may run twice. The final is created once.
	upd := e.matches.finish(t, semi.MatchID, 16, 9)
	e.handle(t, upd)
	e.handle(t, upd)
	tasks := e.db.pending()
	require.Len(t, tasks, 1)
	assert.Equal(t, "create_match:tour:2:0", *tasks[0].DedupKey)
	final = e.slot(t, 2, 0)
	assert.Equal(t, semi.Team1, final.Team2)
	assert.True(t, e.slot(t, 1, 0).Done)

	// The same create_match task delivered twice yields one match.
	e.handle(t, tasks[0])
	e.drain(t)
	assert.Equal(t, 3, e.matches.creates)
	assert.Len(t, e.matches.matches, 2)
	final = e.slot(t, 2, 0)
	require.NotEmpty(t, final.MatchID)

	// A tied final is parked.
	e.handle(t, e.matches.finish(t, final.MatchID, 15, 15))
	e.handle(t, e.matches.finish(t, final.MatchID, 15, 15))
	full := e.db.get(t, "tour")
	assert.Equal(t, tournament.StatusInProgress, full.Data.Status.Kind)
	assert.Empty(t, full.Data.ChampionID)
	assert.True(t, e.slot(t, 2, 0).Tie)
	assert.False(t, e.slot(t, 2, 0).Done)
	assert.Equal(t, 1, e.ann.ties)
	assert.Empty(t, e.ann.champions)

	// An administrator settles it.
	e.handle(t, e.matches.finish(t, final.MatchID, 13, 16))
	full = e.db.get(t, "tour")
	assert.Equal(t, tournament.StatusComplete, full.Data.Status.Kind)
	assert.Equal(t, final.Team2, full.Data.ChampionID)
	assert.Equal(t, []string{final.Team2}, e.ann.champions)
	assert.Empty(t, e.db.pending())

	// Completed tournaments ignore stale tasks.
	e.handle(t, e.matches.finish(t, final.MatchID, 13, 16))
	assert.Len(t, e.ann.champions, 1)
}

func TestInactiveTournament(t *testing.T) {
	ctx := context.Background()
	e := newEnv(2, tournament.NewStatusWaiting())
	_, err := e.engine.Start(ctx, "tour")
	require.NoError(t, err)
	e.db.full["tour"] = func() tournament.FullData {
		full := e.db.full["tour"]
		full.Data.Status = tournament.NewStatusCancelled("test")
		return full
	}()
	e.drain(t)
	assert.Equal(t, 0, e.matches.creates)
	assert.Empty(t, e.matches.started)
}

func TestFullBracket(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{2, 4, 7, 8, 14, 15, 16, 29, 30, 31, 32} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			e := newEnv(n, tournament.NewStatusWaiting())
			_, err := e.engine.Start(ctx, "tour")
			require.NoError(t, err)
			played := 0
			for {
				e.drain(t)
				full := e.db.get(t, "tour")
				if full.Data.Status.Kind == tournament.StatusComplete {
					break
				}
				var next []string
				for _, r := range full.Data.Bracket.Rounds {
					for _, m := range r.Matches {
						if m.MatchID != "" && !m.Done {
							next = append(next, m.MatchID)
						}
					}
				}
				require.NotEmpty(t, next)
				for _, id := range next {
					e.handle(t, e.matches.finish(t, id, 16, 14))
					played++
				}
			}
			// Every team but the champion loses exactly once.
			assert.Equal(t, n-1, played)
			assert.Len(t, e.ann.champions, 1)
		})
	}
}
