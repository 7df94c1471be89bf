package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alex65536/tourney/internal/apitoken"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/alex65536/tourney/internal/util/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(slogx.DiscardLogger(), Options{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		UseWAL: true,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

var baseTime = timeutil.FromTime(time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC))

func createTournament(t *testing.T, db *DB, id string, region tournament.Region) {
	t.Helper()
	info := tournament.Info{
		ID: id,
		Settings: tournament.Settings{
			Name:     "Cup " + id,
			Region:   region,
			StartsAt: baseTime,
			MaxTeams: 8,
			Prize:    "glory",
		},
		CreatedAt: baseTime.Add(-time.Hour),
	}
	require.NoError(t, db.CreateTournament(context.Background(), info, tournament.Data{
		Status: tournament.NewStatusWaiting(),
	}))
}

func TestBuildPath(t *testing.T) {
	o := Options{Path: "x.db", BusyTimeout: time.Second}
	assert.Equal(t, "x.db?_busy_timeout=1000&_foreign_keys=1&_txlock=immediate", buildPath(o))
	o.Path = "file:x.db?mode=rwc"
	o.UseWAL = true
	assert.Equal(t,
		"file:x.db?mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=1000&_foreign_keys=1&_txlock=immediate",
		buildPath(o),
	)
}

func TestTournaments(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createTournament(t, db, "t1", tournament.RegionEU)
	createTournament(t, db, "t2", tournament.RegionNA)

	_, _, err := db.GetTournament(ctx, "nope")
	require.ErrorIs(t, err, tournament.ErrTournamentNotFound)

	full, err := db.MutateTournament(ctx, "t1", func(info tournament.Info, data *tournament.Data) error {
		data.Teams = append(data.Teams, tournament.Team{ID: "a", Name: "Alpha", Captain: "a1"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), full.Data.Version)

	info, data, err := db.GetTournament(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Cup t1", info.Name)
	assert.Equal(t, tournament.RegionEU, info.Region)
	assert.Equal(t, 0, info.StartsAt.Compare(baseTime))
	assert.Equal(t, tournament.StatusWaiting, data.Status.Kind)
	require.Len(t, data.Teams, 1)
	assert.Equal(t, "Alpha", data.Teams[0].Name)
	assert.Equal(t, int64(1), data.Version)

	_, err = db.MutateTournament(ctx, "t2", func(info tournament.Info, data *tournament.Data) error {
		data.Status = tournament.NewStatusCancelled("bored")
		return nil
	})
	require.NoError(t, err)

	all, err := db.ListTournaments(ctx, tournament.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	active, err := db.ListTournaments(ctx, tournament.ListOptions{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "t1", active[0].Info.ID)
	na, err := db.ListTournaments(ctx, tournament.ListOptions{Region: tournament.RegionNA})
	require.NoError(t, err)
	require.Len(t, na, 1)
	assert.Equal(t, "bored", na[0].Data.Status.Reason)

	_, err = db.MutateTournament(ctx, "t1", func(info tournament.Info, data *tournament.Data) error {
		return tournament.ErrTournamentFull
	})
	require.ErrorIs(t, err, tournament.ErrTournamentFull)
	_, data, err = db.GetTournament(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), data.Version)
}

func TestConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createTournament(t, db, "t1", tournament.RegionEU)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.MutateTournament(ctx, "t1", func(info tournament.Info, data *tournament.Data) error {
				data.Waiting = append(data.Waiting, tournament.Team{ID: string(rune('a' + i))})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, data, err := db.GetTournament(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, data.Waiting, 8)
	assert.Equal(t, int64(8), data.Version)
}

func TestRegionSeq(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	for want := 1; want <= 3; want++ {
		seq, err := db.NextRegionSeq(ctx, tournament.RegionEU)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}
	seq, err := db.NextRegionSeq(ctx, tournament.RegionSA)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestAdvanceInsertsTasks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createTournament(t, db, "t1", tournament.RegionEU)

	for range 2 {
		_, err := db.AdvanceTournament(ctx, "t1", func(info tournament.Info, data *tournament.Data) ([]queue.Task, error) {
			data.Closed = true
			return []queue.Task{queue.CreateMatchTask("t1", 1, 0), queue.CreateMatchTask("t1", 1, 1)}, nil
		})
		require.NoError(t, err)
	}
	tasks, err := db.ListLiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, queue.KindCreateMatch, tasks[0].Kind)
	assert.Equal(t, 1, tasks[1].Payload.Index)

	_, err = db.AdvanceTournament(ctx, "t1", func(info tournament.Info, data *tournament.Data) ([]queue.Task, error) {
		return nil, tournament.ErrAlreadyStarted
	})
	require.ErrorIs(t, err, tournament.ErrAlreadyStarted)
}

func testMatch(id, slot string) match.Info {
	info := match.Info{
		ID:          id,
		Team1:       tournament.Team{ID: "a", Name: "Alpha", Captain: "a1"},
		Team2:       tournament.Team{ID: "b", Name: "Bravo", Captain: "b1"},
		ChannelName: "match-" + id,
		CreatedAt:   baseTime,
	}
	if slot != "" {
		info.TournamentID = "t1"
		info.SlotKey = &slot
	}
	return info
}

func TestMatches(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.CreateMatch(ctx, testMatch("m1", "t1:1:0"), match.Data{}))
	require.ErrorIs(t, db.CreateMatch(ctx, testMatch("m2", "t1:1:0"), match.Data{}), match.ErrDuplicateSlot)
	require.NoError(t, db.CreateMatch(ctx, testMatch("m3", ""), match.Data{}))
	require.NoError(t, db.CreateMatch(ctx, testMatch("m4", ""), match.Data{}))

	full, err := db.FindMatchBySlot(ctx, "t1:1:0")
	require.NoError(t, err)
	assert.Equal(t, "m1", full.Info.ID)
	assert.Equal(t, "Bravo", full.Info.Team2.Name)
	_, err = db.GetMatch(ctx, "m2")
	require.ErrorIs(t, err, match.ErrMatchNotFound)

	data := full.Data
	data.Phase = match.PhaseVeto
	data.Status = match.StatusInProgress
	data.ChannelID = "ch1"
	newData, err := db.UpdateMatch(ctx, "m1", data)
	require.NoError(t, err)
	assert.Equal(t, int64(1), newData.Version)

	_, err = db.UpdateMatch(ctx, "m1", data)
	require.ErrorIs(t, err, match.ErrConflict)
	_, err = db.UpdateMatch(ctx, "m2", data)
	require.ErrorIs(t, err, match.ErrMatchNotFound)

	live, err := db.ListMatches(ctx, match.ListOptions{LiveOnly: true})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, match.PhaseVeto, live[0].Data.Phase)
	assert.Equal(t, match.StatusInProgress, live[0].Data.Status)
	var raw []string
	require.NoError(t, db.db.Table("matches").Where("id = ?", "m1").Pluck("status", &raw).Error)
	assert.Equal(t, []string{"in_progress"}, raw)
	inTournament, err := db.ListMatches(ctx, match.ListOptions{TournamentID: "t1"})
	require.NoError(t, err)
	assert.Len(t, inTournament, 1)
	all, err := db.ListMatches(ctx, match.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCompleteMatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.CreateMatch(ctx, testMatch("m1", "t1:1:0"), match.Data{ChannelID: "ch1"}))

	full, err := db.GetMatch(ctx, "m1")
	require.NoError(t, err)
	data := full.Data
	data.Phase = match.PhaseCompleted
	data.Status = match.StatusCompleted
	data.Score1, data.Score2 = 16, 9
	cleanupAt := baseTime.Add(5 * time.Minute)
	task := queue.NewTask(queue.KindUpdateBracket, queue.Payload{TournamentID: "t1", MatchID: "m1"}, "bracket:m1")
	_, err = db.CompleteMatch(ctx, "m1", data, match.Completion{
		Tasks:     []queue.Task{task},
		CleanupAt: cleanupAt,
	})
	require.NoError(t, err)

	full, err = db.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 16, full.Data.Score1)
	assert.Equal(t, match.PhaseCompleted, full.Data.Phase)

	tasks, err := db.ListLiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "m1", tasks[0].Payload.MatchID)

	timers, err := db.ListTimers(ctx)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, scheduler.KindChannelCleanup, timers[0].Kind)
	assert.Equal(t, "ch1", timers[0].ChannelID)
	assert.Equal(t, 0, timers[0].FireAt.Compare(cleanupAt))

	// A stale completion must not leave its side effects behind.
	task2 := queue.NewTask(queue.KindUpdateBracket, queue.Payload{TournamentID: "t1", MatchID: "m1"}, "other")
	_, err = db.CompleteMatch(ctx, "m1", data, match.Completion{Tasks: []queue.Task{task2}})
	require.ErrorIs(t, err, match.ErrConflict)
	tasks, err = db.ListLiveTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTasks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.InsertTasks(ctx, []queue.Task{
		queue.NewTask(queue.KindStartVeto, queue.Payload{MatchID: "m1"}, "veto:m1"),
		queue.NewTask(queue.KindStartVeto, queue.Payload{MatchID: "m1"}, "veto:m1"),
		queue.NewTask(queue.KindStartVeto, queue.Payload{MatchID: "m2"}, ""),
		queue.NewTask(queue.KindStartVeto, queue.Payload{MatchID: "m3"}, ""),
	}))
	tasks, err := db.ListLiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	require.NoError(t, db.DeleteTask(ctx, tasks[0].Seq))
	dead := tasks[1]
	dead.Dead = true
	dead.Attempts = 5
	dead.LastError = "boom"
	require.NoError(t, db.UpdateTask(ctx, dead))

	live, err := db.ListLiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "m3", live[0].Payload.MatchID)
	deadList, err := db.ListDeadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, deadList, 1)
	assert.Equal(t, "boom", deadList[0].LastError)

	n, err := db.RequeueDeadTasks(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	live, err = db.ListLiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, int64(0), live[0].Attempts)
}

func TestTimers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	closing := scheduler.ClosingTimer("t1", baseTime.Add(-time.Hour))
	start := scheduler.StartTimer("t1", baseTime)
	weekly := scheduler.WeeklyTimer(tournament.RegionEU, baseTime)
	require.NoError(t, db.PutTimers(ctx, []scheduler.Timer{closing, start, weekly}))

	moved := start
	moved.FireAt = baseTime.Add(time.Hour)
	require.NoError(t, db.PutTimers(ctx, []scheduler.Timer{moved}))

	// The start timer moved, so finishing its old firing keeps it.
	require.NoError(t, db.FinishTimer(ctx, start.ID, start.FireAt, nil))
	next := scheduler.WeeklyTimer(tournament.RegionEU, baseTime.Add(scheduler.Week))
	require.NoError(t, db.FinishTimer(ctx, weekly.ID, weekly.FireAt, []scheduler.Timer{next}))

	timers, err := db.ListTimers(ctx)
	require.NoError(t, err)
	ids := make([]string, len(timers))
	for i, tm := range timers {
		ids[i] = tm.ID
	}
	assert.Equal(t, []string{closing.ID, start.ID, next.ID}, ids)
	assert.Equal(t, 0, timers[1].FireAt.Compare(moved.FireAt))

	require.NoError(t, db.DeleteTournamentTimers(ctx, "t1"))
	timers, err = db.ListTimers(ctx)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, next.ID, timers[0].ID)
}

func TestCheckIns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	rows := []scheduler.CheckIn{
		{TournamentID: "t1", TeamID: "a", MemberID: "a1"},
		{TournamentID: "t1", TeamID: "a", MemberID: "a2"},
	}
	require.NoError(t, db.InitCheckIns(ctx, rows))
	require.NoError(t, db.MarkCheckIn(ctx, "t1", "a", "a1"))
	require.NoError(t, db.InitCheckIns(ctx, rows))
	require.ErrorIs(t, db.MarkCheckIn(ctx, "t1", "a", "zz"), scheduler.ErrNotMember)

	got, err := db.ListCheckIns(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Checked)
	assert.False(t, got[1].Checked)
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	var tok apitoken.Token
	require.NoError(t, tok.GenerateNew())
	tok.Name = "bridge"
	tok.Perms.CanBridge = true
	tok.CreatedAt = baseTime
	require.NoError(t, db.CreateToken(ctx, tok))

	got, err := db.GetToken(ctx, apitoken.HashValue(tok.Value))
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.True(t, got.Perms.CanBridge)
	assert.Empty(t, got.Value)

	list, err := db.ListTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, db.DeleteToken(ctx, tok.ID))
	require.ErrorIs(t, db.DeleteToken(ctx, tok.ID), apitoken.ErrTokenNotFound)
	_, err = db.GetToken(ctx, tok.Hash)
	require.ErrorIs(t, err, apitoken.ErrTokenNotFound)
}
