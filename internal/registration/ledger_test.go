package registration

import (
	"context"
	"sync"
	"testing"

	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	mu   sync.Mutex
	full map[string]tournament.FullData
}

func (d *fakeDB) MutateTournament(
	ctx context.Context,
	tournamentID string,
	fn tournament.MutateFunc,
) (tournament.FullData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	full, ok := d.full[tournamentID]
	if !ok {
		return tournament.FullData{}, tournament.ErrTournamentNotFound
	}
	data := full.Data.Clone()
	if err := fn(full.Info, &data); err != nil {
		return tournament.FullData{}, err
	}
	data.Version++
	full.Data = data
	d.full[tournamentID] = full
	return full.Clone(), nil
}

type fakeAnnouncer struct {
	mu      sync.Mutex
	updates int
}

func (a *fakeAnnouncer) RosterUpdated(ctx context.Context, full tournament.FullData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates++
}

func newTestLedger(maxTeams int) (*Ledger, *fakeDB, *fakeAnnouncer) {
	db := &fakeDB{full: map[string]tournament.FullData{
		"t": {
			Info: tournament.Info{ID: "t", Settings: tournament.Settings{MaxTeams: maxTeams}},
			Data: tournament.Data{Status: tournament.NewStatusWaiting()},
		},
	}}
	ann := &fakeAnnouncer{}
	return NewLedger(slogx.DiscardLogger(), db, ann), db, ann
}

func TestLedgerRegister(t *testing.T) {
	l, db, ann := newTestLedger(32)
	ctx := context.Background()

	_, p, err := l.Register(ctx, "t", team(1))
	require.NoError(t, err)
	assert.Equal(t, PlacedWaiting, p)
	full, p, err := l.Register(ctx, "t", team(2))
	require.NoError(t, err)
	assert.Equal(t, PlacedRoster, p)
	assert.Len(t, full.Data.Teams, 2)
	assert.Equal(t, int64(2), full.Data.Version)
	assert.Equal(t, 2, ann.updates)

	_, _, err = l.Register(ctx, "t", team(2))
	assert.ErrorIs(t, err, tournament.ErrDuplicateTeam)
	_, _, err = l.Register(ctx, "missing", team(3))
	assert.ErrorIs(t, err, tournament.ErrTournamentNotFound)
	_, _, err = l.Register(ctx, "t", tournament.Team{ID: "x"})
	assert.Error(t, err)
	assert.Equal(t, 2, ann.updates)

	_, err = l.Close(ctx, "t")
	require.NoError(t, err)
	_, _, err = l.Register(ctx, "t", team(3))
	assert.ErrorIs(t, err, tournament.ErrRegistrationClosed)

	full = db.full["t"]
	full.Data.Status = tournament.NewStatusInProgress()
	db.full["t"] = full
	_, err = l.Withdraw(ctx, "t", "team01")
	assert.ErrorIs(t, err, tournament.ErrNotWaiting)
}

func TestLedgerConcurrent(t *testing.T) {
	l, db, _ := newTestLedger(32)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = l.Register(ctx, "t", team(i))
		}()
	}
	wg.Wait()
	full := db.full["t"]
	// Every prefix of registrations drains into the roster, so the rest are rejected once it
	// holds 32 teams.
	assert.Len(t, full.Data.Teams, 32)
	assert.Empty(t, full.Data.Waiting)
	assert.Equal(t, 0, l.locks.Len())
}

func TestLedgerFinalize(t *testing.T) {
	l, _, _ := newTestLedger(32)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		_, _, err := l.Register(ctx, "t", team(i))
		require.NoError(t, err)
	}
	// Roster holds 8 teams, waiting holds team09 and team10.
	absent := map[string]bool{"team01": true, "team02": true, "team10": true}
	full, removed, err := l.Finalize(ctx, "t", func(tm tournament.Team) bool { return !absent[tm.ID] })
	require.NoError(t, err)
	// 6 verified roster teams are invalid, team09 backfills to 7.
	assert.Len(t, full.Data.Teams, 7)
	assert.Contains(t, ids(full.Data.Teams), "team09")
	assert.Empty(t, full.Data.Waiting)
	assert.ElementsMatch(t, []string{"team01", "team02", "team10"}, ids(removed))
	assert.True(t, full.Data.Closed)
}

func TestLedgerFinalizeFillsToCapacity(t *testing.T) {
	l, _, _ := newTestLedger(32)
	ctx := context.Background()
	for i := 1; i <= 18; i++ {
		_, _, err := l.Register(ctx, "t", team(i))
		require.NoError(t, err)
	}
	// Roster holds 16 teams, waiting holds team17 and team18.
	absent := map[string]bool{"team01": true, "team02": true}
	full, removed, err := l.Finalize(ctx, "t", func(tm tournament.Team) bool { return !absent[tm.ID] })
	require.NoError(t, err)
	assert.Len(t, full.Data.Teams, 16)
	assert.Contains(t, ids(full.Data.Teams), "team17")
	assert.Contains(t, ids(full.Data.Teams), "team18")
	assert.Empty(t, full.Data.Waiting)
	assert.ElementsMatch(t, []string{"team01", "team02"}, ids(removed))
}

func TestLedgerFinalizeDemotes(t *testing.T) {
	l, _, _ := newTestLedger(32)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		_, _, err := l.Register(ctx, "t", team(i))
		require.NoError(t, err)
	}
	full, removed, err := l.Finalize(ctx, "t", func(tm tournament.Team) bool { return tm.ID != "team01" })
	require.NoError(t, err)
	assert.Len(t, full.Data.Teams, 2)
	assert.Len(t, removed, 2)
}
