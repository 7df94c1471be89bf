package bracket

import (
	"fmt"
	"testing"

	"github.com/alex65536/tourney/internal/util/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTeams(n int) []string {
	teams := make([]string, n)
	for i := range teams {
		teams[i] = fmt.Sprintf("team%02d", i)
	}
	return teams
}

func TestRoundCount(t *testing.T) {
	for _, tc := range []struct{ n, rounds int }{
		{2, 1}, {3, 2}, {4, 2}, {7, 3}, {8, 3}, {14, 4}, {15, 4}, {16, 4}, {29, 5}, {32, 5},
	} {
		assert.Equal(t, tc.rounds, RoundCount(tc.n), "n = %v", tc.n)
	}
}

func TestGenerateShape(t *testing.T) {
	rnd := randutil.NewSeeded(1)
	for _, n := range []int{2, 3, 4, 5, 7, 8, 14, 15, 16, 29, 30, 31, 32} {
		teams := makeTeams(n)
		b, err := Generate(teams, rnd)
		require.NoError(t, err)
		rounds := RoundCount(n)
		require.Len(t, b.Rounds, rounds, "n = %v", n)
		for r, round := range b.Rounds {
			assert.Equal(t, r+1, round.Number)
			assert.Len(t, round.Matches, 1<<(rounds-r-1))
		}

		occupied := 0
		seen := make(map[string]int)
		for _, m := range b.Rounds[0].Matches {
			if m.Team1 != TBD || m.Team2 != TBD {
				occupied++
			}
			for _, team := range []string{m.Team1, m.Team2} {
				if team != TBD {
					seen[team]++
				}
			}
		}
		assert.Equal(t, (n+1)/2, occupied, "n = %v", n)
		assert.Len(t, seen, n)
		for team, cnt := range seen {
			assert.Equal(t, 1, cnt, "team %v appears %v times", team, cnt)
		}
	}
}

func TestGenerateRejects(t *testing.T) {
	rnd := randutil.NewSeeded(1)
	_, err := Generate([]string{"a"}, rnd)
	require.ErrorIs(t, err, ErrTooFewTeams)
	_, err = Generate([]string{"a", "b", "a"}, rnd)
	require.ErrorIs(t, err, ErrDuplicateTeam)
	_, err = Generate([]string{"a", TBD}, rnd)
	require.Error(t, err)
}

func TestGenerateIsRandom(t *testing.T) {
	teams := makeTeams(16)
	layouts := make(map[string]struct{})
	for seed := range uint64(10) {
		b, err := Generate(teams, randutil.NewSeeded(seed))
		require.NoError(t, err)
		layouts[fmt.Sprint(b.Rounds[0].Matches)] = struct{}{}
	}
	assert.Greater(t, len(layouts), 1)
}

func TestPlayThrough(t *testing.T) {
	rnd := randutil.NewSeeded(5)
	for _, n := range []int{2, 3, 4, 5, 6, 7, 8, 14, 15, 16, 29, 30, 31, 32} {
		b, err := Generate(makeTeams(n), rnd)
		require.NoError(t, err)
		played := 0
		for {
			ready := b.Ready()
			if len(ready) == 0 {
				break
			}
			for _, pos := range ready {
				m, err := b.At(pos)
				require.NoError(t, err)
				m.MatchID = pos.String()
				out, err := b.Record(pos, 16, 10)
				require.NoError(t, err)
				assert.Equal(t, m.Team1, out.Winner)
				played++
			}
		}
		champion, ok := b.Champion()
		require.True(t, ok, "n = %v", n)
		assert.NotEqual(t, TBD, champion)
		assert.Equal(t, n-1, played, "n = %v", n)
	}
}

func TestRecordReportsReadyOnce(t *testing.T) {
	b, err := Generate(makeTeams(4), randutil.NewSeeded(3))
	require.NoError(t, err)
	first := Pos{Round: 1, Index: 0}
	second := Pos{Round: 1, Index: 1}

	out, err := b.Record(first, 16, 3)
	require.NoError(t, err)
	assert.Empty(t, out.Ready)
	assert.False(t, out.Champion)

	out, err = b.Record(second, 4, 16)
	require.NoError(t, err)
	assert.Equal(t, []Pos{{Round: 2, Index: 0}}, out.Ready)

	_, err = b.Record(second, 4, 16)
	require.ErrorIs(t, err, ErrAlreadyRecorded)

	final, err := b.At(Pos{Round: 2, Index: 0})
	require.NoError(t, err)
	assert.Equal(t, b.Rounds[0].Matches[0].Team1, final.Team1)
	assert.Equal(t, b.Rounds[0].Matches[1].Team2, final.Team2)
}

func TestTieDoesNotAdvance(t *testing.T) {
	b, err := Generate([]string{"a", "b"}, randutil.NewSeeded(1))
	require.NoError(t, err)
	pos := Pos{Round: 1, Index: 0}

	out, err := b.Record(pos, 13, 13)
	require.NoError(t, err)
	assert.True(t, out.Tie)
	assert.False(t, out.Champion)
	_, ok := b.Champion()
	assert.False(t, ok)

	out, err = b.Record(pos, 13, 16)
	require.NoError(t, err)
	assert.True(t, out.Champion)
	champion, ok := b.Champion()
	require.True(t, ok)
	assert.Equal(t, b.Rounds[0].Matches[0].Team2, champion)
}

func TestWalkoverCascade(t *testing.T) {
	b, err := Generate(makeTeams(5), randutil.NewSeeded(9))
	require.NoError(t, err)
	// Five teams in eight slots: the lone team in the third slot walks straight into the final.
	lone := b.Rounds[0].Matches[2].Team1
	require.NotEqual(t, TBD, lone)
	final, err := b.At(Pos{Round: 3, Index: 0})
	require.NoError(t, err)
	assert.Equal(t, lone, final.Team1)
	assert.True(t, b.Rounds[1].Matches[1].Walkover)
}

func TestFind(t *testing.T) {
	b, err := Generate(makeTeams(4), randutil.NewSeeded(2))
	require.NoError(t, err)
	m, err := b.At(Pos{Round: 1, Index: 1})
	require.NoError(t, err)
	m.MatchID = "m1"
	pos, ok := b.Find("m1")
	require.True(t, ok)
	assert.Equal(t, Pos{Round: 1, Index: 1}, pos)
	_, ok = b.Find("nope")
	assert.False(t, ok)
	_, err = b.At(Pos{Round: 3, Index: 0})
	require.ErrorIs(t, err, ErrNoSuchMatch)
}
