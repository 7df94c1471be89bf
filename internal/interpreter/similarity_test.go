package interpreter

import (
	"testing"

	"github.com/alex65536/tourney/internal/stat"
	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 0.8, Similarity("healed", "sealed"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("night owl", "nightowl"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("a", "b"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
}

func TestBestMatch(t *testing.T) {
	names := []string{"NightOwl", "OwlBear", "Rook"}
	assert.Equal(t, "NightOwl", BestMatch("N1ghtOwl", names))
	assert.Equal(t, "NightOwl", BestMatch("nightowl", names))
	assert.Equal(t, "Stranger", BestMatch("Stranger", names))
}

func players(names ...string) []stat.Player {
	res := make([]stat.Player, len(names))
	for i, n := range names {
		res[i] = stat.Player{Name: n}
	}
	return res
}

func TestArrange(t *testing.T) {
	roster1 := []string{"NightOwl", "Rook"}
	roster2 := []string{"Falcon", "Badger"}
	r := Result{
		Team1: stat.Team{Players: players("falcoon", "badger"), Score: stat.Score{Total: 16}},
		Team2: stat.Team{Players: players("nightowl", "rook"), Score: stat.Score{Total: 9}},
	}
	t1, t2 := Arrange(r, roster1, roster2)
	assert.Equal(t, 9, t1.Score.Total)
	assert.Equal(t, 16, t2.Score.Total)
	assert.Equal(t, "NightOwl", t1.Players[0].Name)
	assert.Equal(t, "Falcon", t2.Players[0].Name)

	// The source is left intact.
	assert.Equal(t, "falcoon", r.Team1.Players[0].Name)

	r.Team1, r.Team2 = r.Team2, r.Team1
	t1, t2 = Arrange(r, roster1, roster2)
	assert.Equal(t, 9, t1.Score.Total)
	assert.Equal(t, 16, t2.Score.Total)
}
