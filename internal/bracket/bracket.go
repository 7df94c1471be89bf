package bracket

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/alex65536/tourney/internal/util/randutil"
)

const TBD = "TBD"

var (
	ErrTooFewTeams     = errors.New("at least two teams are required")
	ErrDuplicateTeam   = errors.New("team appears twice")
	ErrNoSuchMatch     = errors.New("no such bracket match")
	ErrNotReady        = errors.New("bracket match has unresolved slots")
	ErrAlreadyRecorded = errors.New("bracket match already has a result")
)

type Pos struct {
	Round int `json:"round"` // 1-based
	Index int `json:"index"` // 0-based
}

func (p Pos) String() string {
	return fmt.Sprintf("R%v#%v", p.Round, p.Index+1)
}

type Match struct {
	Team1    string `json:"team1"`
	Team2    string `json:"team2"`
	Score1   int    `json:"score1"`
	Score2   int    `json:"score2"`
	MatchID  string `json:"match_id,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Walkover bool   `json:"walkover,omitempty"`
	Tie      bool   `json:"tie,omitempty"`
}

func (m Match) Clone() Match {
	return m
}

func (m *Match) HasBothTeams() bool {
	return m.Team1 != TBD && m.Team2 != TBD
}

// Winner returns the team that advanced from a finished match.
func (m *Match) Winner() (string, bool) {
	if !m.Done {
		return "", false
	}
	switch {
	case m.Walkover && m.Team1 != TBD:
		return m.Team1, true
	case m.Walkover && m.Team2 != TBD:
		return m.Team2, true
	case m.Score1 > m.Score2:
		return m.Team1, true
	case m.Score2 > m.Score1:
		return m.Team2, true
	default:
		return "", false
	}
}

type Round struct {
	Number  int     `json:"number"`
	Matches []Match `json:"matches"`
}

func (r Round) Clone() Round {
	r.Matches = append([]Match(nil), r.Matches...)
	return r
}

type Bracket struct {
	Teams  int     `json:"teams"`
	Rounds []Round `json:"rounds"`
}

func (b Bracket) Clone() Bracket {
	rounds := make([]Round, len(b.Rounds))
	for i, r := range b.Rounds {
		rounds[i] = r.Clone()
	}
	b.Rounds = rounds
	return b
}

// RoundCount returns ceil(log2(n)), the number of rounds a single-elimination bracket for n
// teams needs.
func RoundCount(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Generate shuffles the teams and lays them out pairwise into the first round. Later rounds
// start empty. Teams facing an empty subtree advance by walkover right away.
func Generate(teams []string, rnd randutil.Rand) (*Bracket, error) {
	n := len(teams)
	if n < 2 {
		return nil, ErrTooFewTeams
	}
	seen := make(map[string]struct{}, n)
	for _, t := range teams {
		if t == TBD || t == "" {
			return nil, fmt.Errorf("bad team id %q", t)
		}
		if _, ok := seen[t]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateTeam, t)
		}
		seen[t] = struct{}{}
	}

	shuffled := append([]string(nil), teams...)
	randutil.Shuffle(rnd, shuffled)

	rounds := RoundCount(n)
	b := &Bracket{
		Teams:  n,
		Rounds: make([]Round, rounds),
	}
	for r := range rounds {
		cnt := 1 << (rounds - r - 1)
		matches := make([]Match, cnt)
		for i := range matches {
			matches[i] = Match{Team1: TBD, Team2: TBD}
		}
		b.Rounds[r] = Round{Number: r + 1, Matches: matches}
	}
	for i := range b.Rounds[0].Matches {
		m := &b.Rounds[0].Matches[i]
		if 2*i < n {
			m.Team1 = shuffled[2*i]
		}
		if 2*i+1 < n {
			m.Team2 = shuffled[2*i+1]
		}
	}
	for i := range b.Rounds[0].Matches {
		m := &b.Rounds[0].Matches[i]
		if m.HasBothTeams() || (m.Team1 == TBD && m.Team2 == TBD) {
			continue
		}
		m.Done = true
		m.Walkover = true
		winner, _ := m.Winner()
		if _, err := b.advance(Pos{Round: 1, Index: i}, winner); err != nil {
			panic("must not happen")
		}
	}
	return b, nil
}

func (b *Bracket) At(pos Pos) (*Match, error) {
	if pos.Round < 1 || pos.Round > len(b.Rounds) {
		return nil, fmt.Errorf("%w: %v", ErrNoSuchMatch, pos)
	}
	r := &b.Rounds[pos.Round-1]
	if pos.Index < 0 || pos.Index >= len(r.Matches) {
		return nil, fmt.Errorf("%w: %v", ErrNoSuchMatch, pos)
	}
	return &r.Matches[pos.Index], nil
}

func (b *Bracket) Find(matchID string) (Pos, bool) {
	for r, round := range b.Rounds {
		for i, m := range round.Matches {
			if m.MatchID != "" && m.MatchID == matchID {
				return Pos{Round: r + 1, Index: i}, true
			}
		}
	}
	return Pos{}, false
}

func (b *Bracket) IsFinal(pos Pos) bool {
	return pos.Round == len(b.Rounds)
}

// subtreeTeams counts the first-round teams feeding into the given position.
func (b *Bracket) subtreeTeams(pos Pos) int {
	width := 1 << (pos.Round - 1)
	cnt := 0
	first := b.Rounds[0].Matches
	for i := pos.Index * width; i < (pos.Index+1)*width && i < len(first); i++ {
		if first[i].Team1 != TBD {
			cnt++
		}
		if first[i].Team2 != TBD {
			cnt++
		}
	}
	return cnt
}

type Outcome struct {
	Winner   string
	Tie      bool
	Champion bool
	// Ready lists matches that got both competitors as a result of the update.
	Ready []Pos
}

// Record stores the final score of a match and advances the winner. A tie is stored but does
// not advance anybody; recording again later overrides it.
func (b *Bracket) Record(pos Pos, score1, score2 int) (Outcome, error) {
	m, err := b.At(pos)
	if err != nil {
		return Outcome{}, err
	}
	if m.Done {
		return Outcome{}, fmt.Errorf("%w: %v", ErrAlreadyRecorded, pos)
	}
	if !m.HasBothTeams() {
		return Outcome{}, fmt.Errorf("%w: %v", ErrNotReady, pos)
	}
	m.Score1 = score1
	m.Score2 = score2
	if score1 == score2 {
		m.Tie = true
		return Outcome{Tie: true}, nil
	}
	m.Tie = false
	m.Done = true
	winner, ok := m.Winner()
	if !ok {
		panic("must not happen")
	}
	return b.advance(pos, winner)
}

func (b *Bracket) advance(pos Pos, team string) (Outcome, error) {
	out := Outcome{Winner: team}
	for {
		if b.IsFinal(pos) {
			out.Champion = true
			return out, nil
		}
		next := Pos{Round: pos.Round + 1, Index: pos.Index / 2}
		nm, err := b.At(next)
		if err != nil {
			return Outcome{}, err
		}
		switch {
		case nm.Team1 == TBD:
			nm.Team1 = team
		case nm.Team2 == TBD:
			nm.Team2 = team
		default:
			return Outcome{}, fmt.Errorf("both slots of %v already taken", next)
		}
		sibling := Pos{Round: pos.Round, Index: pos.Index ^ 1}
		if b.subtreeTeams(sibling) != 0 {
			if nm.HasBothTeams() && nm.MatchID == "" {
				out.Ready = append(out.Ready, next)
			}
			return out, nil
		}
		nm.Done = true
		nm.Walkover = true
		pos = next
	}
}

// Ready lists matches that have both competitors but no materialized match yet.
func (b *Bracket) Ready() []Pos {
	var res []Pos
	for r, round := range b.Rounds {
		for i, m := range round.Matches {
			if m.HasBothTeams() && !m.Done && m.MatchID == "" {
				res = append(res, Pos{Round: r + 1, Index: i})
			}
		}
	}
	return res
}

func (b *Bracket) Champion() (string, bool) {
	if len(b.Rounds) == 0 {
		return "", false
	}
	final := b.Rounds[len(b.Rounds)-1].Matches[0]
	return final.Winner()
}
