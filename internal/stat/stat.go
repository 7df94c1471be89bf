package stat

import "fmt"

const (
	// RoundsPerMatch is the number of rounds in a full regulation match.
	RoundsPerMatch = 30
	// WinThreshold is the number of rounds that must be exceeded to win.
	WinThreshold = RoundsPerMatch / 2
)

type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeWin
	OutcomeLoss
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	case OutcomeDraw:
		return "draw"
	default:
		return "?"
	}
}

func (o Outcome) PrettyString() string {
	switch o {
	case OutcomeWin:
		return "Win"
	case OutcomeLoss:
		return "Loss"
	case OutcomeDraw:
		return "Draw"
	default:
		return "?"
	}
}

func RoundsLost(won int) int {
	return max(RoundsPerMatch-won, 0)
}

func Classify(won int) Outcome {
	switch {
	case won > WinThreshold:
		return OutcomeWin
	case won < WinThreshold:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

type Player struct {
	Name    string  `json:"name"`
	Sponsor string  `json:"sponsor,omitempty"`
	Kills   int     `json:"kills"`
	Deaths  int     `json:"deaths"`
	Assists int     `json:"assists"`
	Damage  float64 `json:"damage"`
	Ping    float64 `json:"ping"`
}

type Score struct {
	Attack  int `json:"atk"`
	Defense int `json:"def"`
	Total   int `json:"total"`
}

type Team struct {
	Players []Player `json:"players"`
	Score   Score    `json:"score"`
}

func (t Team) Clone() Team {
	if t.Players != nil {
		t.Players = append([]Player(nil), t.Players...)
	}
	return t
}

type Averages struct {
	Kills   float64 `json:"kills"`
	Deaths  float64 `json:"deaths"`
	Assists float64 `json:"assists"`
	Damage  float64 `json:"damage"`
	Ping    float64 `json:"ping"`
}

func (a Averages) String() string {
	return fmt.Sprintf("K %.1f / D %.1f / A %.1f, dmg %.0f, ping %.0f",
		a.Kills, a.Deaths, a.Assists, a.Damage, a.Ping)
}

// Average returns per-player averages. An empty team yields zeros.
func Average(players []Player) Averages {
	if len(players) == 0 {
		return Averages{}
	}
	var sum Averages
	for _, p := range players {
		sum.Kills += float64(p.Kills)
		sum.Deaths += float64(p.Deaths)
		sum.Assists += float64(p.Assists)
		sum.Damage += p.Damage
		sum.Ping += p.Ping
	}
	n := float64(len(players))
	return Averages{
		Kills:   sum.Kills / n,
		Deaths:  sum.Deaths / n,
		Assists: sum.Assists / n,
		Damage:  sum.Damage / n,
		Ping:    sum.Ping / n,
	}
}

type Summary struct {
	RoundsWon  int      `json:"rounds_won"`
	RoundsLost int      `json:"rounds_lost"`
	Outcome    Outcome  `json:"outcome"`
	Kills      int      `json:"kills"`
	Deaths     int      `json:"deaths"`
	Assists    int      `json:"assists"`
	Averages   Averages `json:"averages"`
}

func Summarize(t Team) Summary {
	s := Summary{
		RoundsWon:  t.Score.Total,
		RoundsLost: RoundsLost(t.Score.Total),
		Outcome:    Classify(t.Score.Total),
		Averages:   Average(t.Players),
	}
	for _, p := range t.Players {
		s.Kills += p.Kills
		s.Deaths += p.Deaths
		s.Assists += p.Assists
	}
	return s
}
