package match

import (
	"fmt"

	"github.com/alex65536/tourney/internal/review"
	"github.com/alex65536/tourney/internal/stat"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/clone"
	"github.com/alex65536/tourney/internal/util/timeutil"
	"github.com/alex65536/tourney/internal/veto"
)

type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusInProgress
	StatusCompleted
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	default:
		return "?"
	}
}

func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *StatusKind) UnmarshalText(b []byte) error {
	for v := StatusPending; v <= StatusCompleted; v++ {
		if v.String() == string(b) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("bad status %q", string(b))
}

type Phase int

const (
	PhasePending Phase = iota
	PhaseVeto
	PhaseMapLocked
	PhaseResultSubmitted
	PhaseResultReviewing
	PhaseDisputed
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseVeto:
		return "veto"
	case PhaseMapLocked:
		return "map_locked"
	case PhaseResultSubmitted:
		return "result_submitted"
	case PhaseResultReviewing:
		return "result_reviewing"
	case PhaseDisputed:
		return "disputed"
	case PhaseCompleted:
		return "completed"
	default:
		return "?"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for v := PhasePending; v <= PhaseCompleted; v++ {
		if v.String() == string(b) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("bad phase %q", string(b))
}

// IsLive reports whether a session goroutine has to drive the match in this phase.
func (p Phase) IsLive() bool {
	switch p {
	case PhaseVeto, PhaseMapLocked, PhaseResultSubmitted, PhaseResultReviewing:
		return true
	default:
		return false
	}
}

func SlotKey(tournamentID string, round, index int) string {
	return fmt.Sprintf("%v:%v:%v", tournamentID, round, index)
}

type Info struct {
	ID           string `gorm:"primaryKey" json:"id"`
	TournamentID string `gorm:"index" json:"tournament_id,omitempty"`
	Round        int    `json:"round,omitempty"`
	Index        int    `json:"index,omitempty"`
	// SlotKey is unique for tournament matches and nil for ad-hoc ones.
	SlotKey     *string          `gorm:"uniqueIndex" json:"-"`
	Team1       tournament.Team  `gorm:"serializer:json" json:"team1"`
	Team2       tournament.Team  `gorm:"serializer:json" json:"team2"`
	ChannelName string           `json:"channel_name"`
	CreatedAt   timeutil.UTCTime `json:"created_at"`
}

func (i Info) Clone() Info {
	i.SlotKey = clone.TrivialPtr(i.SlotKey)
	i.Team1 = i.Team1.Clone()
	i.Team2 = i.Team2.Clone()
	return i
}

func (i Info) IsTournament() bool {
	return i.TournamentID != ""
}

func (i Info) Team(t veto.Team) tournament.Team {
	switch t {
	case veto.TeamA:
		return i.Team1
	case veto.TeamB:
		return i.Team2
	default:
		panic("must not happen")
	}
}

// TeamOf finds the side of the actor. Team A is always Team1.
func (i Info) TeamOf(actorID string) (veto.Team, bool) {
	switch {
	case i.Team1.HasMember(actorID):
		return veto.TeamA, true
	case i.Team2.HasMember(actorID):
		return veto.TeamB, true
	default:
		return 0, false
	}
}

func (i Info) MemberIDs() []string {
	return append(i.Team1.MemberIDs(), i.Team2.MemberIDs()...)
}

type Data struct {
	Status        StatusKind    `gorm:"index;serializer:text" json:"status"`
	Phase         Phase         `gorm:"serializer:text" json:"phase"`
	ChannelID     string        `json:"channel_id,omitempty"`
	Map           string        `json:"map,omitempty"`
	Side1         veto.Side     `json:"side1,omitempty"`
	Side2         veto.Side     `json:"side2,omitempty"`
	Score1        int           `json:"score1"`
	Score2        int           `json:"score2"`
	Artifact      string        `json:"artifact,omitempty"`
	Conflict      string        `json:"conflict,omitempty"`
	DisputeReason string        `json:"dispute_reason,omitempty"`
	Review        *review.State `gorm:"serializer:json" json:"review,omitempty"`
	Stats         []stat.Team   `gorm:"serializer:json" json:"stats,omitempty"`
	Version       int64         `json:"version"`
}

func (d Data) Clone() Data {
	if d.Review != nil {
		r := *d.Review
		r.Conflict = clone.TrivialPtr(r.Conflict)
		d.Review = &r
	}
	d.Stats = clone.DeepSlice(d.Stats)
	return d
}

func (d Data) IsTied() bool {
	return d.Status == StatusCompleted && d.Score1 == d.Score2
}

type FullData struct {
	Info Info `json:"info"`
	Data Data `json:"data"`
}

func (f FullData) Clone() FullData {
	return FullData{Info: f.Info.Clone(), Data: f.Data.Clone()}
}
