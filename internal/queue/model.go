package queue

import (
	"fmt"
	"log/slog"

	"github.com/alex65536/tourney/internal/util/idgen"
	"github.com/alex65536/tourney/internal/util/timeutil"
)

type Kind string

const (
	KindCreateMatch   Kind = "create_match"
	KindStartVeto     Kind = "start_veto"
	KindUpdateBracket Kind = "update_bracket"
)

type Payload struct {
	TournamentID string `json:"tournament_id,omitempty"`
	MatchID      string `json:"match_id,omitempty"`
	Round        int    `json:"round,omitempty"`
	Index        int    `json:"index,omitempty"`
}

type Task struct {
	Seq       int64            `gorm:"primaryKey;autoIncrement"`
	ID        string           `gorm:"uniqueIndex"`
	Kind      Kind             `gorm:"index"`
	Payload   Payload          `gorm:"serializer:json"`
	DedupKey  *string          `gorm:"uniqueIndex"`
	Attempts  int64
	NotBefore timeutil.UTCTime
	LastError string
	Dead      bool `gorm:"index"`
	CreatedAt timeutil.UTCTime
}

func (t Task) Clone() Task {
	if t.DedupKey != nil {
		k := *t.DedupKey
		t.DedupKey = &k
	}
	return t
}

func (t Task) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", t.ID),
		slog.String("kind", string(t.Kind)),
	}
	if t.Payload.TournamentID != "" {
		attrs = append(attrs, slog.String("tournament_id", t.Payload.TournamentID))
	}
	if t.Payload.MatchID != "" {
		attrs = append(attrs, slog.String("match_id", t.Payload.MatchID))
	}
	if t.Attempts != 0 {
		attrs = append(attrs, slog.Int64("attempts", t.Attempts))
	}
	return slog.GroupValue(attrs...)
}

// NewTask builds a task ready to be inserted. An empty dedup key disables deduplication.
func NewTask(kind Kind, payload Payload, dedupKey string) Task {
	t := Task{
		ID:        idgen.ID(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: timeutil.NowUTC(),
	}
	if dedupKey != "" {
		t.DedupKey = &dedupKey
	}
	return t
}

func CreateMatchTask(tournamentID string, round, index int) Task {
	return NewTask(KindCreateMatch, Payload{
		TournamentID: tournamentID,
		Round:        round,
		Index:        index,
	}, fmt.Sprintf("create_match:%v:%v:%v", tournamentID, round, index))
}

func StartVetoTask(tournamentID string, matchID string) Task {
	return NewTask(KindStartVeto, Payload{
		TournamentID: tournamentID,
		MatchID:      matchID,
	}, fmt.Sprintf("start_veto:%v", matchID))
}

func UpdateBracketTask(tournamentID string, matchID string, round, index int) Task {
	return NewTask(KindUpdateBracket, Payload{
		TournamentID: tournamentID,
		MatchID:      matchID,
		Round:        round,
		Index:        index,
	}, fmt.Sprintf("update_bracket:%v", matchID))
}
