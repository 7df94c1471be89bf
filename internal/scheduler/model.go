package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/timeutil"
)

type Kind string

const (
	KindClosing        Kind = "closing"
	KindStart          Kind = "start"
	KindWeekly         Kind = "weekly"
	KindChannelCleanup Kind = "channel_cleanup"
)

type Timer struct {
	ID           string            `gorm:"primaryKey" json:"id"`
	Kind         Kind              `gorm:"index" json:"kind"`
	TournamentID string            `gorm:"index" json:"tournament_id,omitempty"`
	MatchID      string            `json:"match_id,omitempty"`
	ChannelID    string            `json:"channel_id,omitempty"`
	Region       tournament.Region `json:"region,omitempty"`
	FireAt       timeutil.UTCTime  `gorm:"index" json:"fire_at"`
	Attempts     int64             `json:"attempts,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
}

func (t Timer) Clone() Timer {
	return t
}

func (t Timer) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", t.ID),
		slog.String("kind", string(t.Kind)),
		slog.String("fire_at", t.FireAt.String()),
	}
	if t.Attempts != 0 {
		attrs = append(attrs, slog.Int64("attempts", t.Attempts))
	}
	return slog.GroupValue(attrs...)
}

func ClosingTimer(tournamentID string, at timeutil.UTCTime) Timer {
	return Timer{
		ID:           fmt.Sprintf("closing:%v", tournamentID),
		Kind:         KindClosing,
		TournamentID: tournamentID,
		FireAt:       at,
	}
}

func StartTimer(tournamentID string, at timeutil.UTCTime) Timer {
	return Timer{
		ID:           fmt.Sprintf("start:%v", tournamentID),
		Kind:         KindStart,
		TournamentID: tournamentID,
		FireAt:       at,
	}
}

// WeeklyTimer is keyed by its fire time, so that the next week's timer may be stored together
// with the removal of the current one.
func WeeklyTimer(region tournament.Region, at timeutil.UTCTime) Timer {
	return Timer{
		ID:     fmt.Sprintf("weekly:%v:%v", region, at.UTC().Unix()),
		Kind:   KindWeekly,
		Region: region,
		FireAt: at,
	}
}

func CleanupTimer(matchID string, channelID string, at timeutil.UTCTime) Timer {
	return Timer{
		ID:        fmt.Sprintf("channel_cleanup:%v", matchID),
		Kind:      KindChannelCleanup,
		MatchID:   matchID,
		ChannelID: channelID,
		FireAt:    at,
	}
}

type CheckIn struct {
	TournamentID string `gorm:"primaryKey" json:"tournament_id"`
	TeamID       string `gorm:"primaryKey" json:"team_id"`
	MemberID     string `gorm:"primaryKey" json:"member_id"`
	Checked      bool   `json:"checked"`
}
