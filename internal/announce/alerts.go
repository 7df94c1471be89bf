package announce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/tournament"
)

func matchTitle(m match.FullData) string {
	return fmt.Sprintf("%v vs %v", m.Info.Team1.Name, m.Info.Team2.Name)
}

func addMatchFields(msg *messaging.Message, m match.FullData) {
	msg.AddField("Match", m.Info.ID, true)
	if m.Info.ChannelName != "" {
		msg.AddField("Channel", m.Info.ChannelName, true)
	}
	if m.Data.Map != "" {
		msg.AddField("Map", m.Data.Map, true)
	}
}

// BracketTied asks admins to adjudicate a tournament match that ended in a draw.
func (a *Announcer) BracketTied(ctx context.Context, full tournament.FullData, m match.FullData) {
	msg := messaging.Message{
		Title: "Tied match needs adjudication",
		Text: fmt.Sprintf("%v ended %v : %v in %v. A tournament match needs a winner.",
			matchTitle(m), m.Data.Score1, m.Data.Score2, full.Info.Name),
		Color:    messaging.ColorWarning,
		ImageURL: m.Data.Artifact,
	}
	addMatchFields(&msg, m)
	msg.AddField("Round", fmt.Sprint(m.Info.Round), true)
	a.send(ctx, a.o.AdminChannel, msg, slog.String("match_id", m.Info.ID))
}

// MatchDisputed asks admins to settle a disputed result.
func (a *Announcer) MatchDisputed(ctx context.Context, m match.FullData) {
	msg := messaging.Message{
		Title:    "Disputed match: " + matchTitle(m),
		Text:     m.Data.DisputeReason,
		Color:    messaging.ColorDanger,
		ImageURL: m.Data.Artifact,
	}
	addMatchFields(&msg, m)
	if m.Data.Artifact != "" {
		msg.AddField("Submitted result", m.Data.Artifact, false)
	}
	if m.Data.Conflict != "" {
		msg.AddField("Conflicting result", m.Data.Conflict, false)
	}
	a.send(ctx, a.o.AdminChannel, msg, slog.String("match_id", m.Info.ID))
}
