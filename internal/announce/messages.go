package announce

import (
	"fmt"
	"strings"
	"time"

	"github.com/alex65536/tourney/internal/bracket"
	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/sliceutil"
)

func statusColor(k tournament.StatusKind) messaging.Color {
	switch k {
	case tournament.StatusWaiting:
		return messaging.ColorInfo
	case tournament.StatusInProgress:
		return messaging.ColorWarning
	case tournament.StatusComplete:
		return messaging.ColorSuccess
	case tournament.StatusCancelled:
		return messaging.ColorDanger
	default:
		return messaging.ColorNeutral
	}
}

func teamNames(teams []tournament.Team) string {
	if len(teams) == 0 {
		return "none"
	}
	return strings.Join(sliceutil.Map(teams, func(t tournament.Team) string { return t.Name }), ", ")
}

func captains(teams []tournament.Team) []string {
	return sliceutil.FilterMap(teams, func(t tournament.Team) (string, bool) {
		return t.Captain, t.Captain != ""
	})
}

func allMembers(teams ...[]tournament.Team) []string {
	var ids []string
	for _, ts := range teams {
		for _, t := range ts {
			ids = append(ids, t.MemberIDs()...)
		}
	}
	return ids
}

func tournamentMessage(full tournament.FullData) messaging.Message {
	info, data := full.Info, full.Data
	msg := messaging.Message{
		Title: info.Name,
		Color: statusColor(data.Status.Kind),
	}
	msg.AddField("Region", string(info.Region), true)
	msg.AddField("Starts", info.StartsAt.UTC().Format(time.RFC1123), true)
	msg.AddField("Prize", info.Prize, true)
	msg.AddField("Status", data.Status.Kind.PrettyString(), true)
	msg.AddField(fmt.Sprintf("Teams (%v/%v)", len(data.Teams), info.MaxTeams), teamNames(data.Teams), false)
	if len(data.Waiting) != 0 {
		msg.AddField(fmt.Sprintf("Waiting list (%v)", len(data.Waiting)), teamNames(data.Waiting), false)
	}
	switch {
	case data.Status.Kind == tournament.StatusWaiting && data.Closed:
		msg.Footer = "Registration is closed. Check in to keep your spot."
	case data.Status.Kind == tournament.StatusWaiting:
		msg.Footer = "Registration is open."
	case data.Status.Kind == tournament.StatusCancelled && data.Status.Reason != "":
		msg.Footer = "Cancelled: " + data.Status.Reason
	}
	if champion, ok := data.Champion(); ok {
		msg.AddField("Champion", champion.Name, false)
	}
	return msg
}

func cancelledMessage(full tournament.FullData) messaging.Message {
	text := fmt.Sprintf("%v has been cancelled.", full.Info.Name)
	if r := full.Data.Status.Reason; r != "" {
		text += " Reason: " + r + "."
	}
	return messaging.Message{
		Title:    "Tournament cancelled",
		Text:     text,
		Color:    messaging.ColorDanger,
		Mentions: captains(full.Data.Teams),
	}
}

func checkInMessage(full tournament.FullData) messaging.Message {
	return messaging.Message{
		Title: "Check-in is open",
		Text: fmt.Sprintf("%v starts at %v. Every member of every team must check in before "+
			"the start, or the team is removed.", full.Info.Name, full.Info.StartsAt.UTC().Format("15:04 UTC")),
		Color:    messaging.ColorWarning,
		Mentions: allMembers(full.Data.Teams, full.Data.Waiting),
	}
}

func removedMessage(full tournament.FullData, removed []tournament.Team) messaging.Message {
	return messaging.Message{
		Title: "Teams removed",
		Text: fmt.Sprintf("These teams will not play in %v: %v.",
			full.Info.Name, teamNames(removed)),
		Color:    messaging.ColorNeutral,
		Mentions: captains(removed),
	}
}

func bracketLines(full tournament.FullData) []string {
	b := full.Data.Bracket
	if b == nil || len(b.Rounds) == 0 {
		return nil
	}
	name := func(id string) string {
		if t, ok := full.Data.FindTeam(id); ok {
			return t.Name
		}
		return id
	}
	var lines []string
	for i, m := range b.Rounds[0].Matches {
		pos := bracket.Pos{Round: 1, Index: i}
		switch {
		case m.Walkover:
			w, _ := m.Winner()
			lines = append(lines, fmt.Sprintf("%v: %v advances", pos, name(w)))
		default:
			lines = append(lines, fmt.Sprintf("%v: %v vs %v", pos, name(m.Team1), name(m.Team2)))
		}
	}
	return lines
}

func startedMessage(full tournament.FullData) messaging.Message {
	msg := messaging.Message{
		Title:    full.Info.Name + " has started",
		Text:     strings.Join(bracketLines(full), "\n"),
		Color:    messaging.ColorWarning,
		Mentions: captains(full.Data.Teams),
	}
	if b := full.Data.Bracket; b != nil {
		msg.Footer = fmt.Sprintf("%v teams, %v rounds", b.Teams, len(b.Rounds))
	}
	return msg
}

func championMessage(full tournament.FullData, champion tournament.Team) messaging.Message {
	return messaging.Message{
		Title:    "Champion: " + champion.Name,
		Text:     fmt.Sprintf("%v won %v! Prize: %v.", champion.Name, full.Info.Name, full.Info.Prize),
		Color:    messaging.ColorSuccess,
		Mentions: champion.MemberIDs(),
	}
}
