package match

import (
	"fmt"
	"strings"
	"time"

	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/review"
	"github.com/alex65536/tourney/internal/stat"
	"github.com/alex65536/tourney/internal/util/human"
	"github.com/alex65536/tourney/internal/veto"
)

func teamName(info Info, t veto.Team) string {
	return info.Team(t).Name
}

func vetoInstructions(info Info, st veto.State, timeout time.Duration) messaging.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%v (team A) vs %v (team B).\n", info.Team1.Name, info.Team2.Name)
	fmt.Fprintf(&b, "Map pool: %v.\n", strings.Join(st.Remaining, ", "))
	if st.BansLeft > 0 {
		fmt.Fprintf(&b, "Teams ban %v maps in turns, starting with team A. ", st.BansLeft)
	}
	_, _ = b.WriteString("Then teams pick in turns until two maps remain, and the team on turn makes " +
		"the final pick. The other team chooses its starting side.\n")
	fmt.Fprintf(&b, "Each step has %v. If nobody answers, the choice is random.", human.Duration(timeout))
	msg := messaging.Message{
		Title:    "Map veto",
		Text:     b.String(),
		Color:    messaging.ColorInfo,
		Mentions: info.MemberIDs(),
	}
	return msg
}

func vetoVerb(p veto.Phase) string {
	switch p {
	case veto.PhaseBan:
		return "ban a map"
	case veto.PhasePick:
		return "pick a map to remove"
	case veto.PhaseFinalPick:
		return "pick the map to play"
	case veto.PhaseSide:
		return "choose the starting side"
	default:
		panic("must not happen")
	}
}

func vetoPrompt(info Info, st veto.State, deadline time.Time, timeout time.Duration) messaging.Message {
	actor := info.Team(st.Actor())
	msg := messaging.Message{
		Title:    fmt.Sprintf("%v: %v", actor.Name, vetoVerb(st.Phase)),
		Text:     fmt.Sprintf("Answer within %v.", human.Duration(timeout)),
		Color:    messaging.Countdown(time.Until(deadline).Seconds(), timeout.Seconds()),
		Mentions: actor.MemberIDs(),
	}
	for _, opt := range st.Options() {
		msg.Choices = append(msg.Choices, messaging.Choice{ID: opt, Label: opt})
	}
	msg.AddField("Remaining", strings.Join(st.Remaining, ", "), false)
	return msg
}

func vetoPastTense(p veto.Phase) string {
	switch p {
	case veto.PhaseBan:
		return "banned"
	case veto.PhasePick:
		return "removed"
	case veto.PhaseFinalPick:
		return "picked"
	case veto.PhaseSide:
		return "chose"
	default:
		panic("must not happen")
	}
}

func vetoOutcome(info Info, st veto.State, ev veto.Event) messaging.Message {
	text := fmt.Sprintf("%v %v %v.", teamName(info, ev.Team), vetoPastTense(st.Phase), ev.Choice)
	color := messaging.ColorSuccess
	if ev.Random {
		text += " No answer in time, the choice was random."
		color = messaging.ColorWarning
	}
	return messaging.Message{
		Title: fmt.Sprintf("Veto: %v", st.Phase),
		Text:  text,
		Color: color,
	}
}

func setupComplete(info Info, data Data) messaging.Message {
	msg := messaging.Message{
		Title: "Match setup complete",
		Text: "Play the match, then upload the final scoreboard here. " +
			"Any member of either team may submit it.",
		Color:    messaging.ColorSuccess,
		Mentions: info.MemberIDs(),
	}
	msg.AddField("Map", data.Map, false)
	msg.AddField(info.Team1.Name, data.Side1.String(), true)
	msg.AddField(info.Team2.Name, data.Side2.String(), true)
	return msg
}

func reviewPrompt(info Info, data Data, st review.State, o review.Options) messaging.Message {
	reviewer := info.Team(st.Reviewer())
	submitter := info.Team(st.Original.Team)
	left := max(time.Until(st.Deadline), 0)
	window := o.ReviewWindow
	if st.Phase == review.PhaseDenied {
		window = o.ConflictWindow
	}
	msg := messaging.Message{
		Color:    messaging.Countdown(left.Seconds(), window.Seconds()),
		ImageURL: data.Artifact,
		Mentions: reviewer.MemberIDs(),
		Choices: []messaging.Choice{
			{ID: choiceAccept, Label: "Accept"},
			{ID: choiceDeny, Label: "Deny"},
		},
	}
	switch st.Phase {
	case review.PhaseReviewing:
		msg.Title = fmt.Sprintf("Result submitted by %v", submitter.Name)
		msg.Text = fmt.Sprintf("%v, accept or deny this result within %v. "+
			"Without an answer the result is accepted.", reviewer.Name, human.Duration(left))
	case review.PhaseDenied:
		msg.Title = fmt.Sprintf("Result denied by %v", reviewer.Name)
		msg.Text = fmt.Sprintf("%v, upload your scoreboard within %v to dispute the result, "+
			"or accept it.", reviewer.Name, human.Duration(left))
	default:
		panic("must not happen")
	}
	return msg
}

func reviewOutcome(info Info, st review.State, ev review.Event) messaging.Message {
	msg := messaging.Message{Title: "Result review"}
	switch ev.Kind {
	case review.EventAccept:
		msg.Text = fmt.Sprintf("%v accepted the result.", teamName(info, ev.Team))
		msg.Color = messaging.ColorSuccess
	case review.EventDeny:
		msg.Text = fmt.Sprintf("%v denied the result.", teamName(info, ev.Team))
		msg.Color = messaging.ColorWarning
	case review.EventConflict:
		msg.Text = fmt.Sprintf("%v submitted a conflicting result.", teamName(info, ev.Team))
		msg.Color = messaging.ColorDanger
	case review.EventTimeout:
		msg.Text = fmt.Sprintf("No answer while the result was %v.", st.Phase)
		msg.Color = messaging.ColorNeutral
	default:
		panic("must not happen")
	}
	return msg
}

func disputeMessage(info Info, data Data) messaging.Message {
	msg := messaging.Message{
		Title: "Result disputed",
		Text: fmt.Sprintf("The match is on hold until an administrator decides the result (%v).",
			data.DisputeReason),
		Color:    messaging.ColorDanger,
		Mentions: info.MemberIDs(),
	}
	if data.Artifact != "" {
		msg.AddField("Submitted result", data.Artifact, false)
	}
	if data.Conflict != "" {
		msg.AddField("Conflicting result", data.Conflict, false)
	}
	return msg
}

func teamLine(t stat.Team) string {
	sum := stat.Summarize(t)
	line := fmt.Sprintf("%v, %v:%v rounds", sum.Outcome.PrettyString(), sum.RoundsWon, sum.RoundsLost)
	if len(t.Players) != 0 {
		line += fmt.Sprintf(", %v", sum.Averages)
	}
	return line
}

func resultMessage(full FullData, note string) messaging.Message {
	info, data := full.Info, full.Data
	msg := messaging.Message{
		Title: fmt.Sprintf("%v %v : %v %v", info.Team1.Name, data.Score1, data.Score2, info.Team2.Name),
		Text:  note,
		Color: messaging.ColorSuccess,
	}
	if data.Score1 == data.Score2 {
		msg.Color = messaging.ColorWarning
		if info.IsTournament() {
			msg.Text = strings.TrimSpace(msg.Text + " The match is tied and waits for an administrator.")
		}
	}
	if len(data.Stats) == 2 {
		msg.AddField(info.Team1.Name, teamLine(data.Stats[0]), false)
		msg.AddField(info.Team2.Name, teamLine(data.Stats[1]), false)
	}
	if data.Artifact != "" {
		msg.ImageURL = data.Artifact
	}
	msg.Footer = "This channel will be removed in a few minutes."
	return msg
}
