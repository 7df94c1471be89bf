package veto

import (
	"errors"
	"fmt"
	"slices"

	"github.com/alex65536/tourney/internal/util/randutil"
)

var DefaultPool = []string{"Mill", "Skyway", "Metro", "Commons"}

const DefaultBans = 2

var (
	ErrFinished    = errors.New("veto already finished")
	ErrNotYourTurn = errors.New("not your turn")
	ErrBadChoice   = errors.New("choice not available")
)

type Team int

const (
	TeamA Team = iota
	TeamB
)

func (t Team) Other() Team {
	return 1 - t
}

func (t Team) String() string {
	switch t {
	case TeamA:
		return "A"
	case TeamB:
		return "B"
	default:
		return "?"
	}
}

type Side int

const (
	SideUnknown Side = iota
	SideDefense
	SideAttack
)

func (s Side) String() string {
	switch s {
	case SideDefense:
		return "DEF"
	case SideAttack:
		return "ATK"
	default:
		return "?"
	}
}

func (s Side) Opposite() Side {
	switch s {
	case SideDefense:
		return SideAttack
	case SideAttack:
		return SideDefense
	default:
		return SideUnknown
	}
}

func ParseSide(s string) (Side, error) {
	switch s {
	case "DEF":
		return SideDefense, nil
	case "ATK":
		return SideAttack, nil
	default:
		return SideUnknown, fmt.Errorf("bad side %q", s)
	}
}

type Phase int

const (
	PhaseBan Phase = iota
	PhasePick
	PhaseFinalPick
	PhaseSide
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseBan:
		return "ban"
	case PhasePick:
		return "pick"
	case PhaseFinalPick:
		return "final_pick"
	case PhaseSide:
		return "side"
	case PhaseDone:
		return "done"
	default:
		return "?"
	}
}

type Action struct {
	Phase  Phase  `json:"phase"`
	Team   Team   `json:"team"`
	Choice string `json:"choice"`
	Random bool   `json:"random,omitempty"`
}

type State struct {
	Remaining []string `json:"remaining"`
	Phase     Phase    `json:"phase"`
	Turn      Team     `json:"turn"`
	BansLeft  int      `json:"bans_left"`
	Map       string   `json:"map,omitempty"`
	Picker    Team     `json:"picker"`
	Sides     [2]Side  `json:"sides"`
	History   []Action `json:"history,omitempty"`
}

func (s State) Clone() State {
	s.Remaining = slices.Clone(s.Remaining)
	s.History = slices.Clone(s.History)
	return s
}

// New starts a veto over the given map pool. Team A acts first. The pool must leave at least
// two maps after the bans, so that the last pick is always a real choice.
func New(pool []string, bans int) (State, error) {
	if bans < 0 {
		return State{}, fmt.Errorf("negative ban count")
	}
	if len(pool)-bans < 2 {
		return State{}, fmt.Errorf("pool of %v maps is too small for %v bans", len(pool), bans)
	}
	seen := make(map[string]struct{}, len(pool))
	for _, m := range pool {
		if m == "" {
			return State{}, fmt.Errorf("empty map name")
		}
		if _, ok := seen[m]; ok {
			return State{}, fmt.Errorf("duplicate map %q", m)
		}
		seen[m] = struct{}{}
	}
	s := State{
		Remaining: slices.Clone(pool),
		Turn:      TeamA,
		BansLeft:  bans,
	}
	s.Phase = s.nextPickPhase()
	if bans > 0 {
		s.Phase = PhaseBan
	}
	return s, nil
}

func (s *State) nextPickPhase() Phase {
	if len(s.Remaining) > 2 {
		return PhasePick
	}
	return PhaseFinalPick
}

func (s State) IsDone() bool {
	return s.Phase == PhaseDone
}

// Actor returns the team that has to act next.
func (s State) Actor() Team {
	if s.Phase == PhaseSide {
		return s.Picker.Other()
	}
	return s.Turn
}

func (s State) Options() []string {
	switch s.Phase {
	case PhaseBan, PhasePick, PhaseFinalPick:
		return slices.Clone(s.Remaining)
	case PhaseSide:
		return []string{SideDefense.String(), SideAttack.String()}
	default:
		return nil
	}
}

// Fallback picks a uniformly random option for the current step, to be used when the actor
// does not respond in time.
func (s State) Fallback(rnd randutil.Rand) Event {
	return Event{
		Team:   s.Actor(),
		Choice: randutil.Pick(rnd, s.Options()),
		Random: true,
	}
}

type Event struct {
	Team   Team
	Choice string
	Random bool
}

// Step applies one decision. It never mutates the source state.
func Step(src State, ev Event) (State, error) {
	if src.Phase == PhaseDone {
		return src, ErrFinished
	}
	if ev.Team != src.Actor() {
		return src, ErrNotYourTurn
	}
	if !slices.Contains(src.Options(), ev.Choice) {
		return src, fmt.Errorf("%w: %q", ErrBadChoice, ev.Choice)
	}

	s := src.Clone()
	s.History = append(s.History, Action{
		Phase:  s.Phase,
		Team:   ev.Team,
		Choice: ev.Choice,
		Random: ev.Random,
	})
	switch s.Phase {
	case PhaseBan:
		s.Remaining = slices.DeleteFunc(s.Remaining, func(m string) bool { return m == ev.Choice })
		s.BansLeft--
		s.Turn = s.Turn.Other()
		if s.BansLeft == 0 {
			s.Phase = s.nextPickPhase()
		}
	case PhasePick:
		s.Remaining = slices.DeleteFunc(s.Remaining, func(m string) bool { return m == ev.Choice })
		s.Turn = s.Turn.Other()
		s.Phase = s.nextPickPhase()
	case PhaseFinalPick:
		s.Map = ev.Choice
		s.Remaining = []string{ev.Choice}
		s.Picker = s.Turn
		s.Phase = PhaseSide
	case PhaseSide:
		side, err := ParseSide(ev.Choice)
		if err != nil {
			panic("must not happen")
		}
		chooser := s.Picker.Other()
		s.Sides[chooser] = side
		s.Sides[s.Picker] = side.Opposite()
		s.Phase = PhaseDone
	default:
		panic("must not happen")
	}
	return s, nil
}
