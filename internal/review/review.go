package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/alex65536/tourney/internal/veto"
)

var (
	ErrFinished    = errors.New("review already finished")
	ErrNotReviewer = errors.New("only the opposing team may review the result")
	ErrNotDenier   = errors.New("only the denying team may submit a conflicting result")
	ErrBadEvent    = errors.New("event not allowed now")
)

type Policy int

const (
	// PolicyAutoFallback treats the submitted result as authoritative once the reviewers either
	// deny twice or let the window lapse without backing their denial.
	PolicyAutoFallback Policy = iota
	// PolicyManualOnly parks every denied result for an administrator.
	PolicyManualOnly
)

func (p Policy) String() string {
	switch p {
	case PolicyAutoFallback:
		return "auto-fallback"
	case PolicyManualOnly:
		return "manual-only"
	default:
		return "?"
	}
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(data []byte) error {
	switch string(data) {
	case "auto-fallback", "":
		*p = PolicyAutoFallback
	case "manual-only":
		*p = PolicyManualOnly
	default:
		return fmt.Errorf("bad dispute policy %q", string(data))
	}
	return nil
}

type Options struct {
	ReviewWindow   time.Duration `toml:"review-window"`
	ConflictWindow time.Duration `toml:"conflict-window"`
	Policy         Policy        `toml:"dispute-policy"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.ReviewWindow == 0 {
		o.ReviewWindow = 2 * time.Minute
	}
	if o.ConflictWindow == 0 {
		o.ConflictWindow = 5 * time.Minute
	}
}

type Phase int

const (
	PhaseReviewing Phase = iota
	PhaseDenied
	PhaseCommitted
	PhaseDisputed
)

func (p Phase) String() string {
	switch p {
	case PhaseReviewing:
		return "reviewing"
	case PhaseDenied:
		return "denied"
	case PhaseCommitted:
		return "committed"
	case PhaseDisputed:
		return "disputed"
	default:
		return "?"
	}
}

func (p Phase) IsFinished() bool {
	return p == PhaseCommitted || p == PhaseDisputed
}

type Artifact struct {
	URL   string    `json:"url"`
	Team  veto.Team `json:"team"`
	Actor string    `json:"actor"`
}

type State struct {
	Phase    Phase     `json:"phase"`
	Original Artifact  `json:"original"`
	Conflict *Artifact `json:"conflict,omitempty"`
	Denials  int       `json:"denials"`
	Deadline time.Time `json:"deadline"`
	Reason   string    `json:"reason,omitempty"`
}

func (s State) Reviewer() veto.Team {
	return s.Original.Team.Other()
}

type EventKind int

const (
	EventAccept EventKind = iota
	EventDeny
	EventConflict
	EventTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventAccept:
		return "accept"
	case EventDeny:
		return "deny"
	case EventConflict:
		return "conflict"
	case EventTimeout:
		return "timeout"
	default:
		return "?"
	}
}

type Event struct {
	Kind     EventKind
	Team     veto.Team
	Artifact *Artifact
	At       time.Time
}

func Start(original Artifact, now time.Time, o Options) State {
	o.FillDefaults()
	return State{
		Phase:    PhaseReviewing,
		Original: original,
		Deadline: now.Add(o.ReviewWindow),
	}
}

func commit(s State, reason string) State {
	s.Phase = PhaseCommitted
	s.Reason = reason
	return s
}

func dispute(s State, reason string) State {
	s.Phase = PhaseDisputed
	s.Reason = reason
	return s
}

// Step applies one review event and returns the new state. Committed means the original
// artifact is authoritative; disputed means an administrator has to decide.
func Step(s State, ev Event, o Options) (State, error) {
	o.FillDefaults()
	if s.Phase.IsFinished() {
		return s, ErrFinished
	}
	if ev.Kind != EventTimeout && ev.Team != s.Reviewer() {
		if ev.Kind == EventConflict {
			return s, ErrNotDenier
		}
		return s, ErrNotReviewer
	}
	auto := o.Policy == PolicyAutoFallback

	switch s.Phase {
	case PhaseReviewing:
		switch ev.Kind {
		case EventAccept:
			return commit(s, "result accepted"), nil
		case EventDeny:
			s.Denials++
			s.Phase = PhaseDenied
			s.Deadline = ev.At.Add(o.ConflictWindow)
			return s, nil
		case EventTimeout:
			return commit(s, "review window expired"), nil
		default:
			return s, fmt.Errorf("%w: %v while %v", ErrBadEvent, ev.Kind, s.Phase)
		}
	case PhaseDenied:
		switch ev.Kind {
		case EventAccept:
			return commit(s, "result accepted"), nil
		case EventConflict:
			if ev.Artifact == nil {
				return s, fmt.Errorf("%w: conflict without artifact", ErrBadEvent)
			}
			conflict := *ev.Artifact
			s.Conflict = &conflict
			return dispute(s, "conflicting result submitted"), nil
		case EventDeny:
			s.Denials++
			if auto {
				return commit(s, "result denied twice without a conflicting result"), nil
			}
			return dispute(s, "result denied twice"), nil
		case EventTimeout:
			if auto {
				return commit(s, "no conflicting result submitted in time"), nil
			}
			return dispute(s, "no conflicting result submitted in time"), nil
		default:
			return s, fmt.Errorf("%w: %v while %v", ErrBadEvent, ev.Kind, s.Phase)
		}
	default:
		panic("must not happen")
	}
}
