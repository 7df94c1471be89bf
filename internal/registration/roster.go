package registration

import (
	"fmt"
	"slices"

	"github.com/alex65536/tourney/internal/tournament"
)

// Roster sizes for which a bracket with the configured byes is playable. Zero is also allowed.
var validSizes = []int{2, 4, 7, 8, 14, 15, 16, 29, 30, 31, 32}

func IsValidSize(n int) bool {
	return n == 0 || slices.Contains(validSizes, n)
}

type Placement int

const (
	PlacedNowhere Placement = iota
	PlacedRoster
	PlacedWaiting
)

func (p Placement) String() string {
	switch p {
	case PlacedRoster:
		return "roster"
	case PlacedWaiting:
		return "waiting"
	default:
		return "?"
	}
}

// Roster is the mutable part of a tournament touched by registration.
type Roster struct {
	Teams    []tournament.Team
	Waiting  []tournament.Team
	MaxTeams int
}

func (r *Roster) Contains(teamID string) bool {
	return tournament.FindTeam(r.Teams, teamID) >= 0 || tournament.FindTeam(r.Waiting, teamID) >= 0
}

// Register either grows the roster to a valid size together with the whole waiting list, or
// parks the team at the end of the waiting list.
func (r *Roster) Register(team tournament.Team) (Placement, error) {
	if r.Contains(team.ID) {
		return PlacedNowhere, tournament.ErrDuplicateTeam
	}
	total := len(r.Teams) + len(r.Waiting) + 1
	switch {
	case IsValidSize(total) && total <= r.MaxTeams:
		r.Teams = append(r.Teams, team)
		r.Teams = append(r.Teams, r.Waiting...)
		r.Waiting = r.Waiting[:0]
		return PlacedRoster, nil
	case len(r.Teams) < r.MaxTeams:
		r.Waiting = append(r.Waiting, team)
		return PlacedWaiting, nil
	default:
		return PlacedNowhere, tournament.ErrTournamentFull
	}
}

// Withdraw removes the team from whichever list holds it. Removal from the roster is followed
// by a rebalancing pass.
func (r *Roster) Withdraw(teamID string) (tournament.Team, Placement, error) {
	if i := tournament.FindTeam(r.Teams, teamID); i >= 0 {
		team := r.Teams[i]
		r.Teams = slices.Delete(r.Teams, i, i+1)
		r.Rebalance()
		return team, PlacedRoster, nil
	}
	if i := tournament.FindTeam(r.Waiting, teamID); i >= 0 {
		team := r.Waiting[i]
		r.Waiting = slices.Delete(r.Waiting, i, i+1)
		return team, PlacedWaiting, nil
	}
	return tournament.Team{}, PlacedNowhere, tournament.ErrTeamNotFound
}

// Rebalance promotes waiting teams oldest-first while the roster size is invalid, then demotes
// the newest roster teams to the front of the waiting list until the size becomes valid. It
// returns the demoted teams.
func (r *Roster) Rebalance() []tournament.Team {
	for len(r.Waiting) != 0 && !IsValidSize(len(r.Teams)) && len(r.Teams) < r.MaxTeams {
		r.Teams = append(r.Teams, r.Waiting[0])
		r.Waiting = slices.Delete(r.Waiting, 0, 1)
	}
	var demoted []tournament.Team
	for !IsValidSize(len(r.Teams)) {
		last := r.Teams[len(r.Teams)-1]
		r.Teams = r.Teams[:len(r.Teams)-1]
		r.Waiting = slices.Insert(r.Waiting, 0, last)
		demoted = slices.Insert(demoted, 0, last)
	}
	return demoted
}

// Fill grows the roster oldest-first from the waiting list up to the largest valid size that
// does not exceed MaxTeams. If the roster itself is above that size, its newest teams are
// demoted to the front of the waiting list. It returns the demoted teams.
func (r *Roster) Fill() []tournament.Team {
	target := 0
	for _, n := range validSizes {
		if n <= r.MaxTeams && n <= len(r.Teams)+len(r.Waiting) {
			target = n
		}
	}
	for len(r.Teams) < target {
		r.Teams = append(r.Teams, r.Waiting[0])
		r.Waiting = slices.Delete(r.Waiting, 0, 1)
	}
	var demoted []tournament.Team
	for len(r.Teams) > target {
		last := r.Teams[len(r.Teams)-1]
		r.Teams = r.Teams[:len(r.Teams)-1]
		r.Waiting = slices.Insert(r.Waiting, 0, last)
		demoted = slices.Insert(demoted, 0, last)
	}
	return demoted
}

func (r *Roster) check() error {
	if !IsValidSize(len(r.Teams)) {
		return fmt.Errorf("roster size %v is not valid", len(r.Teams))
	}
	if len(r.Teams) > r.MaxTeams {
		return fmt.Errorf("roster size %v exceeds max %v", len(r.Teams), r.MaxTeams)
	}
	seen := make(map[string]struct{}, len(r.Teams)+len(r.Waiting))
	for _, t := range slices.Concat(r.Teams, r.Waiting) {
		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("team %q listed twice", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}
