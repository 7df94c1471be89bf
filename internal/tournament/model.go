package tournament

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alex65536/tourney/internal/bracket"
	"github.com/alex65536/tourney/internal/util/clone"
	"github.com/alex65536/tourney/internal/util/timeutil"
)

const (
	NameMaxLen      = 128
	MinTeams        = 2
	MaxTeamsLimit   = 32
	DefaultMaxTeams = MaxTeamsLimit
	DefaultPrize    = "N/A"
)

type Region string

const (
	RegionNA   Region = "NA"
	RegionEU   Region = "EU"
	RegionASIA Region = "ASIA"
	RegionOCEA Region = "OCEA"
	RegionSA   Region = "SA"
)

var Regions = []Region{RegionNA, RegionEU, RegionASIA, RegionOCEA, RegionSA}

func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(Regions, r) {
		return "", fmt.Errorf("unknown region %q", s)
	}
	return r, nil
}

func (r Region) IsValid() bool {
	return slices.Contains(Regions, r)
}

type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusDraft
	StatusWaiting
	StatusInProgress
	StatusComplete
	StatusCancelled
)

func (k StatusKind) String() string {
	switch k {
	case StatusDraft:
		return "draft"
	case StatusWaiting:
		return "waiting"
	case StatusInProgress:
		return "in_progress"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	default:
		return "?"
	}
}

func (k StatusKind) PrettyString() string {
	switch k {
	case StatusDraft:
		return "Draft"
	case StatusWaiting:
		return "Registration open"
	case StatusInProgress:
		return "In progress"
	case StatusComplete:
		return "Complete"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "?"
	}
}

func (k StatusKind) IsFinished() bool {
	return k == StatusComplete || k == StatusCancelled
}

func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *StatusKind) UnmarshalText(b []byte) error {
	for _, v := range []StatusKind{StatusUnknown, StatusDraft, StatusWaiting, StatusInProgress, StatusComplete, StatusCancelled} {
		if v.String() == string(b) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("bad status %q", string(b))
}

type Status struct {
	Kind   StatusKind `gorm:"index;serializer:text" json:"kind"`
	Reason string     `json:"reason,omitempty"`
}

func NewStatusDraft() Status      { return Status{Kind: StatusDraft} }
func NewStatusWaiting() Status    { return Status{Kind: StatusWaiting} }
func NewStatusInProgress() Status { return Status{Kind: StatusInProgress} }
func NewStatusComplete() Status   { return Status{Kind: StatusComplete} }

func NewStatusCancelled(reason string) Status {
	return Status{
		Kind:   StatusCancelled,
		Reason: reason,
	}
}

type Member struct {
	ID string `json:"id"`
	// Name is the in-game name, used to match scoreboard lines to the roster.
	Name string `json:"name"`
}

type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Captain string   `json:"captain"`
	Members []Member `json:"members"`
}

func (t Team) Clone() Team {
	t.Members = clone.Slice(t.Members)
	return t
}

func (t Team) HasMember(memberID string) bool {
	if t.Captain == memberID {
		return true
	}
	return slices.ContainsFunc(t.Members, func(m Member) bool { return m.ID == memberID })
}

func (t Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members)+1)
	for _, m := range t.Members {
		ids = append(ids, m.ID)
	}
	if t.Captain != "" && !slices.Contains(ids, t.Captain) {
		ids = append(ids, t.Captain)
	}
	return ids
}

func (t Team) MemberNames() []string {
	names := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		names = append(names, m.Name)
	}
	return names
}

func (t *Team) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("no team id")
	}
	if t.Name == "" {
		return fmt.Errorf("no team name")
	}
	if t.Captain == "" {
		return fmt.Errorf("no captain")
	}
	seen := make(map[string]struct{}, len(t.Members))
	for _, m := range t.Members {
		if m.ID == "" {
			return fmt.Errorf("member without id")
		}
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("duplicate member %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

func FindTeam(teams []Team, teamID string) int {
	return slices.IndexFunc(teams, func(t Team) bool { return t.ID == teamID })
}

type Settings struct {
	Name     string           `json:"name"`
	Region   Region           `json:"region"`
	StartsAt timeutil.UTCTime `json:"starts_at"`
	MaxTeams int              `json:"max_teams"`
	Prize    string           `json:"prize"`
}

func (s *Settings) FillDefaults() {
	if s.MaxTeams == 0 {
		s.MaxTeams = DefaultMaxTeams
	}
	if s.Prize == "" {
		s.Prize = DefaultPrize
	}
}

func (s *Settings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("no tournament name")
	}
	if utf8.RuneCountInString(s.Name) > NameMaxLen {
		return fmt.Errorf("tournament name exceeds %v runes", NameMaxLen)
	}
	if !s.Region.IsValid() {
		return fmt.Errorf("bad region %q", s.Region)
	}
	if s.StartsAt.IsZero() {
		return fmt.Errorf("no start time")
	}
	if s.MaxTeams < MinTeams || s.MaxTeams > MaxTeamsLimit {
		return fmt.Errorf("max teams must be in [%v, %v]", MinTeams, MaxTeamsLimit)
	}
	return nil
}

type Info struct {
	ID string `gorm:"primaryKey" json:"id"`
	Settings
	// Seq is the weekly tournament number, or zero for tournaments created by hand.
	Seq       int              `json:"seq,omitempty"`
	CreatedAt timeutil.UTCTime `json:"created_at"`
}

func (i Info) Clone() Info {
	return i
}

// ClosesAt is the moment registration freezes for check-in.
func (i Info) ClosesAt(lead time.Duration) timeutil.UTCTime {
	return i.StartsAt.Add(-lead)
}

type Data struct {
	Status         Status           `gorm:"embedded;embeddedPrefix:status_" json:"status"`
	Closed         bool             `json:"closed"`
	Teams          []Team           `gorm:"serializer:json" json:"teams"`
	Waiting        []Team           `gorm:"serializer:json" json:"waiting"`
	Bracket        *bracket.Bracket `gorm:"serializer:json" json:"bracket,omitempty"`
	ChampionID     string           `json:"champion_id,omitempty"`
	AnnouncementID string           `json:"announcement_id,omitempty"`
	Version        int64            `json:"version"`
}

func (d Data) Clone() Data {
	d.Teams = clone.DeepSlice(d.Teams)
	d.Waiting = clone.DeepSlice(d.Waiting)
	d.Bracket = clone.Ptr(d.Bracket)
	return d
}

// FindTeam looks the team up in the roster and then in the waiting list.
func (d *Data) FindTeam(teamID string) (Team, bool) {
	if i := FindTeam(d.Teams, teamID); i >= 0 {
		return d.Teams[i], true
	}
	if i := FindTeam(d.Waiting, teamID); i >= 0 {
		return d.Waiting[i], true
	}
	return Team{}, false
}

func (d *Data) Champion() (Team, bool) {
	if d.ChampionID == "" {
		return Team{}, false
	}
	i := FindTeam(d.Teams, d.ChampionID)
	if i < 0 {
		return Team{}, false
	}
	return d.Teams[i], true
}

type FullData struct {
	Info Info `json:"info"`
	Data Data `json:"data"`
}

func (f FullData) Clone() FullData {
	f.Info = f.Info.Clone()
	f.Data = f.Data.Clone()
	return f
}

func WeeklyName(region Region, seq int) string {
	return fmt.Sprintf("Weekly %v Tournament #%v", region, seq)
}
