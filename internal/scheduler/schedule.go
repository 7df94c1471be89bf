package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/alex65536/tourney/internal/tournament"
)

const Week = 7 * 24 * time.Hour

type WeeklyOptions struct {
	Region  tournament.Region `toml:"region"`
	Weekday string            `toml:"weekday"`
	// Hour of the day in UTC.
	Hour int `toml:"hour"`
	// Lead is how long before its start a weekly tournament is published.
	Lead time.Duration `toml:"lead"`
}

func (o *WeeklyOptions) FillDefaults() {
	if o.Weekday == "" {
		o.Weekday = "saturday"
	}
	if o.Lead == 0 {
		o.Lead = Week
	}
}

func (o *WeeklyOptions) Validate() error {
	if !o.Region.IsValid() {
		return fmt.Errorf("bad region %q", o.Region)
	}
	if _, err := ParseWeekday(o.Weekday); err != nil {
		return err
	}
	if o.Hour < 0 || o.Hour > 23 {
		return fmt.Errorf("bad hour %v", o.Hour)
	}
	if o.Lead < 0 {
		return fmt.Errorf("negative lead")
	}
	return nil
}

func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("bad weekday %q", s)
}

// NextWeekly returns the first moment strictly after now that falls on the weekday and hour in
// UTC.
func NextWeekly(now time.Time, day time.Weekday, hour int) time.Time {
	now = now.UTC()
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	t = t.AddDate(0, 0, (int(day)-int(t.Weekday())+7)%7)
	if !t.After(now) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}
