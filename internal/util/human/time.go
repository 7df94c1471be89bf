package human

import (
	"fmt"
	"math"
	"time"
)

func plural(n float64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %v", unit)
	}
	return fmt.Sprintf("%v %vs", n, unit)
}

// Duration renders a duration in the coarsest unit that still reads naturally, e.g. "30 secs"
// or "5 mins".
func Duration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Second:
		return "0 secs"
	case d <= 90*time.Second:
		return plural(math.Round(d.Seconds()), "sec")
	case d <= 90*time.Minute:
		return plural(math.Round(d.Minutes()), "min")
	case d <= 36*time.Hour:
		return plural(math.Round(d.Hours()), "hr")
	default:
		return plural(math.Round(d.Hours()/24), "day")
	}
}

func TimeFromBase(base, t time.Time) string {
	diff := t.Sub(base)
	neg := diff < 0
	if neg {
		diff = -diff
	}
	if diff < time.Second {
		return "now"
	}
	if diff > 14*24*time.Hour {
		return t.UTC().Format(time.DateOnly)
	}
	if neg {
		return Duration(diff) + " ago"
	}
	return "in " + Duration(diff)
}
