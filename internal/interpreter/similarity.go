package interpreter

import (
	"strings"
	"unicode"

	"github.com/alex65536/tourney/internal/stat"
)

// MatchThreshold is the similarity above which a scoreboard name is taken for a roster name.
const MatchThreshold = 0.7

func bigrams(s string) map[string]int {
	rs := []rune(s)
	res := make(map[string]int, len(rs))
	for i := 0; i+1 < len(rs); i++ {
		res[string(rs[i:i+2])]++
	}
	return res
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Similarity is the Sørensen–Dice coefficient over character bigrams, ignoring whitespace.
func Similarity(a, b string) float64 {
	a, b = stripSpaces(a), stripSpaces(b)
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la < 2 || lb < 2 {
		return 0
	}
	first := bigrams(a)
	inter := 0
	for i, rs := 0, []rune(b); i+1 < len(rs); i++ {
		bg := string(rs[i : i+2])
		if cnt := first[bg]; cnt > 0 {
			first[bg] = cnt - 1
			inter++
		}
	}
	return 2.0 * float64(inter) / float64(la+lb-2)
}

// BestMatch returns the candidate most similar to name, or name itself if nothing is similar
// enough. Comparison is case-insensitive.
func BestMatch(name string, candidates []string) string {
	best := ""
	bestSim := 0.0
	lower := strings.ToLower(name)
	for _, c := range candidates {
		sim := Similarity(lower, strings.ToLower(c))
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	if bestSim > MatchThreshold {
		return best
	}
	return name
}

func normalize(t stat.Team, names []string) stat.Team {
	t = t.Clone()
	for i := range t.Players {
		t.Players[i].Name = BestMatch(t.Players[i].Name, names)
	}
	return t
}

func countIn(t stat.Team, roster []string) int {
	set := make(map[string]struct{}, len(roster))
	for _, n := range roster {
		set[n] = struct{}{}
	}
	cnt := 0
	for _, p := range t.Players {
		if _, ok := set[p.Name]; ok {
			cnt++
		}
	}
	return cnt
}

// Arrange maps the scoreboard teams onto the match teams. Player names are first snapped to the
// closest roster names, then the orientation that matches more players wins. Ties keep the
// scoreboard order.
func Arrange(r Result, roster1, roster2 []string) (stat.Team, stat.Team) {
	all := make([]string, 0, len(roster1)+len(roster2))
	all = append(all, roster1...)
	all = append(all, roster2...)
	a := normalize(r.Team1, all)
	b := normalize(r.Team2, all)
	straight := countIn(a, roster1) + countIn(b, roster2)
	swapped := countIn(b, roster1) + countIn(a, roster2)
	if swapped > straight {
		return b, a
	}
	return a, b
}
