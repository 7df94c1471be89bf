package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alex65536/tourney/internal/bracket"
	"github.com/alex65536/tourney/internal/registration"
	"github.com/alex65536/tourney/internal/tournament"
	"github.com/alex65536/tourney/internal/util/randutil"
	"github.com/alex65536/tourney/internal/util/style"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
)

var bracketCmd = &cobra.Command{
	Use:   "bracket",
	Short: "Inspect tournament brackets",
}

var bracketPreviewCmd = &cobra.Command{
	Use:   "preview",
	Args:  cobra.ExactArgs(0),
	Short: "Print the first-round layout for the given number of teams",
}

func slotName(team string) string {
	if team == bracket.TBD {
		return style.WithS(team, style.Dim)
	}
	return style.WithS(team, style.Bold)
}

func printBracket(w io.Writer, b *bracket.Bracket) {
	for _, r := range b.Rounds {
		fmt.Fprintln(w, style.WithS(fmt.Sprintf("Round %v", r.Number), style.Bold, style.Cyan))
		for i, m := range r.Matches {
			pos := bracket.Pos{Round: r.Number, Index: i}
			line := fmt.Sprintf("  %-6v %v vs %v", pos.String(), slotName(m.Team1), slotName(m.Team2))
			if m.Walkover {
				winner, _ := m.Winner()
				line += "  " + style.WithS("walkover: "+winner, style.Yellow)
			}
			fmt.Fprintln(w, line)
		}
	}
	var ready []string
	for _, pos := range b.Ready() {
		ready = append(ready, pos.String())
	}
	fmt.Fprintf(w, "Playable now: %v\n", style.WithS(strings.Join(ready, ", "), style.Green))
}

func init() {
	p := bracketPreviewCmd.Flags()
	teams := p.IntP(
		"teams", "n", 8,
		"number of teams")
	seed := p.Uint64(
		"seed", 0,
		"shuffle seed (0 for a random one)")

	bracketPreviewCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		if *teams < tournament.MinTeams || *teams > tournament.MaxTeamsLimit {
			return fmt.Errorf("teams must be in [%v, %v]", tournament.MinTeams, tournament.MaxTeamsLimit)
		}
		if !registration.IsValidSize(*teams) {
			fmt.Fprintf(os.Stderr, "%v: %v teams is not a valid roster size, registration would never "+
				"produce it.\n", style.WithSE("warning", style.Bold, style.Yellow), *teams)
		}
		rnd := randutil.Global()
		if *seed != 0 {
			rnd = randutil.NewSeeded(*seed)
		}
		ids := make([]string, *teams)
		for i := range ids {
			ids[i] = fmt.Sprintf("Team%v", i+1)
		}
		b, err := bracket.Generate(ids, rnd)
		if err != nil {
			return fmt.Errorf("generate bracket: %w", err)
		}
		printBracket(colorable.NewColorableStdout(), b)
		return nil
	}

	bracketCmd.AddCommand(bracketPreviewCmd)
}
