package main

import (
	"log/slog"
	"os"

	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Version: "indev",
	Use:     "tourney",
	Short:   "Runs regional esports tournaments over chat platforms",
	Long: `Tourney runs weekly regional tournaments: registration, check-in, single-elimination
brackets, map veto and result review, all driven through chat bridges.
`,
	SilenceUsage: true,
}

func newLogger(debug bool) *slog.Logger {
	return slogx.NewTextLogger(colorable.NewColorableStderr(), debug)
}

func main() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(bracketCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
