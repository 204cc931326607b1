package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "synergy-engine",
		Short:         "Mine home automation patterns and propose calibrated synergies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (default $SYNERGY_CONFIG)")

	root.AddCommand(
		serveCommand(&configPath),
		analyzeCommand(&configPath),
		suggestionsCommand(),
		feedbackCommand(),
	)
	return root
}
