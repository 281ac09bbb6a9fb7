package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "attune",
	Short:         "Personalization and alignment layer for a wellness companion",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.SetVersionTemplate(fmt.Sprintf("attune version %s\n", version))

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(profileCmd, onboardingCmd)
	rootCmd.AddCommand(validateCmd, pacingCmd, principlesCmd)
	rootCmd.AddCommand(connectionCmd, nudgesCmd)
	rootCmd.AddCommand(overridesCmd, configCmd)
}

func main() {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
