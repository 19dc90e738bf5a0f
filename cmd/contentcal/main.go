package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "contentcal",
		Short: "Content calendar generation engine",
		Long: `contentcal turns a saved content strategy into a publishable calendar
by running a twelve-step generation pipeline.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getDefaultConfig(), "Path to the YAML config file")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newStrategyCommand())
	rootCmd.AddCommand(newOnboardingCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getDefaultConfig() string {
	if path := os.Getenv("CONTENTCAL_CONFIG"); path != "" {
		return path
	}
	return "contentcal.yaml"
}
