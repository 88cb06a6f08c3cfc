package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "v2g-sim",
	Short: "Epoch-synchronized V2G charging co-simulation",
	Long: `v2g-sim runs a vehicle-to-grid charging simulation as a set of
components (grid, charging stations, users, V2G controller) synchronized
epoch by epoch through a message bus. Each subcommand starts one component
process against RabbitMQ; "run" executes a whole scenario in-process.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(gridCmd)
	rootCmd.AddCommand(stationCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(controllerCmd)
	rootCmd.AddCommand(managerCmd)
	rootCmd.AddCommand(runCmd)
}
