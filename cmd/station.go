package cmd

import (
	"github.com/spf13/cobra"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/station"
)

// stationCmd starts one charging station component configured from the
// environment
var stationCmd = &cobra.Command{
	Use:   "station",
	Short: "Start a charging station component",
	Run: func(cmd *cobra.Command, args []string) {
		runComponent(func(shared component.Config) (component.Logic, error) {
			var cfg station.Config
			if err := component.FromEnv(&cfg); err != nil {
				return nil, err
			}
			return station.New(shared.ComponentName, cfg), nil
		})
	},
}
