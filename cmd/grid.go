package cmd

import (
	"github.com/spf13/cobra"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/grid"
)

// gridCmd starts the grid component configured from the environment
var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Start the grid component",
	Run: func(cmd *cobra.Command, args []string) {
		runComponent(func(shared component.Config) (component.Logic, error) {
			var cfg grid.Config
			if err := component.FromEnv(&cfg); err != nil {
				return nil, err
			}
			return grid.New(shared.ComponentName, cfg), nil
		})
	},
}
