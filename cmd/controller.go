package cmd

import (
	"github.com/spf13/cobra"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/controller"
)

// controllerCmd starts the V2G controller component configured from the
// environment. User preferences and the grid load profile are read from the
// CSV files the environment points at.
var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Start the V2G controller component",
	Run: func(cmd *cobra.Command, args []string) {
		runComponent(func(shared component.Config) (component.Logic, error) {
			var cfg controller.Config
			if err := component.FromEnv(&cfg); err != nil {
				return nil, err
			}
			prefs, err := controller.LoadPreferencesFile(cfg.UserPreferencesFile)
			if err != nil {
				return nil, err
			}
			profile, err := controller.LoadProfileFile(cfg.GridLoadFile)
			if err != nil {
				return nil, err
			}
			return controller.New(shared.ComponentName, cfg, prefs, profile), nil
		})
	},
}
