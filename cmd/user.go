package cmd

import (
	"github.com/spf13/cobra"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/user"
)

// userCmd starts one user component configured from the environment
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Start a user (car owner) component",
	Run: func(cmd *cobra.Command, args []string) {
		runComponent(func(shared component.Config) (component.Logic, error) {
			var cfg user.Config
			if err := component.FromEnv(&cfg); err != nil {
				return nil, err
			}
			return user.New(shared.ComponentName, cfg)
		})
	},
}
