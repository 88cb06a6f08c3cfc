package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/v2g-sim/v2g-sim/sim/bus"
	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/manager"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// managerEnv is the simulation manager's environment configuration.
type managerEnv struct {
	SimulationID    string   `env:"SIMULATION_ID,required"`
	Name            string   `env:"SIMULATION_COMPONENT_NAME" envDefault:"simulation-manager"`
	Components      []string `env:"SIMULATION_COMPONENTS,required"`
	Epochs          int      `env:"SIMULATION_EPOCHS,required"`
	StartTime       string   `env:"SIMULATION_START_TIME,required"`
	EpochLengthSec  int      `env:"SIMULATION_EPOCH_LENGTH" envDefault:"3600"`
	EpochTimeoutSec int      `env:"SIMULATION_EPOCH_TIMEOUT" envDefault:"60"`
	Bus             bus.AMQPConfig
	Topics          component.TopicConfig
}

// managerCmd starts the simulation manager configured from the environment
var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Start the simulation manager",
	Long: `Starts the simulation manager: publishes the running simulation state,
opens epochs one at a time, waits for the ready status of every component
named in SIMULATION_COMPONENTS and stops the simulation after the last epoch.`,
	Run: func(cmd *cobra.Command, args []string) {
		var envCfg managerEnv
		if err := component.FromEnv(&envCfg); err != nil {
			logrus.Fatalf("Invalid environment: %v", err)
		}
		startTime, err := message.ParseTime(envCfg.StartTime)
		if err != nil {
			logrus.Fatalf("Invalid SIMULATION_START_TIME: %v", err)
		}

		b, err := bus.DialAMQP(envCfg.Bus)
		if err != nil {
			logrus.Fatalf("Connecting to RabbitMQ: %v", err)
		}
		defer b.Close()

		mgr, err := manager.New(manager.Config{
			Components:   envCfg.Components,
			Epochs:       envCfg.Epochs,
			StartTime:    startTime,
			EpochLength:  time.Duration(envCfg.EpochLengthSec) * time.Second,
			EpochTimeout: time.Duration(envCfg.EpochTimeoutSec) * time.Second,
			Topics:       envCfg.Topics,
		}, b, message.NewGenerator(envCfg.SimulationID, envCfg.Name))
		if err != nil {
			logrus.Fatalf("Building manager: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := mgr.Start(ctx); err != nil {
			logrus.Fatalf("Starting manager: %v", err)
		}
		if err := mgr.Run(ctx); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation %s complete", envCfg.SimulationID)
	},
}
