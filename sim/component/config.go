package component

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/v2g-sim/v2g-sim/sim/bus"
)

// TopicConfig names the platform routing keys. Defaults match the topics the
// components were originally deployed with.
type TopicConfig struct {
	SimState string `env:"SIM_STATE_TOPIC" envDefault:"SimState"`
	Epoch    string `env:"EPOCH_TOPIC" envDefault:"Epoch"`
	Status   string `env:"STATUS_TOPIC" envDefault:"Status.Ready"`
	Error    string `env:"ERROR_TOPIC" envDefault:"Status.Error"`
}

// DefaultTopics returns the platform topics with their default names.
func DefaultTopics() TopicConfig {
	return TopicConfig{
		SimState: "SimState",
		Epoch:    "Epoch",
		Status:   "Status.Ready",
		Error:    "Status.Error",
	}
}

// Config holds the environment-driven settings shared by every component
// process: simulation identity, bus connection and platform topics.
type Config struct {
	SimulationID  string `env:"SIMULATION_ID,required"`
	ComponentName string `env:"SIMULATION_COMPONENT_NAME,required"`
	Bus           bus.AMQPConfig
	Topics        TopicConfig
}

// ConfigFromEnv reads the shared component configuration from the process
// environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading component environment: %w", err)
	}
	return cfg, nil
}

// FromEnv parses an arbitrary env-tagged struct, for per-component settings.
func FromEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("reading component environment: %w", err)
	}
	return nil
}
