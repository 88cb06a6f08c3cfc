package component

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_RequiresIdentity(t *testing.T) {
	// SIMULATION_ID and SIMULATION_COMPONENT_NAME have no defaults.
	// t.Setenv registers the restore; the vars must then be absent entirely,
	// because "required" accepts even an empty value.
	t.Setenv("SIMULATION_ID", "")
	t.Setenv("SIMULATION_COMPONENT_NAME", "")
	os.Unsetenv("SIMULATION_ID")
	os.Unsetenv("SIMULATION_COMPONENT_NAME")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestConfigFromEnv_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("SIMULATION_ID", "sim-2023")
	t.Setenv("SIMULATION_COMPONENT_NAME", "station-S1")
	t.Setenv("RABBITMQ_HOST", "broker.internal")
	t.Setenv("EPOCH_TOPIC", "Epoch.Custom")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sim-2023", cfg.SimulationID)
	assert.Equal(t, "station-S1", cfg.ComponentName)
	assert.Equal(t, "broker.internal", cfg.Bus.Host)
	assert.Equal(t, 5672, cfg.Bus.Port)
	assert.Equal(t, "v2g-sim", cfg.Bus.Exchange)
	assert.Equal(t, "Epoch.Custom", cfg.Topics.Epoch)
	assert.Equal(t, "SimState", cfg.Topics.SimState)
}

func TestDefaultTopics_MatchEnvDefaults(t *testing.T) {
	t.Setenv("SIMULATION_ID", "sim-1")
	t.Setenv("SIMULATION_COMPONENT_NAME", "grid")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultTopics(), cfg.Topics)
}
