package grid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/internal/testutil"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

func newGrid(maxPower float64) *Grid {
	cfg := DefaultConfig()
	cfg.TotalMaxPowerOutput = maxPower
	return New("grid", cfg)
}

func TestGrid_ProcessEpoch_PublishesStateOnce(t *testing.T) {
	g := newGrid(150)
	out := &testutil.Outbox{}
	g.BeginEpoch(component.EpochInfo{Number: 1})

	done, err := g.ProcessEpoch(context.Background(), out)
	require.NoError(t, err)
	assert.True(t, done)

	state := out.Take(t, message.TypeGridState).(*message.GridState)
	assert.Equal(t, "1", state.GridID)
	assert.Equal(t, 150.0, state.MaxPower)
	assert.Equal(t, 150.0, state.CurrentPower)

	// A second call in the same epoch publishes nothing new.
	done, err = g.ProcessEpoch(context.Background(), out)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, out.Count(message.TypeGridState))
}

func TestGrid_UsedPower_DrainsCapacity(t *testing.T) {
	g := newGrid(100)
	g.BeginEpoch(component.EpochInfo{Number: 1})

	triggered, err := g.HandleMessage(context.Background(),
		&message.UsedPowerValueToGrid{UsedPowerValue: 30, TotalPowerValue: 100}, "V2GController.UsedPowerValueToGrid")
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, 70.0, g.Capacity())

	// Draining below zero floors at zero.
	_, err = g.HandleMessage(context.Background(),
		&message.UsedPowerValueToGrid{UsedPowerValue: 500, TotalPowerValue: 100}, "V2GController.UsedPowerValueToGrid")
	require.NoError(t, err)
	assert.Equal(t, 0.0, g.Capacity())
}

func TestGrid_StationDischarge_RestoresCapacityUpToMax(t *testing.T) {
	g := newGrid(100)
	g.BeginEpoch(component.EpochInfo{Number: 1})

	_, err := g.HandleMessage(context.Background(),
		&message.UsedPowerValueToGrid{UsedPowerValue: 40, TotalPowerValue: 100}, "V2GController.UsedPowerValueToGrid")
	require.NoError(t, err)

	triggered, err := g.HandleMessage(context.Background(),
		&message.PowerDischargeStationToGrid{StationID: "S1", GridID: "1", Power: 25}, "PowerDischargeStationToGrid")
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, 85.0, g.Capacity())

	// Discharge never pushes the capacity above the configured maximum.
	_, err = g.HandleMessage(context.Background(),
		&message.PowerDischargeStationToGrid{StationID: "S1", GridID: "1", Power: 500}, "PowerDischargeStationToGrid")
	require.NoError(t, err)
	assert.Equal(t, 100.0, g.Capacity())
}

func TestGrid_DischargeForOtherGrid_IsIgnored(t *testing.T) {
	g := newGrid(100)
	g.BeginEpoch(component.EpochInfo{Number: 1})
	_, err := g.HandleMessage(context.Background(),
		&message.UsedPowerValueToGrid{UsedPowerValue: 40, TotalPowerValue: 100}, "V2GController.UsedPowerValueToGrid")
	require.NoError(t, err)

	triggered, err := g.HandleMessage(context.Background(),
		&message.PowerDischargeStationToGrid{StationID: "S1", GridID: "other", Power: 25}, "PowerDischargeStationToGrid")
	require.NoError(t, err)
	assert.False(t, triggered)
	assert.Equal(t, 60.0, g.Capacity())
}

func TestGrid_StatePersistsAcrossEpochs(t *testing.T) {
	// Capacity changes survive epoch boundaries; only the publish flag resets.
	g := newGrid(100)
	out := &testutil.Outbox{}

	g.BeginEpoch(component.EpochInfo{Number: 1})
	_, err := g.ProcessEpoch(context.Background(), out)
	require.NoError(t, err)
	out.Take(t, message.TypeGridState)

	_, err = g.HandleMessage(context.Background(),
		&message.UsedPowerValueToGrid{UsedPowerValue: 45, TotalPowerValue: 100}, "V2GController.UsedPowerValueToGrid")
	require.NoError(t, err)

	g.BeginEpoch(component.EpochInfo{Number: 2})
	_, err = g.ProcessEpoch(context.Background(), out)
	require.NoError(t, err)

	state := out.Take(t, message.TypeGridState).(*message.GridState)
	assert.Equal(t, 55.0, state.CurrentPower)
	assert.Equal(t, 100.0, state.MaxPower)
}
