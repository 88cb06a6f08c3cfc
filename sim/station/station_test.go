package station

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/internal/testutil"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

func newStation() *Station {
	cfg := DefaultConfig()
	cfg.StationID = "S1"
	cfg.MaxPower = 22
	cfg.ChargingCost = 0.5
	cfg.CompensationAmount = 0.4
	return New("station-S1", cfg)
}

func TestStation_ProcessEpoch_WaitsForPowerRequirement(t *testing.T) {
	s := newStation()
	out := &testutil.Outbox{}
	ctx := context.Background()
	s.BeginEpoch(component.EpochInfo{Number: 1})

	// GIVEN only the epoch has opened
	done, err := s.ProcessEpoch(ctx, out)
	require.NoError(t, err)
	assert.False(t, done, "station cannot be ready before the power requirement arrives")

	// THEN the station state went out immediately
	state := out.Take(t, message.TypeStationState).(*message.StationState)
	assert.Equal(t, "S1", state.StationID)
	assert.Equal(t, 22.0, state.MaxPower)
	assert.Equal(t, 0.5, state.ChargingCost)
	assert.Equal(t, 0.4, state.CompensationAmount)

	// WHEN the controller's allocation arrives
	triggered, err := s.HandleMessage(ctx, &message.PowerRequirement{StationID: "S1", UserID: 7, Power: 10}, "PowerRequirement")
	require.NoError(t, err)
	assert.True(t, triggered)

	done, err = s.ProcessEpoch(ctx, out)
	require.NoError(t, err)
	assert.True(t, done)

	output := out.Take(t, message.TypePowerOutput).(*message.PowerOutput)
	assert.Equal(t, 7, output.UserID)
	assert.Equal(t, 10.0, output.PowerOutput)

	cost := out.Take(t, message.TypeTotalChargingCost).(*message.TotalChargingCost)
	assert.Equal(t, 5.0, cost.TotalChargingCost) // 10 kW * 0.5 cost
}

func TestStation_ChargingCost_AccumulatesAcrossEpochs(t *testing.T) {
	s := newStation()
	out := &testutil.Outbox{}
	ctx := context.Background()

	for epoch := 1; epoch <= 3; epoch++ {
		s.BeginEpoch(component.EpochInfo{Number: epoch})
		_, err := s.HandleMessage(ctx, &message.PowerRequirement{StationID: "S1", UserID: 7, Power: 4}, "PowerRequirement")
		require.NoError(t, err)
		done, err := s.ProcessEpoch(ctx, out)
		require.NoError(t, err)
		assert.True(t, done)
	}

	assert.Equal(t, 6.0, s.TotalChargingCost()) // 3 epochs * 4 kW * 0.5
}

func TestStation_MessagesForOtherStations_AreIgnored(t *testing.T) {
	s := newStation()
	ctx := context.Background()
	s.BeginEpoch(component.EpochInfo{Number: 1})

	for _, msg := range []message.Message{
		&message.PowerRequirement{StationID: "S2", UserID: 1, Power: 5},
		&message.CarDischargePowerRequirement{StationID: "S2", UserID: 1, Power: 5},
		&message.PowerDischargeCarToStation{StationID: "S2", UserID: 1, Power: 5},
	} {
		triggered, err := s.HandleMessage(ctx, msg, "ignored")
		require.NoError(t, err)
		assert.False(t, triggered, "message for S2 must not trigger S1: %s", msg.MessageType())
	}
}

func TestStation_DischargeRelay_RoundTrip(t *testing.T) {
	// The station forwards the controller's discharge requirement to the car
	// and reports the car's discharged energy to the grid.
	s := newStation()
	out := &testutil.Outbox{}
	ctx := context.Background()
	s.BeginEpoch(component.EpochInfo{Number: 1})

	_, err := s.HandleMessage(ctx, &message.PowerRequirement{StationID: "S1", UserID: 7, Power: 0}, "PowerRequirement")
	require.NoError(t, err)
	_, err = s.HandleMessage(ctx, &message.CarDischargePowerRequirement{StationID: "S1", UserID: 7, Power: 6}, "V2GController.CarDischargePowerRequirement")
	require.NoError(t, err)

	done, err := s.ProcessEpoch(ctx, out)
	require.NoError(t, err)
	assert.False(t, done, "discharge is open until the car has delivered")

	relay := out.Take(t, message.TypeCarDischargePowerRequirement).(*message.CarDischargePowerRequirement)
	assert.Equal(t, 7, relay.UserID)
	assert.Equal(t, 6.0, relay.Power)

	_, err = s.HandleMessage(ctx, &message.PowerDischargeCarToStation{StationID: "S1", UserID: 7, Power: 6}, "PowerDischargeCarToStation")
	require.NoError(t, err)

	done, err = s.ProcessEpoch(ctx, out)
	require.NoError(t, err)
	assert.True(t, done)

	toGrid := out.Take(t, message.TypePowerDischargeStationToGrid).(*message.PowerDischargeStationToGrid)
	assert.Equal(t, "S1", toGrid.StationID)
	assert.Equal(t, "1", toGrid.GridID)
	assert.Equal(t, 6.0, toGrid.Power)
}

func TestStation_GridUnderLoad_WaitsForDischargeVerdict(t *testing.T) {
	// Under grid load the station holds the epoch open until the controller
	// says whether a discharge is coming; a zero requirement closes it.
	s := newStation()
	out := &testutil.Outbox{}
	ctx := context.Background()
	s.BeginEpoch(component.EpochInfo{Number: 1})

	_, err := s.HandleMessage(ctx, &message.GridLoadStatus{LoadStatus: true}, "V2GController.GridLoadStatus")
	require.NoError(t, err)
	_, err = s.HandleMessage(ctx, &message.PowerRequirement{StationID: "S1", UserID: 7, Power: 3}, "PowerRequirement")
	require.NoError(t, err)

	done, err := s.ProcessEpoch(ctx, out)
	require.NoError(t, err)
	assert.False(t, done, "no discharge verdict yet")

	_, err = s.HandleMessage(ctx, &message.CarDischargePowerRequirement{StationID: "S1", Power: 0}, "V2GController.CarDischargePowerRequirement")
	require.NoError(t, err)

	done, err = s.ProcessEpoch(ctx, out)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, out.Count(message.TypeCarDischargePowerRequirement), "a zero requirement is not relayed to the car")
}
