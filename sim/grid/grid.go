// Package grid implements the grid component: it tracks the grid's available
// power capacity, restoring it from station discharges and draining it by the
// controller's allocations, and publishes a GridState message every epoch.
package grid

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// Config holds the grid component's environment-driven parameters.
type Config struct {
	GridID              string  `env:"GRID_ID" envDefault:"1"`
	TotalMaxPowerOutput float64 `env:"TOTAL_MAX_POWER_OUTPUT" envDefault:"0"`

	GridStateTopic string `env:"GRID_STATE_TOPIC" envDefault:"GridState"`
	DischargeTopic string `env:"POWER_DISCHARGE_STATION_TO_GRID_TOPIC" envDefault:"PowerDischargeStationToGrid"`
	UsedPowerTopic string `env:"USED_POWER_TOPIC" envDefault:"V2GController.UsedPowerValueToGrid"`
}

// DefaultConfig returns a Config with the topic defaults, matching the
// env tag defaults. Used when building components without an environment.
func DefaultConfig() Config {
	return Config{
		GridID:         "1",
		GridStateTopic: "GridState",
		DischargeTopic: "PowerDischargeStationToGrid",
		UsedPowerTopic: "V2GController.UsedPowerValueToGrid",
	}
}

// Grid is the component.Logic for one grid.
type Grid struct {
	name string
	cfg  Config

	capacity  float64
	stateSent bool
}

// New returns a Grid with its capacity at the configured maximum.
func New(name string, cfg Config) *Grid {
	return &Grid{
		name:     name,
		cfg:      cfg,
		capacity: cfg.TotalMaxPowerOutput,
	}
}

// Capacity returns the grid's currently available power.
func (g *Grid) Capacity() float64 { return g.capacity }

func (g *Grid) Name() string { return g.name }

func (g *Grid) Subscriptions() []string {
	return []string{g.cfg.DischargeTopic, g.cfg.UsedPowerTopic}
}

func (g *Grid) BeginEpoch(component.EpochInfo) {
	g.stateSent = false
}

// HandleMessage applies capacity changes as they arrive: station discharges
// restore capacity (clamped at the maximum), the controller's used-power
// summary drains it (floored at zero).
func (g *Grid) HandleMessage(_ context.Context, msg message.Message, routingKey string) (bool, error) {
	switch m := msg.(type) {
	case *message.PowerDischargeStationToGrid:
		if m.GridID != g.cfg.GridID {
			logrus.Debugf("grid %s: ignoring discharge for grid %s", g.cfg.GridID, m.GridID)
			return false, nil
		}
		logrus.Infof("grid %s: station %s discharged %f", g.cfg.GridID, m.StationID, m.Power)
		g.capacity += m.Power
		if g.capacity > g.cfg.TotalMaxPowerOutput {
			g.capacity = g.cfg.TotalMaxPowerOutput
		}
		return true, nil
	case *message.UsedPowerValueToGrid:
		logrus.Infof("grid %s: controller allocated %f of %f", g.cfg.GridID, m.UsedPowerValue, m.TotalPowerValue)
		g.capacity -= m.UsedPowerValue
		if g.capacity < 0 {
			g.capacity = 0
		}
		return true, nil
	default:
		logrus.Debugf("grid %s: unknown message on %s: %s", g.cfg.GridID, routingKey, msg.MessageType())
		return false, nil
	}
}

// ProcessEpoch publishes the epoch's GridState once and reports ready.
func (g *Grid) ProcessEpoch(ctx context.Context, out component.Publisher) (bool, error) {
	if !g.stateSent {
		state := &message.GridState{
			GridID:       g.cfg.GridID,
			MaxPower:     g.cfg.TotalMaxPowerOutput,
			CurrentPower: g.capacity,
		}
		if err := out.Publish(ctx, g.cfg.GridStateTopic, state); err != nil {
			return false, err
		}
		g.stateSent = true
	}
	return g.stateSent, nil
}
