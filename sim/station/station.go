// Package station implements the charging station component. A station
// announces its parameters each epoch, turns the controller's power
// allocation into charging power for the connected car, relays discharge
// requirements to the car and discharged energy onwards to the grid, and
// keeps a running total of charging cost.
package station

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// Config holds the station component's environment-driven parameters.
type Config struct {
	StationID          string  `env:"STATION_ID,required"`
	GridID             string  `env:"GRID_ID" envDefault:"1"`
	MaxPower           float64 `env:"MAX_POWER" envDefault:"0"`
	ChargingCost       float64 `env:"CHARGING_COST" envDefault:"0"`
	CompensationAmount float64 `env:"COMPENSATION_AMOUNT" envDefault:"0"`

	StationStateTopic     string `env:"STATION_STATE_TOPIC" envDefault:"StationState"`
	PowerOutputTopic      string `env:"POWER_OUTPUT_TOPIC" envDefault:"PowerOutput"`
	DischargeToGridTopic  string `env:"POWER_DISCHARGE_STATION_TO_GRID_TOPIC" envDefault:"PowerDischargeStationToGrid"`
	DischargeToUserTopic  string `env:"CAR_DISCHARGE_POWER_REQUIREMENT_TOPIC" envDefault:"Station.CarDischargePowerRequirement"`
	TotalChargingTopic    string `env:"TOTAL_CHARGING_COST_TOPIC" envDefault:"Station.TotalChargingCost"`
	PowerRequirementTopic string `env:"POWER_REQUIREMENT_TOPIC" envDefault:"PowerRequirement"`
	ControllerDischarge   string `env:"CONTROLLER_DISCHARGE_TOPIC" envDefault:"V2GController.CarDischargePowerRequirement"`
	GridLoadTopic         string `env:"GRID_LOAD_STATUS_TOPIC" envDefault:"V2GController.GridLoadStatus"`
	CarDischargeTopic     string `env:"POWER_DISCHARGE_CAR_TO_STATION_TOPIC" envDefault:"PowerDischargeCarToStation"`
}

// DefaultConfig returns a Config with the topic defaults, matching the
// env tag defaults. Used when building components without an environment.
func DefaultConfig() Config {
	return Config{
		GridID:                "1",
		StationStateTopic:     "StationState",
		PowerOutputTopic:      "PowerOutput",
		DischargeToGridTopic:  "PowerDischargeStationToGrid",
		DischargeToUserTopic:  "Station.CarDischargePowerRequirement",
		TotalChargingTopic:    "Station.TotalChargingCost",
		PowerRequirementTopic: "PowerRequirement",
		ControllerDischarge:   "V2GController.CarDischargePowerRequirement",
		GridLoadTopic:         "V2GController.GridLoadStatus",
		CarDischargeTopic:     "PowerDischargeCarToStation",
	}
}

// Station is the component.Logic for one charging station.
type Station struct {
	name string
	cfg  Config

	// survives across epochs
	totalChargingCost float64

	// per-epoch state
	stateSent            bool
	powerReqReceived     bool
	powerOutput          float64
	userID               int
	outputSent           bool
	costSent             bool
	dischargeReqReceived bool
	dischargeNeeded      float64
	dischargeForwarded   bool
	carDischargeReceived bool
	dischargedPower      float64
	dischargeSentToGrid  bool
	gridLoad             bool
}

// New returns a Station with a zero cost ledger.
func New(name string, cfg Config) *Station {
	return &Station{name: name, cfg: cfg}
}

// TotalChargingCost returns the cumulative charging cost so far.
func (s *Station) TotalChargingCost() float64 { return s.totalChargingCost }

func (s *Station) Name() string { return s.name }

func (s *Station) Subscriptions() []string {
	return []string{
		s.cfg.PowerRequirementTopic,
		s.cfg.ControllerDischarge,
		s.cfg.GridLoadTopic,
		s.cfg.CarDischargeTopic,
	}
}

func (s *Station) BeginEpoch(component.EpochInfo) {
	s.stateSent = false
	s.powerReqReceived = false
	s.powerOutput = 0
	s.userID = 0
	s.outputSent = false
	s.costSent = false
	s.dischargeReqReceived = false
	s.dischargeNeeded = 0
	s.dischargeForwarded = false
	s.carDischargeReceived = false
	s.dischargedPower = 0
	s.dischargeSentToGrid = false
	s.gridLoad = false
}

func (s *Station) HandleMessage(_ context.Context, msg message.Message, routingKey string) (bool, error) {
	switch m := msg.(type) {
	case *message.PowerRequirement:
		if m.StationID != s.cfg.StationID {
			return false, nil
		}
		logrus.Infof("station %s: power requirement %f for user %d", s.cfg.StationID, m.Power, m.UserID)
		s.powerOutput = m.Power
		s.userID = m.UserID
		s.powerReqReceived = true
		return true, nil

	case *message.CarDischargePowerRequirement:
		if m.StationID != s.cfg.StationID {
			return false, nil
		}
		s.dischargeReqReceived = true
		if m.Power == 0 {
			// no discharge this epoch
			return true, nil
		}
		logrus.Infof("station %s: discharge requirement %f for user %d", s.cfg.StationID, m.Power, m.UserID)
		s.dischargeNeeded = m.Power
		s.userID = m.UserID
		return true, nil

	case *message.PowerDischargeCarToStation:
		if m.StationID != s.cfg.StationID {
			return false, nil
		}
		logrus.Infof("station %s: car of user %d discharged %f", s.cfg.StationID, m.UserID, m.Power)
		s.userID = m.UserID
		s.dischargedPower = m.Power
		s.carDischargeReceived = true
		return true, nil

	case *message.GridLoadStatus:
		logrus.Infof("station %s: grid load status %t", s.cfg.StationID, m.LoadStatus)
		s.gridLoad = m.LoadStatus
		return true, nil

	default:
		logrus.Debugf("station %s: unknown message on %s: %s", s.cfg.StationID, routingKey, msg.MessageType())
		return false, nil
	}
}

// ProcessEpoch publishes the station state, the charging power for the car,
// the cost total, and the discharge relay messages as their inputs arrive.
// The epoch is done once charging is handled and no discharge is left open.
func (s *Station) ProcessEpoch(ctx context.Context, out component.Publisher) (bool, error) {
	if !s.stateSent {
		state := &message.StationState{
			StationID:          s.cfg.StationID,
			MaxPower:           s.cfg.MaxPower,
			ChargingCost:       s.cfg.ChargingCost,
			CompensationAmount: s.cfg.CompensationAmount,
		}
		if err := out.Publish(ctx, s.cfg.StationStateTopic, state); err != nil {
			return false, err
		}
		s.stateSent = true
	}

	if s.powerReqReceived && !s.outputSent {
		output := &message.PowerOutput{
			StationID:   s.cfg.StationID,
			UserID:      s.userID,
			PowerOutput: s.powerOutput,
		}
		if err := out.Publish(ctx, s.cfg.PowerOutputTopic, output); err != nil {
			return false, err
		}
		s.outputSent = true
	}

	if s.outputSent && !s.costSent {
		s.totalChargingCost += s.powerOutput * s.cfg.ChargingCost
		cost := &message.TotalChargingCost{TotalChargingCost: s.totalChargingCost}
		if err := out.Publish(ctx, s.cfg.TotalChargingTopic, cost); err != nil {
			return false, err
		}
		s.costSent = true
		logrus.Infof("station %s: total charging cost %f", s.cfg.StationID, s.totalChargingCost)
	}

	if s.dischargeNeeded > 0 && !s.dischargeForwarded {
		relay := &message.CarDischargePowerRequirement{
			StationID: s.cfg.StationID,
			UserID:    s.userID,
			Power:     s.dischargeNeeded,
		}
		if err := out.Publish(ctx, s.cfg.DischargeToUserTopic, relay); err != nil {
			return false, err
		}
		s.dischargeForwarded = true
	}

	if s.carDischargeReceived && !s.dischargeSentToGrid {
		discharge := &message.PowerDischargeStationToGrid{
			StationID: s.cfg.StationID,
			GridID:    s.cfg.GridID,
			Power:     s.dischargedPower,
		}
		if err := out.Publish(ctx, s.cfg.DischargeToGridTopic, discharge); err != nil {
			return false, err
		}
		s.dischargeSentToGrid = true
	}

	chargingDone := s.powerReqReceived && s.outputSent
	dischargeOpen := s.dischargeNeeded > 0 && !s.dischargeSentToGrid
	// Under grid load the controller sends every station a discharge
	// requirement, zero when nothing is to discharge. Waiting for that
	// verdict keeps the discharge round trip inside the epoch.
	awaitingVerdict := s.gridLoad && !s.dischargeReqReceived
	return chargingDone && !dischargeOpen && !awaitingVerdict, nil
}
