// Package user implements the user component: one electric vehicle and its
// owner. The user announces the car's metadata and its charging window,
// integrates the station's charging power into the battery's state of charge
// and discharges energy back to the station when the controller asks for it.
package user

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// Config holds the user component's environment-driven parameters.
// ArrivalTime and TargetTime bound the window the car is at the station.
type Config struct {
	UserID             int     `env:"USER_ID" envDefault:"0"`
	UserName           string  `env:"USER_NAME" envDefault:""`
	StationID          string  `env:"STATION_ID,required"`
	StateOfCharge      float64 `env:"STATE_OF_CHARGE" envDefault:"0"`
	CarBatteryCapacity float64 `env:"CAR_BATTERY_CAPACITY" envDefault:"0"`
	CarModel           string  `env:"CAR_MODEL" envDefault:""`
	CarMaxPower        float64 `env:"CAR_MAX_POWER" envDefault:"0"`
	TargetTime         string  `env:"TARGET_TIME,required"`
	ArrivalTime        string  `env:"ARRIVAL_TIME,required"`

	UserStateTopic    string `env:"USER_STATE_TOPIC" envDefault:"User.UserState"`
	CarStateTopic     string `env:"CAR_STATE_TOPIC" envDefault:"User.CarState"`
	CarMetadataTopic  string `env:"CAR_METADATA_TOPIC" envDefault:"Init.User.CarMetadata"`
	DischargeTopic    string `env:"POWER_DISCHARGE_CAR_TO_STATION_TOPIC" envDefault:"PowerDischargeCarToStation"`
	PowerOutputTopic  string `env:"POWER_OUTPUT_TOPIC" envDefault:"PowerOutput"`
	StationDischarge  string `env:"CAR_DISCHARGE_POWER_REQUIREMENT_TOPIC" envDefault:"Station.CarDischargePowerRequirement"`
}

// DefaultConfig returns a Config with the topic defaults, matching the
// env tag defaults. Used when building components without an environment.
func DefaultConfig() Config {
	return Config{
		UserStateTopic:   "User.UserState",
		CarStateTopic:    "User.CarState",
		CarMetadataTopic: "Init.User.CarMetadata",
		DischargeTopic:   "PowerDischargeCarToStation",
		PowerOutputTopic: "PowerOutput",
		StationDischarge: "Station.CarDischargePowerRequirement",
	}
}

// User is the component.Logic for one user and car.
type User struct {
	name string
	cfg  Config

	arrival time.Time
	target  time.Time

	soc          float64
	metadataSent bool

	epoch                component.EpochInfo
	userStateSent        bool
	carStateSent         bool
	powerOutputReceived  bool
	dischargeReqReceived bool
	dischargeSent        bool
	dischargedEnergy     float64
}

// New parses the charging window and returns a User.
func New(name string, cfg Config) (*User, error) {
	arrival, err := message.ParseTime(cfg.ArrivalTime)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", cfg.UserID, err)
	}
	target, err := message.ParseTime(cfg.TargetTime)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", cfg.UserID, err)
	}
	if !target.After(arrival) {
		return nil, fmt.Errorf("user %d: target time %s not after arrival time %s",
			cfg.UserID, cfg.TargetTime, cfg.ArrivalTime)
	}
	if cfg.CarBatteryCapacity <= 0 {
		return nil, fmt.Errorf("user %d: non-positive battery capacity %f", cfg.UserID, cfg.CarBatteryCapacity)
	}
	return &User{name: name, cfg: cfg, arrival: arrival, target: target, soc: cfg.StateOfCharge}, nil
}

// StateOfCharge returns the car's current state of charge in percent.
func (u *User) StateOfCharge() float64 { return u.soc }

func (u *User) Name() string { return u.name }

func (u *User) Subscriptions() []string {
	return []string{u.cfg.PowerOutputTopic, u.cfg.StationDischarge}
}

func (u *User) BeginEpoch(info component.EpochInfo) {
	u.epoch = info
	u.userStateSent = false
	u.carStateSent = false
	u.powerOutputReceived = false
	u.dischargeReqReceived = false
	u.dischargeSent = false
	u.dischargedEnergy = 0
}

// atStation reports whether the car is plugged in during the current epoch.
func (u *User) atStation() bool {
	return u.epoch.End.After(u.arrival) && u.epoch.Start.Before(u.target)
}

func (u *User) HandleMessage(_ context.Context, msg message.Message, routingKey string) (bool, error) {
	switch m := msg.(type) {
	case *message.PowerOutput:
		if m.StationID != u.cfg.StationID || m.UserID != u.cfg.UserID {
			return false, nil
		}
		if u.powerOutputReceived {
			logrus.Warnf("user %d: duplicate PowerOutput in epoch %d, ignoring", u.cfg.UserID, u.epoch.Number)
			return false, nil
		}
		u.charge(m.PowerOutput)
		u.powerOutputReceived = true
		return true, nil

	case *message.CarDischargePowerRequirement:
		if m.StationID != u.cfg.StationID || m.UserID != u.cfg.UserID {
			return false, nil
		}
		if u.dischargeReqReceived {
			logrus.Warnf("user %d: duplicate discharge requirement in epoch %d, ignoring", u.cfg.UserID, u.epoch.Number)
			return false, nil
		}
		u.discharge(m.Power)
		u.dischargeReqReceived = true
		return true, nil

	default:
		logrus.Debugf("user %d: unknown message on %s: %s", u.cfg.UserID, routingKey, msg.MessageType())
		return false, nil
	}
}

// charge integrates power over the epoch into the state of charge.
func (u *User) charge(power float64) {
	energy := power * u.epoch.Seconds() / 3600 // kWh
	total := u.storedEnergy() + energy
	u.soc = clampSOC(total / u.cfg.CarBatteryCapacity * 100)
	logrus.Infof("user %d: charged %f kWh over epoch %d, SoC now %f",
		u.cfg.UserID, energy, u.epoch.Number, u.soc)
}

// discharge removes the requested energy from the battery and remembers the
// amount so ProcessEpoch can report it to the station.
func (u *User) discharge(power float64) {
	energy := power * u.epoch.Seconds() / 3600 // kWh
	u.dischargedEnergy = energy
	total := u.storedEnergy() - energy
	u.soc = clampSOC(total / u.cfg.CarBatteryCapacity * 100)
	logrus.Infof("user %d: discharged %f kWh over epoch %d, SoC now %f",
		u.cfg.UserID, energy, u.epoch.Number, u.soc)
}

func (u *User) storedEnergy() float64 {
	return u.cfg.CarBatteryCapacity * u.soc / 100
}

func clampSOC(soc float64) float64 {
	if soc > 100 {
		return 100
	}
	if soc < 0 {
		return 0
	}
	return soc
}

// ProcessEpoch publishes the car metadata (first epoch only), the user state,
// the resulting car state and any discharge report. The epoch is done once
// the user and car states are out.
func (u *User) ProcessEpoch(ctx context.Context, out component.Publisher) (bool, error) {
	if !u.metadataSent && u.epoch.Number == 1 {
		meta := &message.CarMetaData{
			UserID:             u.cfg.UserID,
			UserName:           u.cfg.UserName,
			StationID:          u.cfg.StationID,
			StateOfCharge:      u.soc,
			CarBatteryCapacity: u.cfg.CarBatteryCapacity,
			CarModel:           u.cfg.CarModel,
			CarMaxPower:        u.cfg.CarMaxPower,
		}
		if err := out.Publish(ctx, u.cfg.CarMetadataTopic, meta); err != nil {
			return false, err
		}
		u.metadataSent = true
	}

	if !u.userStateSent {
		state := &message.UserState{
			UserID:      u.cfg.UserID,
			TargetTime:  message.FormatTime(u.target),
			ArrivalTime: message.FormatTime(u.arrival),
		}
		if err := out.Publish(ctx, u.cfg.UserStateTopic, state); err != nil {
			return false, err
		}
		u.userStateSent = true

		if !u.atStation() {
			logrus.Infof("user %d: not at station during epoch %d", u.cfg.UserID, u.epoch.Number)
			u.powerOutputReceived = true
		}
	}

	if u.powerOutputReceived && !u.carStateSent {
		state := &message.CarState{
			UserID:        u.cfg.UserID,
			StationID:     u.cfg.StationID,
			StateOfCharge: u.soc,
		}
		if err := out.Publish(ctx, u.cfg.CarStateTopic, state); err != nil {
			return false, err
		}
		u.carStateSent = true
	}

	if u.dischargeReqReceived && !u.dischargeSent {
		report := &message.PowerDischargeCarToStation{
			StationID: u.cfg.StationID,
			UserID:    u.cfg.UserID,
			Power:     u.dischargedEnergy,
		}
		if err := out.Publish(ctx, u.cfg.DischargeTopic, report); err != nil {
			return false, err
		}
		u.dischargeSent = true
	}

	return u.userStateSent && u.carStateSent, nil
}
