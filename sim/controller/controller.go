// Package controller implements the V2G controller: it collects the fleet's
// metadata and per-epoch states, divides the grid's available power among the
// connected cars, and asks cars to discharge when the grid is under load and
// the station's compensation meets the user's price threshold.
package controller

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// DefaultMinStateOfCharge is the target state of charge for users without a
// MinimumSOC preference, in percent.
const DefaultMinStateOfCharge = 50.0

// MaxStateOfCharge is the ceiling a willing-to-pay user may charge up to.
const MaxStateOfCharge = 100.0

// dischargeTargetDrop is how far below the current state of charge the
// target is moved when a car is selected for discharging, in percent points.
const dischargeTargetDrop = 10.0

// Config holds the controller's environment-driven parameters.
type Config struct {
	ExpectedUsers    int `env:"TOTAL_USER_COUNT,required"`
	ExpectedStations int `env:"TOTAL_STATION_COUNT,required"`

	UserPreferencesFile string `env:"USER_PREFERENCES_FILE" envDefault:"v2g_user_preferences.csv"`
	GridLoadFile        string `env:"GRID_LOAD_FILE" envDefault:"grid_load_daily.csv"`

	PowerRequirementTopic string `env:"POWER_REQUIREMENT_TOPIC" envDefault:"PowerRequirement"`
	DischargeTopic        string `env:"CAR_DISCHARGE_POWER_REQUIREMENT_TOPIC" envDefault:"V2GController.CarDischargePowerRequirement"`
	GridLoadTopic         string `env:"GRID_LOAD_STATUS_TOPIC" envDefault:"V2GController.GridLoadStatus"`
	UsedPowerTopic        string `env:"USED_POWER_TOPIC" envDefault:"V2GController.UsedPowerValueToGrid"`

	CarMetadataTopic  string `env:"CAR_METADATA_TOPIC" envDefault:"Init.User.CarMetadata"`
	UserStateTopic    string `env:"USER_STATE_TOPIC" envDefault:"User.UserState"`
	CarStateTopic     string `env:"CAR_STATE_TOPIC" envDefault:"User.CarState"`
	StationStateTopic string `env:"STATION_STATE_TOPIC" envDefault:"StationState"`
	GridStateTopic    string `env:"GRID_STATE_TOPIC" envDefault:"GridState"`
}

// DefaultConfig returns a Config with the topic defaults, matching the
// env tag defaults. Used when building components without an environment.
func DefaultConfig() Config {
	return Config{
		UserPreferencesFile:   "v2g_user_preferences.csv",
		GridLoadFile:          "grid_load_daily.csv",
		PowerRequirementTopic: "PowerRequirement",
		DischargeTopic:        "V2GController.CarDischargePowerRequirement",
		GridLoadTopic:         "V2GController.GridLoadStatus",
		UsedPowerTopic:        "V2GController.UsedPowerValueToGrid",
		CarMetadataTopic:      "Init.User.CarMetadata",
		UserStateTopic:        "User.UserState",
		CarStateTopic:         "User.CarState",
		StationStateTopic:     "StationState",
		GridStateTopic:        "GridState",
	}
}

// Controller is the component.Logic for the V2G controller.
type Controller struct {
	name    string
	cfg     Config
	prefs   Preferences
	profile LoadProfile

	// survives across epochs
	users          []*UserRecord
	totalMaxPower  float64
	maxPowerSeen   bool
	metadataCount  int
	availablePower float64

	// per-epoch state
	epoch             component.EpochInfo
	stations          []*StationRecord
	stationCount      int
	userStateCount    int
	carStateCount     int
	usedPower         float64
	gridStateReceived bool
	loadStatusSent    bool
	powerReqSent      bool
	usedPowerSent     bool
	dischargeSent     bool
}

// New returns a Controller with the given preferences and grid-load profile.
func New(name string, cfg Config, prefs Preferences, profile LoadProfile) *Controller {
	return &Controller{name: name, cfg: cfg, prefs: prefs, profile: profile}
}

// Users exposes the fleet records, for scenario summaries.
func (c *Controller) Users() []*UserRecord { return c.users }

func (c *Controller) Name() string { return c.name }

func (c *Controller) Subscriptions() []string {
	return []string{
		c.cfg.CarMetadataTopic,
		c.cfg.UserStateTopic,
		c.cfg.CarStateTopic,
		c.cfg.StationStateTopic,
		c.cfg.GridStateTopic,
	}
}

func (c *Controller) BeginEpoch(info component.EpochInfo) {
	c.epoch = info
	c.stations = nil
	c.stationCount = 0
	c.userStateCount = 0
	c.carStateCount = 0
	c.usedPower = 0
	c.gridStateReceived = false
	c.loadStatusSent = false
	c.powerReqSent = false
	c.usedPowerSent = false
	c.dischargeSent = false
}

func (c *Controller) HandleMessage(_ context.Context, msg message.Message, routingKey string) (bool, error) {
	switch m := msg.(type) {
	case *message.CarMetaData:
		return c.handleCarMetaData(m)
	case *message.StationState:
		return c.handleStationState(m)
	case *message.UserState:
		return c.handleUserState(m)
	case *message.CarState:
		return c.handleCarState(m)
	case *message.GridState:
		return c.handleGridState(m)
	default:
		logrus.Debugf("controller: unknown message on %s: %s", routingKey, msg.MessageType())
		return false, nil
	}
}

func (c *Controller) handleCarMetaData(m *message.CarMetaData) (bool, error) {
	if c.findUser(m.UserID) != nil {
		logrus.Warnf("controller: duplicate metadata for user %d", m.UserID)
		return false, nil
	}
	c.users = append(c.users, &UserRecord{
		UserID:             m.UserID,
		UserName:           m.UserName,
		ComponentName:      m.SourceProcessID,
		StationID:          m.StationID,
		StateOfCharge:      m.StateOfCharge,
		CarBatteryCapacity: m.CarBatteryCapacity,
		CarModel:           m.CarModel,
		CarMaxPower:        m.CarMaxPower,
	})
	c.metadataCount++
	logrus.Infof("controller: metadata for %d of %d users", c.metadataCount, c.cfg.ExpectedUsers)
	return true, nil
}

func (c *Controller) handleStationState(m *message.StationState) (bool, error) {
	for _, station := range c.stations {
		if station.StationID == m.StationID {
			logrus.Warnf("controller: duplicate state for station %s", m.StationID)
			return false, nil
		}
	}
	c.stations = append(c.stations, &StationRecord{
		StationID:          m.StationID,
		MaxPower:           m.MaxPower,
		ChargingCost:       m.ChargingCost,
		CompensationAmount: m.CompensationAmount,
	})
	c.stationCount++
	return true, nil
}

func (c *Controller) handleUserState(m *message.UserState) (bool, error) {
	user := c.findUser(m.UserID)
	if user == nil {
		return false, fmt.Errorf("user state for user %d without metadata", m.UserID)
	}

	// The preference seeds the target once; after that the target evolves
	// through discharging and paid top-ups.
	if user.TargetStateOfCharge == 0 {
		if pref, ok := c.prefs[user.UserID]; ok {
			user.TargetStateOfCharge = pref.MinimumSOC * 100
		} else {
			logrus.Warnf("controller: no MinimumSOC preference for user %d", user.UserID)
			user.TargetStateOfCharge = DefaultMinStateOfCharge
		}
	}

	arrival, err := message.ParseTime(m.ArrivalTime)
	if err != nil {
		return false, fmt.Errorf("user %d state: %w", m.UserID, err)
	}
	target, err := message.ParseTime(m.TargetTime)
	if err != nil {
		return false, fmt.Errorf("user %d state: %w", m.UserID, err)
	}
	user.ArrivalTime = arrival
	user.TargetTime = target
	user.RequiredEnergy = user.CarBatteryCapacity * (user.TargetStateOfCharge - user.StateOfCharge) / 100
	c.userStateCount++
	return true, nil
}

func (c *Controller) handleCarState(m *message.CarState) (bool, error) {
	user := c.findUser(m.UserID)
	if user == nil {
		return false, fmt.Errorf("car state for user %d without metadata", m.UserID)
	}
	user.StateOfCharge = m.StateOfCharge

	if c.checkDischargeNeed(user) {
		if user.StateOfCharge > user.TargetStateOfCharge {
			user.RequiredEnergy = 0
			floor := DefaultMinStateOfCharge
			if pref, ok := c.prefs[user.UserID]; ok {
				floor = pref.MinimumSOC * 100
			}
			user.TargetStateOfCharge = max(user.StateOfCharge-dischargeTargetDrop, floor)
		}
	} else if user.StateOfCharge == user.TargetStateOfCharge {
		// at target: top up to full if the user pays the station's price
		station := c.findStation(user.StationID)
		if pref, ok := c.prefs[user.UserID]; ok && station != nil &&
			pref.MaxCostForCharging >= station.ChargingCost &&
			user.TargetStateOfCharge < MaxStateOfCharge {
			logrus.Infof("controller: user %d pays for further charging at station %s", user.UserID, station.StationID)
			user.TargetStateOfCharge = MaxStateOfCharge
			user.RequiredEnergy = user.CarBatteryCapacity * (user.TargetStateOfCharge - user.StateOfCharge) / 100
		}
	}

	c.carStateCount++
	return true, nil
}

func (c *Controller) handleGridState(m *message.GridState) (bool, error) {
	if !c.maxPowerSeen {
		c.totalMaxPower = m.MaxPower
		c.maxPowerSeen = true
	}
	c.availablePower = m.CurrentPower
	c.gridStateReceived = true
	return true, nil
}

func (c *Controller) findUser(userID int) *UserRecord {
	for _, user := range c.users {
		if user.UserID == userID {
			return user
		}
	}
	return nil
}

func (c *Controller) findStation(stationID string) *StationRecord {
	for _, station := range c.stations {
		if station.StationID == stationID {
			return station
		}
	}
	return nil
}

// checkDischargeNeed flags a user for discharging when the grid is under
// load and the station's compensation meets the user's price threshold.
// Once flagged, a user stays flagged.
func (c *Controller) checkDischargeNeed(user *UserRecord) bool {
	pref, ok := c.prefs[user.UserID]
	if !ok {
		logrus.Warnf("controller: no preferences for user %d, cannot discharge", user.UserID)
		return false
	}
	if c.profile.UnderLoadAt(c.epoch.Start) {
		if station := c.findStation(user.StationID); station != nil &&
			pref.DischargePriceThreshold <= station.CompensationAmount {
			user.Discharge = true
		}
	}
	return user.Discharge
}

// allInputsIn reports whether every expected metadata, station state, user
// state and the grid state have arrived for the epoch.
func (c *Controller) allInputsIn() bool {
	return c.metadataCount == c.cfg.ExpectedUsers &&
		c.stationCount == c.cfg.ExpectedStations &&
		c.userStateCount == c.cfg.ExpectedUsers &&
		c.gridStateReceived
}

// ProcessEpoch waits for the epoch's inputs, then allocates power, reports
// the allocation to the grid and dispatches discharge requirements. The
// epoch is done once every car state has come back.
func (c *Controller) ProcessEpoch(ctx context.Context, out component.Publisher) (bool, error) {
	if !c.allInputsIn() {
		return false, nil
	}

	if !c.loadStatusSent {
		status := &message.GridLoadStatus{LoadStatus: c.profile.UnderLoadAt(c.epoch.Start)}
		if err := out.Publish(ctx, c.cfg.GridLoadTopic, status); err != nil {
			return false, err
		}
		c.loadStatusSent = true
	}

	if !c.powerReqSent {
		if err := c.allocatePower(ctx, out); err != nil {
			return false, err
		}
		c.powerReqSent = true
	}

	if !c.usedPowerSent {
		summary := &message.UsedPowerValueToGrid{
			UsedPowerValue:  c.usedPower,
			TotalPowerValue: c.availablePower,
		}
		if err := out.Publish(ctx, c.cfg.UsedPowerTopic, summary); err != nil {
			return false, err
		}
		c.usedPowerSent = true
	}

	if !c.dischargeSent {
		if err := c.dispatchDischarges(ctx, out); err != nil {
			return false, err
		}
		c.dischargeSent = true
	}

	return c.carStateCount == c.cfg.ExpectedUsers, nil
}

// connectedUsers returns the users whose charging window covers the epoch,
// ordered by departure time and descending required energy.
func (c *Controller) connectedUsers() []*UserRecord {
	var connected []*UserRecord
	for _, user := range c.users {
		if !c.epoch.Start.Before(user.ArrivalTime) && !c.epoch.End.After(user.TargetTime) {
			connected = append(connected, user)
		}
	}
	sort.SliceStable(connected, func(i, j int) bool {
		if !connected[i].TargetTime.Equal(connected[j].TargetTime) {
			return connected[i].TargetTime.Before(connected[j].TargetTime)
		}
		return connected[i].RequiredEnergy > connected[j].RequiredEnergy
	})
	return connected
}

// buildAllocations pairs stations with their connected users. Earlier
// departures and larger energy needs come first; stations without a
// connected car get a trailing zero allocation.
func (c *Controller) buildAllocations(connected []*UserRecord) []allocation {
	var allocations, empty []allocation
	for _, station := range c.stations {
		isConnected := false
		for _, user := range connected {
			if user.StationID != station.StationID {
				continue
			}
			isConnected = true
			allocations = append(allocations, allocation{
				UserID:              user.UserID,
				StationID:           user.StationID,
				StationMaxPower:     station.MaxPower,
				CarMaxPower:         user.CarMaxPower,
				StateOfCharge:       user.StateOfCharge,
				TargetStateOfCharge: user.TargetStateOfCharge,
				RequiredEnergy:      user.RequiredEnergy,
				TargetTime:          user.TargetTime,
			})
		}
		if !isConnected {
			empty = append(empty, allocation{StationID: station.StationID})
		}
	}
	sort.SliceStable(allocations, func(i, j int) bool {
		if !allocations[i].TargetTime.Equal(allocations[j].TargetTime) {
			return allocations[i].TargetTime.Before(allocations[j].TargetTime)
		}
		return allocations[i].RequiredEnergy > allocations[j].RequiredEnergy
	})
	return append(allocations, empty...)
}

// allocatePower publishes one PowerRequirement per station pairing, capped
// by the station, the car, the remaining grid power and the user's need.
func (c *Controller) allocatePower(ctx context.Context, out component.Publisher) error {
	allocations := c.buildAllocations(c.connectedUsers())

	for _, alloc := range allocations {
		power := 0.0
		if alloc.UserID != 0 && c.usedPower < c.availablePower &&
			alloc.TargetStateOfCharge > alloc.StateOfCharge {
			power = min(
				alloc.StationMaxPower,
				alloc.CarMaxPower,
				c.availablePower-c.usedPower,
				alloc.RequiredEnergy/c.epoch.Hours(),
			)
			c.usedPower += power
		}
		logrus.Infof("controller: %f power to station %s (user %d)", power, alloc.StationID, alloc.UserID)

		requirement := &message.PowerRequirement{
			StationID: alloc.StationID,
			UserID:    alloc.UserID,
			Power:     power,
		}
		if err := out.Publish(ctx, c.cfg.PowerRequirementTopic, requirement); err != nil {
			return err
		}
	}

	logrus.Infof("controller: allocated %f of %f power in epoch %d", c.usedPower, c.availablePower, c.epoch.Number)
	return nil
}

// dispatchDischarges runs only when the grid is under load. Every station
// gets exactly one CarDischargePowerRequirement: the flagged, connected
// user's energy above their target state of charge, or zero so the station
// knows no discharge is coming this epoch.
func (c *Controller) dispatchDischarges(ctx context.Context, out component.Publisher) error {
	if !c.profile.UnderLoadAt(c.epoch.Start) {
		return nil
	}
	for _, station := range c.stations {
		requirement := &message.CarDischargePowerRequirement{StationID: station.StationID}
		for _, user := range c.users {
			if user.StationID != station.StationID || !user.Discharge ||
				c.epoch.Start.Before(user.ArrivalTime) || c.epoch.End.After(user.TargetTime) {
				continue
			}
			surplus := user.CarBatteryCapacity * (user.StateOfCharge - user.TargetStateOfCharge) / 100
			if surplus > 0 {
				requirement.UserID = user.UserID
				requirement.Power = surplus
				break
			}
		}
		if err := out.Publish(ctx, c.cfg.DischargeTopic, requirement); err != nil {
			return err
		}
		if requirement.Power > 0 {
			logrus.Infof("controller: discharge requirement %f for user %d at station %s",
				requirement.Power, requirement.UserID, requirement.StationID)
		}
	}
	return nil
}
