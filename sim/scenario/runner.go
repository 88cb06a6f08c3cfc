package scenario

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/v2g-sim/v2g-sim/sim/bus"
	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/controller"
	"github.com/v2g-sim/v2g-sim/sim/grid"
	"github.com/v2g-sim/v2g-sim/sim/manager"
	"github.com/v2g-sim/v2g-sim/sim/message"
	"github.com/v2g-sim/v2g-sim/sim/station"
	"github.com/v2g-sim/v2g-sim/sim/user"
)

// Summary reports the end state of a completed scenario run.
type Summary struct {
	SimulationID      string
	Epochs            int
	FinalGridCapacity float64
	Users             []UserSummary
	Stations          []StationSummary
}

// UserSummary is one user's end state.
type UserSummary struct {
	UserID             int
	FinalStateOfCharge float64
}

// StationSummary is one station's end state.
type StationSummary struct {
	StationID         string
	TotalChargingCost float64
}

// Run executes the scenario on an in-memory bus and blocks until the
// manager has closed every epoch or ctx is cancelled.
func Run(ctx context.Context, spec *Spec) (*Summary, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	simulationID := spec.SimulationID
	if simulationID == "" {
		simulationID = uuid.NewString()
	}

	prefs, err := spec.preferences()
	if err != nil {
		return nil, err
	}
	profile, err := spec.loadProfile()
	if err != nil {
		return nil, err
	}

	b := bus.NewMemoryBus()
	defer b.Close()
	topics := component.DefaultTopics()

	var (
		runners    []*component.Runner
		components []string
	)
	start := func(name string, logic component.Logic) error {
		gen := message.NewGenerator(simulationID, name)
		runner := component.NewRunner(logic, b, gen, topics, nil)
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("starting %s: %w", name, err)
		}
		runners = append(runners, runner)
		components = append(components, name)
		return nil
	}

	gridCfg := grid.DefaultConfig()
	gridCfg.GridID = spec.Grid.GridID
	gridCfg.TotalMaxPowerOutput = spec.Grid.TotalMaxPowerOutput
	gridLogic := grid.New("grid", gridCfg)
	if err := start("grid", gridLogic); err != nil {
		return nil, err
	}

	stationLogics := make([]*station.Station, 0, len(spec.Stations))
	for _, st := range spec.Stations {
		cfg := station.DefaultConfig()
		cfg.StationID = st.StationID
		cfg.GridID = spec.Grid.GridID
		cfg.MaxPower = st.MaxPower
		cfg.ChargingCost = st.ChargingCost
		cfg.CompensationAmount = st.CompensationAmount
		name := "station-" + st.StationID
		logic := station.New(name, cfg)
		if err := start(name, logic); err != nil {
			return nil, err
		}
		stationLogics = append(stationLogics, logic)
	}

	userLogics := make([]*user.User, 0, len(spec.Users))
	for _, u := range spec.Users {
		cfg := user.DefaultConfig()
		cfg.UserID = u.UserID
		cfg.UserName = u.UserName
		cfg.StationID = u.StationID
		cfg.StateOfCharge = u.StateOfCharge
		cfg.CarBatteryCapacity = u.CarBatteryCapacity
		cfg.CarModel = u.CarModel
		cfg.CarMaxPower = u.CarMaxPower
		cfg.ArrivalTime = u.ArrivalTime
		cfg.TargetTime = u.TargetTime
		name := "user-" + strconv.Itoa(u.UserID)
		logic, err := user.New(name, cfg)
		if err != nil {
			return nil, err
		}
		if err := start(name, logic); err != nil {
			return nil, err
		}
		userLogics = append(userLogics, logic)
	}

	ctrlCfg := controller.DefaultConfig()
	ctrlCfg.ExpectedUsers = len(spec.Users)
	ctrlCfg.ExpectedStations = len(spec.Stations)
	ctrlLogic := controller.New("v2g-controller", ctrlCfg, prefs, profile)
	if err := start("v2g-controller", ctrlLogic); err != nil {
		return nil, err
	}

	timeout := time.Duration(spec.EpochTimeoutSecs) * time.Second
	mgr, err := manager.New(manager.Config{
		Components:   components,
		Epochs:       spec.Epochs,
		StartTime:    spec.startTime(),
		EpochLength:  time.Duration(spec.EpochLengthSeconds) * time.Second,
		EpochTimeout: timeout,
		Topics:       topics,
	}, b, message.NewGenerator(simulationID, "simulation-manager"))
	if err != nil {
		return nil, err
	}
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}

	logrus.Infof("scenario: running simulation %s (%d epochs, %d stations, %d users)",
		simulationID, spec.Epochs, len(spec.Stations), len(spec.Users))
	if err := mgr.Run(ctx); err != nil {
		return nil, err
	}

	// Components stop themselves on the final sim state message.
	for _, runner := range runners {
		select {
		case <-runner.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	summary := &Summary{
		SimulationID:      simulationID,
		Epochs:            spec.Epochs,
		FinalGridCapacity: gridLogic.Capacity(),
	}
	for i, logic := range userLogics {
		summary.Users = append(summary.Users, UserSummary{
			UserID:             spec.Users[i].UserID,
			FinalStateOfCharge: logic.StateOfCharge(),
		})
	}
	for i, logic := range stationLogics {
		summary.Stations = append(summary.Stations, StationSummary{
			StationID:         spec.Stations[i].StationID,
			TotalChargingCost: logic.TotalChargingCost(),
		})
	}
	return summary, nil
}
