// Package scenario loads simulation scenarios from YAML and runs them
// in-process on the in-memory bus: grid, stations, users, controller and
// manager all in one process, for tests and local experiments.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/v2g-sim/v2g-sim/sim/controller"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// Spec is the top-level scenario configuration, loaded from YAML.
type Spec struct {
	SimulationID       string `yaml:"simulation_id,omitempty"` // generated when empty
	StartTime          string `yaml:"start_time"`
	EpochLengthSeconds int    `yaml:"epoch_length_seconds"`
	Epochs             int    `yaml:"epochs"`
	EpochTimeoutSecs   int    `yaml:"epoch_timeout_seconds,omitempty"` // 0 = default

	Grid     GridSpec      `yaml:"grid"`
	Stations []StationSpec `yaml:"stations"`
	Users    []UserSpec    `yaml:"users"`

	// Preferences and grid load may be inline or external CSV files.
	Preferences     []PreferenceSpec `yaml:"preferences,omitempty"`
	PreferencesFile string           `yaml:"preferences_file,omitempty"`
	GridLoad        []GridLoadSpec   `yaml:"grid_load,omitempty"`
	GridLoadFile    string           `yaml:"grid_load_file,omitempty"`
}

// GridSpec configures the grid component.
type GridSpec struct {
	GridID              string  `yaml:"grid_id"`
	TotalMaxPowerOutput float64 `yaml:"total_max_power_output"`
}

// StationSpec configures one charging station.
type StationSpec struct {
	StationID          string  `yaml:"station_id"`
	MaxPower           float64 `yaml:"max_power"`
	ChargingCost       float64 `yaml:"charging_cost"`
	CompensationAmount float64 `yaml:"compensation_amount"`
}

// UserSpec configures one user and car.
type UserSpec struct {
	UserID             int     `yaml:"user_id"`
	UserName           string  `yaml:"user_name"`
	StationID          string  `yaml:"station_id"`
	StateOfCharge      float64 `yaml:"state_of_charge"`
	CarBatteryCapacity float64 `yaml:"car_battery_capacity"`
	CarModel           string  `yaml:"car_model,omitempty"`
	CarMaxPower        float64 `yaml:"car_max_power"`
	ArrivalTime        string  `yaml:"arrival_time"`
	TargetTime         string  `yaml:"target_time"`
}

// PreferenceSpec is one user's inline V2G preferences.
type PreferenceSpec struct {
	UserID                  int     `yaml:"user_id"`
	MinimumSOC              float64 `yaml:"minimum_soc"`
	MaxCostForCharging      float64 `yaml:"max_cost_for_charging"`
	DischargePriceThreshold float64 `yaml:"discharge_price_threshold"`
}

// GridLoadSpec marks one hour of the day as under load or not.
type GridLoadSpec struct {
	Hour      int  `yaml:"hour"`
	UnderLoad bool `yaml:"under_load"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the scenario for internal consistency.
func (s *Spec) Validate() error {
	if s.Epochs < 1 {
		return fmt.Errorf("scenario: epochs must be at least 1, got %d", s.Epochs)
	}
	if s.EpochLengthSeconds < 1 {
		return fmt.Errorf("scenario: epoch_length_seconds must be at least 1, got %d", s.EpochLengthSeconds)
	}
	if _, err := message.ParseTime(s.StartTime); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	if s.Grid.GridID == "" {
		return fmt.Errorf("scenario: grid_id must not be empty")
	}
	if s.Grid.TotalMaxPowerOutput < 0 {
		return fmt.Errorf("scenario: negative total_max_power_output")
	}
	if len(s.Stations) == 0 {
		return fmt.Errorf("scenario: at least one station is required")
	}
	if len(s.Users) == 0 {
		return fmt.Errorf("scenario: at least one user is required")
	}

	stations := make(map[string]bool, len(s.Stations))
	for _, station := range s.Stations {
		if station.StationID == "" {
			return fmt.Errorf("scenario: station with empty station_id")
		}
		if stations[station.StationID] {
			return fmt.Errorf("scenario: duplicate station %s", station.StationID)
		}
		stations[station.StationID] = true
	}

	users := make(map[int]bool, len(s.Users))
	for _, user := range s.Users {
		if user.UserID < 1 {
			// zero is the no-user marker in power requirement messages
			return fmt.Errorf("scenario: user ids must be at least 1, got %d", user.UserID)
		}
		if users[user.UserID] {
			return fmt.Errorf("scenario: duplicate user %d", user.UserID)
		}
		users[user.UserID] = true
		if !stations[user.StationID] {
			return fmt.Errorf("scenario: user %d references unknown station %q", user.UserID, user.StationID)
		}
		if _, err := message.ParseTime(user.ArrivalTime); err != nil {
			return fmt.Errorf("scenario: user %d: %w", user.UserID, err)
		}
		if _, err := message.ParseTime(user.TargetTime); err != nil {
			return fmt.Errorf("scenario: user %d: %w", user.UserID, err)
		}
	}

	if len(s.Preferences) > 0 && s.PreferencesFile != "" {
		return fmt.Errorf("scenario: preferences and preferences_file are mutually exclusive")
	}
	if len(s.GridLoad) > 0 && s.GridLoadFile != "" {
		return fmt.Errorf("scenario: grid_load and grid_load_file are mutually exclusive")
	}
	for _, load := range s.GridLoad {
		if load.Hour < 0 || load.Hour > 23 {
			return fmt.Errorf("scenario: grid_load hour %d outside 0..23", load.Hour)
		}
	}
	for _, pref := range s.Preferences {
		if pref.MinimumSOC < 0 || pref.MinimumSOC > 1 {
			return fmt.Errorf("scenario: user %d minimum_soc %f outside 0..1", pref.UserID, pref.MinimumSOC)
		}
	}
	return nil
}

// startTime returns the validated start time.
func (s *Spec) startTime() time.Time {
	t, _ := message.ParseTime(s.StartTime)
	return t
}

// preferences resolves the inline or file-based user preferences.
func (s *Spec) preferences() (controller.Preferences, error) {
	if s.PreferencesFile != "" {
		return controller.LoadPreferencesFile(s.PreferencesFile)
	}
	prefs := make(controller.Preferences, len(s.Preferences))
	for _, p := range s.Preferences {
		prefs[p.UserID] = controller.Preference{
			MinimumSOC:              p.MinimumSOC,
			MaxCostForCharging:      p.MaxCostForCharging,
			DischargePriceThreshold: p.DischargePriceThreshold,
		}
	}
	return prefs, nil
}

// loadProfile resolves the inline or file-based grid-load profile.
func (s *Spec) loadProfile() (controller.LoadProfile, error) {
	if s.GridLoadFile != "" {
		return controller.LoadProfileFile(s.GridLoadFile)
	}
	profile := make(controller.LoadProfile, len(s.GridLoad))
	for _, load := range s.GridLoad {
		profile[load.Hour] = load.UnderLoad
	}
	return profile, nil
}
