package message

import "fmt"

// Message type names for the V2G domain messages.
const (
	TypeGridState                    = "GridState"
	TypeGridLoadStatus               = "GridLoadStatus"
	TypeStationState                 = "StationState"
	TypeUserState                    = "UserState"
	TypeCarState                     = "CarState"
	TypeCarMetaData                  = "CarMetaData"
	TypePowerOutput                  = "PowerOutput"
	TypePowerRequirement             = "PowerRequirement"
	TypeCarDischargePowerRequirement = "CarDischargePowerRequirement"
	TypePowerDischargeCarToStation   = "PowerDischargeCarToStation"
	TypePowerDischargeStationToGrid  = "PowerDischargeStationToGrid"
	TypeTotalChargingCost            = "TotalChargingCost"
	TypeUserPreference               = "UserPreference"
	TypeUsedPowerValueToGrid         = "UsedPowerValueToGrid"
)

// GridState reports the grid's maximum and currently available power.
type GridState struct {
	Result
	GridID       string  `json:"GridId"`
	MaxPower     float64 `json:"MaxPower"`
	CurrentPower float64 `json:"CurrentPower"`
}

func (m *GridState) MessageType() string { return TypeGridState }

func (m *GridState) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	switch {
	case m.GridID == "":
		return fmt.Errorf("GridState message is missing GridId")
	case m.MaxPower < 0:
		return fmt.Errorf("GridState message: negative MaxPower %f", m.MaxPower)
	case m.CurrentPower < 0:
		return fmt.Errorf("GridState message: negative CurrentPower %f", m.CurrentPower)
	}
	return nil
}

// GridLoadStatus tells stations whether the grid is currently under load.
type GridLoadStatus struct {
	Result
	LoadStatus bool `json:"LoadStatus"`
}

func (m *GridLoadStatus) MessageType() string { return TypeGridLoadStatus }

func (m *GridLoadStatus) Validate() error { return m.Result.Validate() }

// StationState announces a charging station's parameters for the epoch.
type StationState struct {
	Result
	StationID          string  `json:"StationId"`
	MaxPower           float64 `json:"MaxPower"`
	ChargingCost       float64 `json:"ChargingCost"`
	CompensationAmount float64 `json:"CompensationAmount"`
}

func (m *StationState) MessageType() string { return TypeStationState }

func (m *StationState) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	switch {
	case m.StationID == "":
		return fmt.Errorf("StationState message is missing StationId")
	case m.MaxPower < 0:
		return fmt.Errorf("StationState message: negative MaxPower %f", m.MaxPower)
	case m.ChargingCost < 0:
		return fmt.Errorf("StationState message: negative ChargingCost %f", m.ChargingCost)
	case m.CompensationAmount < 0:
		return fmt.Errorf("StationState message: negative CompensationAmount %f", m.CompensationAmount)
	}
	return nil
}

// UserState carries a user's arrival and departure window for the epoch.
type UserState struct {
	Result
	UserID      int    `json:"UserId"`
	TargetTime  string `json:"TargetTime"`
	ArrivalTime string `json:"ArrivalTime"`
}

func (m *UserState) MessageType() string { return TypeUserState }

func (m *UserState) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if _, err := ParseTime(m.ArrivalTime); err != nil {
		return fmt.Errorf("UserState message: %w", err)
	}
	if _, err := ParseTime(m.TargetTime); err != nil {
		return fmt.Errorf("UserState message: %w", err)
	}
	return nil
}

// CarState reports a car's state of charge after the epoch's charging.
type CarState struct {
	Result
	UserID        int     `json:"UserId"`
	StationID     string  `json:"StationId"`
	StateOfCharge float64 `json:"StateOfCharge"`
}

func (m *CarState) MessageType() string { return TypeCarState }

func (m *CarState) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.StationID == "" {
		return fmt.Errorf("CarState message is missing StationId")
	}
	if m.StateOfCharge < 0 || m.StateOfCharge > 100 {
		return fmt.Errorf("CarState message: StateOfCharge %f outside 0..100", m.StateOfCharge)
	}
	return nil
}

// CarMetaData describes a user's car; sent once in the first epoch.
type CarMetaData struct {
	Result
	UserID             int     `json:"UserId"`
	UserName           string  `json:"UserName"`
	StationID          string  `json:"StationId"`
	StateOfCharge      float64 `json:"StateOfCharge"`
	CarBatteryCapacity float64 `json:"CarBatteryCapacity"`
	CarModel           string  `json:"CarModel"`
	CarMaxPower        float64 `json:"CarMaxPower"`
}

func (m *CarMetaData) MessageType() string { return TypeCarMetaData }

func (m *CarMetaData) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	switch {
	case m.StationID == "":
		return fmt.Errorf("CarMetaData message is missing StationId")
	case m.StateOfCharge < 0 || m.StateOfCharge > 100:
		return fmt.Errorf("CarMetaData message: StateOfCharge %f outside 0..100", m.StateOfCharge)
	case m.CarBatteryCapacity <= 0:
		return fmt.Errorf("CarMetaData message: non-positive CarBatteryCapacity %f", m.CarBatteryCapacity)
	case m.CarMaxPower < 0:
		return fmt.Errorf("CarMetaData message: negative CarMaxPower %f", m.CarMaxPower)
	}
	return nil
}

// PowerOutput is a station's charging power delivered to a user's car.
type PowerOutput struct {
	Result
	StationID   string  `json:"StationId"`
	UserID      int     `json:"UserId"`
	PowerOutput float64 `json:"PowerOutput"`
}

func (m *PowerOutput) MessageType() string { return TypePowerOutput }

func (m *PowerOutput) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.StationID == "" {
		return fmt.Errorf("PowerOutput message is missing StationId")
	}
	if m.PowerOutput < 0 {
		return fmt.Errorf("PowerOutput message: negative PowerOutput %f", m.PowerOutput)
	}
	return nil
}

// PowerRequirement is the controller's power allocation for one station.
type PowerRequirement struct {
	Result
	StationID string  `json:"StationId"`
	UserID    int     `json:"UserId"`
	Power     float64 `json:"Power"`
}

func (m *PowerRequirement) MessageType() string { return TypePowerRequirement }

func (m *PowerRequirement) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.StationID == "" {
		return fmt.Errorf("PowerRequirement message is missing StationId")
	}
	if m.Power < 0 {
		return fmt.Errorf("PowerRequirement message: negative Power %f", m.Power)
	}
	return nil
}

// CarDischargePowerRequirement asks a car, via its station, to discharge
// the given amount of energy back towards the grid.
type CarDischargePowerRequirement struct {
	Result
	StationID string  `json:"StationId"`
	UserID    int     `json:"UserId"`
	Power     float64 `json:"Power"`
}

func (m *CarDischargePowerRequirement) MessageType() string {
	return TypeCarDischargePowerRequirement
}

func (m *CarDischargePowerRequirement) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.StationID == "" {
		return fmt.Errorf("CarDischargePowerRequirement message is missing StationId")
	}
	if m.Power < 0 {
		return fmt.Errorf("CarDischargePowerRequirement message: negative Power %f", m.Power)
	}
	return nil
}

// PowerDischargeCarToStation reports the energy a car discharged to its station.
type PowerDischargeCarToStation struct {
	Result
	StationID string  `json:"StationId"`
	UserID    int     `json:"UserId"`
	Power     float64 `json:"Power"`
}

func (m *PowerDischargeCarToStation) MessageType() string {
	return TypePowerDischargeCarToStation
}

func (m *PowerDischargeCarToStation) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.StationID == "" {
		return fmt.Errorf("PowerDischargeCarToStation message is missing StationId")
	}
	if m.Power < 0 {
		return fmt.Errorf("PowerDischargeCarToStation message: negative Power %f", m.Power)
	}
	return nil
}

// PowerDischargeStationToGrid reports the energy a station fed back to the grid.
type PowerDischargeStationToGrid struct {
	Result
	StationID string  `json:"StationId"`
	GridID    string  `json:"GridId"`
	Power     float64 `json:"Power"`
}

func (m *PowerDischargeStationToGrid) MessageType() string {
	return TypePowerDischargeStationToGrid
}

func (m *PowerDischargeStationToGrid) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	switch {
	case m.StationID == "":
		return fmt.Errorf("PowerDischargeStationToGrid message is missing StationId")
	case m.GridID == "":
		return fmt.Errorf("PowerDischargeStationToGrid message is missing GridId")
	case m.Power < 0:
		return fmt.Errorf("PowerDischargeStationToGrid message: negative Power %f", m.Power)
	}
	return nil
}

// TotalChargingCost is a station's cumulative charging cost so far.
type TotalChargingCost struct {
	Result
	TotalChargingCost float64 `json:"TotalChargingCost"`
}

func (m *TotalChargingCost) MessageType() string { return TypeTotalChargingCost }

func (m *TotalChargingCost) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.TotalChargingCost < 0 {
		return fmt.Errorf("TotalChargingCost message: negative TotalChargingCost %f", m.TotalChargingCost)
	}
	return nil
}

// UserPreference carries one user's V2G participation preferences.
// MinimumSOC is a 0..1 fraction, matching the preference files.
type UserPreference struct {
	Result
	UserID                  int     `json:"UserId"`
	MinimumSOC              float64 `json:"MinimumSOC"`
	MaxCostForCharging      float64 `json:"MaxCostForCharging"`
	DischargePriceThreshold float64 `json:"DischargePriceThreshold"`
	MaximumSOC              float64 `json:"MaximumSOC"`
}

func (m *UserPreference) MessageType() string { return TypeUserPreference }

func (m *UserPreference) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.MinimumSOC < 0 || m.MinimumSOC > 1 {
		return fmt.Errorf("UserPreference message: MinimumSOC %f outside 0..1", m.MinimumSOC)
	}
	return nil
}

// UsedPowerValueToGrid summarises the controller's allocation for the grid:
// how much of the available power was handed out this epoch.
type UsedPowerValueToGrid struct {
	Result
	UsedPowerValue  float64 `json:"UsedPowerValue"`
	TotalPowerValue float64 `json:"TotalPowerValue"`
}

func (m *UsedPowerValueToGrid) MessageType() string { return TypeUsedPowerValueToGrid }

func (m *UsedPowerValueToGrid) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.UsedPowerValue < 0 {
		return fmt.Errorf("UsedPowerValueToGrid message: negative UsedPowerValue %f", m.UsedPowerValue)
	}
	if m.TotalPowerValue < 0 {
		return fmt.Errorf("UsedPowerValueToGrid message: negative TotalPowerValue %f", m.TotalPowerValue)
	}
	return nil
}
