package controller

import "time"

// UserRecord is the controller's view of one user and car, built from the
// car metadata and updated by user and car state messages. Records persist
// for the whole simulation.
type UserRecord struct {
	UserID             int
	UserName           string
	ComponentName      string
	StationID          string
	StateOfCharge      float64
	CarBatteryCapacity float64
	CarModel           string
	CarMaxPower        float64

	// requirement state, refreshed from user and car state messages
	TargetStateOfCharge float64
	RequiredEnergy      float64
	ArrivalTime         time.Time
	TargetTime          time.Time
	Discharge           bool
}

// StationRecord is the controller's view of one station for the current
// epoch. Stations re-announce themselves every epoch.
type StationRecord struct {
	StationID          string
	MaxPower           float64
	ChargingCost       float64
	CompensationAmount float64
}

// allocation pairs a station with the connected user it charges this epoch.
// A zero UserID marks a station with no connected car.
type allocation struct {
	UserID              int
	StationID           string
	StationMaxPower     float64
	CarMaxPower         float64
	StateOfCharge       float64
	TargetStateOfCharge float64
	RequiredEnergy      float64
	TargetTime          time.Time
}
