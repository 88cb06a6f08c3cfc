package message

import "fmt"

// Message type names for the platform messages.
const (
	TypeSimState = "SimState"
	TypeEpoch    = "Epoch"
	TypeStatus   = "Status"
	TypeError    = "Error"
)

// Simulation state values carried by SimState messages.
const (
	SimulationStateRunning = "running"
	SimulationStateStopped = "stopped"
)

// StatusReady is the Value of a Status message reporting epoch completion.
const StatusReady = "ready"

// Default routing keys for the platform messages.
const (
	TopicSimState = "SimState"
	TopicEpoch    = "Epoch"
	TopicStatus   = "Status.Ready"
	TopicError    = "Status.Error"
)

// SimState announces that the simulation is running or stopped.
type SimState struct {
	Envelope
	SimulationState string `json:"SimulationState"`
	Name            string `json:"Name,omitempty"`
	Description     string `json:"Description,omitempty"`
}

func (m *SimState) MessageType() string { return TypeSimState }

func (m *SimState) Validate() error {
	if err := m.Envelope.Validate(); err != nil {
		return err
	}
	if m.SimulationState != SimulationStateRunning && m.SimulationState != SimulationStateStopped {
		return fmt.Errorf("SimState message: invalid SimulationState %q", m.SimulationState)
	}
	return nil
}

// Epoch opens a new simulation epoch covering [StartTime, EndTime).
type Epoch struct {
	Result
	StartTime string `json:"StartTime"`
	EndTime   string `json:"EndTime"`
}

func (m *Epoch) MessageType() string { return TypeEpoch }

func (m *Epoch) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	start, err := ParseTime(m.StartTime)
	if err != nil {
		return fmt.Errorf("Epoch message: %w", err)
	}
	end, err := ParseTime(m.EndTime)
	if err != nil {
		return fmt.Errorf("Epoch message: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("Epoch message: EndTime %s not after StartTime %s", m.EndTime, m.StartTime)
	}
	if m.EpochNumber < 1 {
		return fmt.Errorf("Epoch message: epoch number %d < 1", m.EpochNumber)
	}
	return nil
}

// Status reports a component's readiness for the epoch in EpochNumber.
type Status struct {
	Result
	Value       string `json:"Value"`
	Description string `json:"Description,omitempty"`
}

func (m *Status) MessageType() string { return TypeStatus }

func (m *Status) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.Value == "" {
		return fmt.Errorf("Status message is missing Value")
	}
	return nil
}

// Error reports an internal component failure to the simulation manager.
type Error struct {
	Result
	Description string `json:"Description"`
}

func (m *Error) MessageType() string { return TypeError }

func (m *Error) Validate() error {
	if err := m.Result.Validate(); err != nil {
		return err
	}
	if m.Description == "" {
		return fmt.Errorf("Error message is missing Description")
	}
	return nil
}
