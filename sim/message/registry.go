package message

import (
	"encoding/json"
	"fmt"
)

// factories maps the Type attribute to a constructor for the concrete type.
// Mirrors the register_to_factory pattern of the original message schema.
var factories = map[string]func() Message{
	TypeSimState:                     func() Message { return &SimState{} },
	TypeEpoch:                        func() Message { return &Epoch{} },
	TypeStatus:                       func() Message { return &Status{} },
	TypeError:                        func() Message { return &Error{} },
	TypeGridState:                    func() Message { return &GridState{} },
	TypeGridLoadStatus:               func() Message { return &GridLoadStatus{} },
	TypeStationState:                 func() Message { return &StationState{} },
	TypeUserState:                    func() Message { return &UserState{} },
	TypeCarState:                     func() Message { return &CarState{} },
	TypeCarMetaData:                  func() Message { return &CarMetaData{} },
	TypePowerOutput:                  func() Message { return &PowerOutput{} },
	TypePowerRequirement:             func() Message { return &PowerRequirement{} },
	TypeCarDischargePowerRequirement: func() Message { return &CarDischargePowerRequirement{} },
	TypePowerDischargeCarToStation:   func() Message { return &PowerDischargeCarToStation{} },
	TypePowerDischargeStationToGrid:  func() Message { return &PowerDischargeStationToGrid{} },
	TypeTotalChargingCost:            func() Message { return &TotalChargingCost{} },
	TypeUserPreference:               func() Message { return &UserPreference{} },
	TypeUsedPowerValueToGrid:         func() Message { return &UsedPowerValueToGrid{} },
}

// Encode marshals a message after validating it.
func Encode(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", msg.MessageType(), err)
	}
	return body, nil
}

// Decode unmarshals body into the concrete type named by its Type attribute
// and validates the result.
func Decode(body []byte) (Message, error) {
	var header struct {
		Type string `json:"Type"`
	}
	if err := json.Unmarshal(body, &header); err != nil {
		return nil, fmt.Errorf("decoding message header: %w", err)
	}
	factory, ok := factories[header.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", header.Type)
	}
	msg := factory()
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("decoding %s message: %w", header.Type, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}
