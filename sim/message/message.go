// Package message defines the JSON messages exchanged on the simulation bus:
// the shared envelope, the platform messages that drive epoch synchronisation
// (SimState, Epoch, Status, Error) and the V2G domain messages sent by the
// grid, station, user and controller components.
package message

import (
	"fmt"
	"time"
)

// TimestampLayout is the wire format for every timestamp attribute:
// RFC 3339 UTC with millisecond precision, e.g. "2023-01-01T00:00:00.000Z".
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the wire timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTime parses a wire timestamp. It also accepts plain RFC 3339 so that
// hand-written scenario files do not need the millisecond suffix.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Envelope holds the attributes present on every message.
type Envelope struct {
	Type            string `json:"Type"`
	SimulationID    string `json:"SimulationId"`
	SourceProcessID string `json:"SourceProcessId"`
	MessageID       string `json:"MessageId"`
	Timestamp       string `json:"Timestamp"`
}

func (e *Envelope) envelope() *Envelope { return e }

// Validate checks the attributes every message must carry.
func (e *Envelope) Validate() error {
	switch {
	case e.Type == "":
		return fmt.Errorf("message is missing Type")
	case e.SimulationID == "":
		return fmt.Errorf("%s message is missing SimulationId", e.Type)
	case e.SourceProcessID == "":
		return fmt.Errorf("%s message is missing SourceProcessId", e.Type)
	case e.MessageID == "":
		return fmt.Errorf("%s message is missing MessageId", e.Type)
	}
	if _, err := ParseTime(e.Timestamp); err != nil {
		return fmt.Errorf("%s message: %w", e.Type, err)
	}
	return nil
}

// Result holds the attributes shared by every component output message.
type Result struct {
	Envelope
	EpochNumber          int      `json:"EpochNumber"`
	TriggeringMessageIDs []string `json:"TriggeringMessageIds"`
	LastUpdatedInEpoch   *int     `json:"LastUpdatedInEpoch,omitempty"`
	Warnings             []string `json:"Warnings,omitempty"`
}

func (r *Result) result() *Result { return r }

// Validate checks the envelope plus the result attributes.
func (r *Result) Validate() error {
	if err := r.Envelope.Validate(); err != nil {
		return err
	}
	if r.EpochNumber < 0 {
		return fmt.Errorf("%s message: negative EpochNumber %d", r.Type, r.EpochNumber)
	}
	return nil
}

// Message is implemented by every concrete message type.
type Message interface {
	// MessageType returns the value of the Type attribute.
	MessageType() string
	// Validate reports the first schema violation, if any.
	Validate() error
	// envelope exposes the embedded envelope for stamping.
	envelope() *Envelope
}

// ResultMessage is implemented by messages carrying the result attributes.
type ResultMessage interface {
	Message
	result() *Result
}

// EnvelopeOf returns the envelope embedded in msg.
func EnvelopeOf(msg Message) *Envelope {
	return msg.envelope()
}

// ResultOf returns the result attributes embedded in msg.
func ResultOf(msg ResultMessage) *Result {
	return msg.result()
}
