// Package testutil provides shared test infrastructure for the V2G
// simulator: a recording outbox for component logic tests and a small
// message driver used by the integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/v2g-sim/v2g-sim/sim/message"
)

// Published is one message recorded by the Outbox.
type Published struct {
	Topic string
	Msg   message.ResultMessage
}

// Outbox records everything a component logic publishes during ProcessEpoch.
type Outbox struct {
	Published []Published
}

// Publish appends the message to the record.
func (o *Outbox) Publish(_ context.Context, topic string, msg message.ResultMessage) error {
	o.Published = append(o.Published, Published{Topic: topic, Msg: msg})
	return nil
}

// Take removes and returns the first recorded message of the given type.
// It fails the test when none was published.
func (o *Outbox) Take(t *testing.T, msgType string) message.ResultMessage {
	t.Helper()
	for i, p := range o.Published {
		if p.Msg.MessageType() == msgType {
			o.Published = append(o.Published[:i], o.Published[i+1:]...)
			return p.Msg
		}
	}
	t.Fatalf("no %s message published (have %d messages)", msgType, len(o.Published))
	return nil
}

// Count returns how many recorded messages have the given type.
func (o *Outbox) Count(msgType string) int {
	n := 0
	for _, p := range o.Published {
		if p.Msg.MessageType() == msgType {
			n++
		}
	}
	return n
}

// Driver stamps messages the way another simulation process would, so tests
// can feed decoded messages into a component's HandleMessage.
type Driver struct {
	Gen *message.Generator
}

// NewDriver returns a Driver publishing as the given process name.
func NewDriver(process string) *Driver {
	return &Driver{Gen: message.NewGenerator("test-simulation", process)}
}

// Stamp fills msg's result attributes for the given epoch and returns it.
func (d *Driver) Stamp(msg message.ResultMessage, epoch int) message.ResultMessage {
	d.Gen.StampResult(msg, epoch, nil)
	return msg
}

// Epoch returns a window of the given length starting at start, as an epoch
// message stamped for the driver.
func (d *Driver) Epoch(number int, start time.Time, length time.Duration) *message.Epoch {
	msg := &message.Epoch{
		StartTime: message.FormatTime(start),
		EndTime:   message.FormatTime(start.Add(length)),
	}
	d.Gen.StampResult(msg, number, nil)
	return msg
}
