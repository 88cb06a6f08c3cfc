package message

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Generator stamps outgoing messages with the envelope attributes of one
// source process. Message ids are "<source>-<n>" with n increasing from 1,
// the numbering scheme the original platform library uses.
type Generator struct {
	simulationID    string
	sourceProcessID string
	counter         atomic.Int64
	// now is swappable for deterministic tests
	now func() time.Time
}

// NewGenerator returns a Generator for the given simulation and process.
func NewGenerator(simulationID, sourceProcessID string) *Generator {
	return &Generator{
		simulationID:    simulationID,
		sourceProcessID: sourceProcessID,
		now:             time.Now,
	}
}

// SourceProcessID returns the process id stamped on generated messages.
func (g *Generator) SourceProcessID() string { return g.sourceProcessID }

// SimulationID returns the simulation id stamped on generated messages.
func (g *Generator) SimulationID() string { return g.simulationID }

// Stamp fills the envelope of msg: type name, simulation id, source process
// id, the next message id and the current UTC timestamp.
func (g *Generator) Stamp(msg Message) {
	env := msg.envelope()
	env.Type = msg.MessageType()
	env.SimulationID = g.simulationID
	env.SourceProcessID = g.sourceProcessID
	env.MessageID = fmt.Sprintf("%s-%d", g.sourceProcessID, g.counter.Add(1))
	env.Timestamp = FormatTime(g.now())
}

// StampResult stamps the envelope and the result attributes of msg.
// The triggering id slice is copied so later epoch resets cannot alias it.
func (g *Generator) StampResult(msg ResultMessage, epoch int, triggering []string) {
	g.Stamp(msg)
	res := msg.result()
	res.EpochNumber = epoch
	res.TriggeringMessageIDs = append([]string(nil), triggering...)
	if res.TriggeringMessageIDs == nil {
		res.TriggeringMessageIDs = []string{}
	}
}
