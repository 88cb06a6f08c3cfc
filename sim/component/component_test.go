package component

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v2g-sim/v2g-sim/sim/bus"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// fakeLogic completes an epoch after a configurable number of triggering
// messages and optionally publishes a result on completion.
type fakeLogic struct {
	needInputs  int
	publishCost bool
	latePublish bool
	failInput   bool

	begun     []EpochInfo
	inputs    int
	processed int
	published bool
}

func (f *fakeLogic) Name() string            { return "fake" }
func (f *fakeLogic) Subscriptions() []string { return []string{"GridState"} }

func (f *fakeLogic) BeginEpoch(info EpochInfo) {
	f.begun = append(f.begun, info)
	f.inputs = 0
	f.published = false
}

func (f *fakeLogic) HandleMessage(_ context.Context, msg message.Message, _ string) (bool, error) {
	if f.failInput {
		return false, fmt.Errorf("cannot handle %s", msg.MessageType())
	}
	f.inputs++
	return true, nil
}

func (f *fakeLogic) ProcessEpoch(ctx context.Context, out Publisher) (bool, error) {
	f.processed++
	if f.inputs < f.needInputs {
		return false, nil
	}
	if f.publishCost && !f.published {
		if err := out.Publish(ctx, "Station.TotalChargingCost", &message.TotalChargingCost{TotalChargingCost: 1}); err != nil {
			return false, err
		}
		f.published = true
	}
	if f.latePublish && f.inputs > 0 && !f.published {
		if err := out.Publish(ctx, "Station.TotalChargingCost", &message.TotalChargingCost{TotalChargingCost: 2}); err != nil {
			return false, err
		}
		f.published = true
	}
	return true, nil
}

// collector records decoded messages from one topic pattern. Reads are safe
// after the bus is closed.
type collector struct {
	msgs []message.Message
}

func (c *collector) subscribe(t *testing.T, b bus.Bus, pattern string) {
	t.Helper()
	require.NoError(t, b.Subscribe(context.Background(), func(_ string, body []byte) {
		msg, err := message.Decode(body)
		if err != nil {
			t.Errorf("collector received undecodable message: %v", err)
			return
		}
		c.msgs = append(c.msgs, msg)
	}, pattern))
}

func (c *collector) ofType(msgType string) []message.Message {
	var out []message.Message
	for _, msg := range c.msgs {
		if msg.MessageType() == msgType {
			out = append(out, msg)
		}
	}
	return out
}

type runnerHarness struct {
	bus     *bus.MemoryBus
	driver  *message.Generator
	logic   *fakeLogic
	runner  *Runner
	status  *collector
	errors  *collector
	results *collector
}

func newRunnerHarness(t *testing.T, logic *fakeLogic) *runnerHarness {
	t.Helper()
	h := &runnerHarness{
		bus:     bus.NewMemoryBus(),
		driver:  message.NewGenerator("sim-1", "manager"),
		logic:   logic,
		status:  &collector{},
		errors:  &collector{},
		results: &collector{},
	}
	h.status.subscribe(t, h.bus, message.TopicStatus)
	h.errors.subscribe(t, h.bus, message.TopicError)
	h.results.subscribe(t, h.bus, "Station.TotalChargingCost")

	gen := message.NewGenerator("sim-1", logic.Name())
	h.runner = NewRunner(logic, h.bus, gen, DefaultTopics(), nil)
	require.NoError(t, h.runner.Start(context.Background()))
	return h
}

func (h *runnerHarness) publish(t *testing.T, topic string, msg message.Message) {
	t.Helper()
	body, err := message.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, h.bus.Publish(context.Background(), topic, body))
}

func (h *runnerHarness) startSim(t *testing.T) {
	msg := &message.SimState{SimulationState: message.SimulationStateRunning}
	h.driver.Stamp(msg)
	h.publish(t, message.TopicSimState, msg)
}

func (h *runnerHarness) openEpoch(t *testing.T, number int) *message.Epoch {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(number-1) * time.Hour)
	msg := &message.Epoch{
		StartTime: message.FormatTime(start),
		EndTime:   message.FormatTime(start.Add(time.Hour)),
	}
	h.driver.StampResult(msg, number, nil)
	h.publish(t, message.TopicEpoch, msg)
	return msg
}

func (h *runnerHarness) gridState(t *testing.T, gen *message.Generator, epoch int) *message.GridState {
	msg := &message.GridState{GridID: "1", MaxPower: 100, CurrentPower: 100}
	gen.StampResult(msg, epoch, nil)
	h.publish(t, "GridState", msg)
	return msg
}

// finish stops the simulation, waits for the runner and closes the bus so
// the harness state can be read without races.
func (h *runnerHarness) finish(t *testing.T) {
	t.Helper()
	msg := &message.SimState{SimulationState: message.SimulationStateStopped}
	h.driver.Stamp(msg)
	h.publish(t, message.TopicSimState, msg)

	select {
	case <-h.runner.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner never observed the stopped simulation state")
	}
	require.NoError(t, h.bus.Close())
}

func TestRunner_EpochLifecycle_ReportsReadyWithTriggeringIDs(t *testing.T) {
	// GIVEN a component that needs one domain message per epoch
	h := newRunnerHarness(t, &fakeLogic{needInputs: 1, publishCost: true})
	gridGen := message.NewGenerator("sim-1", "grid")

	// WHEN the simulation starts and one epoch with its input runs
	h.startSim(t)
	epoch := h.openEpoch(t, 1)
	input := h.gridState(t, gridGen, 1)
	h.finish(t)

	// THEN the epoch window reached the logic
	require.Len(t, h.logic.begun, 1)
	assert.Equal(t, 1, h.logic.begun[0].Number)
	assert.Equal(t, time.Hour, h.logic.begun[0].End.Sub(h.logic.begun[0].Start))

	// AND exactly one ready status names the epoch and both triggers
	statuses := h.status.ofType(message.TypeStatus)
	require.Len(t, statuses, 1)
	status := statuses[0].(*message.Status)
	assert.Equal(t, message.StatusReady, status.Value)
	assert.Equal(t, 1, status.EpochNumber)
	assert.Contains(t, status.TriggeringMessageIDs, epoch.MessageID)
	assert.Contains(t, status.TriggeringMessageIDs, input.MessageID)

	// AND the published result carries the component's stamp
	results := h.results.ofType(message.TypeTotalChargingCost)
	require.Len(t, results, 1)
	assert.Equal(t, "fake", message.EnvelopeOf(results[0]).SourceProcessID)
}

func TestRunner_DomainMessageBeforeFirstEpoch_IsIgnored(t *testing.T) {
	h := newRunnerHarness(t, &fakeLogic{needInputs: 1})
	gridGen := message.NewGenerator("sim-1", "grid")

	h.startSim(t)
	h.gridState(t, gridGen, 0) // no epoch open yet
	h.finish(t)

	assert.Zero(t, h.logic.inputs)
	assert.Empty(t, h.status.ofType(message.TypeStatus))
}

func TestRunner_StaleEpoch_IsIgnored(t *testing.T) {
	h := newRunnerHarness(t, &fakeLogic{})

	h.startSim(t)
	h.openEpoch(t, 2)
	h.openEpoch(t, 1) // late duplicate of an older epoch
	h.finish(t)

	require.Len(t, h.logic.begun, 1)
	assert.Equal(t, 2, h.logic.begun[0].Number)
}

func TestRunner_OwnMessagesEchoedBack_AreSkipped(t *testing.T) {
	h := newRunnerHarness(t, &fakeLogic{needInputs: 1})
	ownGen := message.NewGenerator("sim-1", "fake")

	h.startSim(t)
	h.openEpoch(t, 1)
	h.gridState(t, ownGen, 1) // same source process id as the component
	h.finish(t)

	assert.Zero(t, h.logic.inputs)
}

func TestRunner_ReadySentOncePerEpoch(t *testing.T) {
	h := newRunnerHarness(t, &fakeLogic{needInputs: 1})
	gridGen := message.NewGenerator("sim-1", "grid")

	h.startSim(t)
	h.openEpoch(t, 1)
	h.gridState(t, gridGen, 1)
	h.gridState(t, gridGen, 1) // extra input after completion
	h.finish(t)

	assert.Len(t, h.status.ofType(message.TypeStatus), 1)
}

func TestRunner_InputAfterReady_IsStillProcessed(t *testing.T) {
	// A component that is ready immediately must still react to input that
	// arrives later in the epoch, without a second ready status.
	h := newRunnerHarness(t, &fakeLogic{needInputs: 0, latePublish: true})
	gridGen := message.NewGenerator("sim-1", "grid")

	h.startSim(t)
	h.openEpoch(t, 1)
	h.gridState(t, gridGen, 1)
	h.finish(t)

	assert.Len(t, h.status.ofType(message.TypeStatus), 1)
	require.Len(t, h.results.ofType(message.TypeTotalChargingCost), 1)
}

func TestRunner_HandlerError_IsReportedToManager(t *testing.T) {
	h := newRunnerHarness(t, &fakeLogic{failInput: true})
	gridGen := message.NewGenerator("sim-1", "grid")

	h.startSim(t)
	h.openEpoch(t, 1)
	h.gridState(t, gridGen, 1)
	h.finish(t)

	errs := h.errors.ofType(message.TypeError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].(*message.Error).Description, "GridState")
	assert.Equal(t, 1, errs[0].(*message.Error).EpochNumber)
}
