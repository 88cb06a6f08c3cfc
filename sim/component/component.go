// Package component implements the runtime shared by every simulation
// component: bus subscriptions, the epoch lifecycle, readiness reporting and
// error reporting towards the simulation manager.
package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/v2g-sim/v2g-sim/sim/bus"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// EpochInfo describes the epoch a component is currently processing.
type EpochInfo struct {
	Number int
	Start  time.Time
	End    time.Time
}

// Seconds returns the epoch length in seconds.
func (e EpochInfo) Seconds() float64 {
	return e.End.Sub(e.Start).Seconds()
}

// Hours returns the epoch length in hours, the unit power allocations use.
func (e EpochInfo) Hours() float64 {
	return e.End.Sub(e.Start).Hours()
}

// Logic is the component-specific half of a simulation component. The Runner
// drives it: BeginEpoch resets per-epoch state, HandleMessage consumes domain
// messages and ProcessEpoch performs the epoch's calculations and publishing.
type Logic interface {
	// Name is the component's process name on the bus.
	Name() string
	// Subscriptions lists the routing-key patterns the component listens to,
	// in addition to the platform SimState and Epoch topics.
	Subscriptions() []string
	// BeginEpoch clears per-epoch state when a new epoch opens.
	BeginEpoch(info EpochInfo)
	// HandleMessage consumes one domain message. It returns true when the
	// message is new input for the current epoch, which makes the runner
	// record it as a triggering message and retry ProcessEpoch.
	HandleMessage(ctx context.Context, msg message.Message, routingKey string) (bool, error)
	// ProcessEpoch performs the epoch's work, publishing through out.
	// It returns true once the component is done with the epoch.
	ProcessEpoch(ctx context.Context, out Publisher) (bool, error)
}

// Publisher sends a component's result messages. The Runner passes its Outbox
// here; tests can substitute a recording fake.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg message.ResultMessage) error
}

// Outbox publishes result messages stamped with the current epoch number and
// triggering message ids. It is only valid inside ProcessEpoch.
type Outbox struct {
	runner *Runner
}

// Publish stamps and sends msg on topic.
func (o *Outbox) Publish(ctx context.Context, topic string, msg message.ResultMessage) error {
	return o.runner.publishResult(ctx, topic, msg)
}

// Runner wires a Logic to the bus and runs the epoch protocol: wait for the
// simulation to start, react to epoch and domain messages, retry the logic's
// ProcessEpoch as input arrives, and report ready exactly once per epoch.
type Runner struct {
	logic   Logic
	bus     bus.Bus
	gen     *message.Generator
	topics  TopicConfig
	metrics *Metrics

	mu         sync.Mutex
	started    bool
	stopped    bool
	epoch      EpochInfo
	triggering []string
	readySent  bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewRunner builds a Runner for logic. metrics may be nil.
func NewRunner(logic Logic, b bus.Bus, gen *message.Generator, topics TopicConfig, metrics *Metrics) *Runner {
	return &Runner{
		logic:   logic,
		bus:     b,
		gen:     gen,
		topics:  topics,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Start subscribes the component to the platform topics and its own
// subscriptions. One subscription carries every pattern, so SimState, Epoch
// and domain messages reach the component in publish order. It returns once
// the subscription is in place; message handling runs on the bus's delivery
// goroutine until Done is closed.
func (r *Runner) Start(ctx context.Context) error {
	patterns := append([]string{r.topics.SimState, r.topics.Epoch}, r.logic.Subscriptions()...)
	if err := r.bus.Subscribe(ctx, func(routingKey string, body []byte) {
		r.onDelivery(ctx, routingKey, body)
	}, patterns...); err != nil {
		return fmt.Errorf("component %s: %w", r.logic.Name(), err)
	}
	logrus.Infof("component %s listening on %v", r.logic.Name(), patterns)
	return nil
}

// Done is closed when the component has observed the stopped simulation state.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) onDelivery(ctx context.Context, routingKey string, body []byte) {
	msg, err := message.Decode(body)
	if err != nil {
		logrus.Warnf("component %s: dropping message on %s: %v", r.logic.Name(), routingKey, err)
		return
	}
	env := message.EnvelopeOf(msg)
	if env.SourceProcessID == r.logic.Name() {
		// own message echoed back through a shared topic
		return
	}
	r.metrics.received(msg.MessageType())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	switch m := msg.(type) {
	case *message.SimState:
		r.handleSimState(m)
	case *message.Epoch:
		r.handleEpoch(ctx, m)
	case *message.Status:
		// other components' readiness is the manager's concern
	default:
		r.handleDomain(ctx, msg, routingKey)
	}
}

func (r *Runner) handleSimState(m *message.SimState) {
	switch m.SimulationState {
	case message.SimulationStateRunning:
		if !r.started {
			logrus.Infof("component %s: simulation %s running", r.logic.Name(), m.SimulationID)
			r.started = true
		}
	case message.SimulationStateStopped:
		logrus.Infof("component %s: simulation %s stopped", r.logic.Name(), m.SimulationID)
		r.stopped = true
		r.doneOnce.Do(func() { close(r.done) })
	}
}

func (r *Runner) handleEpoch(ctx context.Context, m *message.Epoch) {
	if !r.started {
		logrus.Warnf("component %s: epoch %d before simulation start", r.logic.Name(), m.EpochNumber)
		return
	}
	if m.EpochNumber <= r.epoch.Number {
		logrus.Debugf("component %s: ignoring stale epoch %d (current %d)",
			r.logic.Name(), m.EpochNumber, r.epoch.Number)
		return
	}
	start, err := message.ParseTime(m.StartTime)
	if err != nil {
		r.reportError(ctx, fmt.Sprintf("invalid epoch start time: %v", err))
		return
	}
	end, err := message.ParseTime(m.EndTime)
	if err != nil {
		r.reportError(ctx, fmt.Sprintf("invalid epoch end time: %v", err))
		return
	}

	r.epoch = EpochInfo{Number: m.EpochNumber, Start: start, End: end}
	r.triggering = []string{m.MessageID}
	r.readySent = false
	r.metrics.epochStarted(m.EpochNumber)
	r.logic.BeginEpoch(r.epoch)
	r.tryProcess(ctx)
}

func (r *Runner) handleDomain(ctx context.Context, msg message.Message, routingKey string) {
	if r.epoch.Number == 0 {
		logrus.Debugf("component %s: %s on %s before first epoch, ignoring",
			r.logic.Name(), msg.MessageType(), routingKey)
		return
	}
	triggered, err := r.logic.HandleMessage(ctx, msg, routingKey)
	if err != nil {
		r.reportError(ctx, err.Error())
		return
	}
	if triggered {
		r.triggering = append(r.triggering, message.EnvelopeOf(msg).MessageID)
		r.tryProcess(ctx)
	}
}

// tryProcess runs the logic's epoch processing and publishes the ready status
// when it completes. Processing keeps running on input that arrives after the
// ready status, so follow-up publishes (discharge reports and the like) still
// go out; only the status itself is sent once. Callers must hold r.mu.
func (r *Runner) tryProcess(ctx context.Context) {
	if !r.started || r.epoch.Number == 0 {
		return
	}
	done, err := r.logic.ProcessEpoch(ctx, &Outbox{runner: r})
	if err != nil {
		r.reportError(ctx, err.Error())
		return
	}
	if !done || r.readySent {
		return
	}
	status := &message.Status{Value: message.StatusReady}
	r.gen.StampResult(status, r.epoch.Number, r.triggering)
	if err := r.send(ctx, r.topics.Status, status); err != nil {
		logrus.Errorf("component %s: sending ready status: %v", r.logic.Name(), err)
		return
	}
	r.readySent = true
	r.metrics.epochCompleted()
	logrus.Infof("component %s: ready for epoch %d", r.logic.Name(), r.epoch.Number)
}

// publishResult stamps msg with the current epoch context and sends it.
// Callers must hold r.mu (it is reached from within tryProcess).
func (r *Runner) publishResult(ctx context.Context, topic string, msg message.ResultMessage) error {
	r.gen.StampResult(msg, r.epoch.Number, r.triggering)
	return r.send(ctx, topic, msg)
}

func (r *Runner) send(ctx context.Context, topic string, msg message.Message) error {
	body, err := message.Encode(msg)
	if err != nil {
		return err
	}
	if err := r.bus.Publish(ctx, topic, body); err != nil {
		return err
	}
	r.metrics.published(msg.MessageType())
	return nil
}

// reportError publishes an Error message for the manager. Callers hold r.mu.
func (r *Runner) reportError(ctx context.Context, description string) {
	logrus.Errorf("component %s: %s", r.logic.Name(), description)
	errMsg := &message.Error{Description: description}
	r.gen.StampResult(errMsg, r.epoch.Number, r.triggering)
	if err := r.send(ctx, r.topics.Error, errMsg); err != nil {
		logrus.Errorf("component %s: sending error message: %v", r.logic.Name(), err)
		return
	}
	r.metrics.errorReported()
}
