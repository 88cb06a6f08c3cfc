// Package manager implements the simulation manager: it starts the
// simulation, opens epochs one at a time, waits for every component's ready
// status and stops the simulation after the last epoch.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/v2g-sim/v2g-sim/sim/bus"
	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// Config holds the manager's run parameters.
type Config struct {
	// Components are the process names whose ready status ends an epoch.
	Components []string
	// Epochs is the number of epochs to run.
	Epochs int
	// StartTime is the simulated start of epoch 1.
	StartTime time.Time
	// EpochLength is the simulated duration of one epoch.
	EpochLength time.Duration
	// EpochTimeout caps the wall-clock wait for an epoch's ready statuses.
	EpochTimeout time.Duration
	// Topics are the platform routing keys.
	Topics component.TopicConfig
}

type readyEvent struct {
	process string
	epoch   int
}

// Manager drives one simulation run.
type Manager struct {
	cfg   Config
	bus   bus.Bus
	gen   *message.Generator
	ready chan readyEvent
}

// New returns a Manager. Call Start before Run so no ready status is missed.
func New(cfg Config, b bus.Bus, gen *message.Generator) (*Manager, error) {
	if len(cfg.Components) == 0 {
		return nil, fmt.Errorf("manager needs at least one component to wait for")
	}
	if cfg.Epochs < 1 {
		return nil, fmt.Errorf("manager needs at least one epoch, got %d", cfg.Epochs)
	}
	if cfg.EpochLength <= 0 {
		return nil, fmt.Errorf("non-positive epoch length %s", cfg.EpochLength)
	}
	if cfg.EpochTimeout <= 0 {
		cfg.EpochTimeout = time.Minute
	}
	return &Manager{
		cfg:   cfg,
		bus:   b,
		gen:   gen,
		ready: make(chan readyEvent, 64),
	}, nil
}

// Start subscribes the manager to the status and error topics.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.bus.Subscribe(ctx, m.onStatus, m.cfg.Topics.Status); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	if err := m.bus.Subscribe(ctx, m.onError, m.cfg.Topics.Error); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	return nil
}

func (m *Manager) onStatus(routingKey string, body []byte) {
	msg, err := message.Decode(body)
	if err != nil {
		logrus.Warnf("manager: dropping message on %s: %v", routingKey, err)
		return
	}
	status, ok := msg.(*message.Status)
	if !ok || status.Value != message.StatusReady {
		return
	}
	select {
	case m.ready <- readyEvent{process: status.SourceProcessID, epoch: status.EpochNumber}:
	default:
		// Run is not draining (simulation over); dropping is safe because
		// every awaited status has already been consumed.
		logrus.Debugf("manager: dropping ready status from %s", status.SourceProcessID)
	}
}

func (m *Manager) onError(routingKey string, body []byte) {
	msg, err := message.Decode(body)
	if err != nil {
		logrus.Warnf("manager: dropping message on %s: %v", routingKey, err)
		return
	}
	if errMsg, ok := msg.(*message.Error); ok {
		logrus.Errorf("manager: component %s reported in epoch %d: %s",
			errMsg.SourceProcessID, errMsg.EpochNumber, errMsg.Description)
	}
}

// Run executes the whole simulation: SimState running, every epoch in turn,
// SimState stopped. It returns an error when an epoch times out.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.publishSimState(ctx, message.SimulationStateRunning); err != nil {
		return err
	}

	for epoch := 1; epoch <= m.cfg.Epochs; epoch++ {
		if err := m.runEpoch(ctx, epoch); err != nil {
			// stop the components even on a failed run
			if stopErr := m.publishSimState(ctx, message.SimulationStateStopped); stopErr != nil {
				logrus.Errorf("manager: stopping after failure: %v", stopErr)
			}
			return err
		}
	}

	logrus.Infof("manager: all %d epochs completed", m.cfg.Epochs)
	return m.publishSimState(ctx, message.SimulationStateStopped)
}

func (m *Manager) runEpoch(ctx context.Context, epoch int) error {
	start := m.cfg.StartTime.Add(time.Duration(epoch-1) * m.cfg.EpochLength)
	end := start.Add(m.cfg.EpochLength)

	epochMsg := &message.Epoch{
		StartTime: message.FormatTime(start),
		EndTime:   message.FormatTime(end),
	}
	m.gen.StampResult(epochMsg, epoch, nil)
	body, err := message.Encode(epochMsg)
	if err != nil {
		return err
	}
	if err := m.bus.Publish(ctx, m.cfg.Topics.Epoch, body); err != nil {
		return fmt.Errorf("manager: publishing epoch %d: %w", epoch, err)
	}
	logrus.Infof("manager: epoch %d open (%s - %s)", epoch, epochMsg.StartTime, epochMsg.EndTime)

	pending := make(map[string]bool, len(m.cfg.Components))
	for _, name := range m.cfg.Components {
		pending[name] = true
	}
	timeout := time.NewTimer(m.cfg.EpochTimeout)
	defer timeout.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("manager: epoch %d interrupted: %w", epoch, ctx.Err())
		case <-timeout.C:
			return fmt.Errorf("manager: epoch %d timed out waiting for %v", epoch, keys(pending))
		case ev := <-m.ready:
			if ev.epoch != epoch {
				logrus.Debugf("manager: stale ready from %s for epoch %d", ev.process, ev.epoch)
				continue
			}
			if !pending[ev.process] {
				// duplicate or unknown process, both tolerated
				continue
			}
			delete(pending, ev.process)
			logrus.Infof("manager: %s ready for epoch %d (%d left)", ev.process, epoch, len(pending))
		}
	}
	return nil
}

func (m *Manager) publishSimState(ctx context.Context, state string) error {
	msg := &message.SimState{SimulationState: state}
	m.gen.Stamp(msg)
	body, err := message.Encode(msg)
	if err != nil {
		return err
	}
	if err := m.bus.Publish(ctx, m.cfg.Topics.SimState, body); err != nil {
		return fmt.Errorf("manager: publishing sim state %q: %w", state, err)
	}
	return nil
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
