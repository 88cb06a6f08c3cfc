package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/v2g-sim/v2g-sim/sim/bus"
	"github.com/v2g-sim/v2g-sim/sim/component"
	"github.com/v2g-sim/v2g-sim/sim/message"
)

// runComponent builds one simulation component from the process environment,
// connects it to RabbitMQ and blocks until the simulation stops or the
// process receives SIGINT/SIGTERM. build receives the shared configuration so
// component-specific settings can reuse the component name.
func runComponent(build func(shared component.Config) (component.Logic, error)) {
	shared, err := component.ConfigFromEnv()
	if err != nil {
		logrus.Fatalf("Invalid environment: %v", err)
	}

	logic, err := build(shared)
	if err != nil {
		logrus.Fatalf("Building component %s: %v", shared.ComponentName, err)
	}

	b, err := bus.DialAMQP(shared.Bus)
	if err != nil {
		logrus.Fatalf("Connecting to RabbitMQ: %v", err)
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := message.NewGenerator(shared.SimulationID, shared.ComponentName)
	metrics := component.NewMetrics(prometheus.DefaultRegisterer, shared.ComponentName)
	runner := component.NewRunner(logic, b, gen, shared.Topics, metrics)
	if err := runner.Start(ctx); err != nil {
		logrus.Fatalf("Starting component %s: %v", shared.ComponentName, err)
	}

	select {
	case <-runner.Done():
		logrus.Infof("Component %s finished", shared.ComponentName)
	case <-ctx.Done():
		logrus.Warnf("Component %s interrupted", shared.ComponentName)
	}
}
