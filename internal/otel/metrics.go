package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the engine's counters. Create one from a Provider's meter
// and hang it on a callback to count outcomes as they stream past.
type Metrics struct {
	TasksOK          metric.Int64Counter
	TasksFailed      metric.Int64Counter
	TasksSkipped     metric.Int64Counter
	HostsUnreachable metric.Int64Counter
	HandlersFlushed  metric.Int64Counter
}

// NewMetrics registers the engine counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.TasksOK, err = meter.Int64Counter("armada.tasks.ok",
		metric.WithDescription("Tasks that completed successfully")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.TasksFailed, err = meter.Int64Counter("armada.tasks.failed",
		metric.WithDescription("Tasks that failed")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.TasksSkipped, err = meter.Int64Counter("armada.tasks.skipped",
		metric.WithDescription("Tasks that were skipped")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.HostsUnreachable, err = meter.Int64Counter("armada.hosts.unreachable",
		metric.WithDescription("Hosts that became unreachable")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.HandlersFlushed, err = meter.Int64Counter("armada.handlers.flushed",
		metric.WithDescription("Handler flushes executed")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	return m, nil
}

// CountResult increments the counter matching a task outcome.
func (m *Metrics) CountResult(ctx context.Context, host, status string) {
	attrs := metric.WithAttributes(attribute.String("host", host))
	switch status {
	case "ok":
		m.TasksOK.Add(ctx, 1, attrs)
	case "failed":
		m.TasksFailed.Add(ctx, 1, attrs)
	case "skipped":
		m.TasksSkipped.Add(ctx, 1, attrs)
	case "unreachable":
		m.HostsUnreachable.Add(ctx, 1, attrs)
	}
}
