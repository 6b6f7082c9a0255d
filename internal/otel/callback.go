package otel

import (
	"context"

	"github.com/basket/armada/internal/callback"
	"github.com/basket/armada/internal/playbook"
)

// MetricsCallback feeds task outcomes into the engine counters.
type MetricsCallback struct {
	callback.Nop
	metrics *Metrics
}

// NewMetricsCallback builds a counting callback.
func NewMetricsCallback(metrics *Metrics) *MetricsCallback {
	return &MetricsCallback{metrics: metrics}
}

func (c *MetricsCallback) PlaybookOnHandlerTaskStart(string) {
	c.metrics.HandlersFlushed.Add(context.Background(), 1)
}

func (c *MetricsCallback) RunnerOnOK(_ *playbook.Task, result callback.TaskResult) {
	c.metrics.CountResult(context.Background(), result.HostName(), "ok")
}

func (c *MetricsCallback) RunnerOnFailed(_ *playbook.Task, result callback.TaskResult) {
	c.metrics.CountResult(context.Background(), result.HostName(), "failed")
}

func (c *MetricsCallback) RunnerOnUnreachable(_ *playbook.Task, result callback.TaskResult) {
	c.metrics.CountResult(context.Background(), result.HostName(), "unreachable")
}

func (c *MetricsCallback) RunnerOnSkipped(_ *playbook.Task, result callback.TaskResult) {
	c.metrics.CountResult(context.Background(), result.HostName(), "skipped")
}
