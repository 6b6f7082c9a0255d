package callback

import (
	"fmt"
	"log/slog"

	"github.com/basket/armada/internal/playbook"
)

// LogCallback emits each lifecycle event as a structured log line. It is the
// default observer wired by the binary; pretty console formatting belongs to
// other Callback implementations.
type LogCallback struct {
	Nop
	Logger *slog.Logger
}

// NewLogCallback builds a callback logging at the given logger.
func NewLogCallback(logger *slog.Logger) *LogCallback {
	return &LogCallback{Logger: logger}
}

func (c *LogCallback) PlaybookOnPlayStart(name string) {
	c.Logger.Info("play_start", slog.String("play", name))
}

func (c *LogCallback) PlaybookOnTaskStart(name string, isConditional bool) {
	c.Logger.Info("task_start", slog.String("task", name), slog.Bool("conditional", isConditional))
}

func (c *LogCallback) PlaybookOnCleanupTaskStart(name string) {
	c.Logger.Info("cleanup_task_start", slog.String("task", name))
}

func (c *LogCallback) PlaybookOnHandlerTaskStart(name string) {
	c.Logger.Info("handler_task_start", slog.String("handler", name))
}

func (c *LogCallback) PlaybookOnNoHostsMatched() {
	c.Logger.Warn("no_hosts_matched")
}

func (c *LogCallback) PlaybookOnNoHostsRemaining() {
	c.Logger.Warn("no_hosts_remaining")
}

func (c *LogCallback) RunnerOnOK(task *playbook.Task, result TaskResult) {
	c.Logger.Info("task_ok",
		slog.String("host", result.HostName()),
		slog.String("task", task.DisplayName()),
		slog.Bool("changed", result.Changed()),
	)
}

func (c *LogCallback) RunnerOnFailed(task *playbook.Task, result TaskResult) {
	c.Logger.Error("task_failed",
		slog.String("host", result.HostName()),
		slog.String("task", task.DisplayName()),
		slog.String("msg", resultMsg(result)),
	)
}

func (c *LogCallback) RunnerOnUnreachable(task *playbook.Task, result TaskResult) {
	c.Logger.Error("host_unreachable",
		slog.String("host", result.HostName()),
		slog.String("task", task.DisplayName()),
	)
}

func (c *LogCallback) RunnerOnSkipped(task *playbook.Task, result TaskResult) {
	c.Logger.Info("task_skipped",
		slog.String("host", result.HostName()),
		slog.String("task", task.DisplayName()),
	)
}

func resultMsg(result TaskResult) string {
	if m, ok := result.ResultMap()["msg"]; ok {
		return fmt.Sprintf("%v", m)
	}
	return ""
}
