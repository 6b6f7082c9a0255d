package callback

import (
	"github.com/basket/armada/internal/playbook"
)

// TaskResult is the view of a completed task a callback receives.
type TaskResult interface {
	HostName() string
	ResultMap() map[string]any
	Changed() bool
}

// Callback receives the engine's lifecycle events in order of occurrence.
// Implementations must be safe for calls from the result processor
// goroutine and the strategy goroutine.
type Callback interface {
	PlaybookOnPlayStart(name string)
	PlaybookOnTaskStart(name string, isConditional bool)
	PlaybookOnCleanupTaskStart(name string)
	PlaybookOnHandlerTaskStart(name string)
	PlaybookOnNoHostsMatched()
	PlaybookOnNoHostsRemaining()
	PlaybookOnStats(stats *Stats)

	RunnerOnOK(task *playbook.Task, result TaskResult)
	RunnerOnFailed(task *playbook.Task, result TaskResult)
	RunnerOnUnreachable(task *playbook.Task, result TaskResult)
	RunnerOnSkipped(task *playbook.Task, result TaskResult)
}

// Nop implements Callback with no-ops. Embed it to implement only the hooks
// you care about.
type Nop struct{}

func (Nop) PlaybookOnPlayStart(string)            {}
func (Nop) PlaybookOnTaskStart(string, bool)      {}
func (Nop) PlaybookOnCleanupTaskStart(string)     {}
func (Nop) PlaybookOnHandlerTaskStart(string)     {}
func (Nop) PlaybookOnNoHostsMatched()             {}
func (Nop) PlaybookOnNoHostsRemaining()           {}
func (Nop) PlaybookOnStats(*Stats)                {}
func (Nop) RunnerOnOK(*playbook.Task, TaskResult) {}
func (Nop) RunnerOnFailed(*playbook.Task, TaskResult)      {}
func (Nop) RunnerOnUnreachable(*playbook.Task, TaskResult) {}
func (Nop) RunnerOnSkipped(*playbook.Task, TaskResult)     {}

// Multi fans events out to several callbacks in order.
type Multi []Callback

func (m Multi) PlaybookOnPlayStart(name string) {
	for _, c := range m {
		c.PlaybookOnPlayStart(name)
	}
}

func (m Multi) PlaybookOnTaskStart(name string, isConditional bool) {
	for _, c := range m {
		c.PlaybookOnTaskStart(name, isConditional)
	}
}

func (m Multi) PlaybookOnCleanupTaskStart(name string) {
	for _, c := range m {
		c.PlaybookOnCleanupTaskStart(name)
	}
}

func (m Multi) PlaybookOnHandlerTaskStart(name string) {
	for _, c := range m {
		c.PlaybookOnHandlerTaskStart(name)
	}
}

func (m Multi) PlaybookOnNoHostsMatched() {
	for _, c := range m {
		c.PlaybookOnNoHostsMatched()
	}
}

func (m Multi) PlaybookOnNoHostsRemaining() {
	for _, c := range m {
		c.PlaybookOnNoHostsRemaining()
	}
}

func (m Multi) PlaybookOnStats(stats *Stats) {
	for _, c := range m {
		c.PlaybookOnStats(stats)
	}
}

func (m Multi) RunnerOnOK(task *playbook.Task, result TaskResult) {
	for _, c := range m {
		c.RunnerOnOK(task, result)
	}
}

func (m Multi) RunnerOnFailed(task *playbook.Task, result TaskResult) {
	for _, c := range m {
		c.RunnerOnFailed(task, result)
	}
}

func (m Multi) RunnerOnUnreachable(task *playbook.Task, result TaskResult) {
	for _, c := range m {
		c.RunnerOnUnreachable(task, result)
	}
}

func (m Multi) RunnerOnSkipped(task *playbook.Task, result TaskResult) {
	for _, c := range m {
		c.RunnerOnSkipped(task, result)
	}
}
