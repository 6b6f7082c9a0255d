package runner

import (
	"log/slog"

	"github.com/basket/armada/internal/bus"
	"github.com/basket/armada/internal/callback"
	"github.com/basket/armada/internal/playbook"
)

// resultProcessor is the single consumer of the result queue. It dispatches
// callbacks, updates the shared host state, and acknowledges both queues so
// joins wake.
type resultProcessor struct {
	resultQueue *Queue[*TaskResult]
	jobQueue    *Queue[*workerJob]

	blocked     *HostSet
	failed      *HostSet
	unreachable *HostSet
	notified    *NotifiedHandlers

	callback callback.Callback
	eventBus *bus.Bus
	logger   *slog.Logger
	done     chan struct{}
}

// run consumes results until the queue is closed and drained.
func (p *resultProcessor) run() {
	defer close(p.done)

	for {
		result, ok := p.resultQueue.Get()
		if !ok {
			return
		}
		p.process(result)
		p.resultQueue.TaskDone()
		// The job is only done once its result has been absorbed into
		// shared state; acknowledging here makes job_queue joins mean
		// "queued, executed, and processed".
		p.jobQueue.TaskDone()
	}
}

func (p *resultProcessor) process(result *TaskResult) {
	task, err := p.decodeTask(result)
	if err != nil {
		p.logger.Error("result_decode_failed", slog.String("host", result.Host), slog.String("error", err.Error()))
		task = &playbook.Task{Name: "unknown"}
	}

	switch {
	case result.IsFailed():
		p.callback.RunnerOnFailed(task, result)
		p.failed.Add(result.Host)
		p.publish(bus.TopicTaskFailed, task, result)

	case result.IsUnreachable():
		p.callback.RunnerOnUnreachable(task, result)
		p.unreachable.Add(result.Host)
		p.publish(bus.TopicTaskUnreachable, task, result)

	case result.IsSkipped():
		p.callback.RunnerOnSkipped(task, result)
		p.publish(bus.TopicTaskSkipped, task, result)

	default:
		p.callback.RunnerOnOK(task, result)
		p.publish(bus.TopicTaskOK, task, result)

		// A successful task notifies its handlers; each host lands in a
		// handler's list at most once per play.
		for _, name := range task.Notify {
			p.notified.AppendUnique(name, result.Host)
		}
	}

	p.blocked.Remove(result.Host)
}

func (p *resultProcessor) decodeTask(result *TaskResult) (*playbook.Task, error) {
	if playbook.IsHandlerPayload(result.TaskPayload) {
		h, err := playbook.DeserializeHandler(result.TaskPayload)
		if err != nil {
			return nil, err
		}
		return &h.Task, nil
	}
	return playbook.DeserializeTask(result.TaskPayload)
}

func (p *resultProcessor) publish(topic string, task *playbook.Task, result *TaskResult) {
	if p.eventBus == nil {
		return
	}
	msg := ""
	if m, ok := result.Result["msg"].(string); ok {
		msg = m
	}
	p.eventBus.Publish(topic, bus.ResultEvent{
		Host:    result.Host,
		Task:    task.DisplayName(),
		Changed: result.Changed(),
		Msg:     msg,
	})
}
