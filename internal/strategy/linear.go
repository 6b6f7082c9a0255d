package strategy

import (
	"context"

	"github.com/basket/armada/internal/bus"
	"github.com/basket/armada/internal/executor"
	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
	"github.com/basket/armada/internal/runner"
	"github.com/basket/armada/internal/vars"
	"golang.org/x/sync/errgroup"
)

func init() {
	runner.RegisterStrategy("linear", NewLinear)
}

// Linear keeps all hosts in lock-step: every host finishes task T before
// any host starts T+1. The task driving each round comes from the first
// remaining host's state machine; hosts whose own machines have diverged
// queue their own next task instead.
type Linear struct {
	Base
}

// NewLinear builds the linear strategy.
func NewLinear(tqm *runner.TaskQueueManager, varMgr vars.Manager) runner.Strategy {
	return &Linear{Base: NewBase(tqm, varMgr)}
}

// Run drives the play task by task, draining both queues between tasks.
// The next task is drawn from the first remaining host; a host that fails
// drops out of the rotation with its state machine frozen at the failure
// point, which is what lets the cleanup pass re-drive it through rescue and
// always afterwards.
func (s *Linear) Run(ctx context.Context, it *runner.PlayIterator, playCtx executor.PlayContext) error {
	play := it.Play()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hostsLeft := s.HostsRemaining(it)
		if len(hostsLeft) == 0 {
			if len(it.Hosts()) > 0 {
				s.tqm.Callback().PlaybookOnNoHostsRemaining()
				if eb := s.tqm.Bus(); eb != nil {
					eb.Publish(bus.TopicPlayNoHostsRemaining, bus.PlayEvent{Play: play.Name})
				}
			}
			break
		}

		task, err := it.GetNextTaskForHost(hostsLeft[0], false)
		if err != nil {
			return err
		}
		if task == nil {
			break
		}

		s.tqm.Callback().PlaybookOnTaskStart(task.DisplayName(), false)
		if eb := s.tqm.Bus(); eb != nil {
			eb.Publish(bus.TopicTaskStarted, bus.TaskEvent{Play: play.Name, Task: task.DisplayName()})
		}

		// Pull each host's task first, then fan the enqueues out; vars
		// resolution and staging dominate the cost when many hosts share a
		// task. Hosts whose machines have diverged into rescue or always
		// branches queue their own task.
		type queued struct {
			host *inventory.Host
			task *playbook.Task
		}
		toQueue := []queued{{host: hostsLeft[0], task: task}}
		for _, host := range hostsLeft[1:] {
			hostTask, err := it.GetNextTaskForHost(host, false)
			if err != nil {
				return err
			}
			if hostTask == nil {
				continue
			}
			toQueue = append(toQueue, queued{host: host, task: hostTask})
		}

		g := new(errgroup.Group)
		for _, q := range toQueue {
			s.tqm.BlockedHosts().Add(q.host.Name())
			g.Go(func() error {
				return s.tqm.QueueTask(ctx, play, q.host, q.task, s.varMgr, playCtx)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		s.tqm.JobQueue().Join()
		s.tqm.ResultQueue().Join()
	}

	return s.Finish(ctx, it, playCtx)
}
