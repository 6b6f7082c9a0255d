package strategy

import (
	"context"
	"time"

	"github.com/basket/armada/internal/bus"
	"github.com/basket/armada/internal/executor"
	"github.com/basket/armada/internal/runner"
	"github.com/basket/armada/internal/vars"
)

func init() {
	runner.RegisterStrategy("free", NewFree)
}

// freePollInterval is the pause between scheduling sweeps while hosts are
// busy executing.
const freePollInterval = 10 * time.Millisecond

// Free lets every host advance through its own state machine as fast as a
// fork frees up: no lock-step, no barrier between task indices. Per-host
// ordering still holds because a blocked host is never handed a second
// task.
type Free struct {
	Base
}

// NewFree builds the free strategy.
func NewFree(tqm *runner.TaskQueueManager, varMgr vars.Manager) runner.Strategy {
	return &Free{Base: NewBase(tqm, varMgr)}
}

// Run sweeps the hosts, queueing the next task for every idle host, until
// all machines are complete.
func (s *Free) Run(ctx context.Context, it *runner.PlayIterator, playCtx executor.PlayContext) error {
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

		work := false
		for _, host := range hostsLeft {
			name := host.Name()
			if s.tqm.BlockedHosts().Contains(name) {
				// Still executing; check back next sweep.
				work = true
				continue
			}
			task, err := it.GetNextTaskForHost(host, false)
			if err != nil {
				return err
			}
			if task == nil {
				continue
			}
			work = true

			s.tqm.Callback().PlaybookOnTaskStart(task.DisplayName(), false)
			if eb := s.tqm.Bus(); eb != nil {
				eb.Publish(bus.TopicTaskStarted, bus.TaskEvent{Play: play.Name, Task: task.DisplayName(), Host: name})
			}
			s.tqm.BlockedHosts().Add(name)
			if err := s.tqm.QueueTask(ctx, play, host, task, s.varMgr, playCtx); err != nil {
				return err
			}
		}
		if !work {
			break
		}
		time.Sleep(freePollInterval)
	}

	s.tqm.JobQueue().Join()
	s.tqm.ResultQueue().Join()

	return s.Finish(ctx, it, playCtx)
}
