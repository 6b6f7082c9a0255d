// Package strategy provides the scheduling policy plugins that decide which
// host advances to which task and when. Strategies register themselves into
// the runner's registry; a play picks one by name.
package strategy

import (
	"context"
	"time"

	"github.com/basket/armada/internal/bus"
	"github.com/basket/armada/internal/executor"
	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/runner"
	"github.com/basket/armada/internal/vars"
)

// cleanupPollInterval is the pause between cleanup sweeps so the loop
// doesn't spin while failed hosts work through their rescue branches.
const cleanupPollInterval = 50 * time.Millisecond

// Base carries the shared helpers every strategy needs: host bookkeeping,
// the cleanup pass for failed hosts, and the handler flush.
type Base struct {
	tqm    *runner.TaskQueueManager
	varMgr vars.Manager
}

// NewBase binds the helpers to a queue manager and variable manager.
func NewBase(tqm *runner.TaskQueueManager, varMgr vars.Manager) Base {
	return Base{tqm: tqm, varMgr: varMgr}
}

// HostsRemaining returns the play's hosts minus those failed or
// unreachable, in inventory order.
func (b *Base) HostsRemaining(it *runner.PlayIterator) []*inventory.Host {
	var out []*inventory.Host
	for _, host := range it.Hosts() {
		name := host.Name()
		if b.tqm.FailedHosts().Contains(name) || b.tqm.UnreachableHosts().Contains(name) {
			continue
		}
		out = append(out, host)
	}
	return out
}

// Finish runs the common end-of-play work: drive failed hosts through their
// outstanding rescue/always branches, then flush notified handlers.
func (b *Base) Finish(ctx context.Context, it *runner.PlayIterator, playCtx executor.PlayContext) error {
	if err := b.Cleanup(ctx, it, playCtx); err != nil {
		return err
	}
	return b.RunHandlers(ctx, it, playCtx)
}

// Cleanup re-drives each failed host through its iterator so rescue and
// always branches still execute after a failure. The failed set is cleared
// up front; hosts failing again during cleanup are re-marked and drained
// until no failed host has a next task.
func (b *Base) Cleanup(ctx context.Context, it *runner.PlayIterator, playCtx executor.PlayContext) error {
	play := it.Play()
	failedSet := b.tqm.FailedHosts()

	var failedHosts []*inventory.Host
	for _, host := range it.Hosts() {
		if failedSet.Contains(host.Name()) {
			failedHosts = append(failedHosts, host)
		}
	}
	if len(failedHosts) == 0 {
		return nil
	}

	for _, host := range failedHosts {
		if err := it.MarkHostFailed(host); err != nil {
			return err
		}
	}
	failedSet.Clear()

	workToDo := true
	for workToDo {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if b.tqm.JobQueue().Size() < len(failedHosts) {
			workToDo = false
			for _, host := range failedHosts {
				name := host.Name()

				// A host that failed again mid-cleanup escalates and keeps
				// draining.
				if failedSet.Contains(name) {
					if err := it.MarkHostFailed(host); err != nil {
						return err
					}
					failedSet.Remove(name)
				}
				if b.tqm.UnreachableHosts().Contains(name) {
					continue
				}
				peeked, err := it.GetNextTaskForHost(host, true)
				if err != nil {
					return err
				}
				if peeked == nil {
					continue
				}
				workToDo = true
				if b.tqm.BlockedHosts().Contains(name) {
					continue
				}
				b.tqm.BlockedHosts().Add(name)
				task, err := it.GetNextTaskForHost(host, false)
				if err != nil {
					return err
				}
				b.tqm.Callback().PlaybookOnCleanupTaskStart(task.DisplayName())
				if eb := b.tqm.Bus(); eb != nil {
					eb.Publish(bus.TopicCleanupStarted, bus.HandlerEvent{Name: task.DisplayName()})
				}
				if err := b.tqm.QueueTask(ctx, play, host, task, b.varMgr, playCtx); err != nil {
					return err
				}
			}
		}
		time.Sleep(cleanupPollInterval)
	}

	b.tqm.JobQueue().Join()
	b.tqm.ResultQueue().Join()

	// The hosts stay failed for the rest of the play: the handler flush
	// must not fire for them and no further task may target them. The set
	// was only cleared so that failures during cleanup were detectable.
	for _, host := range failedHosts {
		failedSet.Add(host.Name())
	}
	return nil
}

// RunHandlers flushes notified handlers in play-declaration order,
// regardless of notify order. Each handler runs at most once per notifying
// host; hosts that failed or went unreachable are skipped.
func (b *Base) RunHandlers(ctx context.Context, it *runner.PlayIterator, playCtx executor.PlayContext) error {
	play := it.Play()
	notified := b.tqm.NotifiedHandlers()

	for _, handler := range play.Handlers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if len(b.HostsRemaining(it)) == 0 {
			b.tqm.Callback().PlaybookOnNoHostsRemaining()
			if eb := b.tqm.Bus(); eb != nil {
				eb.Publish(bus.TopicPlayNoHostsRemaining, bus.PlayEvent{Play: play.Name})
			}
			break
		}

		name := handler.Name
		hosts := notified.Hosts(name)
		if len(hosts) == 0 {
			continue
		}

		b.tqm.Callback().PlaybookOnHandlerTaskStart(name)
		if eb := b.tqm.Bus(); eb != nil {
			eb.Publish(bus.TopicHandlerStarted, bus.HandlerEvent{Name: name})
		}

		for _, hostName := range hosts {
			if b.tqm.FailedHosts().Contains(hostName) || b.tqm.UnreachableHosts().Contains(hostName) {
				continue
			}
			if handler.HasTriggered(hostName) {
				continue
			}
			host := b.tqm.Inventory().Get(hostName)
			if host == nil {
				continue
			}
			b.tqm.BlockedHosts().Add(hostName)
			if err := b.tqm.QueueHandler(ctx, play, host, handler, b.varMgr, playCtx); err != nil {
				return err
			}
			handler.FlagForHost(hostName)
		}

		b.tqm.JobQueue().Join()
		b.tqm.ResultQueue().Join()

		// The list is reassigned whole, not mutated in place.
		notified.Clear(name)
	}
	return nil
}
