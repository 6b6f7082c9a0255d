package runner

import (
	"context"
	"fmt"

	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
	"github.com/basket/armada/internal/vars"
)

// PlaybookExecutor consumes a playbook play by play, splitting each play's
// hosts into serial batches and driving the queue manager once per batch.
// Batch N must reach completion before batch N+1 starts.
type PlaybookExecutor struct {
	inv *inventory.Inventory
	tqm *TaskQueueManager
}

// NewPlaybookExecutor binds an executor to an inventory and queue manager.
func NewPlaybookExecutor(inv *inventory.Inventory, tqm *TaskQueueManager) *PlaybookExecutor {
	return &PlaybookExecutor{inv: inv, tqm: tqm}
}

// Run executes all plays in order. A play whose selector matches no hosts
// fires the no-hosts-matched callback and is skipped with no queue
// activity; infrastructure failures abort the run.
func (pe *PlaybookExecutor) Run(ctx context.Context, pb *playbook.Playbook, varMgr vars.Manager) error {
	for _, play := range pb.Plays {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		pe.inv.RemoveRestriction()

		batches := pe.serializedBatches(play)
		if len(batches) == 0 {
			pe.tqm.Callback().PlaybookOnNoHostsMatched()
			continue
		}
		for _, batch := range batches {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if len(batch) == 0 {
				return fmt.Errorf("play %q: %w", play.Name, ErrNoHostsMatched)
			}
			pe.inv.RestrictToHosts(batch)
			if err := pe.tqm.Run(ctx, play, varMgr); err != nil {
				return err
			}
		}
		pe.inv.RemoveRestriction()
	}
	return nil
}

// serializedBatches splits the play's matched hosts into batches of the
// play's serial width. Serial zero yields one batch with every host.
func (pe *PlaybookExecutor) serializedBatches(play *playbook.Play) [][]*inventory.Host {
	all := pe.inv.FilterHosts(play.Hosts)
	if len(all) == 0 {
		return nil
	}
	size := play.Serial.BatchSize(len(all))
	if size <= 0 {
		return [][]*inventory.Host{all}
	}
	var batches [][]*inventory.Host
	for start := 0; start < len(all); start += size {
		end := start + size
		if end > len(all) {
			end = len(all)
		}
		batches = append(batches, all[start:end])
	}
	return batches
}
