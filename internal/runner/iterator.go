package runner

import (
	"fmt"

	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
)

// RunState is the primary iteration state for one host within one play.
type RunState int

const (
	StateSetup RunState = iota
	StateTasks
	StateRescue
	StateAlways
	StateComplete
)

func (s RunState) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateTasks:
		return "tasks"
	case StateRescue:
		return "rescue"
	case StateAlways:
		return "always"
	case StateComplete:
		return "complete"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// FailedState mirrors the run state in which a host failed. The iterator
// never un-fails a host; escalation only moves forward.
type FailedState int

const (
	FailedNone FailedState = iota
	FailedSetup
	FailedTasks
	FailedRescue
	FailedAlways
)

// hostState tracks where one host is in the play's block/rescue/always
// graph. The cursor fields are the whole of the mutable state, which is
// what makes peek cheap: work on copies, store back only when not peeking.
type hostState struct {
	runState    RunState
	failedState FailedState
	taskList    []*playbook.Task
	gatherFacts bool

	curBlock     *playbook.Block
	curTaskPos   int
	curRescuePos int
	curAlwaysPos int
}

// next determines the next task for this host, advancing the state machine
// unless peek is set.
func (s *hostState) next(peek bool) *playbook.Task {
	var task *playbook.Task

	// Work on local copies so a peek leaves no trace.
	runState := s.runState
	failedState := s.failedState
	curBlock := s.curBlock
	curTaskPos := s.curTaskPos
	curRescuePos := s.curRescuePos
	curAlwaysPos := s.curAlwaysPos

loop:
	for {
		switch runState {
		case StateSetup:
			if failedState == FailedSetup {
				runState = StateComplete
				continue
			}
			runState = StateTasks
			if s.gatherFacts {
				task = playbook.NewSetupTask()
				break loop
			}

		case StateTasks:
			if failedState != FailedNone || curTaskPos > len(s.taskList)-1 {
				// The main list is done (or the host failed in it). A failed
				// host diverts into the current block's rescue; always runs
				// either way; then we stop.
				if curBlock != nil {
					if failedState != FailedNone && failedState != FailedRescue && len(curBlock.Rescue) > 0 {
						runState = StateRescue
						curRescuePos = 0
					} else if failedState != FailedAlways && len(curBlock.Always) > 0 {
						runState = StateAlways
						curAlwaysPos = 0
					} else {
						runState = StateComplete
					}
				} else {
					runState = StateComplete
				}
				continue
			}

			task = s.taskList[curTaskPos]
			if curBlock != nil && curBlock != task.Block() {
				// Leaving a block: run its always branch before touching
				// the next block's tasks. The cursor stays put so the task
				// is picked up again afterwards.
				task = nil
				runState = StateAlways
				curAlwaysPos = 0
				continue
			}
			curBlock = task.Block()
			curTaskPos++

			// Tasks from an already-run role are silently skipped unless
			// the role allows duplicates.
			if role := task.Role(); role != nil {
				if role.ShouldSkip(task.RoleUse()) {
					task = nil
					continue
				}
				if !peek {
					role.MarkRun(task.RoleUse())
				}
			}
			break loop

		case StateRescue:
			if failedState == FailedRescue || curBlock == nil || curRescuePos > len(curBlock.Rescue)-1 {
				runState = StateAlways
				curAlwaysPos = 0
				continue
			}
			task = curBlock.Rescue[curRescuePos]
			curRescuePos++
			break loop

		case StateAlways:
			if failedState == FailedAlways || curBlock == nil || curAlwaysPos > len(curBlock.Always)-1 {
				curBlock = nil
				if failedState == FailedAlways || curTaskPos > len(s.taskList)-1 {
					runState = StateComplete
				} else {
					runState = StateTasks
				}
				continue
			}
			task = curBlock.Always[curAlwaysPos]
			curAlwaysPos++
			break loop

		case StateComplete:
			task = nil
			break loop
		}
	}

	if !peek {
		s.runState = runState
		s.failedState = failedState
		s.curBlock = curBlock
		s.curTaskPos = curTaskPos
		s.curRescuePos = curRescuePos
		s.curAlwaysPos = curAlwaysPos
	}
	return task
}

// markFailed escalates the failed state to mirror the current run state.
func (s *hostState) markFailed() {
	switch s.runState {
	case StateSetup:
		s.failedState = FailedSetup
	case StateTasks:
		s.failedState = FailedTasks
	case StateRescue:
		s.failedState = FailedRescue
	case StateAlways:
		s.failedState = FailedAlways
	}
}

// PlayIterator keeps per-host iteration state for one play and hands out
// the next task for each host.
type PlayIterator struct {
	play       *playbook.Play
	hostStates map[string]*hostState
	firstHost  *inventory.Host
	hosts      []*inventory.Host
}

// NewPlayIterator builds per-host state for every inventory host matching
// the play's selector.
func NewPlayIterator(inv *inventory.Inventory, play *playbook.Play) *PlayIterator {
	it := &PlayIterator{
		play:       play,
		hostStates: make(map[string]*hostState),
	}
	taskList := play.Compile()
	for _, host := range inv.FilterHosts(play.Hosts) {
		if it.firstHost == nil {
			it.firstHost = host
		}
		it.hosts = append(it.hosts, host)
		it.hostStates[host.Name()] = &hostState{
			runState:    StateSetup,
			taskList:    taskList,
			gatherFacts: play.GatherFacts,
		}
	}
	return it
}

// Play returns the play this iterator walks.
func (it *PlayIterator) Play() *playbook.Play { return it.play }

// Hosts returns the hosts the iterator tracks, in inventory order.
func (it *PlayIterator) Hosts() []*inventory.Host { return it.hosts }

// GetNextTask returns the next task from the representative (first) host's
// state machine. Nil when the iterator is empty or the host is complete.
func (it *PlayIterator) GetNextTask(peek bool) *playbook.Task {
	if it.firstHost == nil {
		return nil
	}
	return it.hostStates[it.firstHost.Name()].next(peek)
}

// GetNextTaskForHost returns the next task for the given host.
func (it *PlayIterator) GetNextTaskForHost(host *inventory.Host, peek bool) (*playbook.Task, error) {
	state, ok := it.hostStates[host.Name()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHost, host.Name())
	}
	return state.next(peek), nil
}

// MarkHostFailed escalates the given host's failure state.
func (it *PlayIterator) MarkHostFailed(host *inventory.Host) error {
	state, ok := it.hostStates[host.Name()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidHost, host.Name())
	}
	state.markFailed()
	return nil
}

// HostState exposes a host's current run and failed states for inspection.
func (it *PlayIterator) HostState(host *inventory.Host) (RunState, FailedState, error) {
	state, ok := it.hostStates[host.Name()]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidHost, host.Name())
	}
	return state.runState, state.failedState, nil
}
