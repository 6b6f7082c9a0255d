package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/basket/armada/internal/executor"
	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
	"github.com/basket/armada/internal/vars"
)

// WorkerExitCode is the process exit code used when a fault reaches a
// worker's top frame. Worker code runs third-party modules; a fault that
// escapes the per-job recovery boundary must never unwind into the
// orchestrator.
const WorkerExitCode = 1

// exitFunc is a package variable so a test can replace it and keep a
// top-frame fault from killing the test process.
var exitFunc = os.Exit

// worker pulls jobs off the job queue, runs them through the task executor,
// and pushes results onto the result queue. Workers are bound to their
// queues at creation and live until they receive a sentinel or fault.
type worker struct {
	id          int
	jobQueue    *Queue[*workerJob]
	resultQueue *Queue[*TaskResult]
	exec        executor.TaskExecutor
	varsStore   *vars.Store
	stdin       io.Reader
	logger      *slog.Logger
}

// run is the worker loop. It exits on sentinel receipt, queue closure, or
// an unrecoverable fault. No panic may escape this frame: the outer recover
// terminates the process rather than let a fault unwind into the
// orchestrator with unknown state on the stack.
func (w *worker) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "worker %d: fault escaped job boundary: %v\n%s", w.id, r, debug.Stack())
			exitFunc(WorkerExitCode)
		}
	}()

	if w.stdin != nil {
		ctx = executor.WithStdin(ctx, w.stdin)
	}

	for {
		job, ok := w.jobQueue.Get()
		if !ok {
			// Queue transport is gone; nothing to report to.
			return
		}
		if job.sentinel {
			w.jobQueue.TaskDone()
			return
		}
		// Shutdown is cooperative: once the controller context is canceled
		// the worker stops executing, but it still flushes each remaining
		// job as a canceled failure so queue joins complete and the
		// strategy can unwind.
		if ctx.Err() != nil {
			w.cancelOne(ctx, job)
			continue
		}
		if !w.runOne(ctx, job) {
			return
		}
	}
}

// cancelOne disposes of a job without executing it: the vars location is
// still consumed and a failed result reports the cancellation.
func (w *worker) cancelOne(ctx context.Context, job *workerJob) {
	hostName := ""
	if host, err := inventory.DeserializeHost(job.hostPayload); err == nil {
		hostName = host.Name()
	}
	_, _ = w.varsStore.Take(job.varsLocation)
	w.resultQueue.Put(&TaskResult{
		Host:        hostName,
		TaskPayload: job.taskPayload,
		Result: executor.Result{
			"failed": true,
			"msg":    fmt.Sprintf("task canceled: %v", ctx.Err()),
		},
	})
}

// runOne executes a single job. It reports false when the worker must
// terminate (an unknown fault was converted into a failed result; the
// worker is no longer trusted to continue).
func (w *worker) runOne(ctx context.Context, job *workerJob) (keepGoing bool) {
	var host *inventory.Host

	defer func() {
		if r := recover(); r != nil {
			hostName := ""
			if host != nil {
				hostName = host.Name()
			}
			w.logger.Error("worker_fault",
				slog.Int("worker", w.id),
				slog.String("host", hostName),
				slog.String("panic", fmt.Sprintf("%v", r)),
			)
			w.resultQueue.Put(&TaskResult{
				Host:        hostName,
				TaskPayload: job.taskPayload,
				Result: executor.Result{
					"failed":    true,
					"exception": fmt.Sprintf("%v\n%s", r, debug.Stack()),
				},
			})
			keepGoing = false
		}
	}()

	host, task, err := w.decodeJob(job)
	if err != nil {
		w.resultQueue.Put(&TaskResult{
			Host:        hostNameOf(host),
			TaskPayload: job.taskPayload,
			Result:      executor.Result{"failed": true, "exception": err.Error()},
		})
		return false
	}

	// The vars location is consumed exactly once; after this the key is
	// gone regardless of how the task turns out.
	taskVars, err := w.varsStore.Take(job.varsLocation)
	if err != nil {
		w.resultQueue.Put(&TaskResult{
			Host:        host.Name(),
			TaskUUID:    task.UUID,
			TaskPayload: job.taskPayload,
			Result:      executor.Result{"failed": true, "exception": err.Error()},
		})
		return false
	}

	playCtx, err := job.playContext()
	if err != nil {
		w.resultQueue.Put(&TaskResult{
			Host:        host.Name(),
			TaskUUID:    task.UUID,
			TaskPayload: job.taskPayload,
			Result:      executor.Result{"failed": true, "exception": err.Error()},
		})
		return false
	}
	playCtx.ModulePaths = append(playCtx.ModulePaths, job.pluginPaths...)

	result, err := w.exec.Run(ctx, host, task, taskVars, playCtx)
	switch {
	case errors.Is(err, executor.ErrConnectionFailure):
		result = executor.Result{"unreachable": true, "msg": err.Error()}
	case err != nil:
		// A module returning an error (rather than failed:true in its
		// result) is still per-host data, not a worker fault.
		result = executor.Result{"failed": true, "msg": err.Error()}
	case result == nil:
		result = executor.Result{}
	}

	w.resultQueue.Put(&TaskResult{
		Host:        host.Name(),
		TaskUUID:    task.UUID,
		TaskPayload: job.taskPayload,
		Result:      result,
	})
	return true
}

// decodeJob rebuilds the host and task (or handler) from their payloads.
func (w *worker) decodeJob(job *workerJob) (*inventory.Host, *playbook.Task, error) {
	host, err := inventory.DeserializeHost(job.hostPayload)
	if err != nil {
		return nil, nil, err
	}
	if playbook.IsHandlerPayload(job.taskPayload) {
		h, err := playbook.DeserializeHandler(job.taskPayload)
		if err != nil {
			return host, nil, err
		}
		return host, &h.Task, nil
	}
	task, err := playbook.DeserializeTask(job.taskPayload)
	if err != nil {
		return host, nil, err
	}
	return host, task, nil
}

func hostNameOf(h *inventory.Host) string {
	if h == nil {
		return ""
	}
	return h.Name()
}
