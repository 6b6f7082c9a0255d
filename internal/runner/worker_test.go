package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/basket/armada/internal/executor"
	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
	"github.com/basket/armada/internal/vars"
)

type fakeExec struct {
	fn func(host *inventory.Host, task *playbook.Task, taskVars map[string]any) (executor.Result, error)
}

func (f fakeExec) Run(_ context.Context, host *inventory.Host, task *playbook.Task, taskVars map[string]any, _ executor.PlayContext) (executor.Result, error) {
	return f.fn(host, task, taskVars)
}

type workerHarness struct {
	jobs    *Queue[*workerJob]
	results *Queue[*TaskResult]
	store   *vars.Store
	done    chan struct{}
}

func startWorker(t *testing.T, exec executor.TaskExecutor) *workerHarness {
	t.Helper()
	h := &workerHarness{
		jobs:    NewQueue[*workerJob](0),
		results: NewQueue[*TaskResult](0),
		store:   vars.NewStore(),
		done:    make(chan struct{}),
	}
	w := &worker{
		id:          0,
		jobQueue:    h.jobs,
		resultQueue: h.results,
		exec:        exec,
		varsStore:   h.store,
		logger:      slog.New(slog.DiscardHandler),
	}
	go func() {
		defer close(h.done)
		w.run(context.Background())
	}()
	t.Cleanup(func() {
		h.jobs.Close()
		h.results.Close()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Error("worker did not exit")
		}
	})
	return h
}

func (h *workerHarness) putJob(t *testing.T, taskVars map[string]any) {
	t.Helper()
	host := inventory.NewHost("web01", nil)
	hostPayload, err := host.Serialize()
	if err != nil {
		t.Fatalf("serialize host: %v", err)
	}
	task := &playbook.Task{UUID: "u1", Name: "t", Action: "x"}
	taskPayload, err := task.Serialize()
	if err != nil {
		t.Fatalf("serialize task: %v", err)
	}
	loc, err := h.store.Stage(taskVars)
	if err != nil {
		t.Fatalf("stage vars: %v", err)
	}
	job, err := newWorkerJob(hostPayload, taskPayload, loc, executor.PlayContext{Connection: "local"}, nil)
	if err != nil {
		t.Fatalf("newWorkerJob: %v", err)
	}
	h.jobs.Put(job)
}

func (h *workerHarness) getResult(t *testing.T) *TaskResult {
	t.Helper()
	type got struct {
		res *TaskResult
		ok  bool
	}
	ch := make(chan got, 1)
	go func() {
		res, ok := h.results.Get()
		ch <- got{res, ok}
	}()
	select {
	case g := <-ch:
		if !g.ok {
			t.Fatal("result queue closed")
		}
		return g.res
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for result")
		return nil
	}
}

func TestWorker_OKResult(t *testing.T) {
	h := startWorker(t, fakeExec{fn: func(host *inventory.Host, task *playbook.Task, taskVars map[string]any) (executor.Result, error) {
		if host.Name() != "web01" || task.UUID != "u1" {
			t.Errorf("job decoded wrong: host %s task %s", host.Name(), task.UUID)
		}
		if taskVars["k"] != "v" {
			t.Errorf("vars = %v", taskVars)
		}
		return executor.Result{"changed": true, "msg": "done"}, nil
	}})

	h.putJob(t, map[string]any{"k": "v"})
	res := h.getResult(t)
	if res.Host != "web01" || res.TaskUUID != "u1" {
		t.Fatalf("result identity = %s/%s", res.Host, res.TaskUUID)
	}
	if !res.Changed() || res.IsFailed() {
		t.Fatalf("result = %v", res.Result)
	}
	if h.store.Len() != 0 {
		t.Fatal("vars location must be consumed")
	}
}

func TestWorker_ConnectionFailureBecomesUnreachable(t *testing.T) {
	h := startWorker(t, fakeExec{fn: func(*inventory.Host, *playbook.Task, map[string]any) (executor.Result, error) {
		return nil, fmt.Errorf("dial tcp: %w", executor.ErrConnectionFailure)
	}})

	h.putJob(t, nil)
	res := h.getResult(t)
	if !res.IsUnreachable() {
		t.Fatalf("result = %v, want unreachable", res.Result)
	}
	if res.IsFailed() {
		t.Fatal("connection failure must not count as failed")
	}
}

func TestWorker_ExecutorErrorBecomesFailed(t *testing.T) {
	h := startWorker(t, fakeExec{fn: func(*inventory.Host, *playbook.Task, map[string]any) (executor.Result, error) {
		return nil, fmt.Errorf("module blew up")
	}})

	h.putJob(t, nil)
	res := h.getResult(t)
	if !res.IsFailed() {
		t.Fatalf("result = %v, want failed", res.Result)
	}
}

func TestWorker_PanicEmitsFailedResultAndStops(t *testing.T) {
	h := startWorker(t, fakeExec{fn: func(*inventory.Host, *playbook.Task, map[string]any) (executor.Result, error) {
		panic("third-party module corrupted state")
	}})

	h.putJob(t, nil)
	res := h.getResult(t)
	if !res.IsFailed() {
		t.Fatalf("result = %v, want failed", res.Result)
	}
	if exc, _ := res.Result["exception"].(string); exc == "" {
		t.Fatal("panic result must carry the exception trace")
	}

	// The worker is no longer trusted and must have exited its loop.
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("worker should terminate after a fault")
	}
}

func TestWorker_SentinelStopsWorker(t *testing.T) {
	h := startWorker(t, fakeExec{fn: func(*inventory.Host, *playbook.Task, map[string]any) (executor.Result, error) {
		return executor.Result{}, nil
	}})

	h.jobs.Put(sentinelJob())
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("worker should exit on sentinel")
	}
	// The sentinel is acknowledged by the worker itself.
	joined := make(chan struct{})
	go func() {
		h.jobs.Join()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("sentinel must be acked so Join completes")
	}
}

func TestWorker_CanceledContextFlushesJobs(t *testing.T) {
	h := &workerHarness{
		jobs:    NewQueue[*workerJob](0),
		results: NewQueue[*TaskResult](0),
		store:   vars.NewStore(),
		done:    make(chan struct{}),
	}
	w := &worker{
		id:          0,
		jobQueue:    h.jobs,
		resultQueue: h.results,
		exec: fakeExec{fn: func(*inventory.Host, *playbook.Task, map[string]any) (executor.Result, error) {
			t.Error("executor must not run after cancellation")
			return nil, nil
		}},
		varsStore: h.store,
		logger:    slog.New(slog.DiscardHandler),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go func() {
		defer close(h.done)
		w.run(ctx)
	}()
	t.Cleanup(func() {
		h.jobs.Close()
		h.results.Close()
		<-h.done
	})

	h.putJob(t, map[string]any{"k": "v"})
	res := h.getResult(t)
	if !res.IsFailed() {
		t.Fatalf("result = %v, want canceled failure", res.Result)
	}
	if msg, _ := res.Result["msg"].(string); !strings.Contains(msg, "canceled") {
		t.Fatalf("msg = %q, want cancellation notice", msg)
	}
	if h.store.Len() != 0 {
		t.Fatal("vars location must still be consumed on cancellation")
	}

	// The worker keeps draining until its sentinel arrives.
	h.jobs.Put(sentinelJob())
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("worker should exit on sentinel after cancellation")
	}
}

func TestWorker_VarsConsumedExactlyOnce(t *testing.T) {
	h := startWorker(t, fakeExec{fn: func(*inventory.Host, *playbook.Task, map[string]any) (executor.Result, error) {
		return executor.Result{}, nil
	}})
	h.putJob(t, map[string]any{"once": true})
	h.getResult(t)
	if h.store.Len() != 0 {
		t.Fatalf("staged entries = %d, want 0 after execution", h.store.Len())
	}
}
