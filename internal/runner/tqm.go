package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/basket/armada/internal/bus"
	"github.com/basket/armada/internal/callback"
	"github.com/basket/armada/internal/executor"
	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
	"github.com/basket/armada/internal/vars"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Strategy decides which host advances to which task and when. Implementations
// are registered by name and resolved per play.
type Strategy interface {
	Run(ctx context.Context, it *PlayIterator, playCtx executor.PlayContext) error
}

// StrategyFactory builds a strategy bound to a queue manager and variable
// manager for the duration of one play.
type StrategyFactory func(tqm *TaskQueueManager, varMgr vars.Manager) Strategy

var (
	strategiesMu sync.RWMutex
	strategies   = make(map[string]StrategyFactory)
)

// RegisterStrategy adds a strategy plugin to the registry. Strategy packages
// register themselves from init, the way database drivers do.
func RegisterStrategy(name string, factory StrategyFactory) {
	strategiesMu.Lock()
	defer strategiesMu.Unlock()
	strategies[name] = factory
}

// StrategyNames returns the registered strategy names, sorted.
func StrategyNames() []string {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupStrategy(name string) (StrategyFactory, bool) {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()
	factory, ok := strategies[name]
	return factory, ok
}

// Options configures a TaskQueueManager.
type Options struct {
	// Forks is the worker pool size. Defaults to 5.
	Forks int
	// Callback receives lifecycle events. Defaults to a no-op callback.
	Callback callback.Callback
	// Executor runs tasks. Defaults to the in-process module executor.
	Executor executor.TaskExecutor
	// Logger is the engine logger. Defaults to slog.Default().
	Logger *slog.Logger
	// Bus, when set, receives lifecycle events alongside the callback.
	Bus *bus.Bus
	// ModulePaths ride every job so workers resolve modules consistently.
	ModulePaths []string
	// Tracer records a span per play and per queued task. Defaults to a
	// no-op tracer.
	Tracer trace.Tracer
	// Stdin is the controller's stdin, handed to at most one worker when it
	// is a terminal. Defaults to os.Stdin.
	Stdin *os.File
}

// TaskQueueManager owns the worker pool, the job and result queues, and the
// shared host-state containers. It drives one play at a time through the
// play's strategy plugin.
type TaskQueueManager struct {
	inventory *inventory.Inventory
	forks     int

	jobQueue    *Queue[*workerJob]
	resultQueue *Queue[*TaskResult]

	blocked     *HostSet
	failed      *HostSet
	unreachable *HostSet
	notified    *NotifiedHandlers

	callback    callback.Callback
	exec        executor.TaskExecutor
	logger      *slog.Logger
	eventBus    *bus.Bus
	varsStore   *vars.Store
	modulePaths []string
	tracer      trace.Tracer

	workers   []*worker
	workersWG sync.WaitGroup
	processor *resultProcessor
}

// New builds the queue manager and starts its permanent pool: Forks workers
// plus one result processor, all bound to the queues for life. The context
// bounds the workers: once it is canceled, each worker stops executing
// tasks and reports every job it still receives as a canceled failure until
// its sentinel arrives, so a fatal signal to the controller propagates
// shutdown cooperatively instead of abandoning the pool.
func New(ctx context.Context, inv *inventory.Inventory, opts Options) *TaskQueueManager {
	if opts.Forks <= 0 {
		opts.Forks = 5
	}
	if opts.Callback == nil {
		opts.Callback = callback.Nop{}
	}
	if opts.Executor == nil {
		opts.Executor = executor.Local{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = nooptrace.NewTracerProvider().Tracer("armada")
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}

	tqm := &TaskQueueManager{
		inventory:   inv,
		forks:       opts.Forks,
		jobQueue:    NewQueue[*workerJob](opts.Forks),
		resultQueue: NewQueue[*TaskResult](0),
		blocked:     NewHostSet(),
		failed:      NewHostSet(),
		unreachable: NewHostSet(),
		notified:    NewNotifiedHandlers(),
		callback:    opts.Callback,
		exec:        opts.Executor,
		logger:      opts.Logger,
		eventBus:    opts.Bus,
		varsStore:   vars.NewStore(),
		modulePaths: opts.ModulePaths,
		tracer:      opts.Tracer,
	}

	// At most one worker inherits the controller's stdin, and only when it
	// is a terminal; the rest get nothing. This keeps interactive prompts
	// coherent.
	var interactive io.Reader
	if isatty.IsTerminal(opts.Stdin.Fd()) {
		interactive = opts.Stdin
	}

	for i := 0; i < opts.Forks; i++ {
		w := &worker{
			id:          i,
			jobQueue:    tqm.jobQueue,
			resultQueue: tqm.resultQueue,
			exec:        tqm.exec,
			varsStore:   tqm.varsStore,
			logger:      tqm.logger,
		}
		if i == 0 {
			w.stdin = interactive
		}
		tqm.workers = append(tqm.workers, w)
		tqm.workersWG.Add(1)
		go func() {
			defer tqm.workersWG.Done()
			w.run(ctx)
		}()
	}

	tqm.processor = &resultProcessor{
		resultQueue: tqm.resultQueue,
		jobQueue:    tqm.jobQueue,
		blocked:     tqm.blocked,
		failed:      tqm.failed,
		unreachable: tqm.unreachable,
		notified:    tqm.notified,
		callback:    tqm.callback,
		eventBus:    tqm.eventBus,
		logger:      tqm.logger,
		done:        make(chan struct{}),
	}
	go tqm.processor.run()

	return tqm
}

// Run drives one play to completion under its strategy. Shared dictionaries
// are reset; iteration state is freshly allocated per host.
func (tqm *TaskQueueManager) Run(ctx context.Context, play *playbook.Play, varMgr vars.Manager) error {
	ctx, span := tqm.tracer.Start(ctx, "play.run",
		trace.WithAttributes(attribute.String("play.name", play.Name)))
	defer span.End()

	tqm.callback.PlaybookOnPlayStart(play.Name)
	if tqm.eventBus != nil {
		tqm.eventBus.Publish(bus.TopicPlayStarted, bus.PlayEvent{
			Play:  play.Name,
			Hosts: len(tqm.inventory.FilterHosts(play.Hosts)),
		})
	}

	tqm.blocked.Clear()
	tqm.failed.Clear()
	tqm.unreachable.Clear()
	tqm.initNotifiedHandlers(play)

	factory, ok := lookupStrategy(play.Strategy)
	if !ok {
		return fmt.Errorf("%w: %q (registered: %v)", ErrInvalidStrategy, play.Strategy, StrategyNames())
	}
	strategy := factory(tqm, varMgr)

	it := NewPlayIterator(tqm.inventory, play)
	playCtx := executor.PlayContext{
		Connection:  "local",
		ModulePaths: tqm.modulePaths,
	}

	if err := strategy.Run(ctx, it, playCtx); err != nil {
		return fmt.Errorf("play %q: %w", play.Name, err)
	}
	if tqm.eventBus != nil {
		tqm.eventBus.Publish(bus.TopicPlayCompleted, bus.PlayEvent{Play: play.Name})
	}
	return nil
}

// initNotifiedHandlers seeds an empty notification list for every handler
// the play declares, and clears trigger flags left from a previous run of
// the same play object.
func (tqm *TaskQueueManager) initNotifiedHandlers(play *playbook.Play) {
	names := make([]string, 0, len(play.Handlers))
	for _, h := range play.Handlers {
		names = append(names, h.Name)
		h.ResetTriggers()
	}
	tqm.notified.Init(names)
}

// Shutdown retires the pool: one sentinel per worker, then wait for the
// workers rather than a queue join, so a worker that hard-exited earlier
// (leaving its sentinel unconsumed) cannot hang the controller. The result
// queue drains fully before the processor goes away. The manager is
// unusable afterwards.
func (tqm *TaskQueueManager) Shutdown() {
	for range tqm.workers {
		tqm.jobQueue.Put(sentinelJob())
	}
	tqm.workersWG.Wait()
	tqm.resultQueue.Join()
	tqm.jobQueue.Close()
	tqm.resultQueue.Close()
	<-tqm.processor.done
}

// Accessors used by strategy plugins.

func (tqm *TaskQueueManager) Inventory() *inventory.Inventory    { return tqm.inventory }
func (tqm *TaskQueueManager) JobQueue() *Queue[*workerJob]       { return tqm.jobQueue }
func (tqm *TaskQueueManager) ResultQueue() *Queue[*TaskResult]   { return tqm.resultQueue }
func (tqm *TaskQueueManager) BlockedHosts() *HostSet             { return tqm.blocked }
func (tqm *TaskQueueManager) FailedHosts() *HostSet              { return tqm.failed }
func (tqm *TaskQueueManager) UnreachableHosts() *HostSet         { return tqm.unreachable }
func (tqm *TaskQueueManager) NotifiedHandlers() *NotifiedHandlers { return tqm.notified }
func (tqm *TaskQueueManager) Callback() callback.Callback        { return tqm.callback }
func (tqm *TaskQueueManager) Logger() *slog.Logger               { return tqm.logger }
func (tqm *TaskQueueManager) Bus() *bus.Bus                      { return tqm.eventBus }
func (tqm *TaskQueueManager) Tracer() trace.Tracer               { return tqm.tracer }

// QueueTask resolves vars for (play, host, task), stages them, and places
// the job on the job queue.
func (tqm *TaskQueueManager) QueueTask(ctx context.Context, play *playbook.Play, host *inventory.Host, task *playbook.Task, varMgr vars.Manager, playCtx executor.PlayContext) error {
	payload, err := task.Serialize()
	if err != nil {
		return err
	}
	return tqm.queuePayload(ctx, play, host, payload, task.DisplayName(), task, varMgr, playCtx)
}

// QueueHandler places a notified handler on the job queue. The payload
// carries the handler marker so the worker rebuilds the right type.
func (tqm *TaskQueueManager) QueueHandler(ctx context.Context, play *playbook.Play, host *inventory.Host, handler *playbook.Handler, varMgr vars.Manager, playCtx executor.PlayContext) error {
	payload, err := handler.Serialize()
	if err != nil {
		return err
	}
	return tqm.queuePayload(ctx, play, host, payload, handler.DisplayName(), &handler.Task, varMgr, playCtx)
}

func (tqm *TaskQueueManager) queuePayload(ctx context.Context, play *playbook.Play, host *inventory.Host, taskPayload []byte, taskName string, task *playbook.Task, varMgr vars.Manager, playCtx executor.PlayContext) error {
	_, span := tqm.tracer.Start(ctx, "task.queue",
		trace.WithAttributes(
			attribute.String("task.name", taskName),
			attribute.String("host.name", host.Name()),
		))
	defer span.End()

	taskVars := map[string]any{}
	if varMgr != nil {
		taskVars = varMgr.GetVars(play, host, task)
	}
	location, err := tqm.varsStore.Stage(taskVars)
	if err != nil {
		return err
	}
	hostPayload, err := host.Serialize()
	if err != nil {
		return err
	}
	job, err := newWorkerJob(hostPayload, taskPayload, location, playCtx, tqm.modulePaths)
	if err != nil {
		return err
	}
	if !tqm.jobQueue.Put(job) {
		return fmt.Errorf("%w: job queue closed", ErrTransport)
	}
	if tqm.eventBus != nil {
		tqm.eventBus.Publish(bus.TopicTaskQueued, bus.TaskEvent{
			Play: play.Name,
			Task: taskName,
			Host: host.Name(),
		})
	}
	return nil
}
