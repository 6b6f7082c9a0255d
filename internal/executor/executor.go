package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
)

// ErrConnectionFailure marks a host that could not be contacted. Workers
// translate it into an unreachable result instead of a failure.
var ErrConnectionFailure = errors.New("connection failure")

// Result is the raw outcome of one module invocation. The engine reads the
// recognized keys (changed, failed, unreachable, skipped, msg, exception)
// and passes everything else through to callbacks untouched.
type Result map[string]any

// PlayContext carries the play-level execution settings a worker needs:
// connection choice, remote user, timeout. It travels serialized on the job.
type PlayContext struct {
	Connection string `json:"connection"`
	RemoteUser string `json:"remote_user"`
	TimeoutSec int    `json:"timeout_sec"`
	Verbosity  int    `json:"verbosity"`

	// ModulePaths are the search paths for file-backed modules. They ride
	// the job tuple so a worker resolves modules the same way the
	// controller would.
	ModulePaths []string `json:"module_paths,omitempty"`
}

// TaskExecutor runs one task against one host and returns its result map.
// Implementations own any per-task timeout; the engine applies none.
type TaskExecutor interface {
	Run(ctx context.Context, host *inventory.Host, task *playbook.Task, taskVars map[string]any, playCtx PlayContext) (Result, error)
}

// ModuleFunc is an in-process module implementation.
type ModuleFunc func(ctx context.Context, host *inventory.Host, args map[string]any, taskVars map[string]any) (Result, error)

var (
	modulesMu sync.RWMutex
	modules   = make(map[string]ModuleFunc)
)

// RegisterModule adds a module to the registry. Later registrations of the
// same name win, so tests can shadow built-ins.
func RegisterModule(name string, fn ModuleFunc) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules[name] = fn
}

// ModuleNames returns the registered module names, sorted.
func ModuleNames() []string {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Local dispatches task actions to registered in-process modules, falling
// back to executable file modules found on the play context's module
// paths. It is the executor used by the shipped binary and by tests;
// remote transports plug in behind the same interface.
type Local struct{}

// Run looks up the task's action and invokes the module. Built-in modules
// win; otherwise each directory in playCtx.ModulePaths is searched for an
// executable named after the action.
func (Local) Run(ctx context.Context, host *inventory.Host, task *playbook.Task, taskVars map[string]any, playCtx PlayContext) (Result, error) {
	modulesMu.RLock()
	fn, ok := modules[task.Action]
	modulesMu.RUnlock()
	if ok {
		return fn(ctx, host, task.Args, taskVars)
	}
	if path, ok := findFileModule(task.Action, playCtx.ModulePaths); ok {
		return runFileModule(ctx, path, host, task.Args, taskVars)
	}
	return nil, fmt.Errorf("unknown module %q (searched %d module paths)", task.Action, len(playCtx.ModulePaths))
}
