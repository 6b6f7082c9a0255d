package executor

import (
	"context"
	"fmt"

	"github.com/basket/armada/internal/inventory"
)

func init() {
	RegisterModule("debug", debugModule)
	RegisterModule("ping", pingModule)
	RegisterModule("fail", failModule)
	RegisterModule("setup", setupModule)
	RegisterModule("set_fact", setFactModule)
}

// debugModule prints a message through the result; it never changes a host.
func debugModule(_ context.Context, _ *inventory.Host, args map[string]any, taskVars map[string]any) (Result, error) {
	msg := "Hello world!"
	if m, ok := args["msg"]; ok {
		msg = fmt.Sprintf("%v", m)
	} else if v, ok := args["var"]; ok {
		name := fmt.Sprintf("%v", v)
		msg = fmt.Sprintf("%s = %v", name, taskVars[name])
	}
	return Result{"changed": false, "msg": msg}, nil
}

// pingModule answers pong. With data: crash it simulates a connection loss
// on every host, mirroring the classic test module; crash_hosts (without
// data: crash) simulates the loss only on the named hosts.
func pingModule(_ context.Context, host *inventory.Host, args map[string]any, _ map[string]any) (Result, error) {
	if d, ok := args["data"]; ok && fmt.Sprintf("%v", d) == "crash" {
		return nil, fmt.Errorf("host dropped connection: %w", ErrConnectionFailure)
	}
	if names, ok := args["crash_hosts"].([]any); ok && host != nil {
		for _, n := range names {
			if fmt.Sprintf("%v", n) == host.Name() {
				return nil, fmt.Errorf("host dropped connection: %w", ErrConnectionFailure)
			}
		}
	}
	return Result{"changed": false, "ping": "pong"}, nil
}

// failModule fails unconditionally, or conditionally per host via the
// "hosts" arg (list of host names that should fail). Used to drive rescue
// and always branches in plays and tests.
func failModule(_ context.Context, host *inventory.Host, args map[string]any, _ map[string]any) (Result, error) {
	if names, ok := args["hosts"].([]any); ok {
		failed := false
		for _, n := range names {
			if host != nil && fmt.Sprintf("%v", n) == host.Name() {
				failed = true
				break
			}
		}
		if !failed {
			return Result{"changed": false, "msg": "not failing here"}, nil
		}
	}
	msg := "Failed as requested from task"
	if m, ok := args["msg"]; ok {
		msg = fmt.Sprintf("%v", m)
	}
	return Result{"failed": true, "msg": msg}, nil
}

// setupModule gathers facts. The local executor has no remote host to probe,
// so it reports the host vars as facts.
func setupModule(_ context.Context, host *inventory.Host, _ map[string]any, _ map[string]any) (Result, error) {
	facts := map[string]any{}
	if host != nil {
		for k, v := range host.Vars() {
			facts[k] = v
		}
	}
	return Result{"changed": false, "facts": facts}, nil
}

// setFactModule echoes its args back as facts.
func setFactModule(_ context.Context, _ *inventory.Host, args map[string]any, _ map[string]any) (Result, error) {
	facts := make(map[string]any, len(args))
	for k, v := range args {
		facts[k] = v
	}
	return Result{"changed": false, "facts": facts}, nil
}
