package executor

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
)

func writeModule(t *testing.T, dir, name, script string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755); err != nil {
		t.Fatalf("write module %s: %v", name, err)
	}
}

func runFile(t *testing.T, paths []string, action string, args map[string]any) (Result, error) {
	t.Helper()
	host := inventory.NewHost("web01", nil)
	task := &playbook.Task{Name: action, Action: action, Args: args}
	return Local{}.Run(t.Context(), host, task, map[string]any{"color": "blue"}, PlayContext{ModulePaths: paths})
}

func TestFileModule_RunsAndParsesResult(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell modules are not runnable on windows")
	}
	dir := t.TempDir()
	// Echo the input back inside the result so the stdin contract is
	// covered too.
	writeModule(t, dir, "greet", `#!/bin/sh
input=$(cat)
printf '{"changed": true, "msg": "hello", "echoed": %s}' "$input"
`)

	res, err := runFile(t, []string{dir}, "greet", map[string]any{"who": "world"})
	if err != nil {
		t.Fatalf("greet: %v", err)
	}
	if res["changed"] != true || res["msg"] != "hello" {
		t.Fatalf("result = %v", res)
	}
	echoed, ok := res["echoed"].(map[string]any)
	if !ok {
		t.Fatalf("echoed type = %T", res["echoed"])
	}
	if echoed["host"] != "web01" {
		t.Fatalf("module input host = %v", echoed["host"])
	}
	if args, ok := echoed["args"].(map[string]any); !ok || args["who"] != "world" {
		t.Fatalf("module input args = %v", echoed["args"])
	}
	if vars, ok := echoed["vars"].(map[string]any); !ok || vars["color"] != "blue" {
		t.Fatalf("module input vars = %v", echoed["vars"])
	}
}

func TestFileModule_FirstPathWins(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell modules are not runnable on windows")
	}
	dir1, dir2 := t.TempDir(), t.TempDir()
	writeModule(t, dir1, "pick", `#!/bin/sh
printf '{"msg": "first"}'
`)
	writeModule(t, dir2, "pick", `#!/bin/sh
printf '{"msg": "second"}'
`)

	res, err := runFile(t, []string{dir1, dir2}, "pick", nil)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if res["msg"] != "first" {
		t.Fatalf("msg = %v, want first (path order)", res["msg"])
	}
}

func TestFileModule_BuiltinsWin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell modules are not runnable on windows")
	}
	dir := t.TempDir()
	writeModule(t, dir, "ping", `#!/bin/sh
printf '{"ping": "file"}'
`)

	res, err := runFile(t, []string{dir}, "ping", nil)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if res["ping"] != "pong" {
		t.Fatalf("ping = %v, built-in module must shadow file modules", res["ping"])
	}
}

func TestFileModule_NonExecutableIgnored(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plain"), []byte(`{"msg":"x"}`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := runFile(t, []string{dir}, "plain", nil); err == nil {
		t.Fatal("non-executable file must not resolve as a module")
	}
}

func TestFileModule_FailureSurfacesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell modules are not runnable on windows")
	}
	dir := t.TempDir()
	writeModule(t, dir, "broken", `#!/bin/sh
echo "disk on fire" >&2
exit 3
`)

	_, err := runFile(t, []string{dir}, "broken", nil)
	if err == nil {
		t.Fatal("failing module must return an error")
	}
	if got := err.Error(); !containsAll(got, "broken", "disk on fire") {
		t.Fatalf("error = %q, want module name and stderr", got)
	}
}

func TestFileModule_PathTraversalRejected(t *testing.T) {
	if _, ok := findFileModule("../evil", []string{t.TempDir()}); ok {
		t.Fatal("path-separated action names must not resolve")
	}
	if _, ok := findFileModule("", []string{t.TempDir()}); ok {
		t.Fatal("empty action name must not resolve")
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
