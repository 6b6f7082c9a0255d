package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/basket/armada/internal/inventory"
)

// fileModuleInput is the JSON document a file module reads from stdin.
type fileModuleInput struct {
	Host string         `json:"host"`
	Args map[string]any `json:"args,omitempty"`
	Vars map[string]any `json:"vars,omitempty"`
}

// findFileModule searches the module paths, in order, for an executable
// regular file named after the action. First hit wins.
func findFileModule(name string, paths []string) (string, bool) {
	if name == "" || filepath.Base(name) != name {
		return "", false
	}
	for _, dir := range paths {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0o111 == 0 {
			continue
		}
		return path, true
	}
	return "", false
}

// runFileModule executes a file module: task args and vars go in as JSON on
// stdin, and the module prints its result map as JSON on stdout. A non-zero
// exit or unparseable output is a module error, which the worker records as
// a per-host failure.
func runFileModule(ctx context.Context, path string, host *inventory.Host, args map[string]any, taskVars map[string]any) (Result, error) {
	input := fileModuleInput{Args: args, Vars: taskVars}
	if host != nil {
		input.Host = host.Name()
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("module %s: encode input: %w", filepath.Base(path), err)
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("module %s: %w (stderr: %s)", filepath.Base(path), err, bytes.TrimSpace(stderr.Bytes()))
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("module %s: invalid result JSON: %w", filepath.Base(path), err)
	}
	return result, nil
}
