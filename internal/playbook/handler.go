package playbook

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Handler is a task that only runs when notified by name. It carries a
// per-host triggered flag so one play flushes each handler at most once per
// notifying host.
type Handler struct {
	Task

	mu        sync.Mutex
	triggered map[string]bool
}

// HasTriggered reports whether this handler already ran for the named host
// in the current play.
func (h *Handler) HasTriggered(hostName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.triggered[hostName]
}

// FlagForHost marks the handler as triggered for the named host.
func (h *Handler) FlagForHost(hostName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.triggered == nil {
		h.triggered = make(map[string]bool)
	}
	h.triggered[hostName] = true
}

// ResetTriggers clears all per-host trigger flags. Called at the start of
// each play run so flags from an earlier run of the same play are dropped.
func (h *Handler) ResetTriggers() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.triggered = nil
}

// Serialize renders the handler into its canonical wire form, marked so the
// worker rebuilds a handler rather than a plain task.
func (h *Handler) Serialize() ([]byte, error) {
	return json.Marshal(taskWire{
		UUID:      h.UUID,
		Name:      h.Name,
		Action:    h.Action,
		Args:      h.Args,
		Notify:    h.Notify,
		When:      h.When,
		Tags:      h.Tags,
		IsHandler: true,
	})
}

// DeserializeHandler decodes a handler from its wire form.
func DeserializeHandler(data []byte) (*Handler, error) {
	var w taskWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("deserialize handler: %w", err)
	}
	h := &Handler{Task: Task{
		UUID:   w.UUID,
		Name:   w.Name,
		Action: w.Action,
		Args:   w.Args,
		Notify: w.Notify,
		When:   w.When,
		Tags:   w.Tags,
	}}
	return h, nil
}
