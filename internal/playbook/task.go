package playbook

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Task is the unit of work: one module invocation against one host. Tasks
// are immutable after load; the engine only reads them.
type Task struct {
	UUID   string
	Name   string
	Action string
	Args   map[string]any
	Notify []string
	When   string
	Tags   []string

	block   *Block
	role    *Role
	roleUse int
}

func (t *Task) isBlockEntry() {}

// Block returns the block this task belongs to. Every loaded task belongs to
// exactly one block; synthesized tasks (setup) have none.
func (t *Task) Block() *Block { return t.block }

// Role returns the role that contributed this task, or nil.
func (t *Task) Role() *Role { return t.role }

// RoleUse returns the use ID of the role reference that contributed this
// task, or 0 when the task has no role.
func (t *Task) RoleUse() int { return t.roleUse }

// DisplayName returns the task name, falling back to the action.
func (t *Task) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Action
}

func (t *Task) String() string {
	return fmt.Sprintf("TASK: %s", t.DisplayName())
}

// NewSetupTask synthesizes the fact-gathering task emitted at the start of a
// play when gather_facts is set.
func NewSetupTask() *Task {
	return &Task{
		UUID:   uuid.NewString(),
		Name:   "Gathering Facts",
		Action: "setup",
	}
}

// taskWire is the deterministic serialized form of a task. Field order is
// fixed by the struct; Args marshals with sorted keys, so the same task
// always produces the same bytes.
type taskWire struct {
	UUID      string         `json:"uuid"`
	Name      string         `json:"name"`
	Action    string         `json:"action"`
	Args      map[string]any `json:"args,omitempty"`
	Notify    []string       `json:"notify,omitempty"`
	When      string         `json:"when,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	IsHandler bool           `json:"is_handler,omitempty"`
}

// Serialize renders the task into its canonical wire form.
func (t *Task) Serialize() ([]byte, error) {
	return json.Marshal(taskWire{
		UUID:   t.UUID,
		Name:   t.Name,
		Action: t.Action,
		Args:   t.Args,
		Notify: t.Notify,
		When:   t.When,
		Tags:   t.Tags,
	})
}

// DeserializeTask decodes a task from its wire form. The result carries no
// block or role back-references; workers never need them.
func DeserializeTask(data []byte) (*Task, error) {
	var w taskWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("deserialize task: %w", err)
	}
	t := &Task{
		UUID:   w.UUID,
		Name:   w.Name,
		Action: w.Action,
		Args:   w.Args,
		Notify: w.Notify,
		When:   w.When,
		Tags:   w.Tags,
	}
	return t, nil
}

// IsHandlerPayload reports whether a serialized task payload carries the
// handler marker.
func IsHandlerPayload(data []byte) bool {
	var w taskWire
	if err := json.Unmarshal(data, &w); err != nil {
		return false
	}
	return w.IsHandler
}
