package runner

import (
	"github.com/basket/armada/internal/executor"
)

// TaskResult is what a worker hands back for one executed job: the host and
// task identity, the serialized task fields (so the result processor can
// rebuild notify lists without reaching into shared objects), and the raw
// result map.
type TaskResult struct {
	Host        string
	TaskUUID    string
	TaskPayload []byte
	Result      executor.Result
}

// HostName returns the name of the host the result belongs to.
func (r *TaskResult) HostName() string { return r.Host }

// ResultMap returns the raw result map.
func (r *TaskResult) ResultMap() map[string]any { return r.Result }

func (r *TaskResult) boolField(key string) bool {
	v, ok := r.Result[key].(bool)
	return ok && v
}

// IsFailed reports whether the task failed on the host.
func (r *TaskResult) IsFailed() bool { return r.boolField("failed") }

// IsUnreachable reports whether the host could not be contacted.
func (r *TaskResult) IsUnreachable() bool { return r.boolField("unreachable") }

// IsSkipped reports whether the task was skipped on the host.
func (r *TaskResult) IsSkipped() bool { return r.boolField("skipped") }

// Changed reports whether the task changed the host.
func (r *TaskResult) Changed() bool { return r.boolField("changed") }
