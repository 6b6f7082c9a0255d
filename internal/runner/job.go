package runner

import (
	"encoding/json"
	"fmt"

	"github.com/basket/armada/internal/executor"
)

// workerJob is the tuple that travels the job queue: serialized host and
// task payloads, the opaque vars location the worker consumes exactly once,
// the serialized play context, and the module search paths. A sentinel job
// tells the receiving worker to shut down.
type workerJob struct {
	sentinel bool

	hostPayload    []byte
	taskPayload    []byte
	varsLocation   string
	contextPayload []byte
	pluginPaths    []string
}

// sentinelJob builds the shutdown marker. One is enqueued per worker.
func sentinelJob() *workerJob {
	return &workerJob{sentinel: true}
}

// newWorkerJob serializes the pieces of one unit of work. Serialization is
// deterministic: the same inputs always produce the same bytes.
func newWorkerJob(hostPayload, taskPayload []byte, varsLocation string, playCtx executor.PlayContext, pluginPaths []string) (*workerJob, error) {
	ctxPayload, err := json.Marshal(playCtx)
	if err != nil {
		return nil, fmt.Errorf("serialize play context: %w", err)
	}
	return &workerJob{
		hostPayload:    hostPayload,
		taskPayload:    taskPayload,
		varsLocation:   varsLocation,
		contextPayload: ctxPayload,
		pluginPaths:    pluginPaths,
	}, nil
}

// playContext decodes the job's play context payload.
func (j *workerJob) playContext() (executor.PlayContext, error) {
	var playCtx executor.PlayContext
	if err := json.Unmarshal(j.contextPayload, &playCtx); err != nil {
		return executor.PlayContext{}, fmt.Errorf("deserialize play context: %w", err)
	}
	return playCtx, nil
}
