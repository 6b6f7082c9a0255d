package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/basket/armada/internal/callback"
	"github.com/basket/armada/internal/playbook"
)

// Recorder is a callback that writes every task outcome to the history
// store. Write failures are logged, never propagated: history is an
// observer, not a participant.
type Recorder struct {
	callback.Nop

	store  *Store
	runID  string
	logger *slog.Logger

	mu          sync.Mutex
	currentPlay string
}

// NewRecorder builds a recorder for one run.
func NewRecorder(store *Store, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, runID: runID, logger: logger}
}

func (r *Recorder) PlaybookOnPlayStart(name string) {
	r.mu.Lock()
	r.currentPlay = name
	r.mu.Unlock()
}

func (r *Recorder) RunnerOnOK(task *playbook.Task, result callback.TaskResult) {
	r.record(task, result, "ok", result.Changed())
}

func (r *Recorder) RunnerOnFailed(task *playbook.Task, result callback.TaskResult) {
	r.record(task, result, "failed", false)
}

func (r *Recorder) RunnerOnUnreachable(task *playbook.Task, result callback.TaskResult) {
	r.record(task, result, "unreachable", false)
}

func (r *Recorder) RunnerOnSkipped(task *playbook.Task, result callback.TaskResult) {
	r.record(task, result, "skipped", false)
}

func (r *Recorder) record(task *playbook.Task, result callback.TaskResult, status string, changed bool) {
	r.mu.Lock()
	play := r.currentPlay
	r.mu.Unlock()

	msg := ""
	if m, ok := result.ResultMap()["msg"]; ok {
		msg = fmt.Sprintf("%v", m)
	}
	err := r.store.RecordResult(context.Background(), ResultRecord{
		RunID:   r.runID,
		Play:    play,
		Host:    result.HostName(),
		Task:    task.DisplayName(),
		Status:  status,
		Changed: changed,
		Msg:     msg,
	})
	if err != nil {
		r.logger.Error("history_write_failed", slog.String("error", err.Error()))
	}
}
