package playbook

import "sync"

// Role is a reusable, named bundle of tasks and handlers, shared across the
// plays that reference it by name. Each reference is a distinct use; once
// any use has started emitting tasks, every other use is skipped unless the
// role allows duplicates.
type Role struct {
	Name            string
	AllowDuplicates bool

	mu        sync.Mutex
	hasRun    bool
	activeUse int
	useCount  int
}

// NewUse allocates a use ID for one reference to this role. Use IDs start
// at 1; tasks carry the ID so the iterator can tell the running use apart
// from duplicates.
func (r *Role) NewUse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useCount++
	return r.useCount
}

// HasRun reports whether any use of this role has emitted a task.
func (r *Role) HasRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasRun
}

// ShouldSkip reports whether a task from the given use must be skipped: the
// role has already run under a different use and duplicates are disallowed.
func (r *Role) ShouldSkip(useID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasRun && r.activeUse != useID && !r.AllowDuplicates
}

// MarkRun records that the given use is emitting the role's tasks.
func (r *Role) MarkRun(useID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasRun = true
	r.activeUse = useID
}
