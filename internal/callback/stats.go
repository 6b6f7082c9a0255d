package callback

import (
	"sort"
	"sync"

	"github.com/basket/armada/internal/playbook"
)

// Stats accumulates per-host result counts across a run.
type Stats struct {
	mu          sync.Mutex
	OK          map[string]int
	ChangedN    map[string]int
	Failures    map[string]int
	Unreachable map[string]int
	Skipped     map[string]int
}

// NewStats creates an empty stats accumulator.
func NewStats() *Stats {
	return &Stats{
		OK:          make(map[string]int),
		ChangedN:    make(map[string]int),
		Failures:    make(map[string]int),
		Unreachable: make(map[string]int),
		Skipped:     make(map[string]int),
	}
}

func (s *Stats) increment(m map[string]int, host string) {
	s.mu.Lock()
	m[host]++
	s.mu.Unlock()
}

// HostNames returns every host seen, sorted, for recap printing.
func (s *Stats) HostNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for _, m := range []map[string]int{s.OK, s.ChangedN, s.Failures, s.Unreachable, s.Skipped} {
		for host := range m {
			seen[host] = true
		}
	}
	names := make([]string, 0, len(seen))
	for host := range seen {
		names = append(names, host)
	}
	sort.Strings(names)
	return names
}

// Summarize returns one host's counters.
func (s *Stats) Summarize(host string) (ok, changed, failures, unreachable, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.OK[host], s.ChangedN[host], s.Failures[host], s.Unreachable[host], s.Skipped[host]
}

// StatsCallback records per-host counters from runner events.
type StatsCallback struct {
	Nop
	Stats *Stats
}

// NewStatsCallback builds a stats-recording callback.
func NewStatsCallback() *StatsCallback {
	return &StatsCallback{Stats: NewStats()}
}

func (c *StatsCallback) RunnerOnOK(task *playbook.Task, result TaskResult) {
	c.Stats.increment(c.Stats.OK, result.HostName())
	if result.Changed() {
		c.Stats.increment(c.Stats.ChangedN, result.HostName())
	}
}

func (c *StatsCallback) RunnerOnFailed(task *playbook.Task, result TaskResult) {
	c.Stats.increment(c.Stats.Failures, result.HostName())
}

func (c *StatsCallback) RunnerOnUnreachable(task *playbook.Task, result TaskResult) {
	c.Stats.increment(c.Stats.Unreachable, result.HostName())
}

func (c *StatsCallback) RunnerOnSkipped(task *playbook.Task, result TaskResult) {
	c.Stats.increment(c.Stats.Skipped, result.HostName())
}
