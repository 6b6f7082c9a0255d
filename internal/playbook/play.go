package playbook

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultStrategy is the scheduling policy used when a play names none.
const DefaultStrategy = "linear"

// Serial is a play's batching width: an absolute host count or a percentage
// of the matched hosts. Zero means no batching.
type Serial struct {
	count   int
	percent int
	isPct   bool
}

// UnmarshalYAML accepts an integer ("serial: 2") or a percentage string
// ("serial: 50%").
func (s *Serial) UnmarshalYAML(value *yaml.Node) error {
	var n int
	if err := value.Decode(&n); err == nil {
		if n < 0 {
			return fmt.Errorf("serial must not be negative: %d", n)
		}
		s.count = n
		return nil
	}
	var str string
	if err := value.Decode(&str); err != nil {
		return fmt.Errorf("serial must be an int or a percentage string")
	}
	str = strings.TrimSpace(str)
	if !strings.HasSuffix(str, "%") {
		return fmt.Errorf("serial string must end with %%: %q", str)
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(str, "%"))
	if err != nil || pct < 0 {
		return fmt.Errorf("invalid serial percentage: %q", str)
	}
	s.percent = pct
	s.isPct = true
	return nil
}

// BatchSize resolves the batching width against the matched host count.
// Percentages round up so a non-zero percentage never yields an empty batch.
// Zero means all hosts in a single batch.
func (s Serial) BatchSize(totalHosts int) int {
	if s.isPct {
		return int(math.Ceil(float64(s.percent) / 100.0 * float64(totalHosts)))
	}
	return s.count
}

// IsZero reports whether no batching was requested.
func (s Serial) IsZero() bool {
	return !s.isPct && s.count == 0
}

// Play binds an ordered list of task blocks and a handler list to a host
// selector. One play is the unit consumed by one strategy invocation.
type Play struct {
	Name        string
	Hosts       string
	GatherFacts bool
	Serial      Serial
	Strategy    string

	Blocks   []*Block
	Handlers []*Handler
}

// Compile flattens the play's blocks into the linear task sequence the
// iterator walks. Rescue and always tasks are reachable only through their
// block.
func (p *Play) Compile() []*Task {
	var out []*Task
	for _, b := range p.Blocks {
		b.compileInto(&out)
	}
	return out
}

// Playbook is an ordered sequence of plays.
type Playbook struct {
	Plays []*Play
}
