package inventory

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Host is a target of task execution. Hosts are compared by name; two Host
// values with the same name refer to the same machine.
type Host struct {
	name string
	vars map[string]any
}

// NewHost creates a host with the given name and optional host vars.
func NewHost(name string, vars map[string]any) *Host {
	if vars == nil {
		vars = make(map[string]any)
	}
	return &Host{name: name, vars: vars}
}

// Name returns the host's stable name.
func (h *Host) Name() string { return h.name }

// Vars returns the host's variable bag.
func (h *Host) Vars() map[string]any { return h.vars }

func (h *Host) String() string { return h.name }

// Inventory holds the set of hosts a run may target. A restriction narrows
// the visible host set without discarding the full list; serial batching
// restricts to one batch at a time.
type Inventory struct {
	hosts      []*Host
	byName     map[string]*Host
	restricted map[string]bool // nil means unrestricted
}

// New builds an inventory from a list of hosts. Duplicate names collapse to
// the first occurrence.
func New(hosts []*Host) *Inventory {
	inv := &Inventory{byName: make(map[string]*Host)}
	for _, h := range hosts {
		if _, seen := inv.byName[h.Name()]; seen {
			continue
		}
		inv.byName[h.Name()] = h
		inv.hosts = append(inv.hosts, h)
	}
	return inv
}

// inventoryFile is the YAML shape of an inventory document.
type inventoryFile struct {
	Hosts map[string]map[string]any `yaml:"hosts"`
	Order []string                  `yaml:"order"`
}

// Load reads an inventory YAML file. Host order follows the optional "order"
// list; hosts absent from it append in lexical order for determinism.
func Load(filename string) (*Inventory, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var doc inventoryFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", filename, err)
	}

	var hosts []*Host
	added := make(map[string]bool)
	for _, name := range doc.Order {
		if vars, ok := doc.Hosts[name]; ok && !added[name] {
			hosts = append(hosts, NewHost(name, vars))
			added[name] = true
		}
	}
	var rest []string
	for name := range doc.Hosts {
		if !added[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		hosts = append(hosts, NewHost(name, doc.Hosts[name]))
	}
	return New(hosts), nil
}

// Hosts returns the hosts visible under the current restriction, in
// inventory order.
func (inv *Inventory) Hosts() []*Host {
	if inv.restricted == nil {
		out := make([]*Host, len(inv.hosts))
		copy(out, inv.hosts)
		return out
	}
	var out []*Host
	for _, h := range inv.hosts {
		if inv.restricted[h.Name()] {
			out = append(out, h)
		}
	}
	return out
}

// Get returns the named host, or nil if unknown.
func (inv *Inventory) Get(name string) *Host {
	return inv.byName[name]
}

// FilterHosts returns the hosts matching the pattern under the current
// restriction. A pattern is a comma-separated list of names or shell globs;
// "all" and "*" match every host.
func (inv *Inventory) FilterHosts(pattern string) []*Host {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}
	var out []*Host
	for _, h := range inv.Hosts() {
		if matchPattern(pattern, h.Name()) {
			out = append(out, h)
		}
	}
	return out
}

// RestrictToHosts narrows the inventory to the given hosts until
// RemoveRestriction is called.
func (inv *Inventory) RestrictToHosts(hosts []*Host) {
	inv.restricted = make(map[string]bool, len(hosts))
	for _, h := range hosts {
		inv.restricted[h.Name()] = true
	}
}

// RemoveRestriction lifts any active restriction.
func (inv *Inventory) RemoveRestriction() {
	inv.restricted = nil
}

func matchPattern(pattern, name string) bool {
	for _, part := range strings.Split(pattern, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "all" || part == "*" || part == name {
			return true
		}
		if ok, err := path.Match(part, name); err == nil && ok {
			return true
		}
	}
	return false
}
