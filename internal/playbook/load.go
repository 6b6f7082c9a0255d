package playbook

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// rawTask is the YAML shape of a single task or handler entry.
type rawTask struct {
	Name   string         `yaml:"name"`
	Action string         `yaml:"action"`
	Args   map[string]any `yaml:"args"`
	Notify []string       `yaml:"notify"`
	When   string         `yaml:"when"`
	Tags   []string       `yaml:"tags"`
}

// rawBlock is the YAML shape of an explicit block entry.
type rawBlock struct {
	Block  []yaml.Node `yaml:"block"`
	Rescue []rawTask   `yaml:"rescue"`
	Always []rawTask   `yaml:"always"`
}

// rawRole is the YAML shape of a role entry: either a definition carrying
// tasks, or a bare reference to a role defined earlier in the playbook.
type rawRole struct {
	Name            string      `yaml:"name"`
	AllowDuplicates bool        `yaml:"allow_duplicates"`
	Tasks           []yaml.Node `yaml:"tasks"`
	Handlers        []rawTask   `yaml:"handlers"`
}

// rawPlay is the YAML shape of one play.
type rawPlay struct {
	Name        string      `yaml:"name"`
	Hosts       string      `yaml:"hosts"`
	GatherFacts bool        `yaml:"gather_facts"`
	Serial      Serial      `yaml:"serial"`
	Strategy    string      `yaml:"strategy"`
	Roles       []yaml.Node `yaml:"roles"`
	Tasks       []yaml.Node `yaml:"tasks"`
	Handlers    []rawTask   `yaml:"handlers"`
}

// roleDef keeps a role definition's template data so later references can
// instantiate fresh task copies bound to their own play.
type roleDef struct {
	role     *Role
	tasks    []yaml.Node
	handlers []rawTask
}

// loader carries playbook-wide state through a single Load call.
type loader struct {
	roles map[string]*roleDef
}

// Load reads and validates a playbook file.
func Load(filename string) (*Playbook, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read playbook: %w", err)
	}
	pb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("playbook %s: %w", filename, err)
	}
	return pb, nil
}

// Parse validates and decodes playbook YAML. The document is a list of
// plays.
func Parse(data []byte) (*Playbook, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var raws []rawPlay
	if err := yaml.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}

	ld := &loader{roles: make(map[string]*roleDef)}
	pb := &Playbook{}
	for i := range raws {
		play, err := ld.loadPlay(&raws[i])
		if err != nil {
			return nil, err
		}
		pb.Plays = append(pb.Plays, play)
	}
	return pb, nil
}

func (ld *loader) loadPlay(raw *rawPlay) (*Play, error) {
	play := &Play{
		Name:        raw.Name,
		Hosts:       raw.Hosts,
		GatherFacts: raw.GatherFacts,
		Serial:      raw.Serial,
		Strategy:    raw.Strategy,
	}
	if play.Strategy == "" {
		play.Strategy = DefaultStrategy
	}
	if play.Hosts == "" {
		return nil, fmt.Errorf("play %q: hosts selector is required", raw.Name)
	}

	// Role blocks come first, in declared order, as in classic play
	// compilation.
	for i := range raw.Roles {
		def, err := ld.resolveRole(&raw.Roles[i])
		if err != nil {
			return nil, fmt.Errorf("play %q: %w", raw.Name, err)
		}
		useID := def.role.NewUse()
		blocks, err := loadBlocks(def.tasks, nil, def.role, useID)
		if err != nil {
			return nil, fmt.Errorf("play %q role %q: %w", raw.Name, def.role.Name, err)
		}
		play.Blocks = append(play.Blocks, blocks...)
		for j := range def.handlers {
			h := newHandler(&def.handlers[j])
			play.Handlers = append(play.Handlers, h)
		}
	}

	blocks, err := loadBlocks(raw.Tasks, nil, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("play %q: %w", raw.Name, err)
	}
	play.Blocks = append(play.Blocks, blocks...)

	for i := range raw.Handlers {
		play.Handlers = append(play.Handlers, newHandler(&raw.Handlers[i]))
	}
	return play, nil
}

// resolveRole returns the definition for a role node, registering it when
// the node carries tasks and looking it up when it is a bare reference.
func (ld *loader) resolveRole(node *yaml.Node) (*roleDef, error) {
	if node.Kind == yaml.ScalarNode {
		var name string
		if err := node.Decode(&name); err != nil {
			return nil, fmt.Errorf("invalid role reference: %w", err)
		}
		def, ok := ld.roles[name]
		if !ok {
			return nil, fmt.Errorf("role %q is not defined", name)
		}
		return def, nil
	}

	var raw rawRole
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid role entry: %w", err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("role entry missing name")
	}
	if def, ok := ld.roles[raw.Name]; ok {
		// A repeated mapping with no tasks is a reference to the earlier
		// definition.
		if len(raw.Tasks) == 0 {
			return def, nil
		}
		return nil, fmt.Errorf("role %q defined twice", raw.Name)
	}
	if len(raw.Tasks) == 0 {
		return nil, fmt.Errorf("role %q is not defined", raw.Name)
	}
	def := &roleDef{
		role:     &Role{Name: raw.Name, AllowDuplicates: raw.AllowDuplicates},
		tasks:    raw.Tasks,
		handlers: raw.Handlers,
	}
	ld.roles[raw.Name] = def
	return def, nil
}

// loadBlocks turns a mixed list of task and block nodes into Block objects.
// Bare tasks get implicit blocks; consecutive implicit blocks are squashed
// into one so the iterator sees a single block for an unbroken run of bare
// tasks.
func loadBlocks(nodes []yaml.Node, parent *Block, role *Role, useID int) ([]*Block, error) {
	var out []*Block
	for i := range nodes {
		node := &nodes[i]
		if isBlockNode(node) {
			b, err := loadExplicitBlock(node, parent, role, useID)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
			continue
		}

		var raw rawTask
		if err := node.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid task entry: %w", err)
		}
		if len(out) > 0 && out[len(out)-1].implicit {
			b := out[len(out)-1]
			b.Entries = append(b.Entries, newTask(&raw, b, role, useID))
			continue
		}
		b := &Block{parent: parent, role: role, implicit: true}
		b.Entries = append(b.Entries, newTask(&raw, b, role, useID))
		out = append(out, b)
	}
	return out, nil
}

func loadExplicitBlock(node *yaml.Node, parent *Block, role *Role, useID int) (*Block, error) {
	var raw rawBlock
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid block entry: %w", err)
	}
	b := &Block{parent: parent, role: role}
	children, err := loadBlocks(raw.Block, b, role, useID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.implicit {
			// Bare tasks inside an explicit block belong to that block
			// directly; the implicit wrapper is a loading artifact.
			for _, entry := range child.Entries {
				if t, ok := entry.(*Task); ok {
					t.block = b
				}
				b.Entries = append(b.Entries, entry)
			}
		} else {
			b.Entries = append(b.Entries, child)
		}
	}
	for i := range raw.Rescue {
		b.Rescue = append(b.Rescue, newTask(&raw.Rescue[i], b, role, useID))
	}
	for i := range raw.Always {
		b.Always = append(b.Always, newTask(&raw.Always[i], b, role, useID))
	}
	return b, nil
}

func isBlockNode(node *yaml.Node) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "block" {
			return true
		}
	}
	return false
}

func newTask(raw *rawTask, block *Block, role *Role, useID int) *Task {
	return &Task{
		UUID:    uuid.NewString(),
		Name:    raw.Name,
		Action:  raw.Action,
		Args:    raw.Args,
		Notify:  raw.Notify,
		When:    raw.When,
		Tags:    raw.Tags,
		block:   block,
		role:    role,
		roleUse: useID,
	}
}

func newHandler(raw *rawTask) *Handler {
	return &Handler{Task: Task{
		UUID:   uuid.NewString(),
		Name:   raw.Name,
		Action: raw.Action,
		Args:   raw.Args,
		Notify: raw.Notify,
		When:   raw.When,
		Tags:   raw.Tags,
	}}
}
