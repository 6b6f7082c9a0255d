package playbook

// BlockEntry is a member of a block's main task list: either a *Task or a
// nested *Block.
type BlockEntry interface {
	isBlockEntry()
}

// Block groups an ordered run of tasks with optional rescue and always
// branches. Blocks nest through the parent pointer; each task belongs to
// exactly one block.
type Block struct {
	Entries []BlockEntry
	Rescue  []*Task
	Always  []*Task

	parent   *Block
	role     *Role
	implicit bool
}

func (b *Block) isBlockEntry() {}

// Parent returns the enclosing block, or nil for a top-level block.
func (b *Block) Parent() *Block { return b.parent }

// Role returns the role this block came from, or nil.
func (b *Block) Role() *Role { return b.role }

// Implicit reports whether this block was synthesized for bare tasks listed
// directly in a play.
func (b *Block) Implicit() bool { return b.implicit }

// compileInto appends the block's main tasks, depth-first, to the flat task
// list. Rescue and always tasks are not part of the linear list; the
// iterator reaches them through the task's block pointer.
func (b *Block) compileInto(out *[]*Task) {
	for _, entry := range b.Entries {
		switch e := entry.(type) {
		case *Task:
			*out = append(*out, e)
		case *Block:
			e.compileInto(out)
		}
	}
}

// Compile returns the block's flattened main task list.
func (b *Block) Compile() []*Task {
	var out []*Task
	b.compileInto(&out)
	return out
}
