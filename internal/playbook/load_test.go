package playbook

import (
	"bytes"
	"testing"

	"gopkg.in/yaml.v3"
)

const basicPlaybook = `
- name: site
  hosts: all
  gather_facts: true
  tasks:
    - name: first
      action: debug
      args:
        msg: hello
    - name: second
      action: ping
      notify: [restart nginx]
  handlers:
    - name: restart nginx
      action: service
      args:
        name: nginx
        state: restarted
`

func TestParse_BasicPlay(t *testing.T) {
	pb, err := Parse([]byte(basicPlaybook))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pb.Plays) != 1 {
		t.Fatalf("plays = %d, want 1", len(pb.Plays))
	}
	play := pb.Plays[0]
	if play.Name != "site" || play.Hosts != "all" || !play.GatherFacts {
		t.Fatalf("play header = %+v", play)
	}
	if play.Strategy != "linear" {
		t.Fatalf("default strategy = %q, want linear", play.Strategy)
	}

	tasks := play.Compile()
	if len(tasks) != 2 {
		t.Fatalf("compiled tasks = %d, want 2", len(tasks))
	}
	if tasks[0].Name != "first" || tasks[1].Name != "second" {
		t.Fatalf("task order = %q, %q", tasks[0].Name, tasks[1].Name)
	}
	if tasks[0].UUID == "" || tasks[0].UUID == tasks[1].UUID {
		t.Fatal("tasks must get distinct UUIDs")
	}
	if len(play.Handlers) != 1 || play.Handlers[0].Name != "restart nginx" {
		t.Fatalf("handlers = %v", play.Handlers)
	}
}

func TestParse_ImplicitBlocksCoalesce(t *testing.T) {
	pb, err := Parse([]byte(basicPlaybook))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	play := pb.Plays[0]
	if len(play.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1 (consecutive bare tasks coalesce)", len(play.Blocks))
	}
	if !play.Blocks[0].Implicit() {
		t.Fatal("bare tasks should live in an implicit block")
	}
	tasks := play.Compile()
	if tasks[0].Block() != tasks[1].Block() {
		t.Fatal("coalesced tasks should share one block")
	}
}

const blockPlaybook = `
- name: recovery
  hosts: all
  tasks:
    - name: pre
      action: debug
    - block:
        - name: risky
          action: fail
      rescue:
        - name: recover
          action: debug
      always:
        - name: cleanup
          action: debug
    - name: post
      action: debug
`

func TestParse_ExplicitBlock(t *testing.T) {
	pb, err := Parse([]byte(blockPlaybook))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	play := pb.Plays[0]
	if len(play.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3 (implicit, explicit, implicit)", len(play.Blocks))
	}
	b := play.Blocks[1]
	if b.Implicit() {
		t.Fatal("middle block should be explicit")
	}
	if len(b.Rescue) != 1 || b.Rescue[0].Name != "recover" {
		t.Fatalf("rescue = %v", b.Rescue)
	}
	if len(b.Always) != 1 || b.Always[0].Name != "cleanup" {
		t.Fatalf("always = %v", b.Always)
	}
	if b.Rescue[0].Block() != b {
		t.Fatal("rescue tasks must point at their block")
	}

	tasks := play.Compile()
	// rescue/always do not appear in the linear list
	if len(tasks) != 3 {
		t.Fatalf("compiled tasks = %d, want 3", len(tasks))
	}
	if tasks[1].Name != "risky" || tasks[1].Block() != b {
		t.Fatalf("risky task block mismatch")
	}
}

const nestedPlaybook = `
- name: nested
  hosts: all
  tasks:
    - block:
        - name: outer1
          action: debug
        - block:
            - name: inner1
              action: debug
          always:
            - name: inner-always
              action: debug
      always:
        - name: outer-always
          action: debug
`

func TestParse_NestedBlocks(t *testing.T) {
	pb, err := Parse([]byte(nestedPlaybook))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	play := pb.Plays[0]
	tasks := play.Compile()
	if len(tasks) != 2 {
		t.Fatalf("compiled tasks = %d, want 2", len(tasks))
	}
	outer := tasks[0].Block()
	inner := tasks[1].Block()
	if outer == inner {
		t.Fatal("nested tasks must belong to distinct blocks")
	}
	if inner.Parent() != outer {
		t.Fatal("inner block parent should be the outer block")
	}
	if len(inner.Always) != 1 || inner.Always[0].Name != "inner-always" {
		t.Fatalf("inner always = %v", inner.Always)
	}
}

const rolePlaybook = `
- name: one
  hosts: all
  roles:
    - name: common
      allow_duplicates: false
      tasks:
        - name: common-a
          action: debug
        - name: common-b
          action: debug
      handlers:
        - name: reload common
          action: service
- name: two
  hosts: all
  roles:
    - common
`

func TestParse_Roles(t *testing.T) {
	pb, err := Parse([]byte(rolePlaybook))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	one, two := pb.Plays[0], pb.Plays[1]

	tasksOne := one.Compile()
	if len(tasksOne) != 2 {
		t.Fatalf("play one tasks = %d, want 2", len(tasksOne))
	}
	if tasksOne[0].Role() == nil || tasksOne[0].Role().Name != "common" {
		t.Fatal("role back-reference missing")
	}
	if len(one.Handlers) != 1 || one.Handlers[0].Name != "reload common" {
		t.Fatalf("role handlers = %v", one.Handlers)
	}

	tasksTwo := two.Compile()
	if len(tasksTwo) != 2 {
		t.Fatalf("play two tasks = %d, want 2", len(tasksTwo))
	}
	// Same definition, distinct uses.
	if tasksOne[0].Role() != tasksTwo[0].Role() {
		t.Fatal("role reference should resolve to the shared definition")
	}
	if tasksOne[0].RoleUse() == tasksTwo[0].RoleUse() {
		t.Fatal("each play reference should get its own use ID")
	}
}

func TestParse_UndefinedRole(t *testing.T) {
	doc := `
- name: p
  hosts: all
  roles: [ghost]
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("undefined role reference should fail to parse")
	}
}

func TestParse_SchemaRejections(t *testing.T) {
	bad := []string{
		`- name: p` + "\n" + `  tasks: []`,            // missing hosts
		`- hosts: all` + "\n" + `  serial: "half"`,    // bad serial
		`- hosts: all` + "\n" + `  tasks: {name: x}`,  // tasks not a list
		`{hosts: all}`,                                // document not a list
	}
	for _, doc := range bad {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("Parse(%q) should fail", doc)
		}
	}
}

func TestSerial_BatchSize(t *testing.T) {
	tests := []struct {
		yaml  string
		hosts int
		want  int
	}{
		{"serial: 2", 5, 2},
		{"serial: 0", 5, 0},
		{"serial: \"40%\"", 5, 2},
		{"serial: \"50%\"", 5, 3}, // percentages round up
		{"serial: \"100%\"", 4, 4},
		{"serial: \"1%\"", 3, 1},
	}
	for _, tt := range tests {
		var raw struct {
			Serial Serial `yaml:"serial"`
		}
		if err := yamlUnmarshal(tt.yaml, &raw); err != nil {
			t.Fatalf("unmarshal %q: %v", tt.yaml, err)
		}
		if got := raw.Serial.BatchSize(tt.hosts); got != tt.want {
			t.Fatalf("%q with %d hosts: BatchSize = %d, want %d", tt.yaml, tt.hosts, got, tt.want)
		}
	}
}

func TestSerialize_RoundTripDeterministic(t *testing.T) {
	pb, err := Parse([]byte(basicPlaybook))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	task := pb.Plays[0].Compile()[0]

	first, err := task.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	decoded, err := DeserializeTask(first)
	if err != nil {
		t.Fatalf("DeserializeTask: %v", err)
	}
	second, err := decoded.Serialize()
	if err != nil {
		t.Fatalf("re-Serialize: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round trip changed bytes:\n%s\n%s", first, second)
	}
}

func TestHandlerSerialize_CarriesMarker(t *testing.T) {
	h := &Handler{Task: Task{UUID: "u", Name: "restart", Action: "service"}}
	data, err := h.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !IsHandlerPayload(data) {
		t.Fatal("handler payload should carry the handler marker")
	}
	task := &Task{UUID: "u", Name: "restart", Action: "service"}
	tdata, err := task.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if IsHandlerPayload(tdata) {
		t.Fatal("plain task payload should not carry the handler marker")
	}

	back, err := DeserializeHandler(data)
	if err != nil {
		t.Fatalf("DeserializeHandler: %v", err)
	}
	if back.Name != "restart" {
		t.Fatalf("handler name = %q, want restart", back.Name)
	}
}

func yamlUnmarshal(doc string, out any) error {
	return yaml.Unmarshal([]byte(doc), out)
}
