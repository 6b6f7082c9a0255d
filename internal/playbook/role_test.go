package playbook

import "testing"

func TestRole_DuplicateUsesSkipped(t *testing.T) {
	r := &Role{Name: "common"}
	use1 := r.NewUse()
	use2 := r.NewUse()

	if r.ShouldSkip(use1) {
		t.Fatal("first use should not be skipped before the role has run")
	}
	r.MarkRun(use1)
	if r.ShouldSkip(use1) {
		t.Fatal("the running use keeps emitting its own tasks")
	}
	if !r.ShouldSkip(use2) {
		t.Fatal("a second use of a run role should be skipped")
	}
	if !r.HasRun() {
		t.Fatal("HasRun should be true after MarkRun")
	}
}

func TestRole_AllowDuplicates(t *testing.T) {
	r := &Role{Name: "common", AllowDuplicates: true}
	use1, use2 := r.NewUse(), r.NewUse()
	r.MarkRun(use1)
	if r.ShouldSkip(use2) {
		t.Fatal("allow_duplicates roles are never skipped")
	}
}
