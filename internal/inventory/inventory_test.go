package inventory

import (
	"os"
	"path/filepath"
	"testing"
)

func hostNames(hosts []*Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.Name()
	}
	return out
}

func TestFilterHosts(t *testing.T) {
	inv := New([]*Host{
		NewHost("web01", nil),
		NewHost("web02", nil),
		NewHost("db01", nil),
	})

	tests := []struct {
		pattern string
		want    []string
	}{
		{"all", []string{"web01", "web02", "db01"}},
		{"*", []string{"web01", "web02", "db01"}},
		{"web*", []string{"web01", "web02"}},
		{"db01", []string{"db01"}},
		{"web01,db01", []string{"web01", "db01"}},
		{"nomatch", nil},
	}
	for _, tt := range tests {
		got := hostNames(inv.FilterHosts(tt.pattern))
		if len(got) != len(tt.want) {
			t.Fatalf("FilterHosts(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("FilterHosts(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		}
	}
}

func TestRestriction(t *testing.T) {
	a, b, c := NewHost("a", nil), NewHost("b", nil), NewHost("c", nil)
	inv := New([]*Host{a, b, c})

	inv.RestrictToHosts([]*Host{b})
	if got := hostNames(inv.Hosts()); len(got) != 1 || got[0] != "b" {
		t.Fatalf("restricted Hosts() = %v, want [b]", got)
	}
	if got := inv.FilterHosts("all"); len(got) != 1 || got[0].Name() != "b" {
		t.Fatalf("restricted FilterHosts(all) = %v, want [b]", hostNames(got))
	}

	inv.RemoveRestriction()
	if got := inv.Hosts(); len(got) != 3 {
		t.Fatalf("unrestricted Hosts() = %v, want 3 hosts", hostNames(got))
	}
}

func TestDuplicateNamesCollapse(t *testing.T) {
	inv := New([]*Host{NewHost("a", map[string]any{"x": 1}), NewHost("a", nil)})
	if len(inv.Hosts()) != 1 {
		t.Fatalf("Hosts() = %d, want 1", len(inv.Hosts()))
	}
	if inv.Get("a").Vars()["x"] != 1 {
		t.Fatal("first occurrence should win")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "inventory.yml")
	doc := `
hosts:
  web02:
    http_port: 8080
  web01: {}
  db01:
    role: database
order: [web01, web02]
`
	if err := os.WriteFile(file, []byte(doc), 0o644); err != nil {
		t.Fatalf("write inventory: %v", err)
	}

	inv, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := hostNames(inv.Hosts())
	want := []string{"web01", "web02", "db01"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("host order = %v, want %v", got, want)
		}
	}
	if inv.Get("web02").Vars()["http_port"] != 8080 {
		t.Fatalf("web02 vars = %v", inv.Get("web02").Vars())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/inventory.yml"); err == nil {
		t.Fatal("Load of missing file should error")
	}
}
