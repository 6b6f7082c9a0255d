package vars

import (
	"testing"

	"github.com/basket/armada/internal/inventory"
)

func TestMapManager_HostVarsWin(t *testing.T) {
	m := &MapManager{Global: map[string]any{"a": 1, "b": 2}}
	host := inventory.NewHost("web01", map[string]any{"b": 3})

	got := m.GetVars(nil, host, nil)
	if got["a"] != 1 {
		t.Fatalf("a = %v, want 1", got["a"])
	}
	if got["b"] != 3 {
		t.Fatalf("b = %v, want host override 3", got["b"])
	}
}

func TestStore_ConsumeOnce(t *testing.T) {
	s := NewStore()
	key, err := s.Stage(map[string]any{"x": "y"})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	vars, err := s.Take(key)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if vars["x"] != "y" {
		t.Fatalf("vars = %v", vars)
	}
	if s.Len() != 0 {
		t.Fatalf("Len after Take = %d, want 0", s.Len())
	}

	if _, err := s.Take(key); err == nil {
		t.Fatal("second Take of the same key must fail")
	}
}

func TestStore_DistinctKeys(t *testing.T) {
	s := NewStore()
	k1, _ := s.Stage(map[string]any{})
	k2, _ := s.Stage(map[string]any{})
	if k1 == k2 {
		t.Fatal("Stage must hand out fresh keys")
	}
}
