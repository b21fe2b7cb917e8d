package geo

import "testing"

func TestRegistryWeights(t *testing.T) {
	r := NewRegistry([]Continent{"a", "b", "c"}, map[Continent]float64{
		"a": 1.5,
		"b": 0, // non-positive weight falls back to neutral
	})
	if w := r.RiskWeight("a"); w != 1.5 {
		t.Fatalf("weight(a) = %v, want 1.5", w)
	}
	if w := r.RiskWeight("b"); w != 1.0 {
		t.Fatalf("weight(b) = %v, want neutral 1.0", w)
	}
	if w := r.RiskWeight("c"); w != 1.0 {
		t.Fatalf("weight(c) = %v, want default 1.0", w)
	}
	if w := r.RiskWeight("atlantis"); w != 1.0 {
		t.Fatalf("weight of unregistered continent = %v, want 1.0", w)
	}
	if r.Contains("atlantis") {
		t.Fatalf("registry claims to contain atlantis")
	}
}

func TestAssignRoundRobin(t *testing.T) {
	r := NewRegistry([]Continent{"a", "b"}, nil)

	got := r.Assign(5, []Continent{"b", "a"})
	want := []Continent{"b", "a", "b", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("assign[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAssignAllKeyword(t *testing.T) {
	r := NewRegistry([]Continent{"a", "b", "c"}, nil)

	for _, targets := range [][]Continent{nil, {"all"}} {
		got := r.Assign(4, targets)
		want := []Continent{"a", "b", "c", "a"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("assign(%v)[%d] = %q, want registry order %q", targets, i, got[i], want[i])
			}
		}
	}
}

func TestAssignKeepsUnregisteredTargets(t *testing.T) {
	r := NewRegistry([]Continent{"a"}, nil)
	got := r.Assign(2, []Continent{"atlantis"})
	if got[0] != "atlantis" || got[1] != "atlantis" {
		t.Fatalf("assign rewrote unregistered target: %v", got)
	}
}

func TestDefaultRegistryOrder(t *testing.T) {
	names := DefaultRegistry().Names()
	if len(names) != 5 {
		t.Fatalf("default registry has %d continents, want 5", len(names))
	}
	if names[0] != "North America" || names[4] != "Africa" {
		t.Fatalf("default registry order changed: %v", names)
	}
}
