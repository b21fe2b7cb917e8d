// Package geo models the geographic scope of the economy: a small registry
// of continents with climate risk weights, and round-robin assignment of
// agents onto them.
// See design doc Section 3.2.
package geo

// Continent identifies a geographic region. The zero value is "no continent"
// and never matches a climate rule scope.
type Continent string

// Registry holds the continents of a run and their climate risk weights.
// Weights scale shock probabilities for agents located there; 1.0 is neutral.
type Registry struct {
	names   []Continent
	weights map[Continent]float64
}

// NewRegistry builds a registry preserving the given order. Order matters:
// round-robin assignment walks it, so it is part of the deterministic state.
func NewRegistry(names []Continent, weights map[Continent]float64) *Registry {
	r := &Registry{weights: make(map[Continent]float64, len(names))}
	for _, n := range names {
		r.names = append(r.names, n)
		if w, ok := weights[n]; ok && w > 0 {
			r.weights[n] = w
		} else {
			r.weights[n] = 1.0
		}
	}
	return r
}

// DefaultRegistry returns the stock five continents with their risk weights.
func DefaultRegistry() *Registry {
	names := []Continent{"North America", "Europe", "Asia", "South America", "Africa"}
	return NewRegistry(names, map[Continent]float64{
		"North America": 0.8,
		"Europe":        0.6,
		"Asia":          1.2,
		"South America": 1.0,
		"Africa":        1.1,
	})
}

// Names returns the registry's continents in assignment order.
func (r *Registry) Names() []Continent {
	out := make([]Continent, len(r.names))
	copy(out, r.names)
	return out
}

// Contains reports whether the continent is registered.
func (r *Registry) Contains(c Continent) bool {
	_, ok := r.weights[c]
	return ok
}

// RiskWeight returns the climate risk weight for a continent. Unregistered
// continents weigh 1.0 so a scope miss never distorts probabilities.
func (r *Registry) RiskWeight(c Continent) float64 {
	if w, ok := r.weights[c]; ok {
		return w
	}
	return 1.0
}

// Assign distributes n agents round-robin over the target continents.
// Targets not present in the registry are kept as-is (scope misses are the
// climate engine's problem, not the assigner's). An empty target list or the
// keyword "all" walks the whole registry.
func (r *Registry) Assign(n int, targets []Continent) []Continent {
	pool := targets
	if len(pool) == 0 || (len(pool) == 1 && pool[0] == "all") {
		pool = r.names
	}
	out := make([]Continent, n)
	if len(pool) == 0 {
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = pool[i%len(pool)]
	}
	return out
}
