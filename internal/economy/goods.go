// Package economy holds the primitive market machinery: per-agent ledgers,
// per-good order books with price-ascending clearing, and the closed-form
// Cobb-Douglas budget allocator.
// See design doc Section 5.
package economy

// Good identifies a traded good. Goods are scenario-defined; only labor is
// known to the engine itself (households supply it, and it perishes at the
// end of every round).
type Good string

// Labor is the good households sell and firms hire.
const Labor Good = "labor"

// Quotes maps goods to their cheapest current ask price. A missing or
// non-positive entry means the good is unavailable this round; the allocator
// skips such inputs and redistributes their budget share.
type Quotes map[Good]float64

// Available reports whether the good can currently be bought.
func (q Quotes) Available(g Good) bool {
	p, ok := q[g]
	return ok && p > 0
}
