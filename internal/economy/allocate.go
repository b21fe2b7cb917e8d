package economy

import "math"

// InputTerm describes one input of a Cobb-Douglas production function:
// output scales with (stock / BaseQuantity)^Exponent.
type InputTerm struct {
	Exponent     float64 `json:"exponent"`
	BaseQuantity float64 `json:"base_quantity"`
}

// Allocation is the optimal split of a purchase budget across inputs at the
// quoted prices.
type Allocation struct {
	Budgets    map[Good]float64 // per-good expenditure
	Quantities map[Good]float64 // per-good quantity at the quote
	Spend      float64          // Σ budgets, never above the given budget
}

// AllocateBudget computes the output-maximizing expenditure split for a
// Cobb-Douglas technology under a fixed budget: each input's share is its
// exponent over the sum of exponents. Exponents summing below one leave the
// residual share of the budget unspent. Inputs with no quote (no seller, or
// a non-positive price) are skipped and their share is redistributed
// proportionally among the available inputs. Non-positive exponents
// contribute nothing.
func AllocateBudget(budget float64, inputs map[Good]InputTerm, quotes Quotes) Allocation {
	alloc := Allocation{
		Budgets:    make(map[Good]float64),
		Quantities: make(map[Good]float64),
	}
	if budget <= 0 || len(inputs) == 0 {
		return alloc
	}

	var total, avail float64
	for g, term := range inputs {
		if term.Exponent <= 0 {
			continue
		}
		total += term.Exponent
		if quotes.Available(g) {
			avail += term.Exponent
		}
	}
	if avail <= 0 {
		return alloc
	}
	if total > 1 {
		total = 1
	}

	spendable := budget * total
	for g, term := range inputs {
		if term.Exponent <= 0 || !quotes.Available(g) {
			continue
		}
		share := term.Exponent / avail * spendable
		alloc.Budgets[g] = share
		alloc.Quantities[g] = share / quotes[g]
		alloc.Spend += share
	}
	return alloc
}

// Output evaluates the production function
//
//	base × productivity × Π (stock_i / base_i)^α_i
//
// over the full on-hand stocks. A missing stock for a required input yields
// zero output; non-positive exponents contribute a factor of one.
func Output(baseOutput, productivity float64, inputs map[Good]InputTerm, stocks map[Good]float64) float64 {
	if baseOutput <= 0 || productivity <= 0 {
		return 0
	}
	out := baseOutput * productivity
	for g, term := range inputs {
		if term.Exponent <= 0 {
			continue
		}
		x := stocks[g]
		if x <= 0 {
			return 0
		}
		base := term.BaseQuantity
		if base <= 0 {
			base = 1
		}
		out *= math.Pow(x/base, term.Exponent)
	}
	return out
}

// MinimumBundle inverts the production function for a required output: with
// all inputs scaled proportionally from their base quantities by a factor s,
// output = base × productivity × s^Σα, so s = (target / (base ×
// productivity))^(1/Σα). Returns the per-input quantities, or nil when the
// target is non-positive or unreachable (no positive exponents, or the firm
// cannot produce at any input level).
func MinimumBundle(target, baseOutput, productivity float64, inputs map[Good]InputTerm) map[Good]float64 {
	if target <= 0 {
		return nil
	}
	cap := baseOutput * productivity
	if cap <= 0 {
		return nil
	}
	var sumAlpha float64
	for _, term := range inputs {
		if term.Exponent > 0 {
			sumAlpha += term.Exponent
		}
	}
	if sumAlpha <= 0 {
		return nil
	}

	s := math.Pow(target/cap, 1/sumAlpha)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return nil
	}
	bundle := make(map[Good]float64, len(inputs))
	for g, term := range inputs {
		if term.Exponent <= 0 {
			continue
		}
		base := term.BaseQuantity
		if base <= 0 {
			base = 1
		}
		bundle[g] = s * base
	}
	return bundle
}
