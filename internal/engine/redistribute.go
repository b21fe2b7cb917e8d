// Overhead redistribution — the absorbed share of every firm's overhead
// is pooled within the round and paid straight back out, so climate
// stress on overhead moves money around instead of destroying it.
package engine

import "github.com/talgya/climate-chain/internal/agents"

// redistribute drains the round's overhead pool into household and firm
// payouts. Shares are configured and validated to sum to one; if a group
// is empty its share folds into the other so the pool always empties.
func (s *Simulation) redistribute() {
	pool := s.pool
	s.pool = 0
	if pool <= 0 {
		return
	}

	var households, firms []*agents.Agent
	for _, a := range s.Agents {
		if a.IsFirm() {
			firms = append(firms, a)
		} else {
			households = append(households, a)
		}
	}

	hShare := pool * s.Scenario.Redistribution.HouseholdShare
	fShare := pool - hShare
	if len(households) == 0 {
		fShare += hShare
		hShare = 0
	}
	if len(firms) == 0 {
		hShare += fShare
		fShare = 0
	}

	method := s.Scenario.Redistribution.Method
	payout(households, hShare, method)
	payout(firms, fShare, method)
}

// payout credits a group with its share of the pool, either equally or in
// proportion to current money. Weights are snapshotted before crediting
// so earlier payouts do not tilt later ones.
func payout(group []*agents.Agent, total float64, method string) {
	if total <= 0 || len(group) == 0 {
		return
	}
	if method == "proportional" {
		weights := make([]float64, len(group))
		var sum float64
		for i, a := range group {
			weights[i] = a.Ledger.Money
			sum += a.Ledger.Money
		}
		if sum > 0 {
			for i, a := range group {
				a.Ledger.Receive(total * weights[i] / sum)
			}
			return
		}
		// Nobody has money to weight by; fall through to equal shares.
	}
	share := total / float64(len(group))
	for _, a := range group {
		a.Ledger.Receive(share)
	}
}
