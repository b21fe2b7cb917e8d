// Supply-chain coordination — household survival demand is cascaded
// upstream into minimum production targets before any market opens, so
// every firm knows the floor it must finance this round.
package engine

import (
	"sort"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/economy"
)

// planTargets walks demand down the chain one layer at a time. Each layer
// claims the goods it produces, splits the buffered demand equally among
// its firms, and pushes the resulting input bundles to the next layer.
// Demand for goods nobody downstream makes carries further upstream;
// whatever is left after the producer layer (labor) is not a production
// target and is dropped.
func (s *Simulation) planTargets() {
	buffer := s.Scenario.Coordination.SafetyBuffer
	if buffer <= 0 {
		buffer = 1
	}

	demand := make(map[economy.Good]float64)
	for _, a := range s.Agents {
		if a.Consumption != nil && a.Consumption.MinSurvival > 0 {
			demand[a.Consumption.Good] += a.Consumption.MinSurvival
		}
	}

	for _, role := range []agents.Role{agents.RoleFinal, agents.RoleIntermediary, agents.RoleProducer} {
		sellers := make(map[economy.Good][]*agents.Agent)
		for _, a := range s.Agents {
			if a.Role == role && a.Production != nil {
				sellers[a.Production.Good] = append(sellers[a.Production.Good], a)
			}
		}

		next := make(map[economy.Good]float64)
		for _, g := range sortedGoods(demand) {
			firms := sellers[g]
			if len(firms) == 0 {
				next[g] += demand[g]
				continue
			}
			target := demand[g] * buffer / float64(len(firms))
			for _, f := range firms {
				f.MinTarget = target
				prodF, _ := s.Climate.Factors(f.ID)
				bundle := economy.MinimumBundle(target, f.Production.BaseOutput, prodF, f.Production.Inputs)
				for _, in := range sortedGoods(bundle) {
					next[in] += bundle[in]
				}
			}
		}
		demand = next
	}
}

func sortedGoods(m map[economy.Good]float64) []economy.Good {
	goods := make([]economy.Good, 0, len(m))
	for g := range m {
		goods = append(goods, g)
	}
	sort.Slice(goods, func(i, j int) bool { return goods[i] < goods[j] })
	return goods
}
