// Production and pricing — firms turn this round's input stocks into
// output through a Cobb-Douglas technology, pay overhead, and post their
// output at cost-plus price.
package engine

import (
	"fmt"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/economy"
)

// produceLayer runs production for every firm in one layer. Input markets
// for the layer must already be cleared.
func (s *Simulation) produceLayer(round int, role agents.Role) {
	for _, a := range s.Agents {
		if a.Role != role || a.Production == nil {
			continue
		}
		spec := a.Production
		prodF, overF := s.Climate.Factors(a.ID)

		output := economy.Output(spec.BaseOutput, prodF, spec.Inputs, a.Ledger.Inventory)
		for _, g := range sortedInputs(spec.Inputs) {
			a.Ledger.DrainGood(g)
		}
		if output > 0 {
			a.Ledger.AddGood(spec.Good, output)
		}
		a.Produced = output

		// Overhead falls due whether or not anything was produced. The
		// customer share rides on the price; the rest is paid now, into
		// the redistribution pool, on credit if cash falls short.
		overhead := spec.BaseOverhead * overF
		passed := overhead * spec.CustomerShare
		absorbed := overhead - passed
		if absorbed > 0 {
			if !a.Ledger.Spend(absorbed) {
				minted := a.Ledger.SpendWithDebt(absorbed)
				s.debtIssued += minted
				s.Events = append(s.Events, Event{
					Round:       round,
					Description: fmt.Sprintf("%s borrowed %.2f against overhead", a.Name, minted),
					Category:    "debt",
				})
			}
			s.pool += absorbed
			s.absorbed += absorbed
		}

		if output <= 0 {
			// Price stays where it was; with nothing to sell there is no
			// cost base to reprice from.
			s.Events = append(s.Events, Event{
				Round:       round,
				Description: fmt.Sprintf("%s produced nothing this round", a.Name),
				Category:    "production",
			})
			continue
		}

		a.Price = (a.InputCost + passed) / output * (1 + spec.ProfitMargin)
		if stock := a.Ledger.Stock(spec.Good); stock > 0 {
			s.Books[spec.Good].PostAsk(uint64(a.ID), stock, a.Price)
		}
	}
}
