// Household consumption — runs after the consumer market so pantries
// reflect this round's purchases.
package engine

import (
	"fmt"
	"math"
)

// consumeHouseholds has every household eat from stock. Consumption is at
// least the survival minimum when stock allows and a fraction of any
// surplus on top; utility accumulates one-for-one with quantity consumed.
func (s *Simulation) consumeHouseholds(round int) {
	for _, a := range s.Agents {
		if a.Consumption == nil {
			continue
		}
		cons := a.Consumption
		stock := a.Ledger.Stock(cons.Good)
		want := math.Max(cons.MinSurvival, cons.ConsumeFraction*stock)
		eat := math.Min(want, stock)
		if eat > 0 {
			a.Ledger.TakeGood(cons.Good, eat)
			a.Consumed = eat
			a.Utility += eat
		}
		if eat+1e-9 < cons.MinSurvival {
			s.Events = append(s.Events, Event{
				Round:       round,
				Description: fmt.Sprintf("%s consumed %.2f of the %.2f survival minimum", a.Name, eat, cons.MinSurvival),
				Category:    "consumption",
			})
		}
	}
}
