// Market resolution — per-round order books cleared layer by layer.
// Labor posts first, then each layer buys its inputs before producing,
// then households buy finished goods.
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/economy"
)

// postLaborOffers has every household put its hours on the labor book.
func (s *Simulation) postLaborOffers() {
	book, ok := s.Books[economy.Labor]
	if !ok {
		return
	}
	for _, a := range s.Agents {
		if a.Labor == nil {
			continue
		}
		frac := a.Traits.TradePreference
		if frac > 1 {
			frac = 1
		}
		qty := a.Ledger.Stock(economy.Labor) * frac
		if qty <= 0 {
			continue
		}
		book.PostAsk(uint64(a.ID), qty, a.Labor.Wage)
	}
}

// quotes returns the best ask per good at this point in the round.
func (s *Simulation) quotes() economy.Quotes {
	q := make(economy.Quotes, len(s.Goods))
	for _, g := range s.Goods {
		if price, ok := s.Books[g].BestAsk(); ok {
			q[g] = price
		}
	}
	return q
}

// clearInputMarkets runs one layer's input purchases. Firms bid in
// population order and the books fill cheapest-first, so a replay with
// the same seed clears identically.
func (s *Simulation) clearInputMarkets(round int, role agents.Role) {
	quotes := s.quotes()
	bids := make(map[economy.Good][]economy.Offer)

	for _, a := range s.Agents {
		if a.Role != role || a.Production == nil {
			continue
		}
		for _, bid := range s.firmBids(a, quotes) {
			bids[bid.Good] = append(bids[bid.Good], bid)
		}
	}

	for _, g := range s.Goods {
		if len(bids[g]) == 0 {
			continue
		}
		s.settle(round, s.Books[g].Fill(bids[g]))
	}
}

// firmBids plans one firm's input purchases. The voluntary budget is a
// trait-scaled fraction of cash split across inputs by Cobb-Douglas
// weight; the coordinator's minimum bundle raises quantity and budget
// where the target demands more, with the overage authorized as debt.
func (s *Simulation) firmBids(a *agents.Agent, quotes economy.Quotes) []economy.Offer {
	spec := a.Production
	frac := spec.SpendFraction * a.Traits.RiskTolerance
	if frac > 1 {
		frac = 1
	}
	cash := a.Ledger.Money * frac
	alloc := economy.AllocateBudget(cash, spec.Inputs, quotes)

	var bundle map[economy.Good]float64
	if a.MinTarget > 0 {
		prodF, _ := s.Climate.Factors(a.ID)
		bundle = economy.MinimumBundle(a.MinTarget, spec.BaseOutput, prodF, spec.Inputs)
	}

	var offers []economy.Offer
	var committed float64
	for _, g := range sortedInputs(spec.Inputs) {
		qty := alloc.Quantities[g]
		budget := alloc.Budgets[g]
		if need := bundle[g]; need > qty {
			qty = need
			if quote := quotes[g]; quote > 0 {
				if floor := need * quote; floor > budget {
					budget = floor
				}
			}
		}
		if qty <= 0 || budget <= 0 {
			continue
		}
		committed += budget
		offers = append(offers, economy.Offer{
			Trader:   uint64(a.ID),
			Good:     g,
			Quantity: qty,
			Budget:   budget,
			Side:     economy.Buy,
		})
	}
	if committed > cash {
		a.DebtCap = committed - cash
	}
	return offers
}

// clearConsumerMarket runs household purchases of finished goods.
// Survival shortfalls override the cash limit: the bid is budgeted past
// the household's money and settlement mints the difference as debt.
func (s *Simulation) clearConsumerMarket(round int) {
	bids := make(map[economy.Good][]economy.Offer)
	for _, a := range s.Agents {
		if a.Consumption == nil {
			continue
		}
		cons := a.Consumption
		book, ok := s.Books[cons.Good]
		if !ok {
			continue
		}
		quote, ok := book.BestAsk()
		if !ok || quote <= 0 {
			continue
		}
		frac := cons.SpendFraction * a.Traits.ConsumptionPreference
		if frac > 1 {
			frac = 1
		}
		cash := a.Ledger.Money * frac
		qty := cash / quote
		budget := cash
		if shortfall := cons.MinSurvival - a.Ledger.Stock(cons.Good); shortfall > 0 {
			want := shortfall * math.Max(1, a.Traits.DebtWillingness)
			if want > qty {
				qty = want
			}
			if floor := want * quote; floor > budget {
				budget = floor
				a.DebtCap = budget - cash
			}
		}
		if qty <= 0 || budget <= 0 {
			continue
		}
		bids[cons.Good] = append(bids[cons.Good], economy.Offer{
			Trader:   uint64(a.ID),
			Good:     cons.Good,
			Quantity: qty,
			Budget:   budget,
			Side:     economy.Buy,
		})
	}
	for _, g := range s.Goods {
		if len(bids[g]) == 0 {
			continue
		}
		s.settle(round, s.Books[g].Fill(bids[g]))
	}
}

// settle moves goods and money for a batch of fills. Sellers are paid in
// full; buyers short of cash mint the difference as debt.
func (s *Simulation) settle(round int, trades []economy.Trade) {
	for _, t := range trades {
		seller := s.AgentIndex[agents.AgentID(t.Seller)]
		buyer := s.AgentIndex[agents.AgentID(t.Buyer)]

		seller.Ledger.TakeGood(t.Good, t.Quantity)
		seller.Ledger.Receive(t.Cost)

		if !buyer.Ledger.Spend(t.Cost) {
			minted := buyer.Ledger.SpendWithDebt(t.Cost)
			s.debtIssued += minted
			s.Events = append(s.Events, Event{
				Round:       round,
				Description: fmt.Sprintf("%s borrowed %.2f buying %s", buyer.Name, minted, t.Good),
				Category:    "debt",
			})
		}
		buyer.Ledger.AddGood(t.Good, t.Quantity)
		if buyer.IsFirm() {
			buyer.InputCost += t.Cost
		}
		s.trades = append(s.trades, t)
	}
}

func sortedInputs(inputs map[economy.Good]economy.InputTerm) []economy.Good {
	goods := make([]economy.Good, 0, len(inputs))
	for g := range inputs {
		goods = append(goods, g)
	}
	sort.Slice(goods, func(i, j int) bool { return goods[i] < goods[j] })
	return goods
}
