// Simulation ties together the economic layers and advances them one
// round at a time: climate resolution, coordination, markets, production,
// consumption, and redistribution.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/climate"
	"github.com/talgya/climate-chain/internal/config"
	"github.com/talgya/climate-chain/internal/economy"
	"github.com/talgya/climate-chain/internal/entropy"
	"github.com/talgya/climate-chain/internal/geo"
)

// Keep bounded in-memory history; persistence owns the full record.
const (
	keepEvents  = 1000
	keepRecords = 256
)

// Simulation holds the complete chain state and wires the systems together.
// RunRound and the read accessors are safe for concurrent use; direct field
// access is for construction and tests.
type Simulation struct {
	mu sync.RWMutex

	Scenario *config.Scenario
	Registry *geo.Registry

	Agents     []*agents.Agent
	AgentIndex map[agents.AgentID]*agents.Agent

	// Climate stress engine, shared by coordination and production.
	Climate *climate.Engine

	// One order book per good, reset every round. Goods is the sorted
	// clearing order so rounds replay identically.
	Books map[economy.Good]*economy.Book
	Goods []economy.Good

	// Agent spawner, kept for restores and mid-run population changes.
	Spawner *agents.Spawner

	Events    []Event       // recent events, trimmed to keepEvents
	Records   []RoundRecord // recent round records, trimmed to keepRecords
	LastRound int           // most recent round processed

	// Money minus debt across all agents at construction. Trades move
	// money, redistribution returns it, and every shortfall mints money
	// and debt together, so this difference never changes.
	InitialNet float64

	// Statistics refreshed at the end of every round.
	Stats SimStats

	// Per-round flow accumulators, reset by beginRound.
	trades     []economy.Trade
	debtIssued float64
	pool       float64 // absorbed overhead awaiting redistribution
	absorbed   float64
}

// Event is a notable occurrence in the simulation.
type Event struct {
	Round       int    `json:"round"`
	Description string `json:"description"`
	Category    string `json:"category"` // "climate", "debt", "production", "consumption"
}

// SimStats tracks aggregate chain statistics for the latest round.
type SimStats struct {
	Round       int     `json:"round"`
	Agents      int     `json:"agents"`
	TotalMoney  float64 `json:"total_money"`
	TotalDebt   float64 `json:"total_debt"`
	Trades      int     `json:"trades"`
	TradeVolume float64 `json:"trade_volume"`
	TradeValue  float64 `json:"trade_value"`
	Produced    float64 `json:"produced"`
	Consumed    float64 `json:"consumed"`
	DebtIssued  float64 `json:"debt_issued"`
	Overhead    float64 `json:"overhead"` // absorbed and redistributed this round
	AvgUtility  float64 `json:"avg_utility"`
	Underfed    int     `json:"underfed"` // households below survival consumption
	Stressed    int     `json:"stressed"` // agents under any climate stress
}

// AgentRecord is one agent's end-of-round snapshot.
type AgentRecord struct {
	Agent        agents.AgentID           `json:"agent"`
	Name         string                   `json:"name"`
	Type         string                   `json:"type"`
	Role         string                   `json:"role"`
	Continent    geo.Continent            `json:"continent"`
	Money        float64                  `json:"money"`
	Debt         float64                  `json:"debt"`
	Inventory    map[economy.Good]float64 `json:"inventory,omitempty"`
	Produced     float64                  `json:"produced,omitempty"`
	Price        float64                  `json:"price,omitempty"`
	InputCost    float64                  `json:"input_cost,omitempty"`
	MinTarget    float64                  `json:"min_target,omitempty"`
	DebtCap      float64                  `json:"debt_cap,omitempty"`
	Consumed     float64                  `json:"consumed,omitempty"`
	Utility      float64                  `json:"utility,omitempty"`
	Productivity float64                  `json:"productivity_factor"`
	Overhead     float64                  `json:"overhead_factor"`
	Phase        string                   `json:"phase"`
}

// RoundRecord captures one completed round for persistence and export.
type RoundRecord struct {
	Round   int             `json:"round"`
	Agents  []AgentRecord   `json:"agents"`
	Trades  []economy.Trade `json:"trades,omitempty"`
	Climate []climate.Event `json:"climate,omitempty"`
	Events  []Event         `json:"events,omitempty"`
	Stats   SimStats        `json:"stats"`
}

// NewSimulation spawns the population and wires the systems from a
// validated scenario. Population draws and shock draws come from separate
// forks of the seed stream so one cannot disturb the other.
func NewSimulation(cfg *config.Scenario) *Simulation {
	root := entropy.NewStream(cfg.Simulation.Seed)
	registry := cfg.Registry()
	spawner := agents.NewSpawner(root.Fork("spawn"), registry)

	var population []*agents.Agent
	for _, spec := range cfg.TypeSpecs() {
		population = append(population, spawner.SpawnType(spec)...)
	}

	index := make(map[agents.AgentID]*agents.Agent, len(population))
	for _, a := range population {
		index[a.ID] = a
	}

	goods := collectGoods(population)
	books := make(map[economy.Good]*economy.Book, len(goods))
	for _, g := range goods {
		books[g] = economy.NewBook(g)
	}

	sim := &Simulation{
		Scenario:   cfg,
		Registry:   registry,
		Agents:     population,
		AgentIndex: index,
		Climate:    climate.NewEngine(cfg.ChronicRules(), cfg.ShockRules(), registry, root.Fork("climate")),
		Books:      books,
		Goods:      goods,
		Spawner:    spawner,
	}
	sim.InitialNet = sim.netBalance()
	sim.updateStats(0)
	return sim
}

// collectGoods gathers every good the population can produce, consume, or
// use as an input, in sorted order.
func collectGoods(population []*agents.Agent) []economy.Good {
	seen := make(map[economy.Good]bool)
	for _, a := range population {
		if a.Production != nil {
			seen[a.Production.Good] = true
			for g := range a.Production.Inputs {
				seen[g] = true
			}
		}
		if a.Consumption != nil {
			seen[a.Consumption.Good] = true
		}
		if a.Labor != nil {
			seen[economy.Labor] = true
		}
	}
	goods := make([]economy.Good, 0, len(seen))
	for g := range seen {
		goods = append(goods, g)
	}
	sort.Slice(goods, func(i, j int) bool { return goods[i] < goods[j] })
	return goods
}

// RunRound advances the simulation one full round and returns its record.
func (s *Simulation) RunRound() RoundRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastRound++
	round := s.LastRound

	s.beginRound()
	shocks := s.Climate.Resolve(round, s.Agents)
	for _, ev := range shocks {
		s.Events = append(s.Events, Event{
			Round:       round,
			Description: fmt.Sprintf("%s hit %s (productivity %.2f, overhead %.2f)", ev.Rule, ev.AgentName, ev.Productivity, ev.Overhead),
			Category:    "climate",
		})
	}

	s.planTargets()
	s.postLaborOffers()
	for _, role := range []agents.Role{agents.RoleProducer, agents.RoleIntermediary, agents.RoleFinal} {
		s.clearInputMarkets(round, role)
		s.produceLayer(round, role)
	}
	s.clearConsumerMarket(round)
	s.consumeHouseholds(round)
	s.redistribute()
	s.sweepDebts()
	s.expireLabor()

	s.updateStats(round)
	record := s.buildRecord(round, shocks)
	s.Climate.Decay()
	s.Records = append(s.Records, record)
	if len(s.Records) > keepRecords {
		s.Records = s.Records[len(s.Records)-keepRecords:]
	}
	if len(s.Events) > keepEvents {
		s.Events = s.Events[len(s.Events)-keepEvents:]
	}

	slog.Info("round report",
		"round", round,
		"agents", s.Stats.Agents,
		"money", fmt.Sprintf("%.2f", s.Stats.TotalMoney),
		"debt", fmt.Sprintf("%.2f", s.Stats.TotalDebt),
		"trades", s.Stats.Trades,
		"volume", fmt.Sprintf("%.2f", s.Stats.TradeVolume),
		"produced", fmt.Sprintf("%.2f", s.Stats.Produced),
		"consumed", fmt.Sprintf("%.2f", s.Stats.Consumed),
		"debt_issued", fmt.Sprintf("%.2f", s.Stats.DebtIssued),
		"overhead", fmt.Sprintf("%.2f", s.Stats.Overhead),
		"underfed", s.Stats.Underfed,
		"stressed", s.Stats.Stressed,
	)
	return record
}

// beginRound clears per-round state and refreshes labor endowments.
func (s *Simulation) beginRound() {
	for _, b := range s.Books {
		b.Reset()
	}
	s.trades = s.trades[:0]
	s.debtIssued = 0
	s.pool = 0
	s.absorbed = 0
	for _, a := range s.Agents {
		a.BeginRound()
		if a.Labor != nil {
			a.Ledger.AddGood(economy.Labor, a.Labor.Endowment)
		}
	}
}

// sweepDebts repays outstanding debt from cash on hand, every agent,
// every round.
func (s *Simulation) sweepDebts() {
	for _, a := range s.Agents {
		a.Ledger.RepayDebt()
	}
}

// expireLabor drops unsold hours; labor does not keep overnight.
func (s *Simulation) expireLabor() {
	for _, a := range s.Agents {
		a.Ledger.DrainGood(economy.Labor)
	}
}

// CurrentRound returns the most recently processed round number.
func (s *Simulation) CurrentRound() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastRound
}

// StatsSnapshot returns the latest aggregate statistics.
func (s *Simulation) StatsSnapshot() SimStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stats
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.Events) {
		n = len(s.Events)
	}
	out := make([]Event, n)
	copy(out, s.Events[len(s.Events)-n:])
	return out
}

// LastRecord returns the most recent round record, if any round has run.
func (s *Simulation) LastRecord() (RoundRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Records) == 0 {
		return RoundRecord{}, false
	}
	return s.Records[len(s.Records)-1], true
}

// AgentRecords returns end-of-round snapshots for every agent.
func (s *Simulation) AgentRecords() []AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentRecord, 0, len(s.Agents))
	for _, a := range s.Agents {
		out = append(out, s.agentRecord(a))
	}
	return out
}

// NetBalance returns money minus debt summed across all agents. It must
// equal InitialNet after every round.
func (s *Simulation) NetBalance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.netBalance()
}

func (s *Simulation) netBalance() float64 {
	var net float64
	for _, a := range s.Agents {
		net += a.Ledger.Money - a.Ledger.Debt
	}
	return net
}

func (s *Simulation) agentRecord(a *agents.Agent) AgentRecord {
	prodF, overF := s.Climate.Factors(a.ID)
	inv := make(map[economy.Good]float64, len(a.Ledger.Inventory))
	for g, qty := range a.Ledger.Inventory {
		inv[g] = qty
	}
	return AgentRecord{
		Agent:        a.ID,
		Name:         a.Name,
		Type:         a.Type,
		Role:         a.Role.String(),
		Continent:    a.Continent,
		Money:        a.Ledger.Money,
		Debt:         a.Ledger.Debt,
		Inventory:    inv,
		Produced:     a.Produced,
		Price:        a.Price,
		InputCost:    a.InputCost,
		MinTarget:    a.MinTarget,
		DebtCap:      a.DebtCap,
		Consumed:     a.Consumed,
		Utility:      a.Utility,
		Productivity: prodF,
		Overhead:     overF,
		Phase:        s.Climate.Phase(a.ID).String(),
	}
}

func (s *Simulation) buildRecord(round int, shocks []climate.Event) RoundRecord {
	agentRecs := make([]AgentRecord, 0, len(s.Agents))
	for _, a := range s.Agents {
		agentRecs = append(agentRecs, s.agentRecord(a))
	}
	trades := make([]economy.Trade, len(s.trades))
	copy(trades, s.trades)

	// This round's events are a suffix of the log; anything queued before
	// RunRound carries the previous round number.
	first := len(s.Events)
	for first > 0 && s.Events[first-1].Round == round {
		first--
	}
	events := make([]Event, len(s.Events)-first)
	copy(events, s.Events[first:])

	return RoundRecord{
		Round:   round,
		Agents:  agentRecs,
		Trades:  trades,
		Climate: shocks,
		Events:  events,
		Stats:   s.Stats,
	}
}

func (s *Simulation) updateStats(round int) {
	var money, debt, produced, consumed, utility, volume, value float64
	households, underfed, stressed := 0, 0, 0

	for _, a := range s.Agents {
		money += a.Ledger.Money
		debt += a.Ledger.Debt
		produced += a.Produced
		if a.Consumption != nil {
			households++
			consumed += a.Consumed
			utility += a.Utility
			if round > 0 && a.Consumed+1e-9 < a.Consumption.MinSurvival {
				underfed++
			}
		}
		if s.Climate.Phase(a.ID) != climate.PhaseUnstressed {
			stressed++
		}
	}
	for _, t := range s.trades {
		volume += t.Quantity
		value += t.Cost
	}

	s.Stats = SimStats{
		Round:       round,
		Agents:      len(s.Agents),
		TotalMoney:  money,
		TotalDebt:   debt,
		Trades:      len(s.trades),
		TradeVolume: volume,
		TradeValue:  value,
		Produced:    produced,
		Consumed:    consumed,
		DebtIssued:  s.debtIssued,
		Overhead:    s.absorbed,
		Underfed:    underfed,
		Stressed:    stressed,
	}
	if households > 0 {
		s.Stats.AvgUtility = utility / float64(households)
	}
}
