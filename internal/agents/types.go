// Package agents defines the economic actors of the simulation: producers,
// intermediaries, final-goods firms, and households, as a single record
// carrying a role tag plus optional capability components.
// See design doc Section 4.
package agents

import (
	"github.com/talgya/climate-chain/internal/economy"
	"github.com/talgya/climate-chain/internal/geo"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Role places an agent in the fixed supply-chain layering.
type Role uint8

const (
	RoleProducer     Role = iota // extracts commodities, buys only labor
	RoleIntermediary             // transforms commodities into materials
	RoleFinal                    // sells finished goods to households
	RoleHousehold                // supplies labor, consumes finished goods
)

var roleNames = [...]string{"producer", "intermediary", "final", "household"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

// ParseRole maps a scenario role string to its Role tag.
func ParseRole(s string) (Role, bool) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), true
		}
	}
	return 0, false
}

// Traits are behavioral multipliers drawn at spawn time, centered on 1.
type Traits struct {
	RiskTolerance         float64 `json:"risk_tolerance"`         // scales a firm's voluntary input budget
	TradePreference       float64 `json:"trade_preference"`       // scales a household's labor offer
	ConsumptionPreference float64 `json:"consumption_preference"` // scales a household's goods bid
	DebtWillingness       float64 `json:"debt_willingness"`       // scales survival borrowing headroom
}

// ProductionSpec describes what a firm makes and at what cost structure.
type ProductionSpec struct {
	Good          economy.Good                       `json:"good"`
	BaseOutput    float64                            `json:"base_output"`    // output at the base input bundle, unstressed
	BaseOverhead  float64                            `json:"base_overhead"`  // fixed cost per round, unstressed
	ProfitMargin  float64                            `json:"profit_margin"`  // markup over unit cost
	CustomerShare float64                            `json:"customer_share"` // share of overhead passed into price
	SpendFraction float64                            `json:"spend_fraction"` // share of money offered for inputs
	Inputs        map[economy.Good]economy.InputTerm `json:"inputs,omitempty"`
}

// ConsumptionSpec describes what a household eats and how urgently.
type ConsumptionSpec struct {
	Good            economy.Good `json:"good"`
	MinSurvival     float64      `json:"min_survival"`     // quantity per round below which debt is authorized
	SpendFraction   float64      `json:"spend_fraction"`   // share of money bid each round
	ConsumeFraction float64      `json:"consume_fraction"` // share of stock consumed above the survival floor
}

// LaborSpec describes a household's labor endowment. Labor is perishable:
// unsold hours expire at the end of the round.
type LaborSpec struct {
	Endowment float64 `json:"endowment"` // hours refreshed each round
	Wage      float64 `json:"wage"`      // ask price per hour
}

// ClimateProfile marks an agent as eligible for climate stress. Agents
// without one are never targeted by rules or shocks.
type ClimateProfile struct {
	Vulnerability float64 `json:"vulnerability"` // scales shock deviation, spawn-time draw
}

// Agent is the core entity. Which components are non-nil follows from the
// role: firms carry Production, households carry Consumption and Labor.
type Agent struct {
	ID        AgentID       `json:"id"`
	Name      string        `json:"name"`
	Type      string        `json:"type"` // scenario type name, scopes climate rules
	Role      Role          `json:"role"`
	Continent geo.Continent `json:"continent"`

	Ledger *economy.Ledger `json:"ledger"`
	Traits Traits          `json:"traits"`

	Climate     *ClimateProfile  `json:"climate,omitempty"`
	Production  *ProductionSpec  `json:"production,omitempty"`
	Consumption *ConsumptionSpec `json:"consumption,omitempty"`
	Labor       *LaborSpec       `json:"labor,omitempty"`

	// Per-round tallies, cleared by BeginRound.
	Produced  float64 `json:"produced"`
	Price     float64 `json:"price"`
	InputCost float64 `json:"input_cost"`
	MinTarget float64 `json:"min_target"`
	DebtCap   float64 `json:"debt_cap"`
	Consumed  float64 `json:"consumed"`

	// Utility accumulates consumed quantity across the whole run.
	Utility float64 `json:"utility"`
}

// IsFirm reports whether the agent produces for a market.
func (a *Agent) IsFirm() bool {
	return a.Production != nil && a.Role != RoleHousehold
}

// Sells reports whether the agent posts asks for the given good.
func (a *Agent) Sells(g economy.Good) bool {
	return a.IsFirm() && a.Production.Good == g
}

// BeginRound clears the per-round tallies. Utility and the ledger persist.
func (a *Agent) BeginRound() {
	a.Produced = 0
	a.InputCost = 0
	a.MinTarget = 0
	a.DebtCap = 0
	a.Consumed = 0
}
