// Package climate applies geographically scoped stress to the agent
// population: chronic rules that compound permanently and acute shocks that
// strike probabilistically and recover.
// See design doc Section 6.
package climate

import (
	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/geo"
)

// StressMode selects which production channel a rule degrades.
type StressMode uint8

const (
	ModeProductivity StressMode = iota // scales output
	ModeOverhead                       // scales fixed cost
	ModeBoth
)

var modeNames = [...]string{"productivity", "overhead", "both"}

func (m StressMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode maps a scenario mode string to its StressMode.
func ParseMode(s string) (StressMode, bool) {
	for i, name := range modeNames {
		if name == s {
			return StressMode(i), true
		}
	}
	return 0, false
}

// Rule is one climate stressor from the scenario. Chronic rules apply every
// round; shock rules fire on a per-agent Bernoulli draw. Rules are read-only
// during the run.
type Rule struct {
	Name       string          `json:"name"`
	Types      []string        `json:"types"`      // agent type names, empty or "all" matches every type
	Continents []geo.Continent `json:"continents"` // empty or "all" matches every continent

	Productivity float64    `json:"productivity_stress_factor"` // multiplicative, 0 < f, typically <= 1
	Overhead     float64    `json:"overhead_stress_factor"`     // multiplicative, 0 < f, typically >= 1
	Mode         StressMode `json:"mode"`

	// Shock-only fields.
	Probability float64 `json:"probability"`   // per-agent trigger chance per round, before continent weighting
	Duration    int     `json:"duration"`      // rounds the shock holds before recovery starts, min 1
	Recovery    float64 `json:"recovery_rate"` // geometric decay toward 1; 0 resets instantly after the hold
}

// InScope reports whether the rule targets the agent. Agents without a
// climate profile are never in scope. Unknown types or continents simply
// fail to match; a misconfigured scope is empty, not fatal.
func (r *Rule) InScope(a *agents.Agent) bool {
	if a == nil || a.Climate == nil {
		return false
	}
	return matchType(r.Types, a.Type) && matchContinent(r.Continents, a.Continent)
}

func matchType(targets []string, typ string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t == "all" || t == typ {
			return true
		}
	}
	return false
}

func matchContinent(targets []geo.Continent, c geo.Continent) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t == "all" || t == c {
			return true
		}
	}
	return false
}

// hitsProductivity reports whether the rule's mode touches output.
func (r *Rule) hitsProductivity() bool {
	return r.Mode == ModeProductivity || r.Mode == ModeBoth
}

// hitsOverhead reports whether the rule's mode touches fixed cost.
func (r *Rule) hitsOverhead() bool {
	return r.Mode == ModeOverhead || r.Mode == ModeBoth
}

// Event is a realized shock on one agent: the rule that fired and the
// agent's resulting combined stress factors. Events are append-only.
type Event struct {
	Round        int            `json:"round"`
	Rule         string         `json:"rule"`
	Agent        agents.AgentID `json:"agent"`
	AgentName    string         `json:"agent_name"`
	Continent    geo.Continent  `json:"continent"`
	Productivity float64        `json:"productivity_factor"`
	Overhead     float64        `json:"overhead_factor"`
	Injected     bool           `json:"injected,omitempty"`
}
