package climate

import (
	"fmt"
	"math"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/entropy"
	"github.com/talgya/climate-chain/internal/geo"
)

// Factors within this distance of 1.0 snap back to exactly 1.0 during
// recovery, ending the episode.
const recoveredEps = 1e-9

// Phase classifies an agent's stress state for reporting.
type Phase uint8

const (
	PhaseUnstressed Phase = iota
	PhaseChronic
	PhaseAcute
	PhaseRecovering
)

var phaseNames = [...]string{"unstressed", "chronic", "acute", "recovering"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// StressState tracks one agent's accumulated climate stress. Chronic
// accumulators compound permanently; acute factors recover.
type StressState struct {
	ChronicProductivity float64 `json:"chronic_productivity"`
	ChronicOverhead     float64 `json:"chronic_overhead"`
	AcuteProductivity   float64 `json:"acute_productivity"`
	AcuteOverhead       float64 `json:"acute_overhead"`
	Hold                int     `json:"hold"`     // rounds left before recovery may begin
	Recovery            float64 `json:"recovery"` // strongest rate among the shocks that hit
}

func neutralState() StressState {
	return StressState{
		ChronicProductivity: 1,
		ChronicOverhead:     1,
		AcuteProductivity:   1,
		AcuteOverhead:       1,
	}
}

// factors returns the combined multipliers the rest of the simulation sees.
func (s *StressState) factors() (productivity, overhead float64) {
	return s.ChronicProductivity * s.AcuteProductivity,
		s.ChronicOverhead * s.AcuteOverhead
}

// Engine owns the per-agent stress states and the shock draws. All methods
// are called from the round loop; the engine is not safe for concurrent use.
type Engine struct {
	chronic  []Rule
	shocks   []Rule
	registry *geo.Registry
	rng      *entropy.Stream
	states   map[agents.AgentID]*StressState
	pending  []string // injected shock names, consumed by the next Resolve
}

// NewEngine creates a climate engine drawing shock trials from the given
// stream.
func NewEngine(chronic, shocks []Rule, registry *geo.Registry, rng *entropy.Stream) *Engine {
	return &Engine{
		chronic:  chronic,
		shocks:   shocks,
		registry: registry,
		rng:      rng,
		states:   make(map[agents.AgentID]*StressState),
	}
}

// Resolve applies one round of climate stress in deterministic order:
// chronic rules first, then shock trials, both walking rules in scenario
// order and agents in population order. It returns the round's events.
func (e *Engine) Resolve(round int, population []*agents.Agent) []Event {
	for i := range e.chronic {
		rule := &e.chronic[i]
		for _, a := range population {
			if !rule.InScope(a) {
				continue
			}
			st := e.state(a.ID)
			if rule.hitsProductivity() && rule.Productivity > 0 {
				st.ChronicProductivity *= rule.Productivity
			}
			if rule.hitsOverhead() && rule.Overhead > 0 {
				st.ChronicOverhead *= rule.Overhead
			}
		}
	}

	forced := make(map[string]bool, len(e.pending))
	for _, name := range e.pending {
		forced[name] = true
	}
	e.pending = nil

	var events []Event
	for i := range e.shocks {
		rule := &e.shocks[i]
		for _, a := range population {
			if !rule.InScope(a) {
				continue
			}
			if !forced[rule.Name] {
				p := rule.Probability * e.registry.RiskWeight(a.Continent)
				if !e.rng.Bernoulli(p) {
					continue
				}
			}
			st := e.state(a.ID)
			v := a.Climate.Vulnerability
			if rule.hitsProductivity() && rule.Productivity > 0 {
				st.AcuteProductivity *= scaleByVulnerability(rule.Productivity, v)
			}
			if rule.hitsOverhead() && rule.Overhead > 0 {
				st.AcuteOverhead *= scaleByVulnerability(rule.Overhead, v)
			}
			if hold := rule.Duration - 1; hold > st.Hold {
				st.Hold = hold
			}
			if rule.Recovery > st.Recovery {
				st.Recovery = rule.Recovery
			}
			prod, over := st.factors()
			events = append(events, Event{
				Round:        round,
				Rule:         rule.Name,
				Agent:        a.ID,
				AgentName:    a.Name,
				Continent:    a.Continent,
				Productivity: prod,
				Overhead:     over,
				Injected:     forced[rule.Name],
			})
		}
	}
	return events
}

// scaleByVulnerability amplifies or dampens a stress factor's deviation
// from 1.0: vulnerability above 1 deepens the shock, below 1 softens it.
// The result is floored so a deep shock cannot flip a factor negative.
func scaleByVulnerability(factor, vulnerability float64) float64 {
	scaled := 1 + (factor-1)*vulnerability
	if scaled < 0.01 {
		return 0.01
	}
	return scaled
}

// Factors returns the combined productivity and overhead multipliers for an
// agent. Agents the engine has never touched sit at the neutral 1.0.
func (e *Engine) Factors(id agents.AgentID) (productivity, overhead float64) {
	st, ok := e.states[id]
	if !ok {
		return 1, 1
	}
	return st.factors()
}

// Snapshot returns a copy of an agent's stress state for records.
func (e *Engine) Snapshot(id agents.AgentID) StressState {
	if st, ok := e.states[id]; ok {
		return *st
	}
	return neutralState()
}

// Phase classifies an agent's current stress for reporting: acute while a
// shock holds, recovering while it decays, chronic when only the permanent
// accumulators deviate.
func (e *Engine) Phase(id agents.AgentID) Phase {
	st, ok := e.states[id]
	if !ok {
		return PhaseUnstressed
	}
	acute := st.AcuteProductivity != 1 || st.AcuteOverhead != 1
	switch {
	case acute && st.Hold > 0:
		return PhaseAcute
	case acute:
		return PhaseRecovering
	case st.ChronicProductivity != 1 || st.ChronicOverhead != 1:
		return PhaseChronic
	default:
		return PhaseUnstressed
	}
}

// Decay advances every acute episode one round: held shocks count down,
// then factors either decay geometrically toward 1.0 or, with no recovery
// rate, reset instantly. Chronic accumulators never recover. Per-state
// updates are independent, so map order does not affect the outcome.
func (e *Engine) Decay() {
	for _, st := range e.states {
		if st.AcuteProductivity == 1 && st.AcuteOverhead == 1 {
			st.Hold = 0
			st.Recovery = 0
			continue
		}
		if st.Hold > 0 {
			st.Hold--
			continue
		}
		if st.Recovery <= 0 {
			st.AcuteProductivity = 1
			st.AcuteOverhead = 1
			continue
		}
		st.AcuteProductivity = decayToward(st.AcuteProductivity, st.Recovery)
		st.AcuteOverhead = decayToward(st.AcuteOverhead, st.Recovery)
		if st.AcuteProductivity == 1 && st.AcuteOverhead == 1 {
			st.Recovery = 0
		}
	}
}

func decayToward(factor, rate float64) float64 {
	next := 1 + (factor-1)*(1-rate)
	if math.Abs(next-1) < recoveredEps {
		return 1
	}
	return next
}

// Inject queues a named shock rule to fire with certainty for every agent
// in its scope at the next Resolve.
func (e *Engine) Inject(name string) error {
	for i := range e.shocks {
		if e.shocks[i].Name == name {
			e.pending = append(e.pending, name)
			return nil
		}
	}
	return fmt.Errorf("unknown shock rule %q", name)
}

// ShockRules returns the configured shock rules in scenario order.
func (e *Engine) ShockRules() []Rule {
	out := make([]Rule, len(e.shocks))
	copy(out, e.shocks)
	return out
}

func (e *Engine) state(id agents.AgentID) *StressState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := neutralState()
	e.states[id] = &st
	return &st
}
